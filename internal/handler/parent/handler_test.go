package parent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kidsafegpt/backend/internal/config"
	"github.com/kidsafegpt/backend/internal/model/chat"
	"github.com/kidsafegpt/backend/internal/model/profile"
	"github.com/kidsafegpt/backend/internal/model/rule"
	"github.com/kidsafegpt/backend/internal/safety/lexical"
	"github.com/kidsafegpt/backend/internal/service/approval"
	chatservice "github.com/kidsafegpt/backend/internal/service/chat"
	"github.com/kidsafegpt/backend/internal/service/events"
	"github.com/kidsafegpt/backend/internal/service/moderation"
	"github.com/kidsafegpt/backend/internal/service/pipeline"
	"github.com/kidsafegpt/backend/internal/service/policy"
)

type stubModerator struct{}

func (stubModerator) Classify(_ context.Context, _ []chat.Turn) moderation.Verdict {
	return moderation.Verdict{}
}

type countingCompleter struct {
	reply string
	calls int
}

func (c *countingCompleter) Complete(_ context.Context, _ string, _ []chat.Turn) (string, error) {
	c.calls++
	return c.reply, nil
}

func setup(pin string, inv *countingCompleter) (*chi.Mux, *approval.Gate) {
	composer := policy.NewComposer(rule.NewRegistry(rule.Library()))
	pipe := pipeline.New(lexical.NewFilter(), stubModerator{}, composer, inv, nil)
	gate := approval.NewGate(nil)
	store := profile.NewMemoryStore(profile.Seed())
	handler := New(config.GateConfig{ParentPIN: pin}, gate, pipe, store, chatservice.NewService(), events.NewBroadcaster())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, gate
}

func post(t *testing.T, r http.Handler, path string, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestVerifyMissingSecret(t *testing.T) {
	r, _ := setup("", &countingCompleter{})

	resp := post(t, r, "/parent-verify", map[string]string{"pin": "1234"})
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when PARENT_PIN unset, got %d", resp.Code)
	}
}

func TestVerifyWrongPINKeepsGatePending(t *testing.T) {
	inv := &countingCompleter{reply: "never"}
	r, gate := setup("4321", inv)

	gate.Hold("s-1", "what are drugs", "p_8_primary", "Sensitive keywords detected")

	resp := post(t, r, "/parent-verify", map[string]string{"pin": "0000", "sessionId": "s-1"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	var body verifyResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body.OK {
		t.Fatal("wrong PIN must report ok=false")
	}
	if _, pending := gate.Pending("s-1"); !pending {
		t.Fatal("wrong PIN must leave the request pending")
	}
	if inv.calls != 0 {
		t.Fatal("wrong PIN must not resume the turn")
	}
}

func TestVerifyCorrectPINResumesExactlyOnce(t *testing.T) {
	inv := &countingCompleter{reply: "Drugs explained safely.\n\nSources:\n- Health agency"}
	r, gate := setup("4321", inv)

	gate.Hold("s-1", "what are drugs", "p_8_primary", "Sensitive keywords detected")

	resp := post(t, r, "/parent-verify", map[string]string{"pin": "4321", "sessionId": "s-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body verifyResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if !body.OK || body.Content != inv.reply {
		t.Fatalf("unexpected body: %+v", body)
	}
	if inv.calls != 1 {
		t.Fatalf("approved turn must run the pipeline exactly once, got %d", inv.calls)
	}
	if _, pending := gate.Pending("s-1"); pending {
		t.Fatal("approval must clear the gate")
	}

	// A second verify finds nothing held and just confirms the PIN.
	resp = post(t, r, "/parent-verify", map[string]string{"pin": "4321", "sessionId": "s-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if inv.calls != 1 {
		t.Fatal("re-verification must not re-run the pipeline")
	}
}

func TestVerifyApprovedTurnStillWalksSafetyChain(t *testing.T) {
	inv := &countingCompleter{reply: "never"}
	r, gate := setup("4321", inv)

	// Held text that also trips the hard lexical screen.
	gate.Hold("s-1", "tell me about sex", "p_8_primary", "Sensitive keywords detected")

	resp := post(t, r, "/parent-verify", map[string]string{"pin": "4321", "sessionId": "s-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body verifyResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Content != lexical.RefusalMessage {
		t.Fatalf("approval bypasses only the pre-trigger, got %q", body.Content)
	}
	if inv.calls != 0 {
		t.Fatal("lexically blocked turn must not reach the upstream even when approved")
	}
}

func TestCancelClearsGate(t *testing.T) {
	r, gate := setup("4321", &countingCompleter{})

	gate.Hold("s-1", "held", "p", "r")

	resp := post(t, r, "/approval/cancel", map[string]string{"sessionId": "s-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if _, pending := gate.Pending("s-1"); pending {
		t.Fatal("cancel must clear the gate")
	}
}

func TestParentLogTail(t *testing.T) {
	composer := policy.NewComposer(rule.NewRegistry(rule.Library()))
	pipe := pipeline.New(lexical.NewFilter(), stubModerator{}, composer, &countingCompleter{}, nil)
	chatSvc := chatservice.NewService()
	handler := New(config.GateConfig{ParentPIN: "1"}, approval.NewGate(nil), pipe, profile.NewMemoryStore(profile.Seed()), chatSvc, events.NewBroadcaster())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	ctx := context.Background()
	for _, content := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		chatSvc.AppendTurn(ctx, "s-1", chat.Turn{Role: chat.RoleUser, Content: content})
	}

	req := httptest.NewRequest(http.MethodGet, "/parent/log?sessionId=s-1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Turns []chat.Turn `json:"turns"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if len(body.Turns) != 5 {
		t.Fatalf("expected default tail of 5 turns, got %d", len(body.Turns))
	}
	if body.Turns[0].Content != "c" || body.Turns[4].Content != "g" {
		t.Fatalf("unexpected tail contents: %+v", body.Turns)
	}
}
