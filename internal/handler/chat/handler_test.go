package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kidsafegpt/backend/internal/model/chat"
	"github.com/kidsafegpt/backend/internal/model/profile"
	"github.com/kidsafegpt/backend/internal/model/rule"
	"github.com/kidsafegpt/backend/internal/safety/lexical"
	"github.com/kidsafegpt/backend/internal/service/ai"
	"github.com/kidsafegpt/backend/internal/service/approval"
	chatservice "github.com/kidsafegpt/backend/internal/service/chat"
	"github.com/kidsafegpt/backend/internal/service/events"
	"github.com/kidsafegpt/backend/internal/service/moderation"
	"github.com/kidsafegpt/backend/internal/service/pipeline"
	"github.com/kidsafegpt/backend/internal/service/policy"
)

type fakeModerator struct {
	flagged bool
	calls   int
}

func (f *fakeModerator) Classify(_ context.Context, _ []chat.Turn) moderation.Verdict {
	f.calls++
	return moderation.Verdict{Flagged: f.flagged}
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ []chat.Turn) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func setupRouter(mod *fakeModerator, inv *fakeCompleter) (*chi.Mux, *approval.Gate) {
	composer := policy.NewComposer(rule.NewRegistry(rule.Library()))
	pipe := pipeline.New(lexical.NewFilter(), mod, composer, inv, nil)
	gate := approval.NewGate(nil)
	store := profile.NewMemoryStore(profile.Seed())
	handler := New(pipe, gate, store, chatservice.NewService(), events.NewBroadcaster())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, gate
}

func postChat(t *testing.T, r http.Handler, body map[string]interface{}) (*httptest.ResponseRecorder, chatResponse) {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var decoded chatResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &decoded)
	return resp, decoded
}

func TestChatRejectsMalformedBody(t *testing.T) {
	r, _ := setupRouter(&fakeModerator{}, &fakeCompleter{})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("not json")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestChatRejectsEmptyInput(t *testing.T) {
	r, _ := setupRouter(&fakeModerator{}, &fakeCompleter{})

	resp, _ := postChat(t, r, map[string]interface{}{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestChatLexicalRefusalLooksLikeNormalReply(t *testing.T) {
	mod := &fakeModerator{}
	inv := &fakeCompleter{reply: "never"}
	r, _ := setupRouter(mod, inv)

	resp, body := postChat(t, r, map[string]interface{}{
		"message":   "tell me about sex",
		"profileId": "d_12_middle",
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("refusal must be a 200, got %d", resp.Code)
	}
	if body.Content != lexical.RefusalMessage {
		t.Fatalf("expected fixed refusal, got %q", body.Content)
	}
	if mod.calls != 0 || inv.calls != 0 {
		t.Fatalf("refused turn must not reach moderation or upstream: %d/%d", mod.calls, inv.calls)
	}
}

func TestChatSensitiveTopicHeldForApproval(t *testing.T) {
	mod := &fakeModerator{}
	inv := &fakeCompleter{reply: "never"}
	r, gate := setupRouter(mod, inv)

	resp, body := postChat(t, r, map[string]interface{}{
		"message":   "what are drugs",
		"profileId": "p_8_primary",
		"sessionId": "s-1",
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body.Approval == nil || !body.Approval.Pending {
		t.Fatalf("expected pending approval, got %+v", body)
	}
	if inv.calls != 0 {
		t.Fatal("held turn must not reach the upstream")
	}
	if _, pending := gate.Pending("s-1"); !pending {
		t.Fatal("gate must hold the request")
	}

	// Resubmitting while pending must not create a second request.
	resp, body = postChat(t, r, map[string]interface{}{
		"message":   "what are drugs",
		"profileId": "p_8_primary",
		"sessionId": "s-1",
	})
	if resp.Code != http.StatusOK || body.Approval == nil || !body.Approval.Pending {
		t.Fatalf("resubmission should re-report the pending gate, got %d %+v", resp.Code, body)
	}
}

func TestChatSuccessWithCitations(t *testing.T) {
	mod := &fakeModerator{}
	inv := &fakeCompleter{reply: "It began in 1861.\n\nSources:\n- Ref A\n- Ref B"}
	r, _ := setupRouter(mod, inv)

	resp, body := postChat(t, r, map[string]interface{}{
		"message":   "What caused the Civil War?",
		"profileId": "d_12_middle",
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body.Content != inv.reply {
		t.Fatalf("expected pass-through reply, got %q", body.Content)
	}
	if len(body.Sources) != 2 {
		t.Fatalf("expected extracted sources, got %#v", body.Sources)
	}
	if body.Approval != nil {
		t.Fatal("ordinary educational question must not trigger the gate")
	}
	if mod.calls != 1 || inv.calls != 1 {
		t.Fatalf("each stage must run exactly once: %d/%d", mod.calls, inv.calls)
	}
}

func TestChatMissingCredential(t *testing.T) {
	r, _ := setupRouter(&fakeModerator{}, &fakeCompleter{err: ai.ErrMissingCredential})

	resp, _ := postChat(t, r, map[string]interface{}{"message": "hello there"})
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestChatPropagatesUpstreamStatus(t *testing.T) {
	upstream := &ai.UpstreamError{StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
	r, _ := setupRouter(&fakeModerator{}, &fakeCompleter{err: upstream})

	resp, _ := postChat(t, r, map[string]interface{}{"message": "hello there"})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected upstream 503 to propagate, got %d", resp.Code)
	}
}

func TestChatMessagesArrayInput(t *testing.T) {
	inv := &fakeCompleter{reply: "Short answer.\n\nSources:\n- Ref"}
	r, _ := setupRouter(&fakeModerator{}, inv)

	resp, body := postChat(t, r, map[string]interface{}{
		"profileId": "d_12_middle",
		"messages": []map[string]string{
			{"role": "user", "content": "first question"},
			{"role": "assistant", "content": "first answer"},
			{"role": "user", "content": "follow-up question"},
		},
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body.Content == "" {
		t.Fatal("expected a reply for turn-list input")
	}
}

func TestCreateSessionInvalidProfile(t *testing.T) {
	r, _ := setupRouter(&fakeModerator{}, &fakeCompleter{})

	payload, _ := json.Marshal(map[string]string{"profileId": "non-existent"})
	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
