// Package parent serves the out-of-band authorization surface: PIN
// verification, approval cancellation, the activity log, and the live event
// feed. None of these routes sit behind the chat rate limiter; a parent must
// be able to approve a turn even when the child has exhausted the window.
package parent

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kidsafegpt/backend/internal/config"
	chathandler "github.com/kidsafegpt/backend/internal/handler/chat"
	"github.com/kidsafegpt/backend/internal/model/chat"
	"github.com/kidsafegpt/backend/internal/model/profile"
	"github.com/kidsafegpt/backend/internal/ratelimit"
	"github.com/kidsafegpt/backend/internal/service/approval"
	chatservice "github.com/kidsafegpt/backend/internal/service/chat"
	"github.com/kidsafegpt/backend/internal/service/events"
	"github.com/kidsafegpt/backend/internal/service/pipeline"
	"github.com/kidsafegpt/backend/pkg/utils"
)

// Handler verifies parent PINs and resumes held turns.
type Handler struct {
	cfg       config.GateConfig
	gate      *approval.Gate
	pipeline  *pipeline.Pipeline
	profiles  profile.Store
	chatSvc   *chatservice.Service
	broadcast *events.Broadcaster
	upgrader  websocket.Upgrader
}

// New creates the parent handler.
func New(cfg config.GateConfig, gate *approval.Gate, p *pipeline.Pipeline, profiles profile.Store, chatSvc *chatservice.Service, broadcast *events.Broadcaster) *Handler {
	return &Handler{
		cfg:       cfg,
		gate:      gate,
		pipeline:  p,
		profiles:  profiles,
		chatSvc:   chatSvc,
		broadcast: broadcast,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the parent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/parent-verify", h.handleVerify)
	r.Post("/approval/cancel", h.handleCancel)
	r.Get("/parent/log", h.handleLog)
	r.Get("/parent/events", h.handleEvents)
}

type verifyRequest struct {
	PIN       string `json:"pin"`
	SessionID string `json:"sessionId"`
}

type verifyResponse struct {
	OK      bool     `json:"ok"`
	Content string   `json:"content,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// handleVerify checks the PIN and, when a turn is held for the session,
// resumes it through the full pipeline exactly once. A wrong PIN leaves the
// gate pending; the incorrect-PIN failure is explicit so the UI can keep the
// gate open instead of silently closing it.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var payload verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Bad request")
		return
	}

	if !h.cfg.Enabled() {
		utils.RespondError(w, http.StatusInternalServerError, "Server missing PARENT_PIN")
		return
	}

	if strings.TrimSpace(payload.PIN) != h.cfg.ParentPIN {
		// The PIN value itself is never logged.
		log.Printf("[parent] verification failed")
		utils.RespondJSON(w, http.StatusUnauthorized, verifyResponse{OK: false})
		return
	}

	sessionKey := payload.SessionID
	if sessionKey == "" {
		sessionKey = ratelimit.ClientID(r)
	}

	req, err := h.gate.Approve(sessionKey)
	if err != nil {
		// PIN accepted but nothing held; still a successful verification.
		utils.RespondJSON(w, http.StatusOK, verifyResponse{OK: true})
		return
	}

	prof, ok := h.profiles.FindByID(req.ProfileID)
	if !ok {
		prof = h.profiles.Default()
	}

	// Approval bypasses only the keyword pre-trigger; the resumed turn still
	// walks the entire safety chain.
	turns := []chat.Turn{{Role: chat.RoleUser, Content: req.Text}}
	h.recordTurn(r, sessionKey, chat.Turn{Role: chat.RoleUser, Content: req.Text, ProfileID: prof.ID})

	result, err := h.pipeline.Run(r.Context(), prof, sessionKey, turns)
	if err != nil {
		chathandler.RespondMediationError(w, err)
		return
	}

	h.recordTurn(r, sessionKey, chat.Turn{Role: chat.RoleAssistant, Content: result.Content, ProfileID: prof.ID})

	utils.RespondJSON(w, http.StatusOK, verifyResponse{
		OK:      true,
		Content: result.Content,
		Sources: result.Sources,
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionKey := payload.SessionID
	if sessionKey == "" {
		sessionKey = ratelimit.ClientID(r)
	}

	err := h.gate.Cancel(sessionKey)
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": err == nil})
}

// handleLog returns the tail of a session transcript for the parent log
// panel. Defaults to the last 5 turns.
func (h *Handler) handleLog(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.URL.Query().Get("sessionId")
	if sessionKey == "" {
		sessionKey = ratelimit.ClientID(r)
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	turns := h.chatSvc.TailTranscript(r.Context(), sessionKey, limit)
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"turns": turns})
}

// handleEvents upgrades to a websocket and forwards broadcaster events until
// the dashboard disconnects.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[parent] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := h.broadcast.Subscribe()
	defer h.broadcast.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("[parent] websocket write failed: %v", err)
				return
			}
		}
	}
}

func (h *Handler) recordTurn(r *http.Request, sessionKey string, turn chat.Turn) {
	saved, err := h.chatSvc.AppendTurn(r.Context(), sessionKey, turn)
	if err != nil {
		return
	}

	eventType := events.TypeUserTurn
	if turn.Role == chat.RoleAssistant {
		eventType = events.TypeAssistantTurn
	}
	h.broadcast.Publish(events.Event{Type: eventType, SessionID: sessionKey, Turn: &saved})
}
