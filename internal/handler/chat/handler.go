package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kidsafegpt/backend/internal/model/chat"
	"github.com/kidsafegpt/backend/internal/model/profile"
	"github.com/kidsafegpt/backend/internal/ratelimit"
	"github.com/kidsafegpt/backend/internal/safety/sensitive"
	"github.com/kidsafegpt/backend/internal/service/ai"
	"github.com/kidsafegpt/backend/internal/service/approval"
	chatservice "github.com/kidsafegpt/backend/internal/service/chat"
	"github.com/kidsafegpt/backend/internal/service/events"
	"github.com/kidsafegpt/backend/internal/service/pipeline"
	"github.com/kidsafegpt/backend/pkg/utils"
)

// Handler serves the chat mediation endpoint.
type Handler struct {
	pipeline  *pipeline.Pipeline
	gate      *approval.Gate
	profiles  profile.Store
	chatSvc   *chatservice.Service
	broadcast *events.Broadcaster
}

// New creates the chat handler.
func New(p *pipeline.Pipeline, gate *approval.Gate, profiles profile.Store, chatSvc *chatservice.Service, broadcast *events.Broadcaster) *Handler {
	return &Handler{
		pipeline:  p,
		gate:      gate,
		profiles:  profiles,
		chatSvc:   chatSvc,
		broadcast: broadcast,
	}
}

// RegisterRoutes registers the mediation and session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/session", h.handleCreateSession)
}

type chatRequest struct {
	// Flexible input: either a full turn list or a single message string.
	Messages  []chat.Turn `json:"messages"`
	Message   string      `json:"message"`
	ProfileID string      `json:"profileId"`
	SessionID string      `json:"sessionId"`
}

type chatResponse struct {
	Role     chat.Role         `json:"role"`
	Content  string            `json:"content"`
	Sources  []string          `json:"sources,omitempty"`
	Approval *approvalResponse `json:"approval,omitempty"`
}

type approvalResponse struct {
	Pending bool   `json:"pending"`
	Reason  string `json:"reason"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turns := payload.Messages
	if len(turns) == 0 {
		if payload.Message == "" {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body. Expected { message } or { messages }.")
			return
		}
		turns = []chat.Turn{{Role: chat.RoleUser, Content: payload.Message}}
	}
	for _, turn := range turns {
		if !turn.Role.Valid() {
			utils.RespondError(w, http.StatusBadRequest, "invalid message role")
			return
		}
	}

	prof, ok := h.resolveProfile(payload.ProfileID)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "profile not found")
		return
	}

	sessionKey := payload.SessionID
	if sessionKey == "" {
		sessionKey = ratelimit.ClientID(r)
	}

	userText := lastUserContent(turns)

	// The approval gate sits in front of the whole pipeline. It holds the
	// turn for parent sign-off; it never refuses by itself.
	if prof.RequireParentForSensitive && sensitive.Match(userText) {
		if _, pending := h.gate.Pending(sessionKey); pending {
			// One request per composer; a resubmission just re-reports it.
			utils.RespondJSON(w, http.StatusOK, chatResponse{
				Role:     chat.RoleAssistant,
				Approval: &approvalResponse{Pending: true, Reason: "Sensitive keywords detected"},
			})
			return
		}
		if _, err := h.gate.Hold(sessionKey, userText, prof.ID, "Sensitive keywords detected"); err != nil {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		utils.RespondJSON(w, http.StatusOK, chatResponse{
			Role:     chat.RoleAssistant,
			Approval: &approvalResponse{Pending: true, Reason: "Sensitive keywords detected"},
		})
		return
	}

	h.recordTurn(r, sessionKey, chat.Turn{Role: chat.RoleUser, Content: userText, ProfileID: prof.ID})

	result, err := h.pipeline.Run(r.Context(), prof, sessionKey, turns)
	if err != nil {
		RespondMediationError(w, err)
		return
	}

	h.recordTurn(r, sessionKey, chat.Turn{Role: chat.RoleAssistant, Content: result.Content, ProfileID: prof.ID})

	utils.RespondJSON(w, http.StatusOK, chatResponse{
		Role:    chat.RoleAssistant,
		Content: result.Content,
		Sources: result.Sources,
	})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProfileID string `json:"profileId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.ProfileID == "" {
		utils.RespondError(w, http.StatusBadRequest, "profileId is required")
		return
	}

	if _, ok := h.profiles.FindByID(payload.ProfileID); !ok {
		utils.RespondError(w, http.StatusBadRequest, "profile not found")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.ProfileID)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) resolveProfile(id string) (profile.Profile, bool) {
	if id == "" {
		return h.profiles.Default(), true
	}
	return h.profiles.FindByID(id)
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

func lastUserContent(turns []chat.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == chat.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

// RespondMediationError maps pipeline errors onto the HTTP contract: missing
// credential is a server misconfiguration, upstream rejections keep their
// status, transport failures become a 502. Raw upstream payloads that might
// carry credentials never reach the client.
func RespondMediationError(w http.ResponseWriter, err error) {
	if errors.Is(err, ai.ErrMissingCredential) {
		utils.RespondError(w, http.StatusInternalServerError, "Server is missing OPENAI_API_KEY")
		return
	}

	var upstreamErr *ai.UpstreamError
	if errors.As(err, &upstreamErr) {
		status := upstreamErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		utils.RespondError(w, status, "Upstream error: "+upstreamErr.Message)
		return
	}

	utils.RespondError(w, http.StatusBadGateway, "Failed to reach the completion service. Please try again.")
}
