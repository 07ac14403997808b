// Package profile exposes the read-only catalog of profiles and rules.
// Profile editing belongs to the parent UI and is out of scope here.
package profile

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	profilemodel "github.com/kidsafegpt/backend/internal/model/profile"
	"github.com/kidsafegpt/backend/internal/model/rule"
	"github.com/kidsafegpt/backend/pkg/utils"
)

// Handler serves the static catalogs.
type Handler struct {
	profiles profilemodel.Store
	rules    *rule.Registry
}

// New creates the catalog handler.
func New(profiles profilemodel.Store, rules *rule.Registry) *Handler {
	return &Handler{profiles: profiles, rules: rules}
}

// RegisterRoutes registers the catalog routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles", h.handleListProfiles)
	r.Get("/rules", h.handleListRules)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.profiles.List())
}

func (h *Handler) handleListRules(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.rules.List())
}
