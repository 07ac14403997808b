package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kidsafegpt/backend/internal/config"
	chathandler "github.com/kidsafegpt/backend/internal/handler/chat"
	parenthandler "github.com/kidsafegpt/backend/internal/handler/parent"
	profilehandler "github.com/kidsafegpt/backend/internal/handler/profile"
	middlewarePkg "github.com/kidsafegpt/backend/internal/middleware"
	profilemodel "github.com/kidsafegpt/backend/internal/model/profile"
	"github.com/kidsafegpt/backend/internal/model/rule"
	"github.com/kidsafegpt/backend/internal/ratelimit"
	"github.com/kidsafegpt/backend/internal/service/approval"
	chatservice "github.com/kidsafegpt/backend/internal/service/chat"
	"github.com/kidsafegpt/backend/internal/service/events"
	"github.com/kidsafegpt/backend/internal/service/pipeline"
)

// Deps carries the wired services the router mounts.
type Deps struct {
	Config    *config.Config
	Limiter   *ratelimit.Limiter
	Pipeline  *pipeline.Pipeline
	Gate      *approval.Gate
	Profiles  profilemodel.Store
	Rules     *rule.Registry
	ChatSvc   *chatservice.Service
	Broadcast *events.Broadcaster
}

// NewRouter wires HTTP routes to core services. Only the mediation endpoint
// sits behind the rate limiter: parent verification must stay reachable when
// the chat window is exhausted.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chathandler.New(deps.Pipeline, deps.Gate, deps.Profiles, deps.ChatSvc, deps.Broadcast)
	parentHandler := parenthandler.New(deps.Config.Gate, deps.Gate, deps.Pipeline, deps.Profiles, deps.ChatSvc, deps.Broadcast)
	profileHandler := profilehandler.New(deps.Profiles, deps.Rules)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(limited chi.Router) {
			limited.Use(middlewarePkg.RateLimit(deps.Limiter))
			chatHandler.RegisterRoutes(limited)
		})

		parentHandler.RegisterRoutes(api)
		profileHandler.RegisterRoutes(api)
	})

	return r
}
