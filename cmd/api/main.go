package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kidsafegpt/backend/internal/config"
	"github.com/kidsafegpt/backend/internal/handler"
	profilemodel "github.com/kidsafegpt/backend/internal/model/profile"
	"github.com/kidsafegpt/backend/internal/model/rule"
	"github.com/kidsafegpt/backend/internal/ratelimit"
	"github.com/kidsafegpt/backend/internal/safety/lexical"
	"github.com/kidsafegpt/backend/internal/service/ai"
	"github.com/kidsafegpt/backend/internal/service/approval"
	chatservice "github.com/kidsafegpt/backend/internal/service/chat"
	"github.com/kidsafegpt/backend/internal/service/events"
	"github.com/kidsafegpt/backend/internal/service/moderation"
	"github.com/kidsafegpt/backend/internal/service/pipeline"
	"github.com/kidsafegpt/backend/internal/service/policy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if !cfg.Upstream.Enabled() {
		log.Println("warning: OPENAI_API_KEY is not set; chat requests will fail until it is configured")
	}
	if !cfg.Gate.Enabled() {
		log.Println("warning: PARENT_PIN is not set; parent verification will fail until it is configured")
	}

	profileStore := profilemodel.NewMemoryStore(profilemodel.Seed())
	ruleRegistry := rule.NewRegistry(rule.Library())
	chatSvc := chatservice.NewService()
	broadcast := events.NewBroadcaster()

	openaiClient := ai.NewOpenAIClient(cfg.Upstream)
	invoker := ai.NewInvoker(openaiClient, cfg.Upstream)
	moderator := moderation.NewClient(openaiClient, cfg.Moderation)
	if moderator.Enabled() {
		log.Println("moderation stage enabled")
	} else {
		log.Println("moderation stage disabled by configuration")
	}

	pipe := pipeline.New(
		lexical.NewFilter(),
		moderator,
		policy.NewComposer(ruleRegistry),
		invoker,
		broadcast,
	)

	gate := approval.NewGate(broadcast)
	limiter := ratelimit.NewLimiter(cfg.RateLimit.Window, cfg.RateLimit.Max)

	router := handler.NewRouter(handler.Deps{
		Config:    cfg,
		Limiter:   limiter,
		Pipeline:  pipe,
		Gate:      gate,
		Profiles:  profileStore,
		Rules:     ruleRegistry,
		ChatSvc:   chatSvc,
		Broadcast: broadcast,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("KidSafe GPT backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
