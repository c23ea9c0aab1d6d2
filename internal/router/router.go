package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pulsewatch/backend/internal/clock"
	"github.com/pulsewatch/backend/internal/config"
	"github.com/pulsewatch/backend/internal/handlers"
	"github.com/pulsewatch/backend/internal/middleware"
	"github.com/pulsewatch/backend/internal/presence"
	"github.com/pulsewatch/backend/internal/registry"
	"github.com/pulsewatch/backend/internal/services"
)

// New wires the middleware chain, services, and routes.
func New(cfg *config.Config, store presence.Store, views presence.ViewCounter, clk clock.Clock) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewRealIPMiddleware(cfg.TrustedProxies).Handler)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Services
	ingestor := services.NewIngestor(store, views, clk)
	subscribers := registry.New()

	// Handlers
	presenceHandler := handlers.NewPresenceHandler(ingestor, views)
	streamHandler := handlers.NewStreamHandler(store, subscribers, clk, cfg)
	healthHandler := handlers.NewHealthHandler(store)

	// Rate limiter for heartbeat ingestion
	hitRateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	// Routes
	r.Get("/healthz", healthHandler.Livez)
	r.Get("/readyz", healthHandler.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.With(hitRateLimiter.Middleware).Post("/hit", presenceHandler.Hit)
		r.Get("/stats", presenceHandler.Stats)
	})

	r.Get("/sse/online", streamHandler.Stream)

	return r
}
