package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/pulsewatch/backend/internal/clock"
	"github.com/pulsewatch/backend/internal/config"
	"github.com/pulsewatch/backend/internal/database"
	"github.com/pulsewatch/backend/internal/logging"
	"github.com/pulsewatch/backend/internal/presence"
	"github.com/pulsewatch/backend/internal/router"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	// Load configuration
	cfg := config.Load()

	var store presence.Store
	var views presence.ViewCounter

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		redisStore := presence.NewRedisStore(rdb, cfg.PresenceTTLSeconds)
		store = redisStore
		views = redisStore
		slog.Info("using redis presence store", slog.String("addr", opts.Addr))
	} else {
		store = presence.NewMemoryStore(cfg.PresenceTTLSeconds)

		if cfg.DatabasePath != "" {
			ledger, err := database.Open(cfg.DatabasePath)
			if err != nil {
				slog.Error("failed to open view ledger", slog.String("error", err.Error()))
				os.Exit(1)
			}
			defer ledger.Close()
			if err := ledger.Migrate(context.Background()); err != nil {
				slog.Error("failed to migrate view ledger", slog.String("error", err.Error()))
				os.Exit(1)
			}
			views = ledger
		} else {
			views = presence.NewMemoryViews()
		}
		slog.Info("using in-process presence store")
	}

	// Create router
	r := router.New(cfg, store, views, clock.System{})

	// Start server
	addr := ":" + cfg.Port
	slog.Info("starting server",
		slog.String("addr", addr),
		slog.Int64("ttl_seconds", cfg.PresenceTTLSeconds),
		slog.String("online_mode", cfg.OnlineMode))

	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
