package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/worldmorse/internal/api"
	"github.com/eldtechnologies/worldmorse/internal/api/middleware"
	"github.com/eldtechnologies/worldmorse/internal/config"
	"github.com/eldtechnologies/worldmorse/internal/relay"
	"github.com/eldtechnologies/worldmorse/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the selected store
	ds, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.Store).Msg("store initialization failed")
	}
	defer ds.Close()
	logger.Info().Str("store", ds.Name()).Msg("store ready")

	// Rate limiting needs Redis; reuse the store's connection when it is one
	var limiterClient *redis.Client
	if rs, ok := ds.(*store.RedisStore); ok {
		limiterClient = rs.Client()
	} else if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		limiterClient = redis.NewClient(opts)
		defer limiterClient.Close()
		if err := limiterClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		logger.Info().Msg("connected to Redis for rate limiting")
	} else {
		logger.Warn().Msg("REDIS_URL not set, rate limiting disabled")
	}

	svc := relay.NewService(ds, logger, relay.Options{
		PresenceTimeout:  cfg.PresenceTimeout,
		SubscriberBuffer: cfg.SubscriberBuffer,
	})

	// Create router
	router := api.NewRouter(logger, svc, api.Options{
		RateLimitClient: limiterClient,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server. Push connections manage their own deadlines after the
	// upgrade.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Dur("presence_timeout", cfg.PresenceTimeout).
			Msg("starting WorldMorse relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked push connections are not tracked by Shutdown; closing the
	// subscriber queues ends their write pumps.
	svc.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// openStore connects the backend named by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config) (store.DataStore, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemoryStore(cfg.ChannelLogCap), nil
	case config.StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("STORE=redis requires REDIS_URL")
		}
		return store.NewRedisStore(ctx, cfg.RedisURL, cfg.ChannelLogCap)
	case config.StoreSQLite:
		return store.NewSQLiteStore(ctx, cfg.SQLitePath, cfg.ChannelLogCap)
	case config.StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("STORE=postgres requires DATABASE_URL")
		}
		return store.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.ChannelLogCap)
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}
