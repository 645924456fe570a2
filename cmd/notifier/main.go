package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zatekoja/clinicscheduler/internal/adapters/events"
	"github.com/zatekoja/clinicscheduler/internal/api/middleware"
	"github.com/zatekoja/clinicscheduler/internal/application/services"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/clients/redis"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/notifications"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/observability"
	"github.com/zatekoja/clinicscheduler/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(cfg.OTEL.ServiceName+"-notifier", cfg.Server.Env, cfg.Log.Level)
	logger.Info().Msg("starting notifier")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelCfg := cfg.OTEL
	otelCfg.ServiceName += "-notifier"
	shutdownTelemetry, err := observability.Setup(ctx, otelCfg)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to set up OpenTelemetry")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				logger.Error().Err(err).Msg("error shutting down OpenTelemetry")
			}
		}()
	}

	// Redis is required: the notifier only sees events through the shared bus
	redisClient, err := redis.NewClient(ctx, &cfg.Redis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize Redis client")
	}
	defer redisClient.Close()

	pgClient, err := postgres.NewClient(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	sender, err := notifications.NewSender(cfg.WhatsApp, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create notification sender")
	}
	logger.Info().Str("channel", string(sender.Channel())).Msg("notification sender ready")

	eventBus := events.NewRedisEventBus(redisClient, logger)
	notifier := services.NewNotificationService(pgClient.SQLX(), sender, providers.SystemClock, logger)
	relay := services.NewNotificationRelay(eventBus, notifier, logger)
	if err := relay.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start notification relay")
	}

	// Health endpoint for the orchestrator
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := redisClient.Ping(r.Context()); err != nil {
			http.Error(w, "redis: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err := pgClient.Ping(r.Context()); err != nil {
			http.Error(w, "postgres: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      middleware.LoggingMiddleware(logger)(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Msg("notifier health endpoint starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health endpoint failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("notifier shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during health server shutdown")
	}

	relay.Stop()
	if err := eventBus.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing event bus")
	}

	logger.Info().Msg("notifier stopped")
}
