package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/clinicscheduler/internal/adapters/cache"
	"github.com/zatekoja/clinicscheduler/internal/adapters/database"
	"github.com/zatekoja/clinicscheduler/internal/adapters/events"
	"github.com/zatekoja/clinicscheduler/internal/adapters/memory"
	"github.com/zatekoja/clinicscheduler/internal/api/handlers"
	"github.com/zatekoja/clinicscheduler/internal/api/middleware"
	"github.com/zatekoja/clinicscheduler/internal/api/routes"
	"github.com/zatekoja/clinicscheduler/internal/application/services"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/clients/redis"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/notifications"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/observability"
	"github.com/zatekoja/clinicscheduler/pkg/config"
)

const cacheWarmInterval = 5 * time.Minute

// stores groups the repositories the services run against
type stores struct {
	clinics      repositories.ClinicRepository
	appointments repositories.AppointmentRepository
	holds        repositories.HoldRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env, cfg.Log.Level)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := observability.Setup(ctx, cfg.OTEL)
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

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	clock := providers.SystemClock
	healthChecks := map[string]routes.HealthCheck{}

	// Redis backs the clinic cache and the event bus. Without it events
	// stay in process.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, &cfg.Redis, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, continuing without cache and shared event bus")
			redisClient = nil
		} else {
			defer redisClient.Close()
			healthChecks["redis"] = redisClient.Ping
			logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("redis client initialized")
		}
	}

	var eventBus providers.EventBus
	if redisClient != nil {
		eventBus = events.NewRedisEventBus(redisClient, logger)
	} else {
		eventBus = events.NewLocalEventBus(logger)
	}

	var (
		st       stores
		pgClient *postgres.Client
	)
	switch cfg.Scheduling.Store {
	case "memory":
		store := memory.NewStore(clock)
		st = stores{clinics: store.Clinics(), appointments: store.Appointments(), holds: store.Holds()}
		logger.Warn().Msg("using in-memory store, holds and appointments are lost on restart")
	default:
		pgClient, err = postgres.NewClient(ctx, &cfg.Database, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()
		healthChecks["postgres"] = pgClient.Ping

		if applied, err := database.Migrate(ctx, pgClient, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply migrations")
		} else if len(applied) > 0 {
			logger.Info().Strs("migrations", applied).Msg("migrations applied")
		}

		st = stores{
			clinics:      database.NewClinicAdapter(pgClient),
			appointments: database.NewAppointmentAdapter(pgClient, clock),
			holds:        database.NewHoldAdapter(pgClient, clock),
		}
	}

	// Wrap clinic reads with caching when Redis is available
	if redisClient != nil {
		cached := database.NewCachedClinicAdapter(st.clinics, cache.NewRedisAdapter(redisClient, "clinicscheduler"), logger)
		warmer := services.NewCacheWarmingService(st.clinics, cached, logger)
		go warmer.StartPeriodicWarming(ctx, cacheWarmInterval)
		st.clinics = cached
		logger.Info().Msg("clinic adapter wrapped with caching layer")
	}

	// Without a shared bus nobody else sees events, so deliver them here
	var relay *services.NotificationRelay
	if redisClient == nil && pgClient != nil {
		sender, err := notifications.NewSender(cfg.WhatsApp, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create notification sender")
		}
		notifier := services.NewNotificationService(pgClient.SQLX(), sender, clock, logger)
		relay = services.NewNotificationRelay(eventBus, notifier, logger)
		if err := relay.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start notification relay")
		}
	}

	policy := services.SlotPolicyFromConfig(cfg.Scheduling)
	negotiator := services.NewNegotiator(policy, nil)
	dispatcher := services.NewEventDispatcher(eventBus, cfg.Scheduling.DispatchTimeout, logger, metrics)
	reserve := cfg.Scheduling.ReserveDuringNegotiation

	availabilityService := services.NewAvailabilityService(st.clinics, st.appointments, st.holds, policy, clock, reserve)
	holdService := services.NewHoldService(st.holds, st.clinics, negotiator, clock, services.HoldServiceConfig{
		DefaultTTLMinutes:        cfg.Scheduling.HoldTTLMinutes,
		MaxTTLMinutes:            cfg.Scheduling.MaxHoldTTLMinutes,
		ReserveDuringNegotiation: reserve,
	}, metrics, logger)
	appointmentService := services.NewAppointmentService(
		st.appointments, st.clinics, st.holds, negotiator, dispatcher, clock, reserve, metrics, logger,
	)

	router := routes.NewRouter(
		handlers.NewAvailabilityHandler(availabilityService),
		handlers.NewHoldHandler(holdService),
		handlers.NewAppointmentHandler(appointmentService),
		routes.Options{
			RateLimiter:    middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger),
			AllowedOrigins: cfg.Server.Origins(),
			HealthChecks:   healthChecks,
			Metrics:        metrics,
			Logger:         logger,
		},
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Str("store", cfg.Scheduling.Store).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("server shutting down")
	shutdown(logger, server, relay, eventBus)
	cancel()
	logger.Info().Msg("server stopped")
}

func shutdown(logger zerolog.Logger, server *http.Server, relay *services.NotificationRelay, eventBus providers.EventBus) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}

	// The relay drains before the bus closes its channels
	if relay != nil {
		relay.Stop()
	}
	if err := eventBus.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing event bus")
	}
}
