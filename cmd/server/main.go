package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"courier/internal/app"
	"courier/internal/cache"
	"courier/internal/config"
	"courier/internal/handler"
	"courier/internal/logging"
	"courier/internal/realtime"
	"courier/internal/repository/postgres"
	"courier/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.Logging)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// New Relic first, so the database and Redis clients can be
	// instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize New Relic")
			nrApp = nil
		} else {
			log.Info().Str("app", cfg.NewRelic.AppName).Msg("New Relic enabled")
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Redis is optional at startup: the location cache degrades to the
	// in-process store and realtime publishing to a no-op.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running on in-process cache only")
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Info().Msg("connected to Redis")
	}

	deps := wire(db, redisClient, nrApp, cfg, log)

	// Background loops: lifecycle sweeps, history writer, retention prune.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	deps.tracking.Start()
	go deps.delivery.RunSweeper(bgCtx)
	go deps.tracking.RunRetention(bgCtx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      deps.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop loops, then flush remaining position samples.
	bgCancel()
	deps.tracking.Stop()
	deps.memory.Close()

	log.Info().Msg("server exited")
}

// wired groups everything main needs to run and shut down.
type wired struct {
	router   http.Handler
	delivery *service.DeliveryService
	tracking *service.TrackingService
	memory   *cache.MemoryStore
}

func wire(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config, log zerolog.Logger) *wired {
	store := postgres.NewStore(db)

	// Location cache: Redis primary with an in-process fallback.
	memory := cache.NewMemoryStore(cfg.Tracking.FallbackSweep)
	var primary cache.Store
	if redisClient != nil {
		primary = cache.NewRedisStore(redisClient)
	}
	locations := cache.NewFailoverStore(primary, memory, logging.Component(log, "cache"))

	var publisher realtime.Publisher = realtime.NopPublisher{}
	if redisClient != nil {
		publisher = realtime.NewRedisPublisher(redisClient)
	}

	notifications := service.NewNotificationService(logging.Component(log, "notifications"))
	fares := service.NewFareEngine(service.DefaultFareConfig())
	matching := service.NewMatchingService(locations, store, notifications, publisher, cfg.Dispatch, logging.Component(log, "matching"))
	delivery := service.NewDeliveryService(store, matching, fares, notifications, publisher, locations, cfg.Dispatch, cfg.Tracking, logging.Component(log, "delivery"))
	tracking := service.NewTrackingService(store, locations, publisher, cfg.Tracking, logging.Component(log, "tracking"))
	drivers := service.NewDriverService(store, locations, logging.Component(log, "drivers"))

	router := app.NewRouter(app.RouterDeps{
		DeliveryHandler: handler.NewDeliveryHandler(delivery, tracking),
		DriverHandler:   handler.NewDriverHandler(drivers, delivery, tracking),
		FareHandler:     handler.NewFareHandler(fares),
		HealthHandler:   handler.NewHealthHandler(db, redisClient),
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
	})

	return &wired{
		router:   router,
		delivery: delivery,
		tracking: tracking,
		memory:   memory,
	}
}
