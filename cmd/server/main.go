package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"cabdispatch/internal/app"
	"cabdispatch/internal/config"
	"cabdispatch/internal/handler"
	"cabdispatch/internal/ratelimit"
	internalRedis "cabdispatch/internal/redis"
	"cabdispatch/internal/repository"
	"cabdispatch/internal/repository/memory"
	"cabdispatch/internal/repository/postgres"
	"cabdispatch/internal/scheduler"
	"cabdispatch/internal/service"
	"cabdispatch/migrations"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	logger := app.NewLogger(cfg.Logger)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize New Relic")
		} else {
			logger.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	// Initialize the store.
	store, db := openStore(ctx, cfg, nrApp, logger)
	if db != nil {
		defer db.Close()
	}

	// Redis is optional: without it the assignment cache and idempotency keys are off.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, continuing without cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info("Connected to Redis")
		}
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		Capacity: cfg.RateLimit.Capacity,
		Window:   cfg.RateLimit.Window,
		MaxKeys:  cfg.RateLimit.MaxKeys,
		IdleTTL:  cfg.RateLimit.IdleTTL,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create rate limiter")
	}

	// Wire dependencies.
	engine := service.NewMatchingEngine(store, service.MatchingConfig{
		ThresholdMeters: cfg.Dispatch.MatchThresholdMeters,
		Deadline:        cfg.Dispatch.BatchDeadline,
	}, logger.WithField("component", "matching"))
	server, err := wireServer(store, engine, redisClient, limiter, nrApp, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build HTTP server")
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Dispatch.SchedulerEnabled {
		sched, err := newScheduler(cfg.Dispatch, engine, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to create scheduler")
		}
		go sched.Run(runCtx)
	}

	// Start server in goroutine.
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	<-runCtx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("Server exited")
}

// openStore returns the configured store. db is nil for the memory driver.
func openStore(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application, logger *logrus.Logger) (repository.Store, *sql.DB) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn("using in-memory store, state is lost on restart")
		return memory.NewStore(), nil
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	logger.Info("Connected to PostgreSQL")

	if cfg.Database.AutoMigrate {
		if err := app.Migrate(ctx, db, migrations.Files, logger); err != nil {
			logger.WithError(err).Fatal("failed to apply migrations")
		}
	}
	return postgres.NewStore(db), db
}

// newScheduler builds the batch scheduler. An overlapping run is logged as a skip.
func newScheduler(cfg config.DispatchConfig, engine *service.MatchingEngine, logger *logrus.Logger) (*scheduler.Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	schedCfg := scheduler.Config{Interval: cfg.BatchInterval, Location: loc}
	if cfg.BatchInterval <= 0 {
		schedCfg.Times, err = scheduler.ParseClockTimes(cfg.BatchTimes)
		if err != nil {
			return nil, err
		}
	}

	log := logger.WithField("component", "scheduler")
	runner := scheduler.RunnerFunc(func(ctx context.Context) error {
		report, err := engine.RunBatch(ctx)
		if errors.Is(err, service.ErrBatchInProgress) {
			log.Info("batch already running, skipping tick")
			return nil
		}
		if err != nil {
			return err
		}
		return report.Err()
	})
	return scheduler.New(schedCfg, runner, log)
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	store repository.Store,
	engine *service.MatchingEngine,
	redisClient *redis.Client,
	limiter *ratelimit.Limiter,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *logrus.Logger,
) (*http.Server, error) {
	// A nil *CacheStore must not reach the interface field.
	var cache internalRedis.AssignmentCacheInterface
	if redisClient != nil {
		cache = internalRedis.NewCacheStore(redisClient)
	}

	// Initialize services.
	lifecycle := service.NewLifecycleService(store, cache, logger.WithField("component", "lifecycle"))
	fleet := service.NewFleetService(store, logger.WithField("component", "fleet"))
	admins := service.NewAdminService(store.Administrators())

	// Create router.
	router, err := app.NewRouter(app.RouterDeps{
		VehicleHandler:    handler.NewVehicleHandler(fleet, lifecycle),
		RiderHandler:      handler.NewRiderHandler(fleet, lifecycle),
		AssignmentHandler: handler.NewAssignmentHandler(lifecycle),
		AdminHandler:      handler.NewAdminHandler(engine, admins),
		Limiter:           limiter,
		RedisClient:       redisClient,
		NewRelicApp:       nrApp,
		Logger:            logger,
		TrustedProxies:    cfg.Server.TrustedProxies,
	})
	if err != nil {
		return nil, err
	}

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, nil
}
