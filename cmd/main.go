package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradepilot/pilot_service/internal/api/routes"
	"github.com/tradepilot/pilot_service/internal/infrastructure/config"
	"github.com/tradepilot/pilot_service/internal/infrastructure/database"
	"github.com/tradepilot/pilot_service/internal/infrastructure/di"
	"github.com/tradepilot/pilot_service/internal/workers/idempotency_cleanup"
	"github.com/tradepilot/pilot_service/internal/workers/reconciliation_worker"
	"github.com/tradepilot/pilot_service/internal/workers/scan_tick_worker"
	"github.com/tradepilot/pilot_service/pkg/graceful"
	"github.com/tradepilot/pilot_service/pkg/logger"
	"github.com/tradepilot/pilot_service/pkg/metrics"
	"github.com/tradepilot/pilot_service/pkg/tracing"
)

// @title Trade Pilot API
// @version 1.0
// @description Policy-gated crypto trade proposals with explicit user approval.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	if err := di.ResolveSecrets(context.Background(), cfg, log); err != nil {
		log.Fatal("Failed to resolve secrets", "error", err)
	}

	tracingConfig := tracing.Config{
		Enabled:       cfg.Tracing.Enabled,
		CollectorURL:  cfg.Tracing.CollectorURL,
		Environment:   cfg.Environment,
		Version:       di.ServiceVersion,
		SampleRate:    cfg.Tracing.SampleRate,
		Insecure:      cfg.Environment == "development",
		ExchangeVenue: cfg.Exchange.Venue,
		ExchangeScope: cfg.Exchange.Scope,
		SignalMode:    cfg.Signal.Mode,
	}
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracingConfig, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := di.NewContainer(cfg, db, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	router := routes.SetupRoutes(container)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	shutdown := graceful.NewShutdownManager(server, log)

	if cfg.Scheduler.InternalTickEnabled {
		tickWorker := scan_tick_worker.NewWorker(container.ScanScheduler, scan_tick_worker.Config{
			Schedule: cfg.Scheduler.TickCron,
			Timeout:  cfg.Scheduler.LockTTL(),
		}, log)
		if err := tickWorker.Start(); err != nil {
			log.Fatal("Failed to start scan tick worker", "error", err)
		}
		shutdown.Register(tickWorker)
	} else {
		log.Info("Internal scan tick disabled, waiting for POST /internal/scheduler/tick")
	}

	if cfg.Reconciliation.Enabled {
		reconWorker := reconciliation_worker.NewWorker(container.ExecutionCoordinator, reconciliation_worker.Config{
			Schedule:   cfg.Reconciliation.Schedule,
			StaleAfter: time.Duration(cfg.Reconciliation.StaleAfterSeconds) * time.Second,
			BatchSize:  cfg.Reconciliation.BatchSize,
		}, log)
		if err := reconWorker.Start(); err != nil {
			log.Fatal("Failed to start reconciliation worker", "error", err)
		}
		shutdown.Register(reconWorker)
	} else {
		log.Info("Reconciliation worker disabled in configuration")
	}

	cleanupWorker := idempotency_cleanup.NewWorker(container.IdempotencyRepo, time.Hour, log)
	go cleanupWorker.Start(context.Background())
	shutdown.Register(cleanupWorker)

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-metricsCtx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
				metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
				metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
			}
		}
	}()
	shutdown.Register(graceful.ShutdownFunc(func(context.Context) error {
		stopMetrics()
		return nil
	}))

	shutdown.RegisterCloser(container)
	shutdown.RegisterCloser(db)

	go func() {
		log.Info("Starting server",
			"addr", server.Addr,
			"environment", cfg.Environment,
			"exchange_venue", cfg.Exchange.Venue)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	shutdown.WaitForShutdown()
}
