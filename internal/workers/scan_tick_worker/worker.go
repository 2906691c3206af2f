package scan_tick_worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

// Ticker claims and runs due scan jobs
type Ticker interface {
	Tick(ctx context.Context, workerID string) (*entities.TickResult, error)
}

// Config holds worker configuration
type Config struct {
	// Schedule is a cron spec with a leading seconds field
	Schedule string
	// Timeout bounds a single tick
	Timeout  time.Duration
	WorkerID string
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	host, _ := os.Hostname()
	return Config{
		Schedule: "0 * * * * *",
		Timeout:  5 * time.Minute,
		WorkerID: fmt.Sprintf("cron:%s:%d", host, os.Getpid()),
	}
}

// Worker drives the scan scheduler from an in-process cron instead of the tick endpoint.
// Overlapping ticks are skipped; the job lease keeps concurrent replicas apart.
type Worker struct {
	ticker Ticker
	config Config
	cron   *cron.Cron
	logger *logger.Logger
}

// NewWorker creates a new scan tick worker
func NewWorker(ticker Ticker, config Config, logger *logger.Logger) *Worker {
	defaults := DefaultConfig()
	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.WorkerID == "" {
		config.WorkerID = defaults.WorkerID
	}
	return &Worker{
		ticker: ticker,
		config: config,
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Start registers the tick and starts the cron
func (w *Worker) Start() error {
	if _, err := w.cron.AddFunc(w.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.Timeout)
		defer cancel()
		w.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("invalid scan tick schedule %q: %w", w.config.Schedule, err)
	}

	w.cron.Start()
	w.logger.Info("Scan tick worker started", "schedule", w.config.Schedule, "worker_id", w.config.WorkerID)
	return nil
}

// Stop stops the cron and waits for a running tick to finish
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("Scan tick worker stopped")
}

// Shutdown satisfies graceful.Shutdowner
func (w *Worker) Shutdown(ctx context.Context) error {
	done := w.cron.Stop().Done()
	select {
	case <-done:
		w.logger.Info("Scan tick worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs a single tick
func (w *Worker) RunOnce(ctx context.Context) {
	result, err := w.ticker.Tick(ctx, w.config.WorkerID)
	if err != nil {
		w.logger.Error("Scan tick failed", "worker_id", w.config.WorkerID, "error", err)
		return
	}
	if result.Due == 0 {
		w.logger.Debug("No scan jobs due")
		return
	}
	w.logger.Info("Scan tick completed",
		"due", result.Due,
		"claimed", result.Claimed,
		"skipped", result.Skipped)
}
