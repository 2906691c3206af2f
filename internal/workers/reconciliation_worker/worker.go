package reconciliation_worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tradepilot/pilot_service/internal/domain/services/execution"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

// Reconciler resolves executions stuck mid-submission
type Reconciler interface {
	ReconcileStale(ctx context.Context, staleAfter time.Duration, limit int) (execution.ReconcileSummary, error)
}

// Config holds worker configuration
type Config struct {
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
	Timeout    time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		Schedule:   "30 */2 * * * *",
		StaleAfter: 5 * time.Minute,
		BatchSize:  50,
		Timeout:    2 * time.Minute,
	}
}

// Worker periodically sweeps stale PENDING and SUBMITTING executions
type Worker struct {
	reconciler Reconciler
	config     Config
	cron       *cron.Cron
	logger     *logger.Logger

	mu      sync.Mutex
	running bool
}

// NewWorker creates a new reconciliation worker
func NewWorker(reconciler Reconciler, config Config, logger *logger.Logger) *Worker {
	defaults := DefaultConfig()
	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &Worker{
		reconciler: reconciler,
		config:     config,
		cron:       cron.New(cron.WithSeconds()),
		logger:     logger,
	}
}

// Start begins the reconciliation schedule
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if _, err := w.cron.AddFunc(w.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.Timeout)
		defer cancel()
		w.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("invalid reconciliation schedule %q: %w", w.config.Schedule, err)
	}

	w.cron.Start()
	w.running = true
	w.logger.Info("Reconciliation worker started",
		"schedule", w.config.Schedule,
		"stale_after", w.config.StaleAfter.String())
	return nil
}

// Shutdown stops the schedule and waits for an in-flight sweep
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	select {
	case <-w.cron.Stop().Done():
		w.logger.Info("Reconciliation worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs a single sweep
func (w *Worker) RunOnce(ctx context.Context) {
	summary, err := w.reconciler.ReconcileStale(ctx, w.config.StaleAfter, w.config.BatchSize)
	if err != nil {
		w.logger.Error("Reconciliation sweep failed", "error", err, "checked", summary.Checked)
		return
	}
	if summary.Checked == 0 {
		return
	}
	w.logger.Info("Reconciliation sweep completed",
		"checked", summary.Checked,
		"adopted", summary.Adopted,
		"failed", summary.Failed,
		"unreachable", summary.Unreachable,
		"skipped", summary.Skipped)
}
