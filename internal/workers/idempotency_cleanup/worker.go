package idempotency_cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/tradepilot/pilot_service/pkg/logger"
)

// KeyStore deletes idempotency records past their expiry
type KeyStore interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Worker prunes expired idempotency keys
type Worker struct {
	store         KeyStore
	checkInterval time.Duration
	logger        *logger.Logger
	stopCh        chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
}

// NewWorker creates a new idempotency cleanup worker
func NewWorker(store KeyStore, checkInterval time.Duration, logger *logger.Logger) *Worker {
	if checkInterval <= 0 {
		checkInterval = time.Hour
	}
	return &Worker{
		store:         store,
		checkInterval: checkInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start runs the cleanup loop until ctx is cancelled or Stop is called
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)
	w.logger.Info("Starting idempotency cleanup worker", "check_interval", w.checkInterval.String())

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			w.logger.Info("Idempotency cleanup worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Shutdown satisfies graceful.Shutdowner
func (w *Worker) Shutdown(ctx context.Context) error {
	w.Stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce deletes expired keys once
func (w *Worker) RunOnce(ctx context.Context) {
	deleted, err := w.store.DeleteExpired(ctx)
	if err != nil {
		w.logger.Error("Failed to delete expired idempotency keys", "error", err)
		return
	}
	if deleted > 0 {
		w.logger.Info("Deleted expired idempotency keys", "count", deleted)
	}
}
