package reconciliation_worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tradepilot/pilot_service/internal/domain/services/execution"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) ReconcileStale(ctx context.Context, staleAfter time.Duration, limit int) (execution.ReconcileSummary, error) {
	args := m.Called(ctx, staleAfter, limit)
	return args.Get(0).(execution.ReconcileSummary), args.Error(1)
}

func TestWorker_RunOncePassesConfig(t *testing.T) {
	rec := new(mockReconciler)
	rec.On("ReconcileStale", mock.Anything, 10*time.Minute, 20).
		Return(execution.ReconcileSummary{Checked: 3, Adopted: 1, Failed: 2}, nil).Once()

	w := NewWorker(rec, Config{StaleAfter: 10 * time.Minute, BatchSize: 20}, logger.NewNop())
	w.RunOnce(context.Background())

	rec.AssertExpectations(t)
}

func TestWorker_RunOnceError(t *testing.T) {
	rec := new(mockReconciler)
	rec.On("ReconcileStale", mock.Anything, mock.Anything, mock.Anything).
		Return(execution.ReconcileSummary{}, errors.New("db down")).Once()

	w := NewWorker(rec, Config{}, logger.NewNop())
	assert.NotPanics(t, func() { w.RunOnce(context.Background()) })
	rec.AssertExpectations(t)
}

func TestWorker_StartIsIdempotent(t *testing.T) {
	w := NewWorker(new(mockReconciler), Config{Schedule: "0 0 0 1 1 *"}, logger.NewNop())
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	assert.NoError(t, w.Shutdown(context.Background()))
	assert.NoError(t, w.Shutdown(context.Background()))
}

func TestWorker_Defaults(t *testing.T) {
	w := NewWorker(new(mockReconciler), Config{}, logger.NewNop())
	assert.Equal(t, DefaultConfig(), w.config)
}
