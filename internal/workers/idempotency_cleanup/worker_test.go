package idempotency_cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

type mockKeyStore struct {
	mock.Mock
}

func (m *mockKeyStore) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestWorker_RunOnce(t *testing.T) {
	store := new(mockKeyStore)
	store.On("DeleteExpired", mock.Anything).Return(int64(4), nil).Once()
	store.On("DeleteExpired", mock.Anything).Return(int64(0), errors.New("db down")).Once()

	w := NewWorker(store, time.Minute, logger.NewNop())
	w.RunOnce(context.Background())
	w.RunOnce(context.Background())

	store.AssertExpectations(t)
}

func TestWorker_StartRunsImmediatelyAndStops(t *testing.T) {
	store := new(mockKeyStore)
	ran := make(chan struct{}, 1)
	store.On("DeleteExpired", mock.Anything).Return(int64(0), nil).Run(func(mock.Arguments) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})

	w := NewWorker(store, time.Hour, logger.NewNop())
	go w.Start(context.Background())

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not run on start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, w.Shutdown(ctx))
	w.Stop()
}
