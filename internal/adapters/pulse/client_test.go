package pulse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/pkg/retry"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "pk",
		Retry:   retry.Policy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	}, zap.NewNop())
}

func TestClient_Generate(t *testing.T) {
	userID := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pulsePath, r.URL.Path)
		assert.Equal(t, userID.String(), r.URL.Query().Get("user_id"))
		assert.Equal(t, "BTC,ETH", r.URL.Query().Get("assets"))
		assert.Equal(t, "EUR", r.URL.Query().Get("quote"))
		assert.Equal(t, "Bearer pk", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(entities.PulseMetrics{Volatility24hPct: 4.2, Move1hPct: -1.1, VolumeZ: 2})
	})

	m, err := c.Generate(context.Background(), entities.PulseRequest{UserID: userID, Assets: []string{"eth", "btc", "ETH"}})
	require.NoError(t, err)
	assert.InDelta(t, 4.2, m.Volatility24hPct, 1e-9)
	assert.InDelta(t, -1.1, m.Move1hPct, 1e-9)
	assert.InDelta(t, 2.0, m.VolumeZ, 1e-9)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(entities.PulseMetrics{Move4hPct: 3})
	})

	m, err := c.Generate(context.Background(), entities.PulseRequest{UserID: uuid.New(), Assets: []string{"BTC"}})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, m.Move4hPct, 1e-9)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"BAD_ASSET","message":"unknown asset"}`))
	})

	_, err := c.Generate(context.Background(), entities.PulseRequest{UserID: uuid.New(), Assets: []string{"XYZ"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown asset")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
