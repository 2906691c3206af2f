package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"go.uber.org/zap"
)

func testRequest() *entities.SignalRequest {
	return &entities.SignalRequest{
		Policy: &entities.Policy{
			Name:      "balanced",
			Allowlist: []string{"BTC", "ETH"},
			Config: entities.PolicyConfig{
				Risk: entities.RiskConfig{
					MinOrderValueEur: decimal.NewFromInt(25),
					MaxOrderValueEur: decimal.NewFromInt(250),
				},
			},
		},
		Snapshot: &entities.MarketSnapshot{
			Assets:       []string{"BTC", "ETH"},
			Move1hPct:    2.5,
			Move4hPct:    4,
			GateFired:    true,
			GateTriggers: []string{"move_1h"},
		},
	}
}

func TestClient_Generate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, generatePath, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"asset":"BTC","side":"buy","order_type":"market","order_value_eur":"50","confidence":75,"rationale":"breakout"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "sk-test"}, zap.NewNop())
	candidates, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Contains(t, gotBody, "policy")
	assert.Contains(t, gotBody, "snapshot")
	require.Len(t, candidates, 1)
	assert.Equal(t, "BTC", candidates[0].Asset)
	assert.Equal(t, entities.OrderSideBuy, candidates[0].Side)
	assert.True(t, candidates[0].OrderValueEur.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 75, candidates[0].Confidence)
}

func TestClient_GenerateErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"code":"UPSTREAM","message":"model unavailable"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.Generate(context.Background(), testRequest())
	require.Error(t, err)

	var apiErr *ErrorResponse
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "model unavailable", apiErr.Message)
}

func TestClient_GenerateIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_GenerateMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.Generate(context.Background(), testRequest())
	require.Error(t, err)
}

func TestClient_GenerateRequiresSnapshot(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0"}, zap.NewNop())
	_, err := c.Generate(context.Background(), &entities.SignalRequest{Policy: &entities.Policy{}})
	require.Error(t, err)
}
