package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepilot/pilot_service/pkg/retry"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		BaseURL:    srv.URL,
		Credential: Credential{APIKey: "key", APISecret: "secret", Scope: ScopeTrading},
		ReadRetry:  retry.Policy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	}, zap.NewNop())
	return c, srv
}

func TestClient_SignsRequests(t *testing.T) {
	var gotSign, gotTS string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSign = r.Header.Get("X-API-SIGN")
		gotTS = r.Header.Get("X-API-TIMESTAMP")
		assert.Equal(t, "key", r.Header.Get("X-API-KEY"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"balances": []Balance{}})
	})
	fixed := time.UnixMilli(1700000000000)
	c.now = func() time.Time { return fixed }

	_, err := c.FetchBalances(context.Background())
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("1700000000000" + "key" + defaultRecvWindow + "GET" + "/v1/balances"))
	assert.Equal(t, "1700000000000", gotTS)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSign)
}

func TestClient_ReadsRetryOnServerError(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Price{Asset: "BTC", Quote: "EUR", Last: decimal.NewFromInt(50000)})
	})

	price, err := c.FetchPrice(context.Background(), "btc")
	require.NoError(t, err)
	assert.True(t, price.Last.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_PlaceOrderIsNotRetried(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.PlaceOrder(context.Background(), &OrderRequest{ClientOrderID: "tp-1", Asset: "BTC", Side: "buy", Quantity: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, OutcomeUnknown, ClassifyPlaceError(err))
}

func TestClient_PlaceOrderSendsClientOrderID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req OrderRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "tp-abc", req.ClientOrderID)
		assert.Equal(t, "EUR", req.Quote)
		assert.Equal(t, "market", req.Type)
		_ = json.NewEncoder(w).Encode(Order{ID: "ex-1", ClientOrderID: req.ClientOrderID, Status: OrderStatusFilled})
	})

	order, err := c.PlaceOrder(context.Background(), &OrderRequest{ClientOrderID: "tp-abc", Asset: "BTC", Side: "buy", Quantity: decimal.NewFromFloat(0.01)})
	require.NoError(t, err)
	assert.Equal(t, "ex-1", order.ID)
}

func TestClient_ClassifiesPlaceErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Outcome
	}{
		{"rejected", http.StatusUnprocessableEntity, OutcomeRejected},
		{"rate limited", http.StatusTooManyRequests, OutcomeRateLimited},
		{"server error", http.StatusInternalServerError, OutcomeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"code":"X","message":"nope"}`))
			})
			_, err := c.PlaceOrder(context.Background(), &OrderRequest{ClientOrderID: "tp-1", Asset: "BTC", Side: "buy", Quantity: decimal.NewFromInt(1)})
			require.Error(t, err)
			assert.Equal(t, tt.want, ClassifyPlaceError(err))
		})
	}
}

func TestClient_FindByClientOrderIDNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/client/tp-missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"ORDER_NOT_FOUND","message":"no such order"}`))
	})

	order, err := c.FindByClientOrderID(context.Background(), "tp-missing")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestClient_TransportErrorIsUnknownOutcome(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.PlaceOrder(context.Background(), &OrderRequest{ClientOrderID: "tp-1", Asset: "BTC", Side: "buy", Quantity: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Equal(t, OutcomeUnknown, ClassifyPlaceError(err))
}

func TestReadOnlyGateway(t *testing.T) {
	venue := NewPaperVenue("EUR", decimal.NewFromInt(1000))
	venue.SetPrice("BTC", decimal.NewFromInt(100))
	gw := ReadOnly(venue)

	_, err := gw.PlaceOrder(context.Background(), &OrderRequest{ClientOrderID: "tp-1", Asset: "BTC", Side: "buy", Quantity: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, ErrReadOnly))
	assert.True(t, errors.Is(gw.CancelOrder(context.Background(), "x"), ErrReadOnly))
	assert.Equal(t, 0, venue.PlaceCalls())

	price, err := gw.FetchPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, price.Last.Equal(decimal.NewFromInt(100)))
}

func TestNewGateway_ReadOnlyScope(t *testing.T) {
	gw := NewGateway(Config{Credential: Credential{Scope: ScopeReadOnly}}, zap.NewNop())
	_, err := gw.PlaceOrder(context.Background(), &OrderRequest{})
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Equal(t, OutcomeRejected, ClassifyPlaceError(err))
}
