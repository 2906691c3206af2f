package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tradepilot/pilot_service/pkg/retry"
	"github.com/tradepilot/pilot_service/pkg/security"
	"go.uber.org/zap"
)

const (
	defaultBaseURL    = "https://api.exchange.example"
	defaultTimeout    = 15 * time.Second
	defaultQuote      = "EUR"
	defaultRecvWindow = "5000"
)

// Config represents venue API configuration
type Config struct {
	BaseURL    string
	Quote      string
	Timeout    time.Duration
	Credential Credential
	// ReadRetry applies to idempotent GETs only. Order placement is never retried here.
	ReadRetry retry.Policy
}

// Client is a signed REST client for the venue
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	retrier        *retry.Retrier
	logger         *zap.Logger
	now            func() time.Time
}

// NewClient creates a new venue API client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Quote == "" {
		config.Quote = defaultQuote
	}
	if config.ReadRetry.MaxRetries == 0 {
		config.ReadRetry = retry.DefaultPolicy()
	}
	config.ReadRetry.RetryableFunc = IsTransient

	cbSettings := gobreaker.Settings{
		Name:        "ExchangeAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// 4xx answers mean the venue is healthy
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *ErrorResponse
			return errors.As(err, &apiErr) && !apiErr.IsServerError()
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Exchange circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		retrier:        retry.NewRetrier(config.ReadRetry, logger),
		logger:         logger,
		now:            time.Now,
	}
}

// FetchAccounts lists venue accounts
func (c *Client) FetchAccounts(ctx context.Context) ([]Account, error) {
	var resp struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.get(ctx, "/v1/accounts", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch accounts failed: %w", err)
	}
	return resp.Accounts, nil
}

// FetchBalances lists balances per currency
func (c *Client) FetchBalances(ctx context.Context) ([]Balance, error) {
	var resp struct {
		Balances []Balance `json:"balances"`
	}
	if err := c.get(ctx, "/v1/balances", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch balances failed: %w", err)
	}
	return resp.Balances, nil
}

// FetchPositions lists open positions
func (c *Client) FetchPositions(ctx context.Context) ([]Position, error) {
	var resp struct {
		Positions []Position `json:"positions"`
	}
	if err := c.get(ctx, "/v1/positions", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch positions failed: %w", err)
	}
	return resp.Positions, nil
}

// FetchOrders lists orders, optionally filtered by status
func (c *Client) FetchOrders(ctx context.Context, status string) ([]Order, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := c.get(ctx, "/v1/orders", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch orders failed: %w", err)
	}
	return resp.Orders, nil
}

// FetchTransactions lists settled trades since a point in time
func (c *Client) FetchTransactions(ctx context.Context, since time.Time) ([]Transaction, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	var resp struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.get(ctx, "/v1/transactions", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch transactions failed: %w", err)
	}
	return resp.Transactions, nil
}

// FetchPrice returns the last price of asset in the quote currency
func (c *Client) FetchPrice(ctx context.Context, asset string) (*Price, error) {
	pair := strings.ToUpper(asset) + "-" + c.config.Quote
	var resp Price
	if err := c.get(ctx, "/v1/ticker/"+url.PathEscape(pair), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch price failed: %w", err)
	}
	if resp.Asset == "" {
		resp.Asset = strings.ToUpper(asset)
	}
	if resp.Quote == "" {
		resp.Quote = c.config.Quote
	}
	return &resp, nil
}

// PlaceOrder sends exactly one request. Callers reconcile by ClientOrderID
// when the outcome is unknown.
func (c *Client) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if req.Quote == "" {
		req.Quote = c.config.Quote
	}
	if req.Type == "" {
		req.Type = "market"
	}
	var resp Order
	if err := c.doRequest(ctx, http.MethodPost, "/v1/orders", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("place order failed: %w", err)
	}
	return &resp, nil
}

// CancelOrder cancels an open order
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/v1/orders/"+url.PathEscape(orderID), nil, nil, nil); err != nil {
		return fmt.Errorf("cancel order failed: %w", err)
	}
	return nil
}

// FindByClientOrderID looks an order up by the id we assigned it
func (c *Client) FindByClientOrderID(ctx context.Context, clientOrderID string) (*Order, error) {
	var resp Order
	err := c.get(ctx, "/v1/orders/client/"+url.PathEscape(clientOrderID), nil, &resp)
	if err != nil {
		var apiErr *ErrorResponse
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return nil, nil
		}
		return nil, fmt.Errorf("find order failed: %w", err)
	}
	return &resp, nil
}

// get performs a retried read
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, response interface{}) error {
	return c.retrier.Do(ctx, func() error {
		return c.doRequest(ctx, http.MethodGet, endpoint, query, nil, response)
	})
}

// doRequest performs one HTTP request through the circuit breaker
func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, response interface{}) error {
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestInternal(ctx, method, endpoint, query, body, response)
	})
	return err
}

func (c *Client) doRequestInternal(ctx context.Context, method, endpoint string, query url.Values, body, response interface{}) error {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	rawQuery := query.Encode()
	fullURL := c.config.BaseURL + endpoint
	if rawQuery != "" {
		fullURL += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	payload := rawQuery
	if len(reqBody) > 0 {
		payload = string(reqBody)
	}
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.config.Credential.APIKey)
	req.Header.Set("X-API-TIMESTAMP", timestamp)
	req.Header.Set("X-API-RECV-WINDOW", defaultRecvWindow)
	req.Header.Set("X-API-SIGN", c.sign(timestamp, method, endpoint, payload))

	c.logger.Debug("Sending exchange API request",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Any("headers", security.RedactHeaders(req.Header)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Received exchange API response",
		zap.Int("status_code", resp.StatusCode),
		zap.Int("body_size", len(respBody)))

	if resp.StatusCode >= 400 {
		errResp := &ErrorResponse{}
		if jsonErr := json.Unmarshal(respBody, errResp); jsonErr != nil || errResp.Message == "" {
			errResp.Message = security.MaskString(strings.TrimSpace(string(respBody)))
		}
		errResp.StatusCode = resp.StatusCode
		return errResp
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// sign computes HMAC-SHA256 over timestamp, key, recv window, method, path and payload
func (c *Client) sign(timestamp, method, endpoint, payload string) string {
	mac := hmac.New(sha256.New, []byte(c.config.Credential.APISecret))
	mac.Write([]byte(timestamp + c.config.Credential.APIKey + defaultRecvWindow + method + endpoint + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Config returns the client configuration
func (c *Client) Config() Config {
	return c.config
}
