// Package pulse fetches cheap market snapshots from the pulse service.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/internal/domain/services/scan"
	"github.com/tradepilot/pilot_service/pkg/retry"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultQuote    = "EUR"
	pulsePath       = "/v1/pulse"
	maxResponseSize = 1 << 20
)

var _ scan.Pulse = (*Client)(nil)

// Config represents pulse API configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   retry.Policy
}

// ErrorResponse represents a pulse API error response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("pulse API error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

// Client is an HTTP client for the pulse service
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	retrier        *retry.Retrier
	logger         *zap.Logger
}

// NewClient creates a new pulse client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Retry.MaxRetries == 0 {
		config.Retry = retry.DefaultPolicy()
	}
	config.Retry.RetryableFunc = isTransient

	cbSettings := gobreaker.Settings{
		Name:        "PulseAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Pulse circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		retrier:        retry.NewRetrier(config.Retry, logger),
		logger:         logger,
	}
}

// Generate fetches metrics for the requested assets
func (c *Client) Generate(ctx context.Context, req entities.PulseRequest) (*entities.PulseMetrics, error) {
	q := url.Values{}
	q.Set("user_id", req.UserID.String())
	q.Set("assets", strings.Join(normalizeAssets(req.Assets), ","))
	quote := req.Quote
	if quote == "" {
		quote = defaultQuote
	}
	q.Set("quote", strings.ToUpper(quote))

	var resp entities.PulseMetrics
	err := c.retrier.Do(ctx, func() error {
		_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, c.doRequest(ctx, q, &resp)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pulse failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, query url.Values, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+pulsePath+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		errResp := &ErrorResponse{}
		if jsonErr := json.Unmarshal(body, errResp); jsonErr != nil || errResp.Message == "" {
			errResp.Message = strings.TrimSpace(string(body))
		}
		errResp.StatusCode = resp.StatusCode
		return errResp
	}

	if err := json.Unmarshal(body, response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// isTransient retries network errors, 429 and 5xx but not other client errors
func isTransient(err error) bool {
	var apiErr *ErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, context.Canceled)
}
