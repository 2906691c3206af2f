package signal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/internal/domain/services/scan"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20
	generatePath    = "/v1/signals/generate"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

var _ scan.SignalGenerator = (*Client)(nil)

// Config represents signal generator API configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ErrorResponse represents a signal generator error response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("signal API error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

// Client calls an external signal generator over HTTP. Its output is untrusted
// and validated downstream.
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new signal generator client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	cbSettings := gobreaker.Settings{
		Name:        "SignalAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Signal circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		logger:         logger,
	}
}

// Generate posts the policy and snapshot and returns the raw candidates.
// Each call spends signal budget, so it is never retried here.
func (c *Client) Generate(ctx context.Context, req *entities.SignalRequest) ([]entities.ProposalCandidate, error) {
	if req == nil || req.Policy == nil || req.Snapshot == nil {
		return nil, errors.New("signal request requires policy and snapshot")
	}
	var resp entities.SignalResponse
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequest(ctx, req, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("generate signals failed: %w", err)
	}
	return resp.Candidates, nil
}

func (c *Client) doRequest(ctx context.Context, body interface{}, response interface{}) error {
	reqBody, err := codec.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+generatePath, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	c.logger.Debug("Sending signal API request", zap.Int("body_size", len(reqBody)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		errResp := &ErrorResponse{}
		if jsonErr := codec.Unmarshal(respBody, errResp); jsonErr != nil || errResp.Message == "" {
			errResp.Message = strings.TrimSpace(string(respBody))
		}
		errResp.StatusCode = resp.StatusCode
		return errResp
	}

	if err := codec.Unmarshal(respBody, response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
