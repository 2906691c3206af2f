package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
)

// ErrReadOnly is returned by read-only gateways on any trading call
var ErrReadOnly = domainerrors.ErrReadOnlyCredential

// ErrorResponse represents a venue API error response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("exchange API error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

// IsNotFound returns true if the error is a 404 not found error
func (e *ErrorResponse) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsRateLimited returns true if the error is a 429 rate limit error
func (e *ErrorResponse) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError returns true for 5xx responses
func (e *ErrorResponse) IsServerError() bool {
	return e.StatusCode >= 500
}

// IsRejection returns true for definitive 4xx rejections other than rate limiting
func (e *ErrorResponse) IsRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && !e.IsRateLimited()
}

// Outcome classifies a failed venue call
type Outcome int

const (
	// OutcomeUnreachable means the request never reached the venue
	OutcomeUnreachable Outcome = iota
	// OutcomeUnknown means the request may have been processed
	OutcomeUnknown
	// OutcomeRejected is a definitive refusal; nothing was created
	OutcomeRejected
	// OutcomeRateLimited means the venue refused to process the request now
	OutcomeRateLimited
)

// ClassifyPlaceError decides what a failed PlaceOrder means for the order
func ClassifyPlaceError(err error) Outcome {
	var apiErr *ErrorResponse
	switch {
	case errors.As(err, &apiErr) && apiErr.IsRateLimited():
		return OutcomeRateLimited
	case errors.As(err, &apiErr) && apiErr.IsRejection():
		return OutcomeRejected
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return OutcomeUnreachable
	case errors.Is(err, ErrReadOnly):
		return OutcomeRejected
	default:
		// transport errors, timeouts and 5xx
		return OutcomeUnknown
	}
}

// IsTransient reports whether a read call failure is worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *ErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.IsServerError() || apiErr.IsRateLimited()
	}
	return true
}
