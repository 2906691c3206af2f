package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

// Error codes as constants for consistent error responses across handlers
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeInvalidID          = "INVALID_ID"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeExpired            = "EXPIRED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Error messages as constants for consistency
const (
	MsgInvalidRequest     = "Invalid request payload"
	MsgUnauthorized       = "Authentication required"
	MsgInternalError      = "Internal server error"
	MsgServiceUnavailable = "Service temporarily unavailable"
)

// statusFor maps a domain error category to an HTTP status. Order matters:
// a lapsed proposal is both a conflict and an expiry and must answer 409.
func statusFor(err error) (int, string) {
	switch {
	case domainerrors.IsPolicyViolation(err):
		return http.StatusUnprocessableEntity, "POLICY_VIOLATION"
	case errors.Is(err, domainerrors.ErrExchangeRejected):
		return http.StatusUnprocessableEntity, "EXCHANGE_REJECTED"
	case domainerrors.IsUnauthorized(err):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case domainerrors.IsForbidden(err):
		return http.StatusForbidden, ErrCodeForbidden
	case domainerrors.IsNotFound(err):
		return http.StatusNotFound, ErrCodeNotFound
	case domainerrors.IsConflict(err):
		return http.StatusConflict, ErrCodeConflict
	case domainerrors.IsExpired(err):
		return http.StatusGone, ErrCodeExpired
	case domainerrors.IsInvalidInput(err):
		return http.StatusBadRequest, ErrCodeValidationError
	case errors.Is(err, domainerrors.ErrRateLimit):
		return http.StatusTooManyRequests, ErrCodeRateLimited
	case domainerrors.IsServiceUnavailable(err):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

// respondDomainError writes err as an ErrorResponse with the mapped status.
// Unclassified errors are logged and hidden behind a generic 500.
func respondDomainError(c *gin.Context, log *logger.Logger, err error) {
	status, code := statusFor(err)

	var de *domainerrors.DomainError
	if status == http.StatusInternalServerError || !errors.As(err, &de) {
		log.Error("Request failed", "error", err, "request_id", getRequestID(c), "path", c.FullPath())
		c.JSON(status, entities.ErrorResponse{Code: code, Message: MsgInternalError})
		return
	}

	if de.Code != "" {
		code = de.Code
	}
	if status >= 500 {
		log.Warn("Request failed", "error", err, "code", code, "request_id", getRequestID(c))
	}
	c.JSON(status, entities.ErrorResponse{
		Code:      code,
		Message:   de.Error(),
		Details:   de.Details,
		Reasons:   de.Reasons,
		Retryable: de.Retryable,
	})
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// respondUnauthorized sends an unauthorized error
func respondUnauthorized(c *gin.Context, message string) {
	respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, message, nil)
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, code, message string, details map[string]interface{}) {
	respondError(c, http.StatusBadRequest, code, message, details)
}
