package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"policy violation", domainerrors.PolicyViolationError([]string{"asset_not_allowlisted"}), http.StatusUnprocessableEntity},
		{"exchange rejected", domainerrors.ExchangeRejectedError("insufficient funds"), http.StatusUnprocessableEntity},
		{"validation", domainerrors.ValidationError("confidence", "bad"), http.StatusBadRequest},
		{"scan paused", domainerrors.ScanPausedError(), http.StatusBadRequest},
		{"unauthorized", domainerrors.UnauthorizedError("nope"), http.StatusUnauthorized},
		{"kill switch", domainerrors.TradingDisabledError(), http.StatusForbidden},
		{"no active policy", domainerrors.NoActivePolicyError(), http.StatusForbidden},
		{"not found", domainerrors.NotFoundError("PROPOSAL"), http.StatusNotFound},
		{"invalid transition", domainerrors.InvalidTransitionError("p", "REJECTED", "APPROVED"), http.StatusConflict},
		{"already executed", domainerrors.AlreadyExecutedError("p"), http.StatusConflict},
		{"lapsed proposal", domainerrors.ProposalLapsedError("p"), http.StatusConflict},
		{"expired proposal", domainerrors.ProposalExpiredError("p"), http.StatusGone},
		{"exchange transient", domainerrors.ExchangeTransientError(errors.New("dial tcp")), http.StatusServiceUnavailable},
		{"unknown outcome", domainerrors.ExchangeUnknownOutcomeError(nil), http.StatusServiceUnavailable},
		{"wrapped", fmt.Errorf("execute: %w", domainerrors.NotFoundError("PROPOSAL")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := statusFor(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRespondDomainError_Body(t *testing.T) {
	gin.SetMode(gin.TestMode)

	render := func(err error) (int, entities.ErrorResponse) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
		respondDomainError(c, logger.NewNop(), err)
		var body entities.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return w.Code, body
	}

	code, body := render(domainerrors.PolicyViolationError([]string{"order_value_above_max", "asset_blocklisted"}))
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "POLICY_VIOLATION", body.Code)
	assert.Equal(t, []string{"order_value_above_max", "asset_blocklisted"}, body.Reasons)

	code, body = render(domainerrors.ExchangeTransientError(errors.New("timeout")))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.True(t, body.Retryable)

	code, body = render(domainerrors.ProposalExpiredError("p-1"))
	assert.Equal(t, http.StatusGone, code)
	assert.False(t, body.Retryable)
	assert.Equal(t, "p-1", body.Details["proposal_id"])

	code, body = render(errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, MsgInternalError, body.Message)
}
