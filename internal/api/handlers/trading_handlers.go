package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

// TradingService reads and flips the per-user kill switch
type TradingService interface {
	Get(ctx context.Context, userID uuid.UUID) (*entities.TradingFlag, error)
	Set(ctx context.Context, userID uuid.UUID, enabled bool) (*entities.TradingFlag, error)
}

// SetTradingEnabledRequest turns trading on or off
type SetTradingEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// TradingHandler handles kill switch endpoints
type TradingHandler struct {
	tradingService TradingService
	logger         *logger.Logger
}

// NewTradingHandler creates a new trading handler
func NewTradingHandler(tradingService TradingService, logger *logger.Logger) *TradingHandler {
	return &TradingHandler{tradingService: tradingService, logger: logger}
}

// GetTradingEnabled godoc
// @Summary Get the kill switch
// @Tags trading
// @Produce json
// @Security BearerAuth
// @Success 200 {object} entities.TradingFlag
// @Router /trading/enabled [get]
func (h *TradingHandler) GetTradingEnabled(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	flag, err := h.tradingService.Get(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, flag)
}

// SetTradingEnabled godoc
// @Summary Set the kill switch
// @Tags trading
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SetTradingEnabledRequest true "Flag"
// @Success 200 {object} entities.TradingFlag
// @Failure 400 {object} entities.ErrorResponse
// @Router /trading/enabled [put]
func (h *TradingHandler) SetTradingEnabled(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	var req SetTradingEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, ErrCodeInvalidRequest, MsgInvalidRequest, map[string]interface{}{"field": "enabled"})
		return
	}
	flag, err := h.tradingService.Set(c.Request.Context(), userID, *req.Enabled)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, flag)
}
