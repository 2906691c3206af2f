package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

// ScanService controls a user's scan job
type ScanService interface {
	GetJob(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error)
	Pause(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error)
	Resume(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error)
	Force(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error)
}

// TickService runs one scheduler pass
type TickService interface {
	Tick(ctx context.Context, workerID string) (*entities.TickResult, error)
}

// ScanHandler handles scan job endpoints and the scheduler tick
type ScanHandler struct {
	scanService ScanService
	tickService TickService
	workerID    string
	logger      *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(scanService ScanService, tickService TickService, workerID string, logger *logger.Logger) *ScanHandler {
	return &ScanHandler{
		scanService: scanService,
		tickService: tickService,
		workerID:    workerID,
		logger:      logger,
	}
}

// GetScanJob godoc
// @Summary Get the scan job
// @Tags scan
// @Produce json
// @Security BearerAuth
// @Success 200 {object} entities.ScanJob
// @Failure 404 {object} entities.ErrorResponse
// @Router /scan [get]
func (h *ScanHandler) GetScanJob(c *gin.Context) {
	h.jobAction(c, h.scanService.GetJob)
}

// PauseScan godoc
// @Summary Pause scheduled scans
// @Tags scan
// @Produce json
// @Security BearerAuth
// @Success 200 {object} entities.ScanJob
// @Router /scan/pause [post]
func (h *ScanHandler) PauseScan(c *gin.Context) {
	h.jobAction(c, h.scanService.Pause)
}

// ResumeScan godoc
// @Summary Resume scheduled scans
// @Tags scan
// @Produce json
// @Security BearerAuth
// @Success 200 {object} entities.ScanJob
// @Router /scan/resume [post]
func (h *ScanHandler) ResumeScan(c *gin.Context) {
	h.jobAction(c, h.scanService.Resume)
}

// ForceScan godoc
// @Summary Run a scan on the next tick, even under a manual policy
// @Tags scan
// @Produce json
// @Security BearerAuth
// @Success 202 {object} entities.ScanJob
// @Failure 400 {object} entities.ErrorResponse
// @Router /scan/force [post]
func (h *ScanHandler) ForceScan(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	job, err := h.scanService.Force(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *ScanHandler) jobAction(c *gin.Context, fn func(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error)) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	job, err := fn(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// SchedulerTick godoc
// @Summary Run due scan jobs
// @Description Called by the external scheduler. Requires X-Scheduler-Secret.
// @Tags internal
// @Produce json
// @Param X-Scheduler-Secret header string true "Shared secret"
// @Success 200 {object} entities.TickResult
// @Failure 401 {object} entities.ErrorResponse
// @Router /internal/scheduler/tick [post]
func (h *ScanHandler) SchedulerTick(c *gin.Context) {
	workerID := h.workerID
	if reqID := getRequestID(c); reqID != "" {
		workerID += ":" + reqID
	}
	result, err := h.tickService.Tick(c.Request.Context(), workerID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
