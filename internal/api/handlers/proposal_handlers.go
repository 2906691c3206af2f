package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

// ProposalService interface for proposal review operations
type ProposalService interface {
	List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*entities.Proposal, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*entities.Proposal, error)
	Accept(ctx context.Context, userID, id uuid.UUID) (*entities.ProposalDecisionResponse, error)
	Decline(ctx context.Context, userID, id uuid.UUID) (*entities.ProposalDecisionResponse, error)
	Modify(ctx context.Context, userID, id uuid.UUID, mod entities.ProposalModification) (*entities.ProposalDecisionResponse, error)
}

// ExecutionService places the order for an approved proposal
type ExecutionService interface {
	Execute(ctx context.Context, userID, proposalID uuid.UUID) (*entities.ExecutionResult, error)
}

// ProposalHandler handles proposal review and execution endpoints
type ProposalHandler struct {
	proposalService  ProposalService
	executionService ExecutionService
	logger           *logger.Logger
}

// NewProposalHandler creates a new proposal handler
func NewProposalHandler(proposalService ProposalService, executionService ExecutionService, logger *logger.Logger) *ProposalHandler {
	return &ProposalHandler{
		proposalService:  proposalService,
		executionService: executionService,
		logger:           logger,
	}
}

// ListProposals godoc
// @Summary List proposals, newest first
// @Tags proposals
// @Produce json
// @Security BearerAuth
// @Param status query string false "PROPOSED, APPROVED, DECLINED, EXPIRED, EXECUTED or FAILED"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset"
// @Success 200 {array} entities.Proposal
// @Failure 400 {object} entities.ErrorResponse
// @Router /proposals [get]
func (h *ProposalHandler) ListProposals(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	proposals, err := h.proposalService.List(c.Request.Context(), userID, c.Query("status"), limit, offset)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	if proposals == nil {
		proposals = []*entities.Proposal{}
	}
	c.JSON(http.StatusOK, proposals)
}

// GetProposal godoc
// @Summary Get a proposal
// @Tags proposals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Success 200 {object} entities.Proposal
// @Failure 404 {object} entities.ErrorResponse
// @Router /proposals/{id} [get]
func (h *ProposalHandler) GetProposal(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	proposal, err := h.proposalService.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

// AcceptProposal godoc
// @Summary Approve a proposal
// @Tags proposals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Success 200 {object} entities.ProposalDecisionResponse
// @Failure 404 {object} entities.ErrorResponse
// @Failure 409 {object} entities.ErrorResponse
// @Router /proposals/{id}/accept [post]
func (h *ProposalHandler) AcceptProposal(c *gin.Context) {
	h.decide(c, h.proposalService.Accept)
}

// DeclineProposal godoc
// @Summary Reject a proposal
// @Tags proposals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Success 200 {object} entities.ProposalDecisionResponse
// @Failure 404 {object} entities.ErrorResponse
// @Failure 409 {object} entities.ErrorResponse
// @Router /proposals/{id}/decline [post]
func (h *ProposalHandler) DeclineProposal(c *gin.Context) {
	h.decide(c, h.proposalService.Decline)
}

// ModifyProposal godoc
// @Summary Modify and approve a proposal
// @Tags proposals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Param request body entities.ProposalModification true "Changes"
// @Success 200 {object} entities.ProposalDecisionResponse
// @Failure 400 {object} entities.ErrorResponse
// @Failure 409 {object} entities.ErrorResponse
// @Router /proposals/{id}/modify [post]
func (h *ProposalHandler) ModifyProposal(c *gin.Context) {
	var mod entities.ProposalModification
	if err := c.ShouldBindJSON(&mod); err != nil {
		respondBadRequest(c, ErrCodeInvalidRequest, MsgInvalidRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	h.decide(c, func(ctx context.Context, userID, id uuid.UUID) (*entities.ProposalDecisionResponse, error) {
		return h.proposalService.Modify(ctx, userID, id, mod)
	})
}

func (h *ProposalHandler) decide(c *gin.Context, fn func(ctx context.Context, userID, id uuid.UUID) (*entities.ProposalDecisionResponse, error)) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := fn(c.Request.Context(), userID, id)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ExecuteProposal godoc
// @Summary Place the order for an approved proposal
// @Description Safe to retry. At most one order is ever placed per proposal.
// @Tags proposals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Success 200 {object} entities.ExecutionResult
// @Failure 403 {object} entities.ErrorResponse
// @Failure 409 {object} entities.ErrorResponse
// @Failure 410 {object} entities.ErrorResponse
// @Failure 422 {object} entities.ErrorResponse
// @Failure 503 {object} entities.ErrorResponse
// @Router /proposals/{id}/execute [post]
func (h *ProposalHandler) ExecuteProposal(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.executionService.Execute(c.Request.Context(), userID, id)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
