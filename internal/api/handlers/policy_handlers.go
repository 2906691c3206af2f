package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

// PolicyService interface for policy operations
type PolicyService interface {
	Presets() []entities.PolicyPreset
	GetActive(ctx context.Context, userID uuid.UUID) (*entities.Policy, error)
	List(ctx context.Context, userID uuid.UUID) ([]*entities.Policy, error)
	Create(ctx context.Context, userID uuid.UUID, req *entities.CreatePolicyRequest) (*entities.Policy, error)
	Update(ctx context.Context, userID, id uuid.UUID, req *entities.UpdatePolicyRequest) (*entities.Policy, error)
	Activate(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error)
	Deactivate(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error)
}

// PolicyHandler handles trading policy endpoints
type PolicyHandler struct {
	policyService PolicyService
	logger        *logger.Logger
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(policyService PolicyService, logger *logger.Logger) *PolicyHandler {
	return &PolicyHandler{
		policyService: policyService,
		logger:        logger,
	}
}

// ListPolicies godoc
// @Summary List policies
// @Tags policies
// @Produce json
// @Security BearerAuth
// @Success 200 {array} entities.Policy
// @Failure 401 {object} entities.ErrorResponse
// @Router /policies [get]
func (h *PolicyHandler) ListPolicies(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	policies, err := h.policyService.List(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	if policies == nil {
		policies = []*entities.Policy{}
	}
	c.JSON(http.StatusOK, policies)
}

// GetActivePolicy godoc
// @Summary Get the active policy
// @Tags policies
// @Produce json
// @Security BearerAuth
// @Success 200 {object} entities.Policy
// @Failure 404 {object} entities.ErrorResponse
// @Router /policies/active [get]
func (h *PolicyHandler) GetActivePolicy(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	policy, err := h.policyService.GetActive(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	if policy == nil {
		respondError(c, http.StatusNotFound, "NO_ACTIVE_POLICY", "no active policy", nil)
		return
	}
	c.JSON(http.StatusOK, policy)
}

// ListPresets godoc
// @Summary List policy presets
// @Tags policies
// @Produce json
// @Security BearerAuth
// @Success 200 {array} entities.PolicyPreset
// @Router /policies/presets [get]
func (h *PolicyHandler) ListPresets(c *gin.Context) {
	c.JSON(http.StatusOK, h.policyService.Presets())
}

// CreatePolicy godoc
// @Summary Create a policy from a preset or explicit values
// @Tags policies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body entities.CreatePolicyRequest true "Policy"
// @Success 201 {object} entities.Policy
// @Failure 400 {object} entities.ErrorResponse
// @Router /policies [post]
func (h *PolicyHandler) CreatePolicy(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	var req entities.CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, ErrCodeInvalidRequest, MsgInvalidRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	policy, err := h.policyService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, policy)
}

// UpdatePolicy godoc
// @Summary Update a policy
// @Tags policies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Policy ID"
// @Param request body entities.UpdatePolicyRequest true "Changes"
// @Success 200 {object} entities.Policy
// @Failure 400 {object} entities.ErrorResponse
// @Failure 404 {object} entities.ErrorResponse
// @Router /policies/{id} [put]
func (h *PolicyHandler) UpdatePolicy(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req entities.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, ErrCodeInvalidRequest, MsgInvalidRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	policy, err := h.policyService.Update(c.Request.Context(), userID, id, &req)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

// ActivatePolicy godoc
// @Summary Activate a policy, deactivating any other
// @Tags policies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Policy ID"
// @Success 200 {object} entities.Policy
// @Failure 404 {object} entities.ErrorResponse
// @Router /policies/{id}/activate [post]
func (h *PolicyHandler) ActivatePolicy(c *gin.Context) {
	h.toggle(c, h.policyService.Activate)
}

// DeactivatePolicy godoc
// @Summary Deactivate a policy
// @Tags policies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Policy ID"
// @Success 200 {object} entities.Policy
// @Failure 404 {object} entities.ErrorResponse
// @Router /policies/{id}/deactivate [post]
func (h *PolicyHandler) DeactivatePolicy(c *gin.Context) {
	h.toggle(c, h.policyService.Deactivate)
}

func (h *PolicyHandler) toggle(c *gin.Context, fn func(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error)) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	policy, err := fn(c.Request.Context(), userID, id)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}
