package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
	"github.com/tradepilot/pilot_service/internal/domain/repositories"
	"github.com/tradepilot/pilot_service/internal/domain/services/events"
	"github.com/tradepilot/pilot_service/internal/domain/services/preflight"
	"github.com/tradepilot/pilot_service/pkg/logger"
	"github.com/tradepilot/pilot_service/pkg/metrics"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// WarningNoActivePolicy is returned instead of preflight warnings when no policy is active
	WarningNoActivePolicy = "no_active_policy"
)

// Candidate rejection reasons
const (
	RejectInvalidAsset      = "invalid_asset"
	RejectInvalidSide       = "invalid_side"
	RejectInvalidOrderType  = "invalid_order_type"
	RejectInvalidValue      = "invalid_order_value"
	RejectInvalidConfidence = "invalid_confidence"
	RejectMissingLimitPrice = "missing_limit_price"
)

// Service owns the proposal lifecycle up to APPROVED. Execution moves it further.
type Service struct {
	proposals repositories.ProposalRepository
	policies  repositories.PolicyRepository
	flags     repositories.TradingFlagRepository
	publisher events.Publisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewService creates a proposal service
func NewService(
	proposals repositories.ProposalRepository,
	policies repositories.PolicyRepository,
	flags repositories.TradingFlagRepository,
	publisher events.Publisher,
	log *logger.Logger,
) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		proposals: proposals,
		policies:  policies,
		flags:     flags,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// List returns the user's proposals, newest first. Lapsed proposals are swept first so
// the statuses returned are current.
func (s *Service) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*entities.Proposal, error) {
	var filter *entities.ProposalStatus
	if status != "" {
		st := entities.ProposalStatus(strings.ToUpper(status))
		if !validStatus(st) {
			return nil, domainerrors.ValidationError("status", fmt.Sprintf("unknown status %q", status))
		}
		filter = &st
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.ExpireStale(ctx, userID); err != nil {
		return nil, err
	}
	return s.proposals.List(ctx, userID, filter, limit, offset)
}

// Get returns one proposal of the user
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*entities.Proposal, error) {
	p, err := s.proposals.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domainerrors.NotFoundError("PROPOSAL")
	}
	if p.Status == entities.ProposalStatusProposed && p.IsExpired(s.now()) {
		if _, err := s.ExpireStale(ctx, userID); err != nil {
			return nil, err
		}
		p.Status = entities.ProposalStatusExpired
	}
	return p, nil
}

// Actions returns the decision log of a proposal
func (s *Service) Actions(ctx context.Context, userID, id uuid.UUID) ([]*entities.ProposalAction, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.proposals.ListActions(ctx, userID, id)
}

// ExpireStale moves every lapsed PROPOSED proposal of the user to EXPIRED
func (s *Service) ExpireStale(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.proposals.ExpireStale(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire proposals: %w", err)
	}
	if n > 0 {
		metrics.ProposalTransitionsTotal.WithLabelValues(string(entities.ProposalStatusExpired)).Add(float64(n))
		s.logger.Info("Expired stale proposals", "user_id", userID.String(), "count", n)
	}
	return n, nil
}

// Accept approves a proposal as proposed
func (s *Service) Accept(ctx context.Context, userID, id uuid.UUID) (*entities.ProposalDecisionResponse, error) {
	p, err := s.decide(ctx, userID, id, entities.ProposalStatusApproved, entities.ProposalActionAccept, nil, nil)
	if err != nil {
		return nil, err
	}
	return &entities.ProposalDecisionResponse{Proposal: p, Warnings: s.warnings(ctx, p)}, nil
}

// Decline rejects a proposal
func (s *Service) Decline(ctx context.Context, userID, id uuid.UUID) (*entities.ProposalDecisionResponse, error) {
	p, err := s.decide(ctx, userID, id, entities.ProposalStatusDeclined, entities.ProposalActionDecline, nil, nil)
	if err != nil {
		return nil, err
	}
	return &entities.ProposalDecisionResponse{Proposal: p}, nil
}

// Modify changes the order fields and approves the proposal in one step. The result is
// checked against the current active policy and any violations come back as warnings.
func (s *Service) Modify(ctx context.Context, userID, id uuid.UUID, mod entities.ProposalModification) (*entities.ProposalDecisionResponse, error) {
	if mod.IsEmpty() {
		return nil, domainerrors.ValidationError("modification", "at least one field must change")
	}

	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	if mod.Asset != nil {
		updated.Asset = strings.ToUpper(strings.TrimSpace(*mod.Asset))
		if updated.Asset == "" {
			return nil, domainerrors.ValidationError("asset", "asset is required")
		}
	}
	if mod.Side != nil {
		if !validSide(*mod.Side) {
			return nil, domainerrors.ValidationError("side", "side must be buy or sell")
		}
		updated.Side = *mod.Side
	}
	if mod.OrderValueEur != nil {
		if !mod.OrderValueEur.IsPositive() {
			return nil, domainerrors.ValidationError("order_value_eur", "order value must be positive")
		}
		updated.OrderValueEur = *mod.OrderValueEur
	}
	if mod.Confidence != nil {
		if !entities.IsValidConfidence(*mod.Confidence) {
			return nil, domainerrors.ValidationError("confidence", "confidence must be one of 0, 25, 50, 75, 100")
		}
		updated.Confidence = *mod.Confidence
	}

	changes, err := json.Marshal(map[string]interface{}{
		"before": orderFields(current),
		"after":  orderFields(&updated),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode changes: %w", err)
	}

	p, err := s.decide(ctx, userID, id, entities.ProposalStatusApproved, entities.ProposalActionModify, &updated, changes)
	if err != nil {
		return nil, err
	}
	return &entities.ProposalDecisionResponse{Proposal: p, Warnings: s.warnings(ctx, p)}, nil
}

// decide applies a PROPOSED -> to transition together with its action row
func (s *Service) decide(
	ctx context.Context,
	userID, id uuid.UUID,
	to entities.ProposalStatus,
	actionType entities.ProposalActionType,
	modified *entities.Proposal,
	changes json.RawMessage,
) (*entities.Proposal, error) {
	log := s.logger.With("user_id", userID.String(), "proposal_id", id.String(), "action", string(actionType))

	current, err := s.proposals.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domainerrors.NotFoundError("PROPOSAL")
	}

	now := s.now().UTC()
	if current.Status == entities.ProposalStatusProposed && current.IsExpired(now) {
		if _, err := s.ExpireStale(ctx, userID); err != nil {
			return nil, err
		}
		log.Info("Decision arrived after proposal lapsed")
		return nil, domainerrors.ProposalLapsedError(id.String())
	}
	if current.Status == entities.ProposalStatusExpired {
		return nil, domainerrors.ProposalLapsedError(id.String())
	}
	if current.Status != entities.ProposalStatusProposed {
		log.Info("Decision rejected, proposal already settled", "status", string(current.Status))
		return nil, domainerrors.InvalidTransitionError(id.String(), string(current.Status), string(to))
	}

	p, err := s.proposals.ApplyDecision(ctx, repositories.ProposalDecision{
		ProposalID: id,
		UserID:     userID,
		From:       entities.ProposalStatusProposed,
		To:         to,
		Now:        now,
		Modified:   modified,
		Action: &entities.ProposalAction{
			ID:         uuid.New(),
			ActionType: actionType,
			Changes:    changes,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply decision: %w", err)
	}
	if p == nil {
		// lost a race with another decision or the sweep
		latest, gerr := s.proposals.GetByID(ctx, userID, id)
		if gerr == nil && latest != nil && latest.Status == entities.ProposalStatusExpired {
			return nil, domainerrors.ProposalLapsedError(id.String())
		}
		from := string(current.Status)
		if latest != nil {
			from = string(latest.Status)
		}
		return nil, domainerrors.InvalidTransitionError(id.String(), from, string(to))
	}

	metrics.ProposalTransitionsTotal.WithLabelValues(string(to)).Inc()
	s.publish(ctx, events.New(events.ProposalTransitioned, userID, id, map[string]interface{}{
		"from":   string(entities.ProposalStatusProposed),
		"to":     string(to),
		"action": string(actionType),
	}))
	log.Info("Proposal decided", "status", string(p.Status))
	return p, nil
}

// warnings runs a soft preflight against the current active policy
func (s *Service) warnings(ctx context.Context, p *entities.Proposal) []string {
	policy, err := s.policies.GetActive(ctx, p.UserID)
	if err != nil {
		s.logger.Warn("Failed to load policy for warnings", "user_id", p.UserID.String(), "error", err)
		return nil
	}
	if policy == nil {
		return []string{WarningNoActivePolicy}
	}

	enabled := false
	if flag, err := s.flags.GetOrCreate(ctx, p.UserID); err == nil && flag != nil {
		enabled = flag.Enabled
	}

	res := preflight.Validate(preflight.Input{
		Policy:         policy,
		Order:          preflight.OrderFromProposal(p),
		TradingEnabled: enabled,
		Now:            s.now(),
	})
	return res.Violations
}

// CreateFromCandidates turns signal generator output into PROPOSED proposals. Candidates
// are untrusted: malformed ones are dropped and counted, never stored.
func (s *Service) CreateFromCandidates(
	ctx context.Context,
	policy *entities.Policy,
	snapshotID *uuid.UUID,
	candidates []entities.ProposalCandidate,
) ([]*entities.Proposal, error) {
	log := s.logger.With("user_id", policy.UserID.String(), "policy_id", policy.ID.String())

	enabled := false
	flag, err := s.flags.GetOrCreate(ctx, policy.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trading flag: %w", err)
	}
	if flag != nil {
		enabled = flag.Enabled
	}

	now := s.now().UTC()
	policyID := policy.ID
	created := make([]*entities.Proposal, 0, len(candidates))

	for i, c := range candidates {
		if reason := CheckCandidate(c); reason != "" {
			metrics.CandidatesRejectedTotal.WithLabelValues(reason).Inc()
			log.Warn("Dropping invalid candidate", "index", i, "reason", reason, "asset", c.Asset)
			continue
		}

		orderType := c.OrderType
		if orderType == "" {
			orderType = entities.OrderTypeMarket
		}
		p := &entities.Proposal{
			ID:            uuid.New(),
			UserID:        policy.UserID,
			Status:        entities.ProposalStatusProposed,
			Asset:         strings.ToUpper(strings.TrimSpace(c.Asset)),
			Side:          c.Side,
			OrderType:     orderType,
			OrderValueEur: c.OrderValueEur,
			LimitPrice:    c.LimitPrice,
			Confidence:    c.Confidence,
			Rationale:     strings.TrimSpace(c.Rationale),
			CreatedBy:     entities.ProposalSourceSignalGenerator,
			SnapshotID:    snapshotID,
			PolicyID:      &policyID,
			PolicyVersion: policy.Version,
			ExpiresAt:     now.Add(entities.ProposalTTL),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if orderType == entities.OrderTypeMarket {
			p.LimitPrice = nil
		}
		p.PreflightViolations = preflight.Validate(preflight.Input{
			Policy:         policy,
			Order:          preflight.OrderFromProposal(p),
			TradingEnabled: enabled,
			Now:            now,
		}).Violations

		if err := s.proposals.Create(ctx, p); err != nil {
			return created, fmt.Errorf("failed to store proposal: %w", err)
		}
		created = append(created, p)

		metrics.ProposalsCreatedTotal.WithLabelValues(string(p.CreatedBy)).Inc()
		s.publish(ctx, events.New(events.ProposalCreated, p.UserID, p.ID, map[string]interface{}{
			"asset":           p.Asset,
			"side":            string(p.Side),
			"order_value_eur": p.OrderValueEur.String(),
			"confidence":      p.Confidence,
			"violations":      p.PreflightViolations,
		}))
	}

	if len(created) > 0 {
		log.Info("Proposals created", "count", len(created), "dropped", len(candidates)-len(created))
	}
	return created, nil
}

// CheckCandidate returns the rejection reason for a malformed candidate or ""
func CheckCandidate(c entities.ProposalCandidate) string {
	if strings.TrimSpace(c.Asset) == "" {
		return RejectInvalidAsset
	}
	if !validSide(c.Side) {
		return RejectInvalidSide
	}
	switch c.OrderType {
	case "", entities.OrderTypeMarket:
	case entities.OrderTypeLimit:
		if c.LimitPrice == nil || !c.LimitPrice.IsPositive() {
			return RejectMissingLimitPrice
		}
	default:
		return RejectInvalidOrderType
	}
	if !c.OrderValueEur.IsPositive() {
		return RejectInvalidValue
	}
	if !entities.IsValidConfidence(c.Confidence) {
		return RejectInvalidConfidence
	}
	return ""
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", "type", string(event.Type), "error", err)
	}
}

func orderFields(p *entities.Proposal) map[string]interface{} {
	return map[string]interface{}{
		"asset":           p.Asset,
		"side":            string(p.Side),
		"order_value_eur": p.OrderValueEur.StringFixed(2),
		"confidence":      p.Confidence,
	}
}

func validSide(s entities.OrderSide) bool {
	return s == entities.OrderSideBuy || s == entities.OrderSideSell
}

func validStatus(s entities.ProposalStatus) bool {
	switch s {
	case entities.ProposalStatusProposed, entities.ProposalStatusExpired, entities.ProposalStatusApproved,
		entities.ProposalStatusDeclined, entities.ProposalStatusExecuted, entities.ProposalStatusFailed:
		return true
	}
	return false
}
