// Package execution turns approved proposals into exactly one exchange order each.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/adapters/exchange"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
	"github.com/tradepilot/pilot_service/internal/domain/repositories"
	"github.com/tradepilot/pilot_service/internal/domain/services/events"
	"github.com/tradepilot/pilot_service/internal/domain/services/preflight"
	"github.com/tradepilot/pilot_service/pkg/logger"
	"github.com/tradepilot/pilot_service/pkg/metrics"
)

const quantityPrecision = 8

// Notifier is told about finished executions
type Notifier interface {
	NotifyExecution(ctx context.Context, policy *entities.Policy, exec *entities.TradeExecution, proposal *entities.Proposal)
}

// Config tunes the coordinator
type Config struct {
	// SubmittingGrace is how long a PENDING or SUBMITTING row is left alone before a retry may take it over
	SubmittingGrace time.Duration
	// ExchangeTimeout bounds every gateway call; zero means only the caller's deadline applies
	ExchangeTimeout time.Duration
	// DrawdownWindow is how far back the portfolio peak is looked up
	DrawdownWindow  time.Duration
	DefaultLocation *time.Location
}

// Deps are the coordinator's collaborators
type Deps struct {
	Proposals  repositories.ProposalRepository
	Executions repositories.ExecutionRepository
	Policies   repositories.PolicyRepository
	Jobs       repositories.ScanJobRepository
	Snapshots  repositories.SnapshotRepository
	Flags      repositories.TradingFlagRepository
	Gateway    exchange.Gateway
	Publisher  events.Publisher
	Notifier   Notifier
}

// Coordinator executes approved proposals
type Coordinator struct {
	proposals  repositories.ProposalRepository
	executions repositories.ExecutionRepository
	policies   repositories.PolicyRepository
	jobs       repositories.ScanJobRepository
	snapshots  repositories.SnapshotRepository
	flags      repositories.TradingFlagRepository
	gateway    exchange.Gateway
	publisher  events.Publisher
	notifier   Notifier
	config     Config
	logger     *logger.Logger
	now        func() time.Time
}

// NewCoordinator creates a new execution coordinator
func NewCoordinator(deps Deps, cfg Config, log *logger.Logger) *Coordinator {
	if cfg.SubmittingGrace <= 0 {
		cfg.SubmittingGrace = 2 * time.Minute
	}
	if cfg.DrawdownWindow <= 0 {
		cfg.DrawdownWindow = 30 * 24 * time.Hour
	}
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Coordinator{
		proposals:  deps.Proposals,
		executions: deps.Executions,
		policies:   deps.Policies,
		jobs:       deps.Jobs,
		snapshots:  deps.Snapshots,
		flags:      deps.Flags,
		gateway:    deps.Gateway,
		publisher:  publisher,
		notifier:   deps.Notifier,
		config:     cfg,
		logger:     log,
		now:        time.Now,
	}
}

// Execute places the order for an approved proposal. Any number of concurrent or
// repeated calls for the same proposal produce at most one exchange order.
func (c *Coordinator) Execute(ctx context.Context, userID, proposalID uuid.UUID) (*entities.ExecutionResult, error) {
	now := c.now()
	log := c.logger.With("user_id", userID, "proposal_id", proposalID)

	flag, err := c.flags.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trading flag: %w", err)
	}
	if !flag.Enabled {
		metrics.ExecutionsTotal.WithLabelValues("trading_disabled").Inc()
		log.Warn("Execution denied, trading disabled")
		return nil, domainerrors.TradingDisabledError()
	}

	proposal, err := c.proposals.GetByID(ctx, userID, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal: %w", err)
	}
	if proposal == nil {
		return nil, domainerrors.NotFoundError("PROPOSAL")
	}

	existing, err := c.executions.GetByProposalID(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}
	if existing != nil && existing.Status == entities.TradeExecutionSubmitted {
		return nil, c.alreadyExecuted(ctx, proposal, log)
	}

	switch proposal.Status {
	case entities.ProposalStatusApproved:
	case entities.ProposalStatusExpired:
		return nil, domainerrors.ProposalExpiredError(proposalID.String())
	case entities.ProposalStatusExecuted:
		return nil, domainerrors.AlreadyExecutedError(proposalID.String())
	default:
		return nil, domainerrors.InvalidTransitionError(proposalID.String(),
			string(proposal.Status), string(entities.ProposalStatusExecuted))
	}
	if proposal.IsExpired(now) {
		metrics.ExecutionsTotal.WithLabelValues("expired").Inc()
		return nil, domainerrors.ProposalExpiredError(proposalID.String())
	}

	policy, err := c.policies.GetActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active policy: %w", err)
	}
	if policy == nil {
		return nil, domainerrors.NoActivePolicyError()
	}

	risk, err := c.riskContext(ctx, policy, proposal, existing, now)
	if err != nil {
		return nil, err
	}

	check := preflight.Validate(preflight.Input{
		Policy:         policy,
		Order:          preflight.OrderFromProposal(proposal),
		TradingEnabled: flag.Enabled,
		Risk:           risk,
		Now:            now,
	})
	if !check.Passed {
		for _, v := range check.Violations {
			metrics.PreflightViolationsTotal.WithLabelValues(v).Inc()
		}
		metrics.ExecutionsTotal.WithLabelValues("policy_violation").Inc()
		log.Warn("Execution rejected by preflight", "violations", check.Violations)
		return nil, domainerrors.PolicyViolationError(check.Violations)
	}

	if existing != nil {
		return c.resume(ctx, proposal, policy, existing, log)
	}
	return c.start(ctx, proposal, policy, log)
}

// start inserts the execution row. Losing the insert race means another call owns it.
func (c *Coordinator) start(ctx context.Context, proposal *entities.Proposal, policy *entities.Policy, log *logger.Logger) (*entities.ExecutionResult, error) {
	exec := &entities.TradeExecution{
		ID:              uuid.New(),
		UserID:          proposal.UserID,
		ProposalID:      proposal.ID,
		Status:          entities.TradeExecutionPending,
		Asset:           proposal.Asset,
		Side:            proposal.Side,
		PreflightPassed: true,
	}
	exec.ClientOrderID = ClientOrderID(exec.ID)

	if err := c.executions.Create(ctx, exec); err != nil {
		if !errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("failed to create execution: %w", err)
		}
		existing, err := c.executions.GetByProposalID(ctx, proposal.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution: %w", err)
		}
		if existing == nil {
			return nil, domainerrors.ExecutionInFlightError(proposal.ID.String())
		}
		return c.resume(ctx, proposal, policy, existing, log)
	}

	log.Info("Execution created", "execution_id", exec.ID, "client_order_id", exec.ClientOrderID)
	return c.place(ctx, proposal, policy, exec, log)
}

// resume handles a proposal that already has an execution row. The exchange is always
// asked about the client order id before anything new is placed.
func (c *Coordinator) resume(ctx context.Context, proposal *entities.Proposal, policy *entities.Policy, existing *entities.TradeExecution, log *logger.Logger) (*entities.ExecutionResult, error) {
	if existing.Status == entities.TradeExecutionSubmitted {
		return nil, c.alreadyExecuted(ctx, proposal, log)
	}
	if existing.Status.IsInFlight() && c.now().Sub(existing.UpdatedAt) < c.config.SubmittingGrace {
		metrics.ExecutionsTotal.WithLabelValues("in_flight").Inc()
		return nil, domainerrors.ExecutionInFlightError(proposal.ID.String())
	}

	claimed, err := c.executions.Claim(ctx, existing.ID, existing.Status, existing.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to claim execution: %w", err)
	}
	if claimed == nil {
		metrics.ExecutionsTotal.WithLabelValues("in_flight").Inc()
		return nil, domainerrors.ExecutionInFlightError(proposal.ID.String())
	}
	log = log.With("execution_id", claimed.ID, "client_order_id", claimed.ClientOrderID)

	xctx, cancel := c.exchangeCtx(ctx)
	order, err := c.gateway.FindByClientOrderID(xctx, claimed.ClientOrderID)
	cancel()
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues("unreachable").Inc()
		if rerr := c.executions.Restore(context.WithoutCancel(ctx), claimed.ID, existing.Status, err.Error()); rerr != nil {
			log.Error("Failed to restore execution after lookup failure", "error", rerr)
		}
		log.Warn("Exchange unreachable during reconciliation", "error", err)
		return nil, domainerrors.ExchangeTransientError(err)
	}

	if order != nil {
		metrics.ReconciliationsTotal.WithLabelValues("found").Inc()
		log.Info("Adopting order found on exchange", "exchange_order_id", order.ID)
		return c.settle(context.WithoutCancel(ctx), proposal, policy, claimed, order, true, log)
	}

	metrics.ReconciliationsTotal.WithLabelValues("not_found").Inc()
	return c.place(ctx, proposal, policy, claimed, log)
}

// place records SUBMITTING with the computed quantity, then sends exactly one order
func (c *Coordinator) place(ctx context.Context, proposal *entities.Proposal, policy *entities.Policy, exec *entities.TradeExecution, log *logger.Logger) (*entities.ExecutionResult, error) {
	persist := context.WithoutCancel(ctx)

	xctx, cancel := c.exchangeCtx(ctx)
	quote, err := c.gateway.FetchPrice(xctx, proposal.Asset)
	cancel()
	if err == nil && !quote.Last.IsPositive() {
		err = fmt.Errorf("no usable price for %s", proposal.Asset)
	}
	if err != nil {
		// nothing was sent, so the row is free for the next attempt
		if ferr := c.executions.MarkFailed(persist, exec.ID, "price unavailable: "+err.Error()); ferr != nil {
			log.Error("Failed to record price failure", "error", ferr)
		}
		metrics.ExecutionsTotal.WithLabelValues("exchange_unavailable").Inc()
		return nil, domainerrors.ExchangeTransientError(err)
	}

	quantity := proposal.OrderValueEur.DivRound(quote.Last, quantityPrecision)
	if err := c.executions.MarkSubmitting(ctx, exec.ID, quantity, quote.Last); err != nil {
		return nil, fmt.Errorf("failed to mark execution submitting: %w", err)
	}

	req := &exchange.OrderRequest{
		ClientOrderID: exec.ClientOrderID,
		Asset:         proposal.Asset,
		Side:          string(proposal.Side),
		Type:          string(proposal.OrderType),
		Quantity:      quantity,
		LimitPrice:    proposal.LimitPrice,
	}

	start := time.Now()
	xctx, cancel = c.exchangeCtx(ctx)
	order, err := c.gateway.PlaceOrder(xctx, req)
	cancel()
	metrics.ExchangeRequestDuration.WithLabelValues("place_order").Observe(time.Since(start).Seconds())

	if err == nil {
		log.Info("Order placed", "exchange_order_id", order.ID, "quantity", quantity.String())
		return c.settle(persist, proposal, policy, exec, order, false, log)
	}

	if errors.Is(err, exchange.ErrReadOnly) {
		if ferr := c.executions.MarkFailed(persist, exec.ID, err.Error()); ferr != nil {
			log.Error("Failed to record read-only failure", "error", ferr)
		}
		metrics.ExecutionsTotal.WithLabelValues("read_only").Inc()
		return nil, domainerrors.ForbiddenError("exchange credential is read-only")
	}

	switch exchange.ClassifyPlaceError(err) {
	case exchange.OutcomeRejected:
		log.Warn("Order rejected by exchange", "error", err)
		return nil, c.reject(persist, proposal, policy, exec, err.Error(), log)

	case exchange.OutcomeRateLimited, exchange.OutcomeUnreachable:
		// the exchange did not take the order; the proposal stays approved for a retry
		if ferr := c.executions.MarkFailed(persist, exec.ID, err.Error()); ferr != nil {
			log.Error("Failed to record transient failure", "error", ferr)
		}
		metrics.ExecutionsTotal.WithLabelValues("exchange_unavailable").Inc()
		log.Warn("Order not accepted, retryable", "error", err)
		return nil, domainerrors.ExchangeTransientError(err)

	default:
		if rerr := c.executions.RecordError(persist, exec.ID, err.Error()); rerr != nil {
			log.Error("Failed to record unknown outcome", "error", rerr)
		}
		metrics.ExecutionsTotal.WithLabelValues("unknown_outcome").Inc()
		log.Error("Order outcome unknown", "error", err)
		return nil, domainerrors.ExchangeUnknownOutcomeError(err)
	}
}

// settle records an order the exchange holds and completes the proposal
func (c *Coordinator) settle(ctx context.Context, proposal *entities.Proposal, policy *entities.Policy, exec *entities.TradeExecution, order *exchange.Order, reconciled bool, log *logger.Logger) (*entities.ExecutionResult, error) {
	if order.Status == exchange.OrderStatusRejected {
		return nil, c.reject(ctx, proposal, policy, exec, "exchange reported order "+order.ID+" as rejected", log)
	}

	quantity := order.FilledQty
	if quantity.IsZero() {
		quantity = order.Quantity
	}
	if quantity.IsZero() {
		quantity = exec.Quantity
	}
	price := order.AvgFillPrice
	if price.IsZero() {
		price = exec.Price
	}

	if err := c.executions.MarkSubmitted(ctx, exec.ID, order.ID, quantity, price, order.Fee, c.now()); err != nil {
		return nil, fmt.Errorf("failed to record submitted order %s: %w", order.ID, err)
	}
	c.completeProposal(ctx, proposal, entities.ProposalStatusExecuted, log)

	outcome := "submitted"
	if reconciled {
		outcome = "reconciled"
	}
	metrics.ExecutionsTotal.WithLabelValues(outcome).Inc()
	return c.result(ctx, proposal, policy, exec.ID, reconciled)
}

// reject records a definitive refusal; both the execution and the proposal fail
func (c *Coordinator) reject(ctx context.Context, proposal *entities.Proposal, policy *entities.Policy, exec *entities.TradeExecution, reason string, log *logger.Logger) error {
	if err := c.executions.MarkFailed(ctx, exec.ID, reason); err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}
	c.completeProposal(ctx, proposal, entities.ProposalStatusFailed, log)
	metrics.ExecutionsTotal.WithLabelValues("rejected").Inc()

	if _, err := c.result(ctx, proposal, policy, exec.ID, false); err != nil {
		log.Warn("Failed to reload rejected execution", "error", err)
	}
	return domainerrors.ExchangeRejectedError(reason)
}

// alreadyExecuted reports a submitted order. A proposal left APPROVED by an earlier
// failed transition is moved to EXECUTED first.
func (c *Coordinator) alreadyExecuted(ctx context.Context, proposal *entities.Proposal, log *logger.Logger) error {
	if proposal.Status == entities.ProposalStatusApproved {
		log.Warn("Settling proposal left approved after a submitted order")
		c.completeProposal(context.WithoutCancel(ctx), proposal, entities.ProposalStatusExecuted, log)
	}
	metrics.ExecutionsTotal.WithLabelValues("already_executed").Inc()
	return domainerrors.AlreadyExecutedError(proposal.ID.String())
}

func (c *Coordinator) completeProposal(ctx context.Context, proposal *entities.Proposal, to entities.ProposalStatus, log *logger.Logger) {
	ok, err := c.proposals.Transition(ctx, proposal.UserID, proposal.ID, entities.ProposalStatusApproved, to)
	if err != nil {
		log.Error("Failed to transition proposal", "to", to, "error", err)
		return
	}
	if !ok {
		log.Warn("Proposal was not approved when completing execution", "to", to)
		return
	}
	metrics.ProposalTransitionsTotal.WithLabelValues(string(to)).Inc()
	c.publish(ctx, events.New(events.ProposalTransitioned, proposal.UserID, proposal.ID, map[string]interface{}{
		"from": entities.ProposalStatusApproved,
		"to":   to,
	}), log)
}

// result reloads both rows, then publishes and notifies
func (c *Coordinator) result(ctx context.Context, proposal *entities.Proposal, policy *entities.Policy, executionID uuid.UUID, reconciled bool) (*entities.ExecutionResult, error) {
	exec, err := c.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload execution: %w", err)
	}
	current, err := c.proposals.GetByID(ctx, proposal.UserID, proposal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload proposal: %w", err)
	}
	if current == nil {
		current = proposal
	}

	if exec != nil {
		payload := map[string]interface{}{
			"proposal_id":     proposal.ID,
			"status":          exec.Status,
			"client_order_id": exec.ClientOrderID,
			"reconciled":      reconciled,
		}
		if exec.ExchangeOrderID != nil {
			payload["exchange_order_id"] = *exec.ExchangeOrderID
		}
		c.publish(ctx, events.New(events.ExecutionCompleted, proposal.UserID, exec.ID, payload), c.logger)
		if c.notifier != nil {
			c.notifier.NotifyExecution(ctx, policy, exec, current)
		}
	}

	return &entities.ExecutionResult{Execution: exec, Proposal: current, Reconciled: reconciled}, nil
}

func (c *Coordinator) publish(ctx context.Context, event events.Event, log *logger.Logger) {
	if err := c.publisher.Publish(ctx, event); err != nil {
		log.Warn("Failed to publish event", "type", event.Type, "error", err)
	}
}

// GetByProposal returns the execution of one of the user's proposals
func (c *Coordinator) GetByProposal(ctx context.Context, userID, proposalID uuid.UUID) (*entities.TradeExecution, error) {
	exec, err := c.executions.GetByProposalID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if exec == nil || exec.UserID != userID {
		return nil, domainerrors.NotFoundError("EXECUTION")
	}
	return exec, nil
}

func (c *Coordinator) exchangeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.ExchangeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.ExchangeTimeout)
}
