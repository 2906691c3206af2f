package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
)

// ErrDuplicate is returned when an insert hits a unique constraint
var ErrDuplicate = errors.New("duplicate record")

// ErrLockLost is returned when a scan job lease is no longer held by the caller
var ErrLockLost = errors.New("scan job lock lost")

// PolicyRepository persists user policies. Lookups return nil, nil when nothing matches.
type PolicyRepository interface {
	Create(ctx context.Context, policy *entities.Policy) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error)
	GetActive(ctx context.Context, userID uuid.UUID) (*entities.Policy, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.Policy, error)
	Update(ctx context.Context, policy *entities.Policy) error
	// Activate deactivates every other policy of the user and activates id in one transaction
	Activate(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error)
	Deactivate(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error)
}

// ScanJobRepository persists the per-user scan job and its lease
type ScanJobRepository interface {
	Upsert(ctx context.Context, job *entities.ScanJob) (*entities.ScanJob, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*entities.ScanJob, error)
	// Claim atomically takes the lease of a due job when it is free or expired.
	// False means another worker holds it or already ran it.
	Claim(ctx context.Context, jobID uuid.UUID, owner string, now time.Time, ttl time.Duration) (bool, error)
	CompleteRun(ctx context.Context, jobID uuid.UUID, owner string, update entities.ScanRunUpdate) error
	Release(ctx context.Context, jobID uuid.UUID, owner string) error
	SetStatus(ctx context.Context, userID uuid.UUID, status entities.ScanJobStatus, nextRunAt time.Time) (*entities.ScanJob, error)
	RequestForce(ctx context.Context, userID uuid.UUID, now time.Time) (*entities.ScanJob, error)
}

// SnapshotRepository stores immutable market snapshots
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot *entities.MarketSnapshot) error
	GetLatest(ctx context.Context, userID uuid.UUID) (*entities.MarketSnapshot, error)
	PeakPortfolioValue(ctx context.Context, userID uuid.UUID, since time.Time) (float64, error)
}

// ProposalDecision describes a conditional status change plus its audit row
type ProposalDecision struct {
	ProposalID uuid.UUID
	UserID     uuid.UUID
	From       entities.ProposalStatus
	To         entities.ProposalStatus
	Now        time.Time
	// Modified carries the new order fields for a modify decision, nil otherwise
	Modified *entities.Proposal
	Action   *entities.ProposalAction
}

// ProposalRepository persists proposals and their action log
type ProposalRepository interface {
	Create(ctx context.Context, proposal *entities.Proposal) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*entities.Proposal, error)
	List(ctx context.Context, userID uuid.UUID, status *entities.ProposalStatus, limit, offset int) ([]*entities.Proposal, error)
	ExpireStale(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	// ApplyDecision moves From to To only while the proposal is unexpired and records the action
	// in the same transaction. Returns nil, nil when the precondition no longer holds.
	ApplyDecision(ctx context.Context, decision ProposalDecision) (*entities.Proposal, error)
	Transition(ctx context.Context, userID, id uuid.UUID, from, to entities.ProposalStatus) (bool, error)
	ListActions(ctx context.Context, userID, proposalID uuid.UUID) ([]*entities.ProposalAction, error)
}

// ExecutionRepository persists trade executions. ProposalID is unique.
type ExecutionRepository interface {
	// Create returns ErrDuplicate when an execution already exists for the proposal
	Create(ctx context.Context, execution *entities.TradeExecution) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.TradeExecution, error)
	GetByProposalID(ctx context.Context, proposalID uuid.UUID) (*entities.TradeExecution, error)
	// Claim moves the row to SUBMITTING if it still has the observed status and updated_at
	Claim(ctx context.Context, id uuid.UUID, status entities.TradeExecutionStatus, updatedAt time.Time) (*entities.TradeExecution, error)
	MarkSubmitting(ctx context.Context, id uuid.UUID, quantity, price decimal.Decimal) error
	MarkSubmitted(ctx context.Context, id uuid.UUID, exchangeOrderID string, quantity, price, fee decimal.Decimal, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	Restore(ctx context.Context, id uuid.UUID, status entities.TradeExecutionStatus, lastError string) error
	RecordError(ctx context.Context, id uuid.UUID, lastError string) error
	CountPlacedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*entities.TradeExecution, error)
	// ListUnsettled returns SUBMITTED executions whose proposal is still APPROVED
	ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]*entities.TradeExecution, error)
}

// TradingFlagRepository persists the per-user kill switch
type TradingFlagRepository interface {
	// GetOrCreate lazily inserts a disabled flag on first read
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*entities.TradingFlag, error)
	Set(ctx context.Context, userID uuid.UUID, enabled bool) (*entities.TradingFlag, error)
}
