package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProposalTTL is how long a proposal stays actionable after creation
const ProposalTTL = 60 * time.Minute

// ProposalStatus represents the lifecycle state of a trade proposal
type ProposalStatus string

const (
	ProposalStatusProposed ProposalStatus = "PROPOSED"
	ProposalStatusExpired  ProposalStatus = "EXPIRED"
	ProposalStatusApproved ProposalStatus = "APPROVED"
	ProposalStatusDeclined ProposalStatus = "DECLINED"
	ProposalStatusExecuted ProposalStatus = "EXECUTED"
	ProposalStatusFailed   ProposalStatus = "FAILED"
)

// IsTerminal reports whether no further transition is possible
func (s ProposalStatus) IsTerminal() bool {
	switch s {
	case ProposalStatusExpired, ProposalStatusDeclined, ProposalStatusExecuted, ProposalStatusFailed:
		return true
	}
	return false
}

// OrderSide is buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is market or limit
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// ProposalSource records who created a proposal
type ProposalSource string

const (
	ProposalSourceSignalGenerator ProposalSource = "signal_generator"
	ProposalSourceUser            ProposalSource = "user"
)

// Proposal is a candidate trade awaiting a user decision
type Proposal struct {
	ID                  uuid.UUID        `json:"id" db:"id"`
	UserID              uuid.UUID        `json:"user_id" db:"user_id"`
	Status              ProposalStatus   `json:"status" db:"status"`
	Asset               string           `json:"asset" db:"asset"`
	Side                OrderSide        `json:"side" db:"side"`
	OrderType           OrderType        `json:"order_type" db:"order_type"`
	OrderValueEur       decimal.Decimal  `json:"order_value_eur" db:"order_value_eur"`
	LimitPrice          *decimal.Decimal `json:"limit_price,omitempty" db:"limit_price"`
	Confidence          int              `json:"confidence" db:"confidence"`
	Rationale           string           `json:"rationale" db:"rationale"`
	CreatedBy           ProposalSource   `json:"created_by" db:"created_by"`
	SnapshotID          *uuid.UUID       `json:"snapshot_id,omitempty" db:"snapshot_id"`
	PolicyID            *uuid.UUID       `json:"policy_id,omitempty" db:"policy_id"`
	PolicyVersion       int              `json:"policy_version" db:"policy_version"`
	PreflightViolations []string         `json:"preflight_violations" db:"-"`
	ExpiresAt           time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether the proposal's TTL has elapsed at now
func (p *Proposal) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// ProposalActionType is the user decision recorded against a proposal
type ProposalActionType string

const (
	ProposalActionAccept  ProposalActionType = "accept"
	ProposalActionModify  ProposalActionType = "modify"
	ProposalActionDecline ProposalActionType = "decline"
)

// ProposalAction is an immutable audit row for one user decision
type ProposalAction struct {
	ID         uuid.UUID          `json:"id" db:"id"`
	ProposalID uuid.UUID          `json:"proposal_id" db:"proposal_id"`
	UserID     uuid.UUID          `json:"user_id" db:"user_id"`
	ActionType ProposalActionType `json:"action_type" db:"action_type"`
	FromStatus ProposalStatus     `json:"from_status" db:"from_status"`
	ToStatus   ProposalStatus     `json:"to_status" db:"to_status"`
	Changes    json.RawMessage    `json:"changes,omitempty" db:"changes"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
}

// ProposalModification holds the fields a user may change when modifying
type ProposalModification struct {
	Asset         *string          `json:"asset,omitempty"`
	Side          *OrderSide       `json:"side,omitempty"`
	OrderValueEur *decimal.Decimal `json:"order_value_eur,omitempty"`
	Confidence    *int             `json:"confidence,omitempty"`
}

// IsEmpty reports whether nothing would change
func (m ProposalModification) IsEmpty() bool {
	return m.Asset == nil && m.Side == nil && m.OrderValueEur == nil && m.Confidence == nil
}

// ProposalCandidate is one untrusted trade idea returned by the signal generator
type ProposalCandidate struct {
	Asset         string           `json:"asset"`
	Side          OrderSide        `json:"side"`
	OrderType     OrderType        `json:"order_type"`
	OrderValueEur decimal.Decimal  `json:"order_value_eur"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	Confidence    int              `json:"confidence"`
	Rationale     string           `json:"rationale"`
}

// ProposalDecisionResponse is returned by accept, modify and decline
type ProposalDecisionResponse struct {
	Proposal *Proposal `json:"proposal"`
	Warnings []string  `json:"warnings,omitempty"`
}
