package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeExecutionStatus tracks one order attempt for an approved proposal
type TradeExecutionStatus string

const (
	TradeExecutionPending    TradeExecutionStatus = "PENDING"
	TradeExecutionSubmitting TradeExecutionStatus = "SUBMITTING"
	TradeExecutionSubmitted  TradeExecutionStatus = "SUBMITTED"
	TradeExecutionFailed     TradeExecutionStatus = "FAILED"
)

// IsInFlight reports whether an order request may currently be on the wire
func (s TradeExecutionStatus) IsInFlight() bool {
	return s == TradeExecutionPending || s == TradeExecutionSubmitting
}

// TradeExecution is the single order record for a proposal. ProposalID is unique.
type TradeExecution struct {
	ID              uuid.UUID            `json:"id" db:"id"`
	UserID          uuid.UUID            `json:"user_id" db:"user_id"`
	ProposalID      uuid.UUID            `json:"proposal_id" db:"proposal_id"`
	Status          TradeExecutionStatus `json:"status" db:"status"`
	ClientOrderID   string               `json:"client_order_id" db:"client_order_id"`
	ExchangeOrderID *string              `json:"exchange_order_id,omitempty" db:"exchange_order_id"`
	Asset           string               `json:"asset" db:"asset"`
	Side            OrderSide            `json:"side" db:"side"`
	Quantity        decimal.Decimal      `json:"quantity" db:"quantity"`
	Price           decimal.Decimal      `json:"price" db:"price"`
	FeeEur          decimal.Decimal      `json:"fee_eur" db:"fee_eur"`
	PreflightPassed bool                 `json:"preflight_passed" db:"preflight_passed"`
	LastError       *string              `json:"last_error,omitempty" db:"last_error"`
	AttemptCount    int                  `json:"attempt_count" db:"attempt_count"`
	SubmittedAt     *time.Time           `json:"submitted_at,omitempty" db:"submitted_at"`
	CreatedAt       time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" db:"updated_at"`
}

// ExecutionResult is returned by the execute endpoint
type ExecutionResult struct {
	Execution  *TradeExecution `json:"execution"`
	Proposal   *Proposal       `json:"proposal"`
	Reconciled bool            `json:"reconciled"`
}

// TradingFlag is the per-user kill switch. Absent rows read as disabled.
type TradingFlag struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"error"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Reasons   []string               `json:"reasons,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
}
