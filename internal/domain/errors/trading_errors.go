package errors

import "errors"

// Trading pipeline errors
var (
	// Policy errors
	ErrNoActivePolicy  = errors.New("no active policy")
	ErrPolicyViolation = errors.New("policy violation")
	ErrTradingDisabled = errors.New("trading is disabled")

	// Proposal errors
	ErrProposalExpired   = errors.New("proposal has expired")
	ErrInvalidTransition = errors.New("invalid proposal status transition")

	// Execution errors
	ErrAlreadyExecuted   = errors.New("proposal already executed")
	ErrExecutionInFlight = errors.New("execution already in progress")

	// Exchange errors
	ErrExchangeTransient  = errors.New("exchange temporarily unreachable")
	ErrUnknownOutcome     = errors.New("exchange order outcome unknown")
	ErrExchangeRejected   = errors.New("order rejected by exchange")
	ErrReadOnlyCredential = errors.New("credential is read-only")

	// Scan errors
	ErrScanPaused = errors.New("scan job is paused")
)

// PolicyViolationError carries every preflight violation found for a proposal
func PolicyViolationError(reasons []string) *DomainError {
	return &DomainError{
		Err:     ErrPolicyViolation,
		Code:    "POLICY_VIOLATION",
		Message: "proposal violates the active policy",
		Reasons: reasons,
	}
}

// TradingDisabledError is returned when the kill switch is off
func TradingDisabledError() *DomainError {
	return &DomainError{
		Err:     errors.Join(ErrForbidden, ErrTradingDisabled),
		Code:    "TRADING_DISABLED",
		Message: "trading is disabled for this account",
	}
}

// NoActivePolicyError is returned when an action needs an active policy
func NoActivePolicyError() *DomainError {
	return &DomainError{
		Err:     errors.Join(ErrForbidden, ErrNoActivePolicy),
		Code:    "NO_ACTIVE_POLICY",
		Message: "no active policy",
	}
}

// ProposalExpiredError is terminal and never retryable
func ProposalExpiredError(proposalID string) *DomainError {
	return &DomainError{
		Err:     ErrProposalExpired,
		Code:    "PROPOSAL_EXPIRED",
		Message: "proposal has expired",
		Details: map[string]interface{}{
			"proposal_id": proposalID,
		},
	}
}

// ProposalLapsedError is returned when a decision arrives after the TTL elapsed but
// before the sweep ran. The proposal has been expired by the time it is returned.
func ProposalLapsedError(proposalID string) *DomainError {
	return &DomainError{
		Err:     errors.Join(ErrConflict, ErrProposalExpired),
		Code:    "PROPOSAL_EXPIRED",
		Message: "proposal expired",
		Details: map[string]interface{}{
			"proposal_id": proposalID,
		},
	}
}

// InvalidTransitionError reports a status precondition that no longer holds
func InvalidTransitionError(proposalID, from, to string) *DomainError {
	return &DomainError{
		Err:     errors.Join(ErrConflict, ErrInvalidTransition),
		Code:    "INVALID_STATUS_TRANSITION",
		Message: "proposal is not in a state that allows this action",
		Details: map[string]interface{}{
			"proposal_id": proposalID,
			"from":        from,
			"to":          to,
		},
	}
}

// AlreadyExecutedError is returned on a repeat execute of a submitted proposal
func AlreadyExecutedError(proposalID string) *DomainError {
	return &DomainError{
		Err:     errors.Join(ErrConflict, ErrAlreadyExecuted),
		Code:    "ALREADY_EXECUTED",
		Message: "proposal already executed",
		Details: map[string]interface{}{
			"proposal_id": proposalID,
		},
	}
}

// ExecutionInFlightError is returned while another attempt holds the execution
func ExecutionInFlightError(proposalID string) *DomainError {
	return &DomainError{
		Err:     errors.Join(ErrConflict, ErrExecutionInFlight),
		Code:    "EXECUTION_IN_PROGRESS",
		Message: "an execution for this proposal is already in progress",
		Details: map[string]interface{}{
			"proposal_id": proposalID,
		},
	}
}

// ExchangeTransientError means the exchange could not be reached; nothing changed
func ExchangeTransientError(err error) *DomainError {
	de := &DomainError{
		Err:       errors.Join(ErrServiceUnavailable, ErrExchangeTransient),
		Code:      "EXCHANGE_UNAVAILABLE",
		Message:   "exchange is temporarily unreachable",
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

// ExchangeUnknownOutcomeError means an order may or may not exist on the exchange.
// The next attempt reconciles before placing anything.
func ExchangeUnknownOutcomeError(err error) *DomainError {
	de := &DomainError{
		Err:       errors.Join(ErrServiceUnavailable, ErrUnknownOutcome),
		Code:      "EXCHANGE_UNKNOWN_OUTCOME",
		Message:   "order outcome unknown, retry to reconcile",
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

// ExchangeRejectedError is a definitive rejection from the exchange
func ExchangeRejectedError(reason string) *DomainError {
	return &DomainError{
		Err:     ErrExchangeRejected,
		Code:    "EXCHANGE_REJECTED",
		Message: "order rejected by exchange",
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
}

// IsPolicyViolation checks if an error is a preflight rejection
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrPolicyViolation)
}

// IsExpired checks if an error is a proposal expiry
func IsExpired(err error) bool {
	return errors.Is(err, ErrProposalExpired)
}

// ScanPausedError is returned when a forced scan is requested for a paused job
func ScanPausedError() *DomainError {
	return &DomainError{
		Err:     errors.Join(ErrInvalidInput, ErrScanPaused),
		Code:    "SCAN_PAUSED",
		Message: "scan is paused",
		Details: map[string]interface{}{
			"field": "status",
		},
	}
}
