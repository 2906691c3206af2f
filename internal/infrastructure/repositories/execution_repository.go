package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainrepos "github.com/tradepilot/pilot_service/internal/domain/repositories"
	"github.com/tradepilot/pilot_service/internal/infrastructure/database"
	"github.com/tradepilot/pilot_service/pkg/tracing"
	"go.uber.org/zap"
)

const executionColumns = `id, user_id, proposal_id, status, client_order_id, exchange_order_id, asset, side,
		quantity, price, fee_eur, preflight_passed, last_error, attempt_count, submitted_at, created_at, updated_at`

// ExecutionRepository stores trade executions in postgres
type ExecutionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ domainrepos.ExecutionRepository = (*ExecutionRepository)(nil)

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *sqlx.DB, logger *zap.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts the execution row. The unique index on proposal_id makes this the
// single point where concurrent execute calls for one proposal are decided.
func (r *ExecutionRepository) Create(ctx context.Context, e *entities.TradeExecution) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "trade_executions"})
	defer span.End()

	query := `
		INSERT INTO trade_executions (id, user_id, proposal_id, status, client_order_id, asset, side,
			quantity, price, fee_eur, preflight_passed, attempt_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		RETURNING attempt_count, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		e.ID,
		e.UserID,
		e.ProposalID,
		e.Status,
		e.ClientOrderID,
		e.Asset,
		e.Side,
		e.Quantity,
		e.Price,
		e.FeeEur,
		e.PreflightPassed,
	).Scan(&e.AttemptCount, &e.CreatedAt, &e.UpdatedAt)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domainrepos.ErrDuplicate
		}
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// GetByID returns an execution or nil
func (r *ExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.TradeExecution, error) {
	return r.getOne(ctx, `SELECT `+executionColumns+` FROM trade_executions WHERE id = $1`, id)
}

// GetByProposalID returns the execution of a proposal or nil
func (r *ExecutionRepository) GetByProposalID(ctx context.Context, proposalID uuid.UUID) (*entities.TradeExecution, error) {
	return r.getOne(ctx, `SELECT `+executionColumns+` FROM trade_executions WHERE proposal_id = $1`, proposalID)
}

func (r *ExecutionRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entities.TradeExecution, error) {
	var e entities.TradeExecution
	err := r.db.GetContext(ctx, &e, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return &e, nil
}

// Claim is a compare-and-set on (status, updated_at). Only the caller that observed
// the current version wins; nil means someone else moved the row first.
func (r *ExecutionRepository) Claim(ctx context.Context, id uuid.UUID, status entities.TradeExecutionStatus, updatedAt time.Time) (*entities.TradeExecution, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "trade_executions"})
	defer span.End()

	query := `
		UPDATE trade_executions
		SET status = 'SUBMITTING', attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND updated_at = $3
		RETURNING ` + executionColumns

	var e entities.TradeExecution
	err := r.db.QueryRowxContext(ctx, query, id, status, updatedAt).StructScan(&e)
	if err == sql.ErrNoRows {
		tracing.EndDBSpan(span, nil, 0)
		return nil, nil
	}
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to claim execution: %w", err)
	}
	return &e, nil
}

// MarkSubmitting records intent to place before any network call is made
func (r *ExecutionRepository) MarkSubmitting(ctx context.Context, id uuid.UUID, quantity, price decimal.Decimal) error {
	return r.exec(ctx, "mark execution submitting", `
		UPDATE trade_executions
		SET status = 'SUBMITTING', quantity = $2, price = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'SUBMITTING')`,
		id, quantity, price)
}

// MarkSubmitted records the exchange's acceptance
func (r *ExecutionRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, exchangeOrderID string, quantity, price, fee decimal.Decimal, at time.Time) error {
	return r.exec(ctx, "mark execution submitted", `
		UPDATE trade_executions
		SET status = 'SUBMITTED', exchange_order_id = $2, quantity = $3, price = $4, fee_eur = $5,
			submitted_at = $6, last_error = NULL, updated_at = NOW()
		WHERE id = $1`,
		id, exchangeOrderID, quantity, price, fee, at)
}

// MarkFailed records a failure with no order on the exchange
func (r *ExecutionRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.exec(ctx, "mark execution failed", `
		UPDATE trade_executions
		SET status = 'FAILED', last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'SUBMITTED'`,
		id, lastError)
}

// Restore puts a claimed row back to the status it had before the claim
func (r *ExecutionRepository) Restore(ctx context.Context, id uuid.UUID, status entities.TradeExecutionStatus, lastError string) error {
	return r.exec(ctx, "restore execution", `
		UPDATE trade_executions
		SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'SUBMITTING'`,
		id, status, lastError)
}

// RecordError stores the latest error and leaves the status as is
func (r *ExecutionRepository) RecordError(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.exec(ctx, "record execution error", `
		UPDATE trade_executions SET last_error = $2, updated_at = NOW() WHERE id = $1`,
		id, lastError)
}

// CountPlacedSince counts executions that reached or may have reached the exchange
func (r *ExecutionRepository) CountPlacedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM trade_executions
		WHERE user_id = $1 AND created_at >= $2 AND status IN ('SUBMITTING', 'SUBMITTED')`,
		userID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}
	return count, nil
}

// ListStale returns in-flight executions untouched since olderThan
func (r *ExecutionRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*entities.TradeExecution, error) {
	var out []*entities.TradeExecution
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+executionColumns+`
		FROM trade_executions
		WHERE status IN ('PENDING', 'SUBMITTING') AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale executions: %w", err)
	}
	return out, nil
}

// ListUnsettled returns submitted executions whose proposal never left APPROVED
func (r *ExecutionRepository) ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]*entities.TradeExecution, error) {
	var out []*entities.TradeExecution
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+prefixColumns("e", executionColumns)+`
		FROM trade_executions e
		JOIN proposals p ON p.id = e.proposal_id AND p.user_id = e.user_id
		WHERE e.status = 'SUBMITTED' AND p.status = 'APPROVED' AND e.updated_at < $1
		ORDER BY e.updated_at ASC
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled executions: %w", err)
	}
	return out, nil
}

func (r *ExecutionRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Execution update failed", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

// prefixColumns qualifies a column list with a table alias
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, col := range parts {
		parts[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(parts, ", ")
}
