package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tradepilot/pilot_service/pkg/idempotency"
	"github.com/tradepilot/pilot_service/pkg/tracing"
	"go.uber.org/zap"
)

// IdempotencyRepository stores replayable API responses
type IdempotencyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ idempotency.Store = (*IdempotencyRepository)(nil)

// NewIdempotencyRepository creates a new idempotency repository
func NewIdempotencyRepository(db *sqlx.DB, logger *zap.Logger) *IdempotencyRepository {
	return &IdempotencyRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an unexpired record
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "SELECT",
		Table:     "idempotency_keys",
	})
	defer span.End()

	query := `
		SELECT id, idempotency_key, request_path, request_method, request_hash,
		       user_id, response_status, response_body, created_at, expires_at
		FROM idempotency_keys
		WHERE idempotency_key = $1 AND expires_at > NOW()
	`

	var record idempotency.Record
	err := r.db.GetContext(ctx, &record, query, key)
	if err == sql.ErrNoRows {
		tracing.EndDBSpan(span, nil, 0)
		return nil, nil
	}
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		r.logger.Error("Failed to get idempotency key",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	return &record, nil
}

// Create stores a record. A concurrent insert of the same key keeps the first response.
func (r *IdempotencyRepository) Create(ctx context.Context, record *idempotency.Record) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "INSERT",
		Table:     "idempotency_keys",
	})
	defer span.End()

	query := `
		INSERT INTO idempotency_keys (
			idempotency_key, request_path, request_method, request_hash,
			user_id, response_status, response_body, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		record.Key,
		record.RequestPath,
		record.RequestMethod,
		record.RequestHash,
		record.UserID,
		record.ResponseStatus,
		[]byte(record.ResponseBody),
		record.ExpiresAt,
	)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		return fmt.Errorf("failed to create idempotency key: %w", err)
	}

	rows, _ := result.RowsAffected()
	tracing.EndDBSpan(span, nil, rows)
	return nil
}

// DeleteExpired removes expired records
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "DELETE",
		Table:     "idempotency_keys",
	})
	defer span.End()

	result, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		return 0, fmt.Errorf("failed to delete expired idempotency keys: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	tracing.EndDBSpan(span, nil, rowsAffected)
	return rowsAffected, nil
}
