package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainrepos "github.com/tradepilot/pilot_service/internal/domain/repositories"
)

// TradingFlagRepository stores the per-user kill switch
type TradingFlagRepository struct {
	db *sqlx.DB
}

var _ domainrepos.TradingFlagRepository = (*TradingFlagRepository)(nil)

// NewTradingFlagRepository creates a new trading flag repository
func NewTradingFlagRepository(db *sqlx.DB) *TradingFlagRepository {
	return &TradingFlagRepository{db: db}
}

// GetOrCreate inserts a disabled flag if none exists, then reads it
func (r *TradingFlagRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*entities.TradingFlag, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO trading_flags (user_id, enabled) VALUES ($1, FALSE) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("failed to create trading flag: %w", err)
	}

	var flag entities.TradingFlag
	if err := r.db.GetContext(ctx, &flag,
		`SELECT user_id, enabled, created_at, updated_at FROM trading_flags WHERE user_id = $1`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("failed to get trading flag: %w", err)
	}
	return &flag, nil
}

// Set writes the flag value
func (r *TradingFlagRepository) Set(ctx context.Context, userID uuid.UUID, enabled bool) (*entities.TradingFlag, error) {
	query := `
		INSERT INTO trading_flags (user_id, enabled) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()
		RETURNING user_id, enabled, created_at, updated_at
	`

	var flag entities.TradingFlag
	if err := r.db.QueryRowxContext(ctx, query, userID, enabled).StructScan(&flag); err != nil {
		return nil, fmt.Errorf("failed to set trading flag: %w", err)
	}
	return &flag, nil
}
