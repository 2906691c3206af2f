package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainrepos "github.com/tradepilot/pilot_service/internal/domain/repositories"
)

// SnapshotRepository stores market snapshots. Rows are written once and never updated.
type SnapshotRepository struct {
	db *sqlx.DB
}

var _ domainrepos.SnapshotRepository = (*SnapshotRepository)(nil)

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create inserts a snapshot
func (r *SnapshotRepository) Create(ctx context.Context, s *entities.MarketSnapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `
		INSERT INTO market_snapshots (id, user_id, scan_job_id, assets, volatility_24h_pct, move_1h_pct,
			move_4h_pct, volume_z, portfolio_value_eur, gate_fired, gate_triggers, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		s.ID,
		s.UserID,
		s.ScanJobID,
		pq.Array(nonNil(s.Assets)),
		s.Volatility24hPct,
		s.Move1hPct,
		s.Move4hPct,
		s.VolumeZ,
		s.PortfolioValueEur,
		s.GateFired,
		pq.Array(nonNil(s.GateTriggers)),
		s.ObservedAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create market snapshot: %w", err)
	}
	return nil
}

type snapshotRow struct {
	entities.MarketSnapshot
	AssetsArr   pq.StringArray `db:"assets"`
	TriggersArr pq.StringArray `db:"gate_triggers"`
}

// GetLatest returns the most recent snapshot of a user or nil
func (r *SnapshotRepository) GetLatest(ctx context.Context, userID uuid.UUID) (*entities.MarketSnapshot, error) {
	query := `
		SELECT id, user_id, scan_job_id, assets, volatility_24h_pct, move_1h_pct, move_4h_pct,
			volume_z, portfolio_value_eur, gate_fired, gate_triggers, observed_at, created_at
		FROM market_snapshots
		WHERE user_id = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`

	var row snapshotRow
	err := r.db.GetContext(ctx, &row, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	snap := row.MarketSnapshot
	snap.Assets = []string(row.AssetsArr)
	snap.GateTriggers = []string(row.TriggersArr)
	return &snap, nil
}

// PeakPortfolioValue returns the highest observed portfolio value since the given time
func (r *SnapshotRepository) PeakPortfolioValue(ctx context.Context, userID uuid.UUID, since time.Time) (float64, error) {
	var peak sql.NullFloat64
	err := r.db.GetContext(ctx, &peak,
		`SELECT MAX(portfolio_value_eur) FROM market_snapshots WHERE user_id = $1 AND observed_at >= $2`,
		userID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to get peak portfolio value: %w", err)
	}
	return peak.Float64, nil
}
