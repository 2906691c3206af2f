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
	"github.com/tradepilot/pilot_service/internal/infrastructure/database"
	"github.com/tradepilot/pilot_service/pkg/tracing"
	"go.uber.org/zap"
)

const proposalColumns = `id, user_id, status, asset, side, order_type, order_value_eur, limit_price,
		confidence, rationale, created_by, snapshot_id, policy_id, policy_version, preflight_violations,
		expires_at, created_at, updated_at`

type proposalRow struct {
	entities.Proposal
	Violations pq.StringArray `db:"preflight_violations"`
}

func (r proposalRow) toEntity() *entities.Proposal {
	p := r.Proposal
	p.PreflightViolations = []string(r.Violations)
	return &p
}

// ProposalRepository stores proposals and the append-only action log
type ProposalRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ domainrepos.ProposalRepository = (*ProposalRepository)(nil)

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(db *sqlx.DB, logger *zap.Logger) *ProposalRepository {
	return &ProposalRepository{db: db, logger: logger}
}

// Create inserts a proposal
func (r *ProposalRepository) Create(ctx context.Context, p *entities.Proposal) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "proposals"})
	defer span.End()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	query := `
		INSERT INTO proposals (id, user_id, status, asset, side, order_type, order_value_eur, limit_price,
			confidence, rationale, created_by, snapshot_id, policy_id, policy_version, preflight_violations,
			expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.Status,
		p.Asset,
		p.Side,
		p.OrderType,
		p.OrderValueEur,
		p.LimitPrice,
		p.Confidence,
		p.Rationale,
		p.CreatedBy,
		p.SnapshotID,
		p.PolicyID,
		p.PolicyVersion,
		pq.Array(nonNil(p.PreflightViolations)),
		p.ExpiresAt,
		p.CreatedAt,
	)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return fmt.Errorf("failed to create proposal: %w", err)
	}
	p.UpdatedAt = p.CreatedAt
	return nil
}

// GetByID returns a user's proposal or nil
func (r *ProposalRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*entities.Proposal, error) {
	var row proposalRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = $1 AND user_id = $2`, id, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	return row.toEntity(), nil
}

// List returns a user's proposals, optionally filtered by status
func (r *ProposalRepository) List(ctx context.Context, userID uuid.UUID, status *entities.ProposalStatus, limit, offset int) ([]*entities.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE user_id = $1`
	args := []interface{}{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var rows []proposalRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}

	out := make([]*entities.Proposal, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

// ExpireStale moves every overdue PROPOSED proposal of a user to EXPIRED
func (r *ProposalRepository) ExpireStale(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE proposals SET status = 'EXPIRED', updated_at = $2
		WHERE user_id = $1 AND status = 'PROPOSED' AND expires_at < $2`,
		userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire proposals: %w", err)
	}
	return result.RowsAffected()
}

// ApplyDecision performs the guarded transition and writes the action row atomically
func (r *ProposalRepository) ApplyDecision(ctx context.Context, d domainrepos.ProposalDecision) (*entities.Proposal, error) {
	var updated *entities.Proposal

	err := database.WithTransaction(ctx, r.db.DB, func(tx *sql.Tx) error {
		var row *sql.Row
		if d.Modified != nil {
			row = tx.QueryRowContext(ctx, `
				UPDATE proposals
				SET status = $4, asset = $6, side = $7, order_value_eur = $8, confidence = $9, updated_at = $5
				WHERE id = $1 AND user_id = $2 AND status = $3 AND expires_at >= $5
				RETURNING `+proposalColumns,
				d.ProposalID, d.UserID, d.From, d.To, d.Now,
				d.Modified.Asset, d.Modified.Side, d.Modified.OrderValueEur, d.Modified.Confidence)
		} else {
			row = tx.QueryRowContext(ctx, `
				UPDATE proposals
				SET status = $4, updated_at = $5
				WHERE id = $1 AND user_id = $2 AND status = $3 AND expires_at >= $5
				RETURNING `+proposalColumns,
				d.ProposalID, d.UserID, d.From, d.To, d.Now)
		}

		p, err := scanProposal(row)
		if err != nil || p == nil {
			return err
		}

		if d.Action != nil {
			if d.Action.ID == uuid.Nil {
				d.Action.ID = uuid.New()
			}
			d.Action.CreatedAt = d.Now
			_, err = tx.ExecContext(ctx, `
				INSERT INTO proposal_actions (id, proposal_id, user_id, action_type, from_status, to_status, changes, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				d.Action.ID, d.ProposalID, d.UserID, d.Action.ActionType, d.From, d.To,
				nullableJSON(d.Action.Changes), d.Now)
			if err != nil {
				return fmt.Errorf("failed to record proposal action: %w", err)
			}
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Transition moves a proposal between statuses without an action row
func (r *ProposalRepository) Transition(ctx context.Context, userID, id uuid.UUID, from, to entities.ProposalStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE proposals SET status = $4, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = $3`,
		id, userID, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to transition proposal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ListActions returns the action log of a proposal in order
func (r *ProposalRepository) ListActions(ctx context.Context, userID, proposalID uuid.UUID) ([]*entities.ProposalAction, error) {
	var actions []*entities.ProposalAction
	err := r.db.SelectContext(ctx, &actions, `
		SELECT id, proposal_id, user_id, action_type, from_status, to_status,
			COALESCE(changes, '{}'::jsonb) AS changes, created_at
		FROM proposal_actions
		WHERE proposal_id = $1 AND user_id = $2
		ORDER BY created_at ASC`, proposalID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposal actions: %w", err)
	}
	return actions, nil
}

func scanProposal(row *sql.Row) (*entities.Proposal, error) {
	var pr proposalRow
	p := &pr.Proposal
	err := row.Scan(
		&p.ID, &p.UserID, &p.Status, &p.Asset, &p.Side, &p.OrderType, &p.OrderValueEur, &p.LimitPrice,
		&p.Confidence, &p.Rationale, &p.CreatedBy, &p.SnapshotID, &p.PolicyID, &p.PolicyVersion, &pr.Violations,
		&p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan proposal: %w", err)
	}
	return pr.toEntity(), nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
