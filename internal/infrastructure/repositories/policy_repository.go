package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
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

const policyColumns = `id, user_id, name, preset_key, is_active, version, config,
		allowlist, blocklist, reporting, notify_email, created_at, updated_at`

type policyRow struct {
	ID        uuid.UUID      `db:"id"`
	UserID    uuid.UUID      `db:"user_id"`
	Name      string         `db:"name"`
	PresetKey string         `db:"preset_key"`
	IsActive  bool           `db:"is_active"`
	Version   int            `db:"version"`
	Config    []byte         `db:"config"`
	Allowlist pq.StringArray `db:"allowlist"`
	Blocklist pq.StringArray `db:"blocklist"`
	Reporting string         `db:"reporting"`
	Email     string         `db:"notify_email"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r policyRow) toEntity() (*entities.Policy, error) {
	var cfg entities.PolicyConfig
	if err := json.Unmarshal(r.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode policy config %s: %w", r.ID, err)
	}
	return &entities.Policy{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		PresetKey: r.PresetKey,
		IsActive:  r.IsActive,
		Version:   r.Version,
		Config:    cfg,
		Allowlist: []string(r.Allowlist),
		Blocklist: []string(r.Blocklist),
		Reporting: entities.ReportingVerbosity(r.Reporting),
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// PolicyRepository stores policies in postgres
type PolicyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ domainrepos.PolicyRepository = (*PolicyRepository)(nil)

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *sqlx.DB, logger *zap.Logger) *PolicyRepository {
	return &PolicyRepository{db: db, logger: logger}
}

// Create inserts a new, inactive policy
func (r *PolicyRepository) Create(ctx context.Context, policy *entities.Policy) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "policies"})
	defer span.End()

	cfg, err := json.Marshal(policy.Config)
	if err != nil {
		return fmt.Errorf("failed to encode policy config: %w", err)
	}

	query := `
		INSERT INTO policies (id, user_id, name, preset_key, is_active, version, config,
			allowlist, blocklist, reporting, notify_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, 1, $5, $6, $7, $8, $9, $10, $10)
		RETURNING version, created_at, updated_at
	`

	now := time.Now().UTC()
	err = r.db.QueryRowxContext(ctx, query,
		policy.ID,
		policy.UserID,
		policy.Name,
		policy.PresetKey,
		cfg,
		pq.Array(nonNil(policy.Allowlist)),
		pq.Array(nonNil(policy.Blocklist)),
		string(policy.Reporting),
		policy.Email,
		now,
	).Scan(&policy.Version, &policy.CreatedAt, &policy.UpdatedAt)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}

	policy.IsActive = false
	return nil
}

// GetByID returns a user's policy or nil when it does not exist
func (r *PolicyRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = $1 AND user_id = $2`
	return r.getOne(ctx, query, id, userID)
}

// GetActive returns the user's active policy or nil
func (r *PolicyRepository) GetActive(ctx context.Context, userID uuid.UUID) (*entities.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE user_id = $1 AND is_active`
	return r.getOne(ctx, query, userID)
}

func (r *PolicyRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entities.Policy, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "policies"})
	defer span.End()

	var row policyRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		tracing.EndDBSpan(span, nil, 0)
		return nil, nil
	}
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return row.toEntity()
}

// ListByUser returns every policy of a user, newest first
func (r *PolicyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE user_id = $1 ORDER BY created_at DESC`

	var rows []policyRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}

	policies := make([]*entities.Policy, 0, len(rows))
	for _, row := range rows {
		p, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// Update replaces the tunable fields and bumps the version
func (r *PolicyRepository) Update(ctx context.Context, policy *entities.Policy) error {
	cfg, err := json.Marshal(policy.Config)
	if err != nil {
		return fmt.Errorf("failed to encode policy config: %w", err)
	}

	query := `
		UPDATE policies
		SET name = $3, config = $4, allowlist = $5, blocklist = $6, reporting = $7,
			notify_email = $8, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING version, updated_at
	`

	err = r.db.QueryRowxContext(ctx, query,
		policy.ID,
		policy.UserID,
		policy.Name,
		cfg,
		pq.Array(nonNil(policy.Allowlist)),
		pq.Array(nonNil(policy.Blocklist)),
		string(policy.Reporting),
		policy.Email,
	).Scan(&policy.Version, &policy.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("policy %s not found", policy.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	return nil
}

// Activate makes id the user's only active policy. The user's rows are locked first
// so concurrent activations serialize instead of tripping the partial unique index.
func (r *PolicyRepository) Activate(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	var activated *entities.Policy

	err := database.WithTransaction(ctx, r.db.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT id FROM policies WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
			return fmt.Errorf("failed to lock policies: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE policies SET is_active = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_active AND id <> $2`,
			userID, id,
		); err != nil {
			return fmt.Errorf("failed to deactivate policies: %w", err)
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE policies SET is_active = TRUE, updated_at = NOW()
			WHERE id = $1 AND user_id = $2
			RETURNING `+policyColumns, id, userID)

		p, err := scanPolicy(row)
		if err != nil {
			return err
		}
		activated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if activated != nil {
		r.logger.Info("Policy activated",
			zap.String("user_id", userID.String()),
			zap.String("policy_id", id.String()),
			zap.Int("version", activated.Version))
	}
	return activated, nil
}

// Deactivate clears the active flag of a policy
func (r *PolicyRepository) Deactivate(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE policies SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+policyColumns, id, userID)
	return scanPolicy(row)
}

// scanPolicy reads a RETURNING row; nil, nil when no row matched
func scanPolicy(row *sql.Row) (*entities.Policy, error) {
	var pr policyRow
	err := row.Scan(
		&pr.ID, &pr.UserID, &pr.Name, &pr.PresetKey, &pr.IsActive, &pr.Version, &pr.Config,
		&pr.Allowlist, &pr.Blocklist, &pr.Reporting, &pr.Email, &pr.CreatedAt, &pr.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan policy: %w", err)
	}
	return pr.toEntity()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
