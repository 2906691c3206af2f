package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainrepos "github.com/tradepilot/pilot_service/internal/domain/repositories"
	"github.com/tradepilot/pilot_service/pkg/tracing"
	"go.uber.org/zap"
)

const scanJobColumns = `id, user_id, status, interval_minutes, next_run_at, last_run_at, runs_today,
		signal_calls_today, signal_calls_this_hour, last_reset_date, hour_window_start, timezone,
		force_requested, lock_owner, lock_expires_at, created_at, updated_at`

// ScanJobRepository stores scan jobs and their leases in postgres
type ScanJobRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ domainrepos.ScanJobRepository = (*ScanJobRepository)(nil)

// NewScanJobRepository creates a new scan job repository
func NewScanJobRepository(db *sqlx.DB, logger *zap.Logger) *ScanJobRepository {
	return &ScanJobRepository{db: db, logger: logger}
}

// Upsert creates the user's job or resets its interval and schedule
func (r *ScanJobRepository) Upsert(ctx context.Context, job *entities.ScanJob) (*entities.ScanJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	query := `
		INSERT INTO scan_jobs (id, user_id, status, interval_minutes, next_run_at, timezone,
			last_reset_date, hour_window_start)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			interval_minutes = EXCLUDED.interval_minutes,
			next_run_at = EXCLUDED.next_run_at,
			timezone = EXCLUDED.timezone,
			updated_at = NOW()
		RETURNING ` + scanJobColumns

	var out entities.ScanJob
	err := r.db.QueryRowxContext(ctx, query,
		job.ID,
		job.UserID,
		job.Status,
		job.IntervalMinutes,
		job.NextRunAt,
		job.Timezone,
		dateOnly(job.LastResetDate),
		job.HourWindowStart,
	).StructScan(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert scan job: %w", err)
	}
	return &out, nil
}

// GetByUserID returns the user's job or nil
func (r *ScanJobRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error) {
	var job entities.ScanJob
	err := r.db.GetContext(ctx, &job, `SELECT `+scanJobColumns+` FROM scan_jobs WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan job: %w", err)
	}
	return &job, nil
}

// ListDue returns active jobs whose next run is due. Leased jobs are included;
// Claim decides who runs them.
func (r *ScanJobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*entities.ScanJob, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "scan_jobs"})
	defer span.End()

	query := `
		SELECT ` + scanJobColumns + `
		FROM scan_jobs
		WHERE status = 'active' AND next_run_at <= $1
		ORDER BY next_run_at ASC
		LIMIT $2
	`

	var jobs []*entities.ScanJob
	err := r.db.SelectContext(ctx, &jobs, query, now, limit)
	tracing.EndDBSpan(span, err, int64(len(jobs)))
	if err != nil {
		return nil, fmt.Errorf("failed to list due scan jobs: %w", err)
	}
	return jobs, nil
}

// Claim takes the lease with a single conditional update. Exactly one concurrent
// caller sees a row affected; a crashed holder's lease is reclaimable once expired.
func (r *ScanJobRepository) Claim(ctx context.Context, jobID uuid.UUID, owner string, now time.Time, ttl time.Duration) (bool, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "scan_jobs"})
	defer span.End()

	query := `
		UPDATE scan_jobs
		SET lock_owner = $2, lock_expires_at = $3, updated_at = NOW()
		WHERE id = $1
		  AND status = 'active'
		  AND next_run_at <= $4
		  AND (lock_owner IS NULL OR lock_expires_at < $4)
	`

	result, err := r.db.ExecContext(ctx, query, jobID, owner, now.Add(ttl), now)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		return false, fmt.Errorf("failed to claim scan job: %w", err)
	}

	rows, err := result.RowsAffected()
	tracing.EndDBSpan(span, err, rows)
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return rows == 1, nil
}

// CompleteRun writes counters and the next schedule, clears the force flag and
// releases the lease, all in one statement guarded by the lease owner.
func (r *ScanJobRepository) CompleteRun(ctx context.Context, jobID uuid.UUID, owner string, update entities.ScanRunUpdate) error {
	query := `
		UPDATE scan_jobs
		SET next_run_at = $3,
			last_run_at = COALESCE($4, last_run_at),
			runs_today = $5,
			signal_calls_today = $6,
			signal_calls_this_hour = $7,
			last_reset_date = $8,
			hour_window_start = $9,
			force_requested = FALSE,
			lock_owner = NULL,
			lock_expires_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND lock_owner = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		jobID,
		owner,
		update.NextRunAt,
		update.LastRunAt,
		update.RunsToday,
		update.SignalCallsToday,
		update.SignalCallsThisHour,
		dateOnly(update.LastResetDate),
		update.HourWindowStart,
	)
	if err != nil {
		return fmt.Errorf("failed to complete scan run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read completion result: %w", err)
	}
	if rows == 0 {
		r.logger.Warn("Scan job lease lost before completion",
			zap.String("job_id", jobID.String()),
			zap.String("owner", owner))
		return domainrepos.ErrLockLost
	}
	return nil
}

// Release drops the lease without touching the schedule
func (r *ScanJobRepository) Release(ctx context.Context, jobID uuid.UUID, owner string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scan_jobs SET lock_owner = NULL, lock_expires_at = NULL, updated_at = NOW() WHERE id = $1 AND lock_owner = $2`,
		jobID, owner)
	if err != nil {
		return fmt.Errorf("failed to release scan job: %w", err)
	}
	return nil
}

// SetStatus pauses or resumes the user's job
func (r *ScanJobRepository) SetStatus(ctx context.Context, userID uuid.UUID, status entities.ScanJobStatus, nextRunAt time.Time) (*entities.ScanJob, error) {
	query := `
		UPDATE scan_jobs
		SET status = $2, next_run_at = $3, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + scanJobColumns

	var job entities.ScanJob
	err := r.db.QueryRowxContext(ctx, query, userID, status, nextRunAt).StructScan(&job)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set scan job status: %w", err)
	}
	return &job, nil
}

// RequestForce marks an active job for an immediate run
func (r *ScanJobRepository) RequestForce(ctx context.Context, userID uuid.UUID, now time.Time) (*entities.ScanJob, error) {
	query := `
		UPDATE scan_jobs
		SET force_requested = TRUE, next_run_at = $2, updated_at = NOW()
		WHERE user_id = $1 AND status = 'active'
		RETURNING ` + scanJobColumns

	var job entities.ScanJob
	err := r.db.QueryRowxContext(ctx, query, userID, now).StructScan(&job)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to request forced scan: %w", err)
	}
	return &job, nil
}

// dateOnly formats the civil date so the DATE column never depends on the session time zone
func dateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}
