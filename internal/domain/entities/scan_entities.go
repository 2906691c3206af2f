package entities

import (
	"time"

	"github.com/google/uuid"
)

// ScanJobStatus represents whether a scan job is eligible for scheduling
type ScanJobStatus string

const (
	ScanJobStatusActive ScanJobStatus = "active"
	ScanJobStatusPaused ScanJobStatus = "paused"
)

// ScanJob is the single per-user scheduling record
type ScanJob struct {
	ID                  uuid.UUID     `json:"id" db:"id"`
	UserID              uuid.UUID     `json:"user_id" db:"user_id"`
	Status              ScanJobStatus `json:"status" db:"status"`
	IntervalMinutes     int           `json:"interval_minutes" db:"interval_minutes"`
	NextRunAt           time.Time     `json:"next_run_at" db:"next_run_at"`
	LastRunAt           *time.Time    `json:"last_run_at,omitempty" db:"last_run_at"`
	RunsToday           int           `json:"runs_today" db:"runs_today"`
	SignalCallsToday    int           `json:"signal_calls_today" db:"signal_calls_today"`
	SignalCallsThisHour int           `json:"signal_calls_this_hour" db:"signal_calls_this_hour"`
	LastResetDate       time.Time     `json:"last_reset_date" db:"last_reset_date"`
	HourWindowStart     time.Time     `json:"hour_window_start" db:"hour_window_start"`
	Timezone            string        `json:"timezone" db:"timezone"`
	ForceRequested      bool          `json:"force_requested" db:"force_requested"`
	LockOwner           *string       `json:"-" db:"lock_owner"`
	LockExpiresAt       *time.Time    `json:"-" db:"lock_expires_at"`
	CreatedAt           time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at" db:"updated_at"`
}

// Location resolves the job's timezone, falling back to UTC
func (j *ScanJob) Location() *time.Location {
	if j.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ScanRunUpdate is written atomically when a claimed job finishes a run
type ScanRunUpdate struct {
	NextRunAt           time.Time
	LastRunAt           *time.Time
	RunsToday           int
	SignalCallsToday    int
	SignalCallsThisHour int
	LastResetDate       time.Time
	HourWindowStart     time.Time
}

// MarketSnapshot is an immutable record of market metrics observed for one scan
type MarketSnapshot struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	ScanJobID         *uuid.UUID `json:"scan_job_id,omitempty" db:"scan_job_id"`
	Assets            []string   `json:"assets" db:"-"`
	Volatility24hPct  float64    `json:"volatility_24h_pct" db:"volatility_24h_pct"`
	Move1hPct         float64    `json:"move_1h_pct" db:"move_1h_pct"`
	Move4hPct         float64    `json:"move_4h_pct" db:"move_4h_pct"`
	VolumeZ           float64    `json:"volume_z" db:"volume_z"`
	PortfolioValueEur float64    `json:"portfolio_value_eur" db:"portfolio_value_eur"`
	GateFired         bool       `json:"gate_fired" db:"gate_fired"`
	GateTriggers      []string   `json:"gate_triggers" db:"-"`
	ObservedAt        time.Time  `json:"observed_at" db:"observed_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// ScanOutcome summarizes what a single job run did
type ScanOutcome string

const (
	ScanOutcomeNoPolicy       ScanOutcome = "no_policy"
	ScanOutcomeManualSkipped  ScanOutcome = "manual_skipped"
	ScanOutcomeScanCapReached ScanOutcome = "scan_cap_reached"
	ScanOutcomeGateClosed     ScanOutcome = "gate_closed"
	ScanOutcomeBudgetHourly   ScanOutcome = "budget_hourly_exhausted"
	ScanOutcomeBudgetDaily    ScanOutcome = "budget_daily_exhausted"
	ScanOutcomeSignalFailed   ScanOutcome = "signal_failed"
	ScanOutcomeProposed       ScanOutcome = "proposed"
	ScanOutcomeFailed         ScanOutcome = "failed"
)

// ScanRunResult is returned by the scheduler for each processed job
type ScanRunResult struct {
	JobID            uuid.UUID   `json:"job_id"`
	UserID           uuid.UUID   `json:"user_id"`
	Outcome          ScanOutcome `json:"outcome"`
	SnapshotID       *uuid.UUID  `json:"snapshot_id,omitempty"`
	ProposalsCreated int         `json:"proposals_created"`
	ProposalsExpired int         `json:"proposals_expired"`
	NextRunAt        time.Time   `json:"next_run_at"`
	Error            string      `json:"error,omitempty"`
}

// TickResult summarizes one scheduler tick
type TickResult struct {
	Due     int             `json:"due"`
	Claimed int             `json:"claimed"`
	Skipped int             `json:"skipped"`
	Runs    []ScanRunResult `json:"runs"`
}
