package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScanMode controls whether the scheduler runs a user's scan job on its own
type ScanMode string

const (
	ScanModeScheduled ScanMode = "scheduled"
	ScanModeManual    ScanMode = "manual"
)

// ReportingVerbosity controls which notifications a user receives
type ReportingVerbosity string

const (
	ReportingSilent  ReportingVerbosity = "silent"
	ReportingSummary ReportingVerbosity = "summary"
	ReportingVerbose ReportingVerbosity = "verbose"
)

// AllowedConfidenceValues is the fixed set every proposal confidence must belong to
var AllowedConfidenceValues = []int{0, 25, 50, 75, 100}

// IsValidConfidence reports whether c is one of 0, 25, 50, 75, 100
func IsValidConfidence(c int) bool {
	for _, v := range AllowedConfidenceValues {
		if v == c {
			return true
		}
	}
	return false
}

// ScanConfig controls how often the scan job runs
type ScanConfig struct {
	Mode            ScanMode `json:"mode" validate:"required,oneof=scheduled manual"`
	IntervalMinutes int      `json:"interval_minutes" validate:"gte=5,lte=1440"`
	MaxScansPerDay  int      `json:"max_scans_per_day" validate:"gte=0"`
}

// BudgetConfig caps calls to the signal generator
type BudgetConfig struct {
	MaxSignalCallsPerDay  int `json:"max_signal_calls_per_day" validate:"gte=0"`
	MaxSignalCallsPerHour int `json:"max_signal_calls_per_hour" validate:"gte=0"`
}

// GateConfig holds the thresholds that decide whether a snapshot is interesting
type GateConfig struct {
	Volatility24hPct float64 `json:"volatility_24h_pct" validate:"gte=0"`
	Move1hPct        float64 `json:"move_1h_pct" validate:"gte=0"`
	Move4hPct        float64 `json:"move_4h_pct" validate:"gte=0"`
	VolumeZ          float64 `json:"volume_z" validate:"gte=0"`
}

// RiskConfig bounds what a single order and a trading day may do
type RiskConfig struct {
	MinOrderValueEur         decimal.Decimal `json:"min_order_value_eur"`
	MaxOrderValueEur         decimal.Decimal `json:"max_order_value_eur"`
	MaxDailyTrades           int             `json:"max_daily_trades" validate:"gte=0"`
	CooldownAfterLossMinutes int             `json:"cooldown_after_loss_minutes" validate:"gte=0"`
	DrawdownStopPct          float64         `json:"drawdown_stop_pct" validate:"gte=0,lte=100"`
	NoAveragingDown          bool            `json:"no_averaging_down"`
}

// SignalConfig filters signal generator output by confidence
type SignalConfig struct {
	MinConfidence     int   `json:"min_confidence" validate:"gte=0,lte=100"`
	AllowedConfidence []int `json:"allowed_confidence" validate:"required,min=1,dive,oneof=0 25 50 75 100"`
}

// PolicyConfig groups every tunable block of a policy. Stored as one JSONB document.
type PolicyConfig struct {
	Scan   ScanConfig   `json:"scan"`
	Budget BudgetConfig `json:"budget"`
	Gate   GateConfig   `json:"gate"`
	Risk   RiskConfig   `json:"risk"`
	Signal SignalConfig `json:"signal"`
}

// Policy is a user's trading policy. At most one per user is active.
type Policy struct {
	ID        uuid.UUID          `json:"id" db:"id"`
	UserID    uuid.UUID          `json:"user_id" db:"user_id"`
	Name      string             `json:"name" db:"name"`
	PresetKey string             `json:"preset_key,omitempty" db:"preset_key"`
	IsActive  bool               `json:"is_active" db:"is_active"`
	Version   int                `json:"version" db:"version"`
	Config    PolicyConfig       `json:"config" db:"-"`
	Allowlist []string           `json:"allowlist" db:"-"`
	Blocklist []string           `json:"blocklist" db:"-"`
	Reporting ReportingVerbosity `json:"reporting" db:"reporting"`
	Email     string             `json:"notify_email,omitempty" db:"notify_email"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

// Interval returns the scan interval as a duration
func (p *Policy) Interval() time.Duration {
	return time.Duration(p.Config.Scan.IntervalMinutes) * time.Minute
}

// ConfidenceAllowed reports whether c is in the policy's allowed confidence set
func (p *Policy) ConfidenceAllowed(c int) bool {
	for _, v := range p.Config.Signal.AllowedConfidence {
		if v == c {
			return true
		}
	}
	return false
}

// PolicyPreset is a named template a policy can be created from
type PolicyPreset struct {
	Key         string             `json:"key"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Config      PolicyConfig       `json:"config"`
	Allowlist   []string           `json:"allowlist"`
	Reporting   ReportingVerbosity `json:"reporting"`
}

// CreatePolicyRequest creates a policy either from a preset or from explicit values
type CreatePolicyRequest struct {
	Name      string              `json:"name" validate:"required,max=100"`
	PresetKey string              `json:"preset_key,omitempty"`
	Config    *PolicyConfig       `json:"config,omitempty"`
	Allowlist []string            `json:"allowlist,omitempty"`
	Blocklist []string            `json:"blocklist,omitempty"`
	Reporting *ReportingVerbosity `json:"reporting,omitempty"`
	Email     string              `json:"notify_email,omitempty" validate:"omitempty,email"`
}

// UpdatePolicyRequest replaces the tunable parts of a policy. Nil fields are kept.
type UpdatePolicyRequest struct {
	Name      *string             `json:"name,omitempty"`
	Config    *PolicyConfig       `json:"config,omitempty"`
	Allowlist []string            `json:"allowlist,omitempty"`
	Blocklist []string            `json:"blocklist,omitempty"`
	Reporting *ReportingVerbosity `json:"reporting,omitempty"`
	Email     *string             `json:"notify_email,omitempty"`
}
