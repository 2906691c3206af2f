// Package budget enforces the per-user caps on scans and signal generator calls.
package budget

import (
	"time"

	"github.com/tradepilot/pilot_service/internal/domain/entities"
)

// Counters are the usage counters carried on a scan job
type Counters struct {
	RunsToday           int
	SignalCallsToday    int
	SignalCallsThisHour int
	LastResetDate       time.Time
	HourWindowStart     time.Time
}

// FromJob copies the counters off a scan job
func FromJob(job *entities.ScanJob) Counters {
	return Counters{
		RunsToday:           job.RunsToday,
		SignalCallsToday:    job.SignalCallsToday,
		SignalCallsThisHour: job.SignalCallsThisHour,
		LastResetDate:       job.LastResetDate,
		HourWindowStart:     job.HourWindowStart,
	}
}

// Normalize resets the daily counters when the local date changed and the hourly
// counter when the local clock hour changed. LastResetDate is compared by calendar date only.
func (c Counters) Normalize(now time.Time, loc *time.Location) Counters {
	local := now.In(loc)
	y, m, d := local.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	ly, lm, ld := c.LastResetDate.Date()
	if ly != y || lm != m || ld != d {
		c.RunsToday = 0
		c.SignalCallsToday = 0
		c.SignalCallsThisHour = 0
		c.LastResetDate = today
	}

	window := HourWindow(now, loc)
	if !c.HourWindowStart.Equal(window) {
		c.SignalCallsThisHour = 0
		c.HourWindowStart = window
	}
	return c
}

// RecordScan counts one scan run
func (c Counters) RecordScan() Counters {
	c.RunsToday++
	return c
}

// RecordSignalCall counts one signal generator call, successful or not
func (c Counters) RecordSignalCall() Counters {
	c.SignalCallsToday++
	c.SignalCallsThisHour++
	return c
}

// HourWindow returns the start of the local clock hour containing now
func HourWindow(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, local.Hour(), 0, 0, 0, loc)
}

// NextMidnight returns the next local midnight after now
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// StartOfDay returns local midnight of now's date
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Decision is the outcome of a budget check
type Decision struct {
	Allowed bool
	// Outcome names the exhausted cap when Allowed is false
	Outcome entities.ScanOutcome
	// RetryAt is when the cap frees up again
	RetryAt time.Time
}

// Tracker checks counters against a policy's caps
type Tracker struct {
	loc *time.Location
}

// NewTracker creates a tracker for the job's time zone
func NewTracker(loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{loc: loc}
}

// CheckScan enforces maxScansPerDay. A zero cap means unlimited.
func (t *Tracker) CheckScan(cfg entities.ScanConfig, c Counters, now time.Time) Decision {
	if cfg.MaxScansPerDay > 0 && c.RunsToday >= cfg.MaxScansPerDay {
		return Decision{
			Outcome: entities.ScanOutcomeScanCapReached,
			RetryAt: NextMidnight(now, t.loc),
		}
	}
	return Decision{Allowed: true}
}

// CheckSignal enforces the hourly and daily signal call caps. The daily cap is
// checked first because its retry time is always the later one.
func (t *Tracker) CheckSignal(cfg entities.BudgetConfig, c Counters, now time.Time) Decision {
	if c.SignalCallsToday >= cfg.MaxSignalCallsPerDay {
		return Decision{
			Outcome: entities.ScanOutcomeBudgetDaily,
			RetryAt: NextMidnight(now, t.loc),
		}
	}
	if c.SignalCallsThisHour >= cfg.MaxSignalCallsPerHour {
		return Decision{
			Outcome: entities.ScanOutcomeBudgetHourly,
			RetryAt: HourWindow(now, t.loc).Add(time.Hour),
		}
	}
	return Decision{Allowed: true}
}
