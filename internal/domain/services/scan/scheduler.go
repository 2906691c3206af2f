// Package scan runs the per-user scan pipeline: pulse, gate, budget, signal, proposals.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/internal/domain/repositories"
	"github.com/tradepilot/pilot_service/internal/domain/services/budget"
	"github.com/tradepilot/pilot_service/internal/domain/services/events"
	"github.com/tradepilot/pilot_service/internal/domain/services/gate"
	"github.com/tradepilot/pilot_service/pkg/logger"
	"github.com/tradepilot/pilot_service/pkg/metrics"
)

// Pulse produces the cheap market snapshot every run takes
type Pulse interface {
	Generate(ctx context.Context, req entities.PulseRequest) (*entities.PulseMetrics, error)
}

// SignalGenerator is the expensive, budgeted call made only when the gate fires
type SignalGenerator interface {
	Generate(ctx context.Context, req *entities.SignalRequest) ([]entities.ProposalCandidate, error)
}

// Proposer stores proposals and sweeps lapsed ones
type Proposer interface {
	ExpireStale(ctx context.Context, userID uuid.UUID) (int64, error)
	CreateFromCandidates(ctx context.Context, policy *entities.Policy, snapshotID *uuid.UUID, candidates []entities.ProposalCandidate) ([]*entities.Proposal, error)
}

// Notifier reports finished runs to the user
type Notifier interface {
	NotifyScan(ctx context.Context, policy *entities.Policy, result entities.ScanRunResult, proposals []*entities.Proposal)
}

// Config tunes the scheduler
type Config struct {
	LockTTL         time.Duration
	BatchSize       int
	JobTimeout      time.Duration
	SignalTimeout   time.Duration
	DefaultLocation *time.Location
	Quote           string
}

func (c *Config) applyDefaults() {
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	if c.SignalTimeout <= 0 {
		c.SignalTimeout = 30 * time.Second
	}
	if c.DefaultLocation == nil {
		c.DefaultLocation = time.UTC
	}
	if c.Quote == "" {
		c.Quote = "EUR"
	}
}

// Deps are the scheduler's collaborators. Notifier and Publisher are optional.
type Deps struct {
	Jobs      repositories.ScanJobRepository
	Policies  repositories.PolicyRepository
	Snapshots repositories.SnapshotRepository
	Proposals Proposer
	Pulse     Pulse
	Signal    SignalGenerator
	Notifier  Notifier
	Publisher events.Publisher
}

// Scheduler claims due scan jobs and runs them one after another
type Scheduler struct {
	jobs      repositories.ScanJobRepository
	policies  repositories.PolicyRepository
	snapshots repositories.SnapshotRepository
	proposals Proposer
	pulse     Pulse
	signal    SignalGenerator
	notifier  Notifier
	publisher events.Publisher
	config    Config
	logger    *logger.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler
func NewScheduler(deps Deps, cfg Config, log *logger.Logger) *Scheduler {
	cfg.applyDefaults()
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Scheduler{
		jobs:      deps.Jobs,
		policies:  deps.Policies,
		snapshots: deps.Snapshots,
		proposals: deps.Proposals,
		pulse:     deps.Pulse,
		signal:    deps.Signal,
		notifier:  deps.Notifier,
		publisher: publisher,
		config:    cfg,
		logger:    log,
		now:       time.Now,
	}
}

// Tick processes every due job this worker manages to claim. Jobs claimed by
// another worker are skipped; the caller may invoke Tick concurrently.
func (s *Scheduler) Tick(ctx context.Context, workerID string) (*entities.TickResult, error) {
	log := s.logger.With("worker_id", workerID)

	due, err := s.jobs.ListDue(ctx, s.now().UTC(), s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list due scan jobs: %w", err)
	}

	result := &entities.TickResult{
		Due:  len(due),
		Runs: make([]entities.ScanRunResult, 0, len(due)),
	}

	for _, job := range due {
		if ctx.Err() != nil {
			log.Warn("Tick cancelled", "remaining", len(due)-result.Claimed-result.Skipped)
			break
		}

		ok, err := s.jobs.Claim(ctx, job.ID, workerID, s.now().UTC(), s.config.LockTTL)
		if err != nil {
			metrics.ScanJobClaimsTotal.WithLabelValues("error").Inc()
			log.Error("Failed to claim scan job", "job_id", job.ID, "error", err)
			result.Skipped++
			continue
		}
		if !ok {
			metrics.ScanJobClaimsTotal.WithLabelValues("lost").Inc()
			log.Debug("Scan job held by another worker", "job_id", job.ID)
			result.Skipped++
			continue
		}
		metrics.ScanJobClaimsTotal.WithLabelValues("won").Inc()
		result.Claimed++

		// counters may have moved since the due list was read
		fresh, err := s.jobs.GetByUserID(ctx, job.UserID)
		if err != nil || fresh == nil {
			log.Error("Failed to reload claimed scan job", "job_id", job.ID, "error", err)
			s.release(ctx, job.ID, workerID, log)
			continue
		}

		result.Runs = append(result.Runs, s.ProcessJob(ctx, fresh, workerID))
	}

	if result.Due > 0 {
		log.Info("Scheduler tick finished",
			"due", result.Due,
			"claimed", result.Claimed,
			"skipped", result.Skipped)
	}
	return result, nil
}

// run carries the state of one job run
type run struct {
	job       *entities.ScanJob
	owner     string
	policy    *entities.Policy
	loc       *time.Location
	now       time.Time
	counters  budget.Counters
	ran       bool
	result    entities.ScanRunResult
	proposals []*entities.Proposal
	log       *logger.Logger
}

// ProcessJob runs the pipeline for a job the caller has claimed and always
// records the outcome, releasing the lease.
func (s *Scheduler) ProcessJob(ctx context.Context, job *entities.ScanJob, owner string) entities.ScanRunResult {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	loc := s.config.DefaultLocation
	if job.Timezone != "" {
		loc = job.Location()
	}
	now := s.now().UTC()
	r := &run{
		job:      job,
		owner:    owner,
		loc:      loc,
		now:      now,
		counters: budget.FromJob(job).Normalize(now, loc),
		result:   entities.ScanRunResult{JobID: job.ID, UserID: job.UserID},
		log:      s.logger.With("job_id", job.ID, "user_id", job.UserID),
	}
	interval := time.Duration(job.IntervalMinutes) * time.Minute

	policy, err := s.policies.GetActive(jobCtx, job.UserID)
	if err != nil {
		return s.finish(ctx, r, entities.ScanOutcomeFailed, now.Add(interval), fmt.Errorf("load policy: %w", err))
	}
	if policy == nil {
		return s.finish(ctx, r, entities.ScanOutcomeNoPolicy, now.Add(interval), nil)
	}
	r.policy = policy
	interval = policy.Interval()

	if policy.Config.Scan.Mode == entities.ScanModeManual && !job.ForceRequested {
		return s.finish(ctx, r, entities.ScanOutcomeManualSkipped, now.Add(interval), nil)
	}

	tracker := budget.NewTracker(loc)
	if d := tracker.CheckScan(policy.Config.Scan, r.counters, now); !d.Allowed {
		return s.finish(ctx, r, d.Outcome, d.RetryAt, nil)
	}

	expired, err := s.proposals.ExpireStale(jobCtx, job.UserID)
	if err != nil {
		r.log.Warn("Failed to expire stale proposals", "error", err)
	}
	r.result.ProposalsExpired = int(expired)

	snapshot, err := s.snapshot(jobCtx, r)
	if err != nil {
		return s.finish(ctx, r, entities.ScanOutcomeFailed, now.Add(interval), err)
	}
	r.ran = true
	r.counters = r.counters.RecordScan()
	r.result.SnapshotID = &snapshot.ID

	if !snapshot.GateFired {
		return s.finish(ctx, r, entities.ScanOutcomeGateClosed, now.Add(interval), nil)
	}

	if d := tracker.CheckSignal(policy.Config.Budget, r.counters, now); !d.Allowed {
		r.log.Info("Signal budget exhausted", "outcome", string(d.Outcome), "retry_at", d.RetryAt)
		return s.finish(ctx, r, d.Outcome, d.RetryAt, nil)
	}

	// a failed call still spends budget
	r.counters = r.counters.RecordSignalCall()
	candidates, err := s.callSignal(jobCtx, policy, snapshot)
	if err != nil {
		return s.finish(ctx, r, entities.ScanOutcomeSignalFailed, now.Add(interval), err)
	}

	created, err := s.proposals.CreateFromCandidates(jobCtx, policy, &snapshot.ID, candidates)
	r.proposals = created
	r.result.ProposalsCreated = len(created)
	if err != nil {
		return s.finish(ctx, r, entities.ScanOutcomeFailed, now.Add(interval), err)
	}
	return s.finish(ctx, r, entities.ScanOutcomeProposed, now.Add(interval), nil)
}

// snapshot asks the pulse generator for metrics, evaluates the gate and stores the result
func (s *Scheduler) snapshot(ctx context.Context, r *run) (*entities.MarketSnapshot, error) {
	pm, err := s.pulse.Generate(ctx, entities.PulseRequest{
		UserID: r.job.UserID,
		Assets: r.policy.Allowlist,
		Quote:  s.config.Quote,
	})
	if err != nil {
		return nil, fmt.Errorf("market pulse: %w", err)
	}

	observed := pm.ObservedAt
	if observed.IsZero() {
		observed = r.now
	}
	jobID := r.job.ID
	snap := &entities.MarketSnapshot{
		ID:                uuid.New(),
		UserID:            r.job.UserID,
		ScanJobID:         &jobID,
		Assets:            append([]string(nil), r.policy.Allowlist...),
		Volatility24hPct:  pm.Volatility24hPct,
		Move1hPct:         pm.Move1hPct,
		Move4hPct:         pm.Move4hPct,
		VolumeZ:           pm.VolumeZ,
		PortfolioValueEur: pm.PortfolioValueEur,
		ObservedAt:        observed.UTC(),
		CreatedAt:         r.now,
	}

	g := gate.Evaluate(r.policy.Config.Gate, snap)
	snap.GateFired = g.Fired
	snap.GateTriggers = g.Triggers
	for _, t := range g.Triggers {
		metrics.GateTriggersTotal.WithLabelValues(t).Inc()
	}

	if err := s.snapshots.Create(ctx, snap); err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	r.log.Debug("Snapshot recorded", "snapshot_id", snap.ID, "gate_fired", g.Fired, "triggers", g.Triggers)
	return snap, nil
}

func (s *Scheduler) callSignal(ctx context.Context, policy *entities.Policy, snap *entities.MarketSnapshot) ([]entities.ProposalCandidate, error) {
	sctx, cancel := context.WithTimeout(ctx, s.config.SignalTimeout)
	defer cancel()

	start := time.Now()
	candidates, err := s.signal.Generate(sctx, &entities.SignalRequest{Policy: policy, Snapshot: snap})
	metrics.SignalCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		metrics.SignalCallsTotal.WithLabelValues(result).Inc()
		return nil, fmt.Errorf("signal generator: %w", err)
	}
	metrics.SignalCallsTotal.WithLabelValues("ok").Inc()
	return candidates, nil
}

// finish writes counters and the next run time in one update, which also releases the lease
func (s *Scheduler) finish(ctx context.Context, r *run, outcome entities.ScanOutcome, next time.Time, runErr error) entities.ScanRunResult {
	r.result.Outcome = outcome
	r.result.NextRunAt = next.UTC()
	if runErr != nil {
		r.result.Error = runErr.Error()
		r.log.Warn("Scan run failed", "outcome", string(outcome), "error", runErr)
	}

	update := entities.ScanRunUpdate{
		NextRunAt:           next.UTC(),
		RunsToday:           r.counters.RunsToday,
		SignalCallsToday:    r.counters.SignalCallsToday,
		SignalCallsThisHour: r.counters.SignalCallsThisHour,
		LastResetDate:       r.counters.LastResetDate,
		HourWindowStart:     r.counters.HourWindowStart,
	}
	if r.ran {
		at := r.now
		update.LastRunAt = &at
	}

	// the run already happened; record it even if the caller went away
	persistCtx := context.WithoutCancel(ctx)
	if err := s.jobs.CompleteRun(persistCtx, r.job.ID, r.owner, update); err != nil {
		if errors.Is(err, repositories.ErrLockLost) {
			r.log.Warn("Scan job lease expired before the run was recorded")
		} else {
			r.log.Error("Failed to record scan run", "error", err)
		}
		if r.result.Error == "" {
			r.result.Error = err.Error()
		}
	}

	metrics.ScanRunsTotal.WithLabelValues(string(outcome)).Inc()
	r.log.Info("Scan run finished",
		"outcome", string(outcome),
		"proposals_created", r.result.ProposalsCreated,
		"proposals_expired", r.result.ProposalsExpired,
		"next_run_at", r.result.NextRunAt)

	if err := s.publisher.Publish(persistCtx, events.New(events.ScanCompleted, r.job.UserID, r.job.ID, map[string]interface{}{
		"outcome":           string(outcome),
		"proposals_created": r.result.ProposalsCreated,
		"next_run_at":       r.result.NextRunAt,
	})); err != nil {
		r.log.Warn("Failed to publish event", "type", string(events.ScanCompleted), "error", err)
	}

	if s.notifier != nil && r.policy != nil && r.ran {
		s.notifier.NotifyScan(persistCtx, r.policy, r.result, r.proposals)
	}
	return r.result
}

func (s *Scheduler) release(ctx context.Context, jobID uuid.UUID, owner string, log *logger.Logger) {
	if err := s.jobs.Release(context.WithoutCancel(ctx), jobID, owner); err != nil {
		log.Error("Failed to release scan job", "job_id", jobID, "error", err)
	}
}
