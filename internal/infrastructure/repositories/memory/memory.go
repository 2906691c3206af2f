// Package memory provides in-memory repositories with the same conditional-update
// semantics as the postgres ones. Service tests use them to exercise concurrency.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/internal/domain/repositories"
)

// Store bundles one instance of every repository
type Store struct {
	Policies   *PolicyRepository
	Jobs       *ScanJobRepository
	Snapshots  *SnapshotRepository
	Proposals  *ProposalRepository
	Executions *ExecutionRepository
	Flags      *TradingFlagRepository
}

// NewStore creates empty repositories
func NewStore() *Store {
	proposals := &ProposalRepository{rows: map[uuid.UUID]*entities.Proposal{}}
	return &Store{
		Policies:   &PolicyRepository{rows: map[uuid.UUID]*entities.Policy{}},
		Jobs:       &ScanJobRepository{rows: map[uuid.UUID]*entities.ScanJob{}},
		Snapshots:  &SnapshotRepository{},
		Proposals:  proposals,
		Executions: &ExecutionRepository{rows: map[uuid.UUID]*entities.TradeExecution{}, proposals: proposals},
		Flags:      &TradingFlagRepository{rows: map[uuid.UUID]*entities.TradingFlag{}},
	}
}

// PolicyRepository is an in-memory repositories.PolicyRepository
type PolicyRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entities.Policy
}

var _ repositories.PolicyRepository = (*PolicyRepository)(nil)

func clonePolicy(p *entities.Policy) *entities.Policy {
	c := *p
	c.Allowlist = append([]string(nil), p.Allowlist...)
	c.Blocklist = append([]string(nil), p.Blocklist...)
	c.Config.Signal.AllowedConfidence = append([]int(nil), p.Config.Signal.AllowedConfidence...)
	return &c
}

func (r *PolicyRepository) Create(_ context.Context, p *entities.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.Version = 1
	p.IsActive = false
	p.CreatedAt, p.UpdatedAt = now, now
	r.rows[p.ID] = clonePolicy(p)
	return nil
}

func (r *PolicyRepository) GetByID(_ context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.UserID != userID {
		return nil, nil
	}
	return clonePolicy(p), nil
}

func (r *PolicyRepository) GetActive(_ context.Context, userID uuid.UUID) (*entities.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.UserID == userID && p.IsActive {
			return clonePolicy(p), nil
		}
	}
	return nil, nil
}

func (r *PolicyRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*entities.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.Policy, 0)
	for _, p := range r.rows {
		if p.UserID == userID {
			out = append(out, clonePolicy(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *PolicyRepository) Update(_ context.Context, p *entities.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[p.ID]
	if !ok || cur.UserID != p.UserID {
		return repositories.ErrDuplicate
	}
	p.Version = cur.Version + 1
	p.IsActive = cur.IsActive
	p.UpdatedAt = time.Now()
	r.rows[p.ID] = clonePolicy(p)
	return nil
}

func (r *PolicyRepository) Activate(_ context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.rows[id]
	if !ok || target.UserID != userID {
		return nil, nil
	}
	for _, p := range r.rows {
		if p.UserID == userID {
			p.IsActive = false
		}
	}
	target.IsActive = true
	return clonePolicy(target), nil
}

func (r *PolicyRepository) Deactivate(_ context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.UserID != userID {
		return nil, nil
	}
	p.IsActive = false
	return clonePolicy(p), nil
}

// ScanJobRepository is an in-memory repositories.ScanJobRepository
type ScanJobRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entities.ScanJob
}

var _ repositories.ScanJobRepository = (*ScanJobRepository)(nil)

func cloneJob(j *entities.ScanJob) *entities.ScanJob {
	c := *j
	return &c
}

func (r *ScanJobRepository) Upsert(_ context.Context, job *entities.ScanJob) (*entities.ScanJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.rows {
		if j.UserID == job.UserID {
			j.Status = job.Status
			j.IntervalMinutes = job.IntervalMinutes
			j.NextRunAt = job.NextRunAt
			j.Timezone = job.Timezone
			return cloneJob(j), nil
		}
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	stored := cloneJob(job)
	r.rows[stored.ID] = stored
	return cloneJob(stored), nil
}

func (r *ScanJobRepository) GetByUserID(_ context.Context, userID uuid.UUID) (*entities.ScanJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.rows {
		if j.UserID == userID {
			return cloneJob(j), nil
		}
	}
	return nil, nil
}

func (r *ScanJobRepository) ListDue(_ context.Context, now time.Time, limit int) ([]*entities.ScanJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.ScanJob, 0)
	for _, j := range r.rows {
		if j.Status == entities.ScanJobStatusActive && !j.NextRunAt.After(now) {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].NextRunAt.Before(out[k].NextRunAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ScanJobRepository) Claim(_ context.Context, jobID uuid.UUID, owner string, now time.Time, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[jobID]
	if !ok || j.Status != entities.ScanJobStatusActive || j.NextRunAt.After(now) {
		return false, nil
	}
	if j.LockOwner != nil && j.LockExpiresAt != nil && !j.LockExpiresAt.Before(now) {
		return false, nil
	}
	expires := now.Add(ttl)
	j.LockOwner = &owner
	j.LockExpiresAt = &expires
	return true, nil
}

func (r *ScanJobRepository) CompleteRun(_ context.Context, jobID uuid.UUID, owner string, u entities.ScanRunUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[jobID]
	if !ok || j.LockOwner == nil || *j.LockOwner != owner {
		return repositories.ErrLockLost
	}
	j.NextRunAt = u.NextRunAt
	if u.LastRunAt != nil {
		j.LastRunAt = u.LastRunAt
	}
	j.RunsToday = u.RunsToday
	j.SignalCallsToday = u.SignalCallsToday
	j.SignalCallsThisHour = u.SignalCallsThisHour
	j.LastResetDate = u.LastResetDate
	j.HourWindowStart = u.HourWindowStart
	j.ForceRequested = false
	j.LockOwner = nil
	j.LockExpiresAt = nil
	return nil
}

func (r *ScanJobRepository) Release(_ context.Context, jobID uuid.UUID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.rows[jobID]; ok && j.LockOwner != nil && *j.LockOwner == owner {
		j.LockOwner = nil
		j.LockExpiresAt = nil
	}
	return nil
}

func (r *ScanJobRepository) SetStatus(_ context.Context, userID uuid.UUID, status entities.ScanJobStatus, nextRunAt time.Time) (*entities.ScanJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.rows {
		if j.UserID == userID {
			j.Status = status
			j.NextRunAt = nextRunAt
			return cloneJob(j), nil
		}
	}
	return nil, nil
}

func (r *ScanJobRepository) RequestForce(_ context.Context, userID uuid.UUID, now time.Time) (*entities.ScanJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.rows {
		if j.UserID == userID && j.Status == entities.ScanJobStatusActive {
			j.ForceRequested = true
			j.NextRunAt = now
			return cloneJob(j), nil
		}
	}
	return nil, nil
}

// SnapshotRepository is an in-memory repositories.SnapshotRepository
type SnapshotRepository struct {
	mu   sync.Mutex
	rows []*entities.MarketSnapshot
}

var _ repositories.SnapshotRepository = (*SnapshotRepository)(nil)

func (r *SnapshotRepository) Create(_ context.Context, s *entities.MarketSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	c := *s
	r.rows = append(r.rows, &c)
	return nil
}

func (r *SnapshotRepository) GetLatest(_ context.Context, userID uuid.UUID) (*entities.MarketSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *entities.MarketSnapshot
	for _, s := range r.rows {
		if s.UserID == userID && (latest == nil || s.ObservedAt.After(latest.ObservedAt)) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (r *SnapshotRepository) PeakPortfolioValue(_ context.Context, userID uuid.UUID, since time.Time) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peak := 0.0
	for _, s := range r.rows {
		if s.UserID == userID && !s.ObservedAt.Before(since) && s.PortfolioValueEur > peak {
			peak = s.PortfolioValueEur
		}
	}
	return peak, nil
}

// All returns every stored snapshot
func (r *SnapshotRepository) All() []*entities.MarketSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entities.MarketSnapshot(nil), r.rows...)
}

// ProposalRepository is an in-memory repositories.ProposalRepository
type ProposalRepository struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*entities.Proposal
	actions []*entities.ProposalAction
}

var _ repositories.ProposalRepository = (*ProposalRepository)(nil)

func cloneProposal(p *entities.Proposal) *entities.Proposal {
	c := *p
	c.PreflightViolations = append([]string(nil), p.PreflightViolations...)
	return &c
}

func (r *ProposalRepository) Create(_ context.Context, p *entities.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.UpdatedAt = p.CreatedAt
	r.rows[p.ID] = cloneProposal(p)
	return nil
}

func (r *ProposalRepository) GetByID(_ context.Context, userID, id uuid.UUID) (*entities.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.UserID != userID {
		return nil, nil
	}
	return cloneProposal(p), nil
}

func (r *ProposalRepository) List(_ context.Context, userID uuid.UUID, status *entities.ProposalStatus, limit, offset int) ([]*entities.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.Proposal, 0)
	for _, p := range r.rows {
		if p.UserID == userID && (status == nil || p.Status == *status) {
			out = append(out, cloneProposal(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []*entities.Proposal{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ProposalRepository) ExpireStale(_ context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.rows {
		if p.UserID == userID && p.Status == entities.ProposalStatusProposed && p.ExpiresAt.Before(now) {
			p.Status = entities.ProposalStatusExpired
			p.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *ProposalRepository) ApplyDecision(_ context.Context, d repositories.ProposalDecision) (*entities.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[d.ProposalID]
	if !ok || p.UserID != d.UserID || p.Status != d.From || p.ExpiresAt.Before(d.Now) {
		return nil, nil
	}
	if d.Modified != nil {
		p.Asset = d.Modified.Asset
		p.Side = d.Modified.Side
		p.OrderValueEur = d.Modified.OrderValueEur
		p.Confidence = d.Modified.Confidence
	}
	p.Status = d.To
	p.UpdatedAt = d.Now
	if d.Action != nil {
		a := *d.Action
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.ProposalID = d.ProposalID
		a.UserID = d.UserID
		a.FromStatus = d.From
		a.ToStatus = d.To
		a.CreatedAt = d.Now
		r.actions = append(r.actions, &a)
	}
	return cloneProposal(p), nil
}

func (r *ProposalRepository) Transition(_ context.Context, userID, id uuid.UUID, from, to entities.ProposalStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.UserID != userID || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *ProposalRepository) ListActions(_ context.Context, userID, proposalID uuid.UUID) ([]*entities.ProposalAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.ProposalAction, 0)
	for _, a := range r.actions {
		if a.ProposalID == proposalID && a.UserID == userID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

// ExecutionRepository is an in-memory repositories.ExecutionRepository
type ExecutionRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entities.TradeExecution
	// clock lets tests age rows; nil means time.Now
	clock func() time.Time
	// proposals backs ListUnsettled
	proposals *ProposalRepository
}

var _ repositories.ExecutionRepository = (*ExecutionRepository)(nil)

// SetClock overrides the timestamps written on updates
func (r *ExecutionRepository) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

func (r *ExecutionRepository) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now()
}

func cloneExecution(e *entities.TradeExecution) *entities.TradeExecution {
	c := *e
	return &c
}

func (r *ExecutionRepository) Create(_ context.Context, e *entities.TradeExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.rows {
		if x.ProposalID == e.ProposalID || x.ClientOrderID == e.ClientOrderID {
			return repositories.ErrDuplicate
		}
	}
	now := r.now()
	e.AttemptCount = 1
	e.CreatedAt, e.UpdatedAt = now, now
	r.rows[e.ID] = cloneExecution(e)
	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id uuid.UUID) (*entities.TradeExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rows[id]; ok {
		return cloneExecution(e), nil
	}
	return nil, nil
}

func (r *ExecutionRepository) GetByProposalID(_ context.Context, proposalID uuid.UUID) (*entities.TradeExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rows {
		if e.ProposalID == proposalID {
			return cloneExecution(e), nil
		}
	}
	return nil, nil
}

func (r *ExecutionRepository) Claim(_ context.Context, id uuid.UUID, status entities.TradeExecutionStatus, updatedAt time.Time) (*entities.TradeExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || e.Status != status || !e.UpdatedAt.Equal(updatedAt) {
		return nil, nil
	}
	e.Status = entities.TradeExecutionSubmitting
	e.AttemptCount++
	e.UpdatedAt = r.now()
	return cloneExecution(e), nil
}

func (r *ExecutionRepository) MarkSubmitting(_ context.Context, id uuid.UUID, quantity, price decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rows[id]; ok && e.Status.IsInFlight() {
		e.Status = entities.TradeExecutionSubmitting
		e.Quantity = quantity
		e.Price = price
		e.UpdatedAt = r.now()
	}
	return nil
}

func (r *ExecutionRepository) MarkSubmitted(_ context.Context, id uuid.UUID, exchangeOrderID string, quantity, price, fee decimal.Decimal, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rows[id]; ok {
		e.Status = entities.TradeExecutionSubmitted
		e.ExchangeOrderID = &exchangeOrderID
		e.Quantity = quantity
		e.Price = price
		e.FeeEur = fee
		e.SubmittedAt = &at
		e.LastError = nil
		e.UpdatedAt = r.now()
	}
	return nil
}

func (r *ExecutionRepository) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rows[id]; ok && e.Status != entities.TradeExecutionSubmitted {
		e.Status = entities.TradeExecutionFailed
		e.LastError = &lastError
		e.UpdatedAt = r.now()
	}
	return nil
}

func (r *ExecutionRepository) Restore(_ context.Context, id uuid.UUID, status entities.TradeExecutionStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rows[id]; ok && e.Status == entities.TradeExecutionSubmitting {
		e.Status = status
		e.LastError = &lastError
		e.UpdatedAt = r.now()
	}
	return nil
}

func (r *ExecutionRepository) RecordError(_ context.Context, id uuid.UUID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rows[id]; ok {
		e.LastError = &lastError
		e.UpdatedAt = r.now()
	}
	return nil
}

func (r *ExecutionRepository) CountPlacedSince(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.rows {
		if e.UserID == userID && !e.CreatedAt.Before(since) &&
			(e.Status == entities.TradeExecutionSubmitting || e.Status == entities.TradeExecutionSubmitted) {
			n++
		}
	}
	return n, nil
}

func (r *ExecutionRepository) ListStale(_ context.Context, olderThan time.Time, limit int) ([]*entities.TradeExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.TradeExecution, 0)
	for _, e := range r.rows {
		if e.Status.IsInFlight() && e.UpdatedAt.Before(olderThan) {
			out = append(out, cloneExecution(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListUnsettled returns submitted executions whose proposal is still approved
func (r *ExecutionRepository) ListUnsettled(_ context.Context, olderThan time.Time, limit int) ([]*entities.TradeExecution, error) {
	r.mu.Lock()
	candidates := make([]*entities.TradeExecution, 0)
	for _, e := range r.rows {
		if e.Status == entities.TradeExecutionSubmitted && e.UpdatedAt.Before(olderThan) {
			candidates = append(candidates, cloneExecution(e))
		}
	}
	r.mu.Unlock()

	out := make([]*entities.TradeExecution, 0, len(candidates))
	if r.proposals == nil {
		return out, nil
	}
	r.proposals.mu.Lock()
	for _, e := range candidates {
		if p, ok := r.proposals.rows[e.ProposalID]; ok && p.Status == entities.ProposalStatusApproved {
			out = append(out, e)
		}
	}
	r.proposals.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored executions
func (r *ExecutionRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// TradingFlagRepository is an in-memory repositories.TradingFlagRepository
type TradingFlagRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entities.TradingFlag
}

var _ repositories.TradingFlagRepository = (*TradingFlagRepository)(nil)

func (r *TradingFlagRepository) GetOrCreate(_ context.Context, userID uuid.UUID) (*entities.TradingFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[userID]
	if !ok {
		now := time.Now()
		f = &entities.TradingFlag{UserID: userID, CreatedAt: now, UpdatedAt: now}
		r.rows[userID] = f
	}
	c := *f
	return &c, nil
}

func (r *TradingFlagRepository) Set(_ context.Context, userID uuid.UUID, enabled bool) (*entities.TradingFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	f, ok := r.rows[userID]
	if !ok {
		f = &entities.TradingFlag{UserID: userID, CreatedAt: now}
		r.rows[userID] = f
	}
	f.Enabled = enabled
	f.UpdatedAt = now
	c := *f
	return &c, nil
}
