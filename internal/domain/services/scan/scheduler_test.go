package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
	"github.com/tradepilot/pilot_service/internal/domain/services/budget"
	"github.com/tradepilot/pilot_service/internal/domain/services/events"
	"github.com/tradepilot/pilot_service/internal/domain/services/policy"
	"github.com/tradepilot/pilot_service/internal/domain/services/proposal"
	"github.com/tradepilot/pilot_service/internal/infrastructure/repositories/memory"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

type fakePulse struct {
	mu      sync.Mutex
	calls   int
	metrics entities.PulseMetrics
	err     error
}

func (f *fakePulse) Generate(_ context.Context, _ entities.PulseRequest) (*entities.PulseMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	m := f.metrics
	return &m, nil
}

func (f *fakePulse) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSignal struct {
	mu         sync.Mutex
	calls      int
	candidates []entities.ProposalCandidate
	err        error
}

func (f *fakeSignal) Generate(_ context.Context, req *entities.SignalRequest) ([]entities.ProposalCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if req.Policy == nil || req.Snapshot == nil {
		return nil, errors.New("incomplete request")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func (f *fakeSignal) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []entities.ScanRunResult
}

func (n *recordingNotifier) NotifyScan(_ context.Context, _ *entities.Policy, result entities.ScanRunResult, _ []*entities.Proposal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, result)
}

var (
	berlin, _ = time.LoadLocation("Europe/Berlin")
	// 12:20 local time in Berlin
	fixedNow = time.Date(2025, 6, 2, 10, 20, 0, 0, time.UTC)
	hotPulse = entities.PulseMetrics{Volatility24hPct: 7.5, Move1hPct: -2.4, Move4hPct: 1, VolumeZ: 0.5, PortfolioValueEur: 1200}
)

type harness struct {
	store     *memory.Store
	scheduler *Scheduler
	pulse     *fakePulse
	signal    *fakeSignal
	notifier  *recordingNotifier
	recorder  *events.Recorder
	userID    uuid.UUID
	policy    *entities.Policy
	job       *entities.ScanJob
}

func newHarness(t *testing.T, mutate func(p *entities.Policy), seed func(j *entities.ScanJob)) *harness {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	userID := uuid.New()

	preset, ok := policy.NewFromPreset(policy.PresetBalanced)
	require.True(t, ok)
	p := &entities.Policy{
		UserID:    userID,
		Name:      "balanced",
		PresetKey: preset.Key,
		Config:    preset.Config,
		Allowlist: preset.Allowlist,
		Reporting: entities.ReportingVerbose,
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, store.Policies.Create(ctx, p))
	active, err := store.Policies.Activate(ctx, userID, p.ID)
	require.NoError(t, err)

	job := &entities.ScanJob{
		UserID:          userID,
		Status:          entities.ScanJobStatusActive,
		IntervalMinutes: p.Config.Scan.IntervalMinutes,
		NextRunAt:       fixedNow.Add(-time.Minute),
		Timezone:        "Europe/Berlin",
		LastResetDate:   budget.StartOfDay(fixedNow, berlin),
		HourWindowStart: budget.HourWindow(fixedNow, berlin),
	}
	if seed != nil {
		seed(job)
	}
	job, err = store.Jobs.Upsert(ctx, job)
	require.NoError(t, err)

	pulse := &fakePulse{metrics: hotPulse}
	signal := &fakeSignal{candidates: []entities.ProposalCandidate{
		{Asset: "BTC", Side: entities.OrderSideBuy, OrderValueEur: decimal.NewFromInt(50), Confidence: 75, Rationale: "breakout"},
		{Asset: "ETH", Side: entities.OrderSideBuy, OrderValueEur: decimal.NewFromInt(50), Confidence: 33},
	}}
	notifier := &recordingNotifier{}
	recorder := &events.Recorder{}

	proposals := proposal.NewService(store.Proposals, store.Policies, store.Flags, recorder, logger.NewNop())
	scheduler := NewScheduler(Deps{
		Jobs:      store.Jobs,
		Policies:  store.Policies,
		Snapshots: store.Snapshots,
		Proposals: proposals,
		Pulse:     pulse,
		Signal:    signal,
		Notifier:  notifier,
		Publisher: recorder,
	}, Config{LockTTL: 5 * time.Minute, DefaultLocation: time.UTC}, logger.NewNop())
	scheduler.now = func() time.Time { return fixedNow }

	return &harness{
		store:     store,
		scheduler: scheduler,
		pulse:     pulse,
		signal:    signal,
		notifier:  notifier,
		recorder:  recorder,
		userID:    userID,
		policy:    active,
		job:       job,
	}
}

func (h *harness) tick(t *testing.T) entities.ScanRunResult {
	t.Helper()
	res, err := h.scheduler.Tick(context.Background(), "worker-a")
	require.NoError(t, err)
	require.Len(t, res.Runs, 1)
	return res.Runs[0]
}

func (h *harness) reload(t *testing.T) *entities.ScanJob {
	t.Helper()
	job, err := h.store.Jobs.GetByUserID(context.Background(), h.userID)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestTick_GateFiresAndProposes(t *testing.T) {
	h := newHarness(t, nil, nil)

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeProposed, run.Outcome)
	assert.Equal(t, 1, run.ProposalsCreated)
	assert.Equal(t, fixedNow.Add(60*time.Minute), run.NextRunAt)
	require.NotNil(t, run.SnapshotID)

	assert.Equal(t, 1, h.signal.Calls())

	snaps := h.store.Snapshots.All()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].GateFired)
	assert.Equal(t, []string{"volatility_24h", "move_1h"}, snaps[0].GateTriggers)
	assert.Equal(t, 1200.0, snaps[0].PortfolioValueEur)

	job := h.reload(t)
	assert.Equal(t, 1, job.RunsToday)
	assert.Equal(t, 1, job.SignalCallsToday)
	assert.Equal(t, 1, job.SignalCallsThisHour)
	assert.Nil(t, job.LockOwner)
	require.NotNil(t, job.LastRunAt)

	assert.Len(t, h.notifier.results, 1)
	assert.Len(t, h.recorder.OfType(events.ScanCompleted), 1)
	assert.Len(t, h.recorder.OfType(events.ProposalCreated), 1)
}

func TestTick_GateClosedSkipsSignal(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.pulse.metrics = entities.PulseMetrics{Volatility24hPct: 1, Move1hPct: 0.5, Move4hPct: -1, VolumeZ: 0.2}

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeGateClosed, run.Outcome)
	assert.Equal(t, 0, h.signal.Calls())
	assert.Equal(t, fixedNow.Add(time.Hour), run.NextRunAt)

	snaps := h.store.Snapshots.All()
	require.Len(t, snaps, 1)
	assert.False(t, snaps[0].GateFired)

	job := h.reload(t)
	assert.Equal(t, 1, job.RunsToday)
	assert.Equal(t, 0, job.SignalCallsToday)
}

func TestTick_ConcurrentWorkersRunJobOnce(t *testing.T) {
	h := newHarness(t, nil, nil)

	var wg sync.WaitGroup
	results := make([]*entities.TickResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.scheduler.Tick(context.Background(), uuid.NewString())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	claimed := 0
	for _, r := range results {
		require.NotNil(t, r)
		claimed += r.Claimed
	}
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 1, h.pulse.Calls())
	assert.Equal(t, 1, h.signal.Calls())
	assert.Len(t, h.store.Snapshots.All(), 1)
}

func TestTick_ExpiredLeaseIsReclaimed(t *testing.T) {
	h := newHarness(t, nil, func(j *entities.ScanJob) {
		j.NextRunAt = fixedNow.Add(-time.Hour)
	})

	ok, err := h.store.Jobs.Claim(context.Background(), h.job.ID, "crashed", fixedNow.Add(-10*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeProposed, run.Outcome)
}

func TestTick_HourlyBudgetExhausted(t *testing.T) {
	h := newHarness(t, nil, func(j *entities.ScanJob) {
		j.SignalCallsThisHour = 5
		j.SignalCallsToday = 5
	})

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeBudgetHourly, run.Outcome)
	assert.Equal(t, 0, h.signal.Calls())
	// next clock hour in Berlin, 13:00 local
	assert.Equal(t, time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC), run.NextRunAt)
	assert.Equal(t, 0, run.ProposalsCreated)
}

func TestTick_DailyBudgetExhausted(t *testing.T) {
	h := newHarness(t, nil, func(j *entities.ScanJob) {
		j.SignalCallsToday = 24
	})

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeBudgetDaily, run.Outcome)
	assert.Equal(t, time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC), run.NextRunAt)
	assert.Equal(t, 0, h.signal.Calls())
}

func TestTick_CountersResetOnNewLocalDay(t *testing.T) {
	h := newHarness(t, nil, func(j *entities.ScanJob) {
		j.SignalCallsToday = 24
		j.SignalCallsThisHour = 5
		j.RunsToday = 20
		j.LastResetDate = budget.StartOfDay(fixedNow.Add(-24*time.Hour), berlin)
		j.HourWindowStart = budget.HourWindow(fixedNow.Add(-24*time.Hour), berlin)
	})

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeProposed, run.Outcome)

	job := h.reload(t)
	assert.Equal(t, 1, job.RunsToday)
	assert.Equal(t, 1, job.SignalCallsToday)
	assert.Equal(t, 1, job.SignalCallsThisHour)
	assert.True(t, job.LastResetDate.Equal(budget.StartOfDay(fixedNow, berlin)))
}

func TestTick_SignalFailureSpendsBudget(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.signal.err = errors.New("upstream 502")

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeSignalFailed, run.Outcome)
	assert.NotEmpty(t, run.Error)
	assert.Equal(t, fixedNow.Add(time.Hour), run.NextRunAt)

	job := h.reload(t)
	assert.Equal(t, 1, job.SignalCallsToday)
	assert.Equal(t, 1, job.SignalCallsThisHour)

	open := entities.ProposalStatusProposed
	listed, err := h.store.Proposals.List(context.Background(), h.userID, &open, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestTick_PulseFailureReschedules(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.pulse.err = errors.New("pulse down")

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeFailed, run.Outcome)
	assert.Equal(t, fixedNow.Add(time.Hour), run.NextRunAt)
	assert.Equal(t, 0, h.signal.Calls())
	assert.Equal(t, 0, h.reload(t).RunsToday)
	assert.Empty(t, h.notifier.results)
}

func TestTick_NoActivePolicy(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, err := h.store.Policies.Deactivate(context.Background(), h.userID, h.policy.ID)
	require.NoError(t, err)

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeNoPolicy, run.Outcome)
	assert.Equal(t, fixedNow.Add(time.Hour), run.NextRunAt)
	assert.Equal(t, 0, h.pulse.Calls())
}

func TestTick_ManualModeRunsOnlyWhenForced(t *testing.T) {
	h := newHarness(t, func(p *entities.Policy) {
		p.Config.Scan.Mode = entities.ScanModeManual
	}, nil)

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeManualSkipped, run.Outcome)
	assert.Equal(t, 0, h.pulse.Calls())

	_, err := h.scheduler.Force(context.Background(), h.userID)
	require.NoError(t, err)
	assert.True(t, h.reload(t).ForceRequested)

	run = h.tick(t)
	assert.Equal(t, entities.ScanOutcomeProposed, run.Outcome)
	assert.Equal(t, 1, h.pulse.Calls())
	assert.False(t, h.reload(t).ForceRequested)
}

func TestTick_ScanCapDefersToMidnight(t *testing.T) {
	h := newHarness(t, nil, func(j *entities.ScanJob) {
		j.RunsToday = 24
	})

	run := h.tick(t)
	assert.Equal(t, entities.ScanOutcomeScanCapReached, run.Outcome)
	assert.Equal(t, time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC), run.NextRunAt)
	assert.Equal(t, 0, h.pulse.Calls())
}

func TestTick_NothingDue(t *testing.T) {
	h := newHarness(t, nil, func(j *entities.ScanJob) {
		j.NextRunAt = fixedNow.Add(time.Minute)
	})

	res, err := h.scheduler.Tick(context.Background(), "worker-a")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)
	assert.Empty(t, res.Runs)
}

func TestPauseResumeForce(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	job, err := h.scheduler.Pause(ctx, h.userID)
	require.NoError(t, err)
	assert.Equal(t, entities.ScanJobStatusPaused, job.Status)

	res, err := h.scheduler.Tick(ctx, "worker-a")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)

	_, err = h.scheduler.Force(ctx, h.userID)
	require.Error(t, err)
	assert.True(t, domainerrors.IsInvalidInput(err))
	assert.ErrorIs(t, err, domainerrors.ErrScanPaused)

	job, err = h.scheduler.Resume(ctx, h.userID)
	require.NoError(t, err)
	assert.Equal(t, entities.ScanJobStatusActive, job.Status)
	assert.Equal(t, fixedNow, job.NextRunAt)

	_, err = h.scheduler.GetJob(ctx, uuid.New())
	assert.True(t, domainerrors.IsNotFound(err))
}
