package policy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

type MockPolicyRepository struct {
	mock.Mock
}

func (m *MockPolicyRepository) Create(ctx context.Context, policy *entities.Policy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockPolicyRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Policy), args.Error(1)
}

func (m *MockPolicyRepository) GetActive(ctx context.Context, userID uuid.UUID) (*entities.Policy, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Policy), args.Error(1)
}

func (m *MockPolicyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.Policy, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*entities.Policy), args.Error(1)
}

func (m *MockPolicyRepository) Update(ctx context.Context, policy *entities.Policy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockPolicyRepository) Activate(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Policy), args.Error(1)
}

func (m *MockPolicyRepository) Deactivate(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Policy), args.Error(1)
}

type MockScanJobRepository struct {
	mock.Mock
}

func (m *MockScanJobRepository) Upsert(ctx context.Context, job *entities.ScanJob) (*entities.ScanJob, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ScanJob), args.Error(1)
}

func (m *MockScanJobRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.ScanJob, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ScanJob), args.Error(1)
}

func (m *MockScanJobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*entities.ScanJob, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]*entities.ScanJob), args.Error(1)
}

func (m *MockScanJobRepository) Claim(ctx context.Context, jobID uuid.UUID, owner string, now time.Time, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, jobID, owner, now, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockScanJobRepository) CompleteRun(ctx context.Context, jobID uuid.UUID, owner string, update entities.ScanRunUpdate) error {
	args := m.Called(ctx, jobID, owner, update)
	return args.Error(0)
}

func (m *MockScanJobRepository) Release(ctx context.Context, jobID uuid.UUID, owner string) error {
	args := m.Called(ctx, jobID, owner)
	return args.Error(0)
}

func (m *MockScanJobRepository) SetStatus(ctx context.Context, userID uuid.UUID, status entities.ScanJobStatus, nextRunAt time.Time) (*entities.ScanJob, error) {
	args := m.Called(ctx, userID, status, nextRunAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ScanJob), args.Error(1)
}

func (m *MockScanJobRepository) RequestForce(ctx context.Context, userID uuid.UUID, now time.Time) (*entities.ScanJob, error) {
	args := m.Called(ctx, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ScanJob), args.Error(1)
}

func newTestService() (*Service, *MockPolicyRepository, *MockScanJobRepository) {
	policies := new(MockPolicyRepository)
	jobs := new(MockScanJobRepository)
	svc := NewService(policies, jobs, "Europe/Berlin", logger.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC) }
	return svc, policies, jobs
}

func TestPresets(t *testing.T) {
	presets := Presets()
	require.Len(t, presets, 3)

	byKey := map[string]entities.PolicyPreset{}
	for _, p := range presets {
		byKey[p.Key] = p
	}

	observer := byKey[PresetObserver]
	assert.Equal(t, 240, observer.Config.Scan.IntervalMinutes)
	assert.Equal(t, 6, observer.Config.Budget.MaxSignalCallsPerDay)
	assert.Equal(t, 1, observer.Config.Budget.MaxSignalCallsPerHour)
	assert.Equal(t, 0, observer.Config.Risk.MaxDailyTrades)
	assert.Equal(t, []int{75, 100}, observer.Config.Signal.AllowedConfidence)

	balanced := byKey[PresetBalanced]
	assert.Equal(t, 60, balanced.Config.Scan.IntervalMinutes)
	assert.True(t, balanced.Config.Risk.MaxOrderValueEur.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, 3, balanced.Config.Risk.MaxDailyTrades)

	active := byKey[PresetActive]
	assert.Equal(t, 30, active.Config.Scan.IntervalMinutes)
	assert.Equal(t, 48, active.Config.Budget.MaxSignalCallsPerDay)
	assert.Equal(t, 25, active.Config.Signal.MinConfidence)

	for _, p := range presets {
		assert.Equal(t, []string{"BTC", "ETH", "SOL"}, p.Allowlist)
		assert.Equal(t, entities.ReportingSummary, p.Reporting)
		assert.Equal(t, 2.0, p.Config.Gate.VolumeZ)
	}
}

func TestNewFromPresetReturnsCopies(t *testing.T) {
	a, ok := NewFromPreset(PresetBalanced)
	require.True(t, ok)
	a.Allowlist[0] = "DOGE"
	a.Config.Signal.AllowedConfidence[0] = 0

	b, _ := NewFromPreset(PresetBalanced)
	assert.Equal(t, "BTC", b.Allowlist[0])
	assert.Equal(t, 50, b.Config.Signal.AllowedConfidence[0])

	_, ok = NewFromPreset("yolo")
	assert.False(t, ok)
}

func TestCreate(t *testing.T) {
	userID := uuid.New()

	t.Run("from preset", func(t *testing.T) {
		svc, policies, _ := newTestService()
		policies.On("Create", mock.Anything, mock.AnythingOfType("*entities.Policy")).Return(nil)

		p, err := svc.Create(context.Background(), userID, &entities.CreatePolicyRequest{
			Name:      "My balanced",
			PresetKey: PresetBalanced,
			Blocklist: []string{" doge", "DOGE"},
		})
		require.NoError(t, err)
		assert.Equal(t, PresetBalanced, p.PresetKey)
		assert.Equal(t, []string{"DOGE"}, p.Blocklist)
		assert.False(t, p.IsActive)
		policies.AssertExpectations(t)
	})

	t.Run("unknown preset", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Create(context.Background(), userID, &entities.CreatePolicyRequest{Name: "x", PresetKey: "yolo"})
		assert.True(t, domainerrors.IsInvalidInput(err))
	})

	t.Run("missing name", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Create(context.Background(), userID, &entities.CreatePolicyRequest{PresetKey: PresetActive})
		assert.True(t, domainerrors.IsInvalidInput(err))
	})

	t.Run("interval below five minutes", func(t *testing.T) {
		svc, _, _ := newTestService()
		preset, _ := NewFromPreset(PresetActive)
		cfg := preset.Config
		cfg.Scan.IntervalMinutes = 1

		_, err := svc.Create(context.Background(), userID, &entities.CreatePolicyRequest{Name: "fast", Config: &cfg})
		assert.True(t, domainerrors.IsInvalidInput(err))
	})

	t.Run("max below min order value", func(t *testing.T) {
		svc, _, _ := newTestService()
		preset, _ := NewFromPreset(PresetActive)
		cfg := preset.Config
		cfg.Risk.MaxOrderValueEur = decimal.NewFromInt(5)

		_, err := svc.Create(context.Background(), userID, &entities.CreatePolicyRequest{Name: "odd", Config: &cfg})
		assert.True(t, domainerrors.IsInvalidInput(err))
	})

	t.Run("confidence outside the fixed set", func(t *testing.T) {
		svc, _, _ := newTestService()
		preset, _ := NewFromPreset(PresetActive)
		cfg := preset.Config
		cfg.Signal.AllowedConfidence = []int{30}

		_, err := svc.Create(context.Background(), userID, &entities.CreatePolicyRequest{Name: "odd", Config: &cfg})
		assert.True(t, domainerrors.IsInvalidInput(err))
	})
}

func TestActivateSchedulesScanJob(t *testing.T) {
	svc, policies, jobs := newTestService()
	userID := uuid.New()
	policyID := uuid.New()

	preset, _ := NewFromPreset(PresetObserver)
	active := &entities.Policy{ID: policyID, UserID: userID, IsActive: true, Config: preset.Config}

	policies.On("Activate", mock.Anything, userID, policyID).Return(active, nil)
	jobs.On("Upsert", mock.Anything, mock.MatchedBy(func(j *entities.ScanJob) bool {
		return j.UserID == userID &&
			j.Status == entities.ScanJobStatusActive &&
			j.IntervalMinutes == 240 &&
			j.NextRunAt.Equal(svc.now()) &&
			j.Timezone == "Europe/Berlin"
	})).Return(&entities.ScanJob{ID: uuid.New(), UserID: userID, IntervalMinutes: 240}, nil)

	p, err := svc.Activate(context.Background(), userID, policyID)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	policies.AssertExpectations(t)
	jobs.AssertExpectations(t)
}

func TestActivateUnknownPolicy(t *testing.T) {
	svc, policies, jobs := newTestService()
	userID := uuid.New()
	policyID := uuid.New()

	policies.On("Activate", mock.Anything, userID, policyID).Return(nil, nil)

	_, err := svc.Activate(context.Background(), userID, policyID)
	assert.True(t, domainerrors.IsNotFound(err))
	jobs.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestUpdateBumpsIntervalOnActiveJob(t *testing.T) {
	svc, policies, jobs := newTestService()
	userID := uuid.New()
	policyID := uuid.New()

	preset, _ := NewFromPreset(PresetBalanced)
	existing := &entities.Policy{ID: policyID, UserID: userID, Name: "b", IsActive: true, Version: 1,
		Config: preset.Config, Allowlist: preset.Allowlist, Reporting: entities.ReportingSummary}

	cfg := preset.Config
	cfg.Scan.IntervalMinutes = 15

	policies.On("GetByID", mock.Anything, userID, policyID).Return(existing, nil)
	policies.On("Update", mock.Anything, mock.AnythingOfType("*entities.Policy")).Return(nil)
	jobs.On("Upsert", mock.Anything, mock.MatchedBy(func(j *entities.ScanJob) bool {
		return j.IntervalMinutes == 15
	})).Return(&entities.ScanJob{ID: uuid.New(), IntervalMinutes: 15}, nil)

	p, err := svc.Update(context.Background(), userID, policyID, &entities.UpdatePolicyRequest{Config: &cfg})
	require.NoError(t, err)
	assert.Equal(t, 15, p.Config.Scan.IntervalMinutes)
	jobs.AssertExpectations(t)
}
