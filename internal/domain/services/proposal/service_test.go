package proposal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
	"github.com/tradepilot/pilot_service/internal/domain/services/events"
	"github.com/tradepilot/pilot_service/internal/domain/services/policy"
	"github.com/tradepilot/pilot_service/internal/domain/services/preflight"
	"github.com/tradepilot/pilot_service/internal/infrastructure/repositories/memory"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

type testEnv struct {
	store    *memory.Store
	svc      *Service
	recorder *events.Recorder
	policy   *entities.Policy
	userID   uuid.UUID
	now      time.Time
}

func setup(t *testing.T) *testEnv {
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
		Reporting: preset.Reporting,
	}
	require.NoError(t, store.Policies.Create(ctx, p))
	active, err := store.Policies.Activate(ctx, userID, p.ID)
	require.NoError(t, err)

	recorder := &events.Recorder{}
	svc := NewService(store.Proposals, store.Policies, store.Flags, recorder, logger.NewNop())
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &testEnv{store: store, svc: svc, recorder: recorder, policy: active, userID: userID, now: now}
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
	at := e.now
	e.svc.now = func() time.Time { return at }
}

func candidate(asset string, side entities.OrderSide, value int64, confidence int) entities.ProposalCandidate {
	return entities.ProposalCandidate{
		Asset:         asset,
		Side:          side,
		OrderValueEur: decimal.NewFromInt(value),
		Confidence:    confidence,
		Rationale:     "momentum",
	}
}

func (e *testEnv) proposeOne(t *testing.T) *entities.Proposal {
	t.Helper()
	created, err := e.svc.CreateFromCandidates(context.Background(), e.policy, nil,
		[]entities.ProposalCandidate{candidate("btc", entities.OrderSideBuy, 100, 75)})
	require.NoError(t, err)
	require.Len(t, created, 1)
	return created[0]
}

func TestCreateFromCandidates(t *testing.T) {
	env := setup(t)
	snapshotID := uuid.New()

	limit := decimal.NewFromInt(48000)
	created, err := env.svc.CreateFromCandidates(context.Background(), env.policy, &snapshotID, []entities.ProposalCandidate{
		candidate("btc", entities.OrderSideBuy, 100, 75),
		candidate("ETH", "hold", 100, 75),
		candidate("ETH", entities.OrderSideSell, 100, 30),
		candidate("SOL", entities.OrderSideBuy, 0, 50),
		candidate("", entities.OrderSideBuy, 50, 50),
		{Asset: "SOL", Side: entities.OrderSideBuy, OrderType: entities.OrderTypeLimit, OrderValueEur: decimal.NewFromInt(50), Confidence: 50},
		{Asset: "BTC", Side: entities.OrderSideBuy, OrderType: entities.OrderTypeLimit, LimitPrice: &limit, OrderValueEur: decimal.NewFromInt(50), Confidence: 50},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	p := created[0]
	assert.Equal(t, "BTC", p.Asset)
	assert.Equal(t, entities.ProposalStatusProposed, p.Status)
	assert.Equal(t, entities.ProposalSourceSignalGenerator, p.CreatedBy)
	assert.Equal(t, p.CreatedAt.Add(60*time.Minute), p.ExpiresAt)
	assert.Equal(t, &snapshotID, p.SnapshotID)
	assert.Equal(t, env.policy.Version, p.PolicyVersion)
	assert.Equal(t, entities.OrderTypeMarket, p.OrderType)
	// kill switch starts disabled, so the soft check flags it
	assert.Equal(t, []string{preflight.RuleTradingDisabled}, p.PreflightViolations)

	assert.Equal(t, entities.OrderTypeLimit, created[1].OrderType)
	require.NotNil(t, created[1].LimitPrice)

	assert.Len(t, env.recorder.OfType(events.ProposalCreated), 2)
}

func TestCheckCandidate(t *testing.T) {
	tests := []struct {
		name string
		c    entities.ProposalCandidate
		want string
	}{
		{"valid", candidate("BTC", entities.OrderSideBuy, 10, 0), ""},
		{"empty asset", candidate(" ", entities.OrderSideBuy, 10, 50), RejectInvalidAsset},
		{"bad side", candidate("BTC", "short", 10, 50), RejectInvalidSide},
		{"zero value", candidate("BTC", entities.OrderSideBuy, 0, 50), RejectInvalidValue},
		{"negative value", candidate("BTC", entities.OrderSideBuy, -5, 50), RejectInvalidValue},
		{"confidence off grid", candidate("BTC", entities.OrderSideBuy, 10, 60), RejectInvalidConfidence},
		{"confidence above 100", candidate("BTC", entities.OrderSideBuy, 10, 125), RejectInvalidConfidence},
		{"unknown order type", entities.ProposalCandidate{Asset: "BTC", Side: entities.OrderSideBuy, OrderType: "stop", OrderValueEur: decimal.NewFromInt(10), Confidence: 50}, RejectInvalidOrderType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckCandidate(tt.c))
		})
	}
}

func TestAccept(t *testing.T) {
	env := setup(t)
	p := env.proposeOne(t)

	res, err := env.svc.Accept(context.Background(), env.userID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ProposalStatusApproved, res.Proposal.Status)
	assert.Equal(t, []string{preflight.RuleTradingDisabled}, res.Warnings)

	actions, err := env.svc.Actions(context.Background(), env.userID, p.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, entities.ProposalActionAccept, actions[0].ActionType)
	assert.Equal(t, entities.ProposalStatusProposed, actions[0].FromStatus)
	assert.Equal(t, entities.ProposalStatusApproved, actions[0].ToStatus)

	// a second decision finds the proposal already approved
	_, err = env.svc.Decline(context.Background(), env.userID, p.ID)
	require.Error(t, err)
	assert.True(t, domainerrors.IsConflict(err))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidTransition)

	actions, err = env.svc.Actions(context.Background(), env.userID, p.ID)
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestAccept_LapsedProposalIsExpiredFirst(t *testing.T) {
	env := setup(t)
	p := env.proposeOne(t)
	env.advance(61 * time.Minute)

	_, err := env.svc.Accept(context.Background(), env.userID, p.ID)
	require.Error(t, err)
	assert.True(t, domainerrors.IsConflict(err))
	assert.True(t, domainerrors.IsExpired(err))

	got, err := env.store.Proposals.GetByID(context.Background(), env.userID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ProposalStatusExpired, got.Status)

	actions, err := env.store.Proposals.ListActions(context.Background(), env.userID, p.ID)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestModify(t *testing.T) {
	env := setup(t)
	p := env.proposeOne(t)

	value := decimal.NewFromInt(400)
	side := entities.OrderSideSell
	res, err := env.svc.Modify(context.Background(), env.userID, p.ID, entities.ProposalModification{
		OrderValueEur: &value,
		Side:          &side,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.ProposalStatusApproved, res.Proposal.Status)
	assert.True(t, res.Proposal.OrderValueEur.Equal(value))
	assert.Equal(t, entities.OrderSideSell, res.Proposal.Side)
	assert.Contains(t, res.Warnings, preflight.RuleOrderAboveMax)

	actions, err := env.svc.Actions(context.Background(), env.userID, p.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, entities.ProposalActionModify, actions[0].ActionType)
	assert.JSONEq(t, `{
		"before": {"asset": "BTC", "side": "buy", "order_value_eur": "100.00", "confidence": 75},
		"after":  {"asset": "BTC", "side": "sell", "order_value_eur": "400.00", "confidence": 75}
	}`, string(actions[0].Changes))
}

func TestModify_Validation(t *testing.T) {
	env := setup(t)
	p := env.proposeOne(t)

	badConfidence := 40
	zero := decimal.Zero
	blank := "  "
	badSide := entities.OrderSide("hold")

	for name, mod := range map[string]entities.ProposalModification{
		"empty":      {},
		"confidence": {Confidence: &badConfidence},
		"value":      {OrderValueEur: &zero},
		"asset":      {Asset: &blank},
		"side":       {Side: &badSide},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.Modify(context.Background(), env.userID, p.ID, mod)
			require.Error(t, err)
			assert.True(t, domainerrors.IsInvalidInput(err))
		})
	}

	got, err := env.svc.Get(context.Background(), env.userID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ProposalStatusProposed, got.Status)
}

func TestModify_NoActivePolicyWarns(t *testing.T) {
	env := setup(t)
	p := env.proposeOne(t)
	_, err := env.store.Policies.Deactivate(context.Background(), env.userID, env.policy.ID)
	require.NoError(t, err)

	confidence := 100
	res, err := env.svc.Modify(context.Background(), env.userID, p.ID, entities.ProposalModification{Confidence: &confidence})
	require.NoError(t, err)
	assert.Equal(t, []string{WarningNoActivePolicy}, res.Warnings)
}

func TestDecline(t *testing.T) {
	env := setup(t)
	p := env.proposeOne(t)

	res, err := env.svc.Decline(context.Background(), env.userID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ProposalStatusDeclined, res.Proposal.Status)
	assert.Empty(t, res.Warnings)
	assert.Len(t, env.recorder.OfType(events.ProposalTransitioned), 1)
}

func TestGet_OtherUser(t *testing.T) {
	env := setup(t)
	p := env.proposeOne(t)

	_, err := env.svc.Get(context.Background(), uuid.New(), p.ID)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestList(t *testing.T) {
	env := setup(t)
	first := env.proposeOne(t)
	env.advance(30 * time.Minute)
	env.proposeOne(t)
	env.advance(31 * time.Minute)

	_, err := env.svc.List(context.Background(), env.userID, "bogus", 0, 0)
	assert.True(t, domainerrors.IsInvalidInput(err))

	expired, err := env.svc.List(context.Background(), env.userID, "expired", 0, 0)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, first.ID, expired[0].ID)

	open, err := env.svc.List(context.Background(), env.userID, "PROPOSED", 0, 0)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
