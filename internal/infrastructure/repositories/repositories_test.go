package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainrepos "github.com/tradepilot/pilot_service/internal/domain/repositories"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

var policyCols = []string{"id", "user_id", "name", "preset_key", "is_active", "version", "config",
	"allowlist", "blocklist", "reporting", "notify_email", "created_at", "updated_at"}

func TestPolicyRepository_Activate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPolicyRepository(db, zap.NewNop())

	userID := uuid.New()
	policyID := uuid.New()
	now := time.Now().UTC()
	cfg := []byte(`{"scan":{"mode":"scheduled","interval_minutes":60,"max_scans_per_day":24}}`)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT id FROM policies WHERE user_id = $1 FOR UPDATE`)).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE policies SET is_active = FALSE`).
		WithArgs(userID, policyID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE policies SET is_active = TRUE`).
		WithArgs(policyID, userID).
		WillReturnRows(sqlmock.NewRows(policyCols).AddRow(
			policyID.String(), userID.String(), "Balanced", "balanced", true, 3, cfg,
			[]byte("{BTC,ETH}"), []byte("{}"), "summary", "owner@example.com", now, now,
		))
	mock.ExpectCommit()

	p, err := repo.Activate(context.Background(), userID, policyID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.IsActive)
	assert.Equal(t, 3, p.Version)
	assert.Equal(t, []string{"BTC", "ETH"}, p.Allowlist)
	assert.Equal(t, 60, p.Config.Scan.IntervalMinutes)
	assert.Equal(t, "owner@example.com", p.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepository_Deactivate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPolicyRepository(db, zap.NewNop())

	userID := uuid.New()
	policyID := uuid.New()
	now := time.Now().UTC()
	cfg := []byte(`{"scan":{"mode":"manual","interval_minutes":240,"max_scans_per_day":6}}`)

	mock.ExpectQuery(`UPDATE policies SET is_active = FALSE`).
		WithArgs(policyID, userID).
		WillReturnRows(sqlmock.NewRows(policyCols).AddRow(
			policyID.String(), userID.String(), "Observer", "observer", false, 2, cfg,
			[]byte("{BTC}"), []byte("{DOGE}"), "verbose", "trader@example.com", now, now,
		))

	p, err := repo.Deactivate(context.Background(), userID, policyID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.False(t, p.IsActive)
	assert.Equal(t, "trader@example.com", p.Email)
	assert.Equal(t, []string{"DOGE"}, p.Blocklist)
	assert.Equal(t, entities.ReportingVerbosity("verbose"), p.Reporting)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepository_DeactivateUnknownPolicy(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPolicyRepository(db, zap.NewNop())

	mock.ExpectQuery(`UPDATE policies SET is_active = FALSE`).WillReturnRows(sqlmock.NewRows(policyCols))

	p, err := repo.Deactivate(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepository_ActivateUnknownPolicy(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPolicyRepository(db, zap.NewNop())

	userID := uuid.New()
	policyID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT id FROM policies`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE policies SET is_active = FALSE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`UPDATE policies SET is_active = TRUE`).WillReturnRows(sqlmock.NewRows(policyCols))
	mock.ExpectCommit()

	p, err := repo.Activate(context.Background(), userID, policyID)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanJobRepository_Claim(t *testing.T) {
	jobID := uuid.New()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "lease taken", affected: 1, want: true},
		{name: "held by another worker", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewScanJobRepository(db, zap.NewNop())

			mock.ExpectExec(`UPDATE scan_jobs`).
				WithArgs(jobID, "worker-1", now.Add(5*time.Minute), now).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := repo.Claim(context.Background(), jobID, "worker-1", now, 5*time.Minute)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestScanJobRepository_CompleteRunLockLost(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScanJobRepository(db, zap.NewNop())

	jobID := uuid.New()
	mock.ExpectExec(`UPDATE scan_jobs`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CompleteRun(context.Background(), jobID, "worker-1", entities.ScanRunUpdate{NextRunAt: time.Now()})
	assert.ErrorIs(t, err, domainrepos.ErrLockLost)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewExecutionRepository(db, zap.NewNop())

	mock.ExpectQuery(`INSERT INTO trade_executions`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_trade_executions_proposal"})

	err := repo.Create(context.Background(), &entities.TradeExecution{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		ProposalID: uuid.New(),
		Status:     entities.TradeExecutionPending,
		Quantity:   decimal.Zero,
		Price:      decimal.Zero,
		FeeEur:     decimal.Zero,
	})
	assert.ErrorIs(t, err, domainrepos.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_ClaimLost(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewExecutionRepository(db, zap.NewNop())

	id := uuid.New()
	updatedAt := time.Now().UTC()

	mock.ExpectQuery(`UPDATE trade_executions`).
		WithArgs(id, "PENDING", updatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	e, err := repo.Claim(context.Background(), id, entities.TradeExecutionPending, updatedAt)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_ListUnsettled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewExecutionRepository(db, zap.NewNop())

	olderThan := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE e.status = 'SUBMITTED' AND p.status = 'APPROVED'`)).
		WithArgs(olderThan, 25).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	out, err := repo.ListUnsettled(context.Background(), olderThan, 25)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrefixColumns(t *testing.T) {
	assert.Equal(t, "e.id, e.user_id, e.status", prefixColumns("e", "id, user_id,\n\t\tstatus"))
}

func TestProposalRepository_ApplyDecision(t *testing.T) {
	proposalCols := []string{"id", "user_id", "status", "asset", "side", "order_type", "order_value_eur",
		"limit_price", "confidence", "rationale", "created_by", "snapshot_id", "policy_id", "policy_version",
		"preflight_violations", "expires_at", "created_at", "updated_at"}

	userID := uuid.New()
	proposalID := uuid.New()
	now := time.Now().UTC()

	decision := domainrepos.ProposalDecision{
		ProposalID: proposalID,
		UserID:     userID,
		From:       entities.ProposalStatusProposed,
		To:         entities.ProposalStatusApproved,
		Now:        now,
		Action:     &entities.ProposalAction{ActionType: entities.ProposalActionAccept},
	}

	t.Run("writes transition and action together", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProposalRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE proposals`).
			WithArgs(proposalID, userID, "PROPOSED", "APPROVED", now).
			WillReturnRows(sqlmock.NewRows(proposalCols).AddRow(
				proposalID.String(), userID.String(), "APPROVED", "BTC", "buy", "market", "100",
				nil, 75, "breakout", "signal_generator", nil, nil, 1,
				[]byte("{}"), now.Add(time.Hour), now, now,
			))
		mock.ExpectExec(`INSERT INTO proposal_actions`).
			WithArgs(sqlmock.AnyArg(), proposalID, userID, "accept", "PROPOSED", "APPROVED", nil, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		p, err := repo.ApplyDecision(context.Background(), decision)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, entities.ProposalStatusApproved, p.Status)
		assert.True(t, p.OrderValueEur.Equal(decimal.NewFromInt(100)))
		assert.Empty(t, p.PreflightViolations)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no action row when precondition fails", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProposalRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE proposals`).WillReturnRows(sqlmock.NewRows(proposalCols))
		mock.ExpectCommit()

		p, err := repo.ApplyDecision(context.Background(), decision)
		require.NoError(t, err)
		assert.Nil(t, p)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTradingFlagRepository_GetOrCreateDefaultsDisabled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradingFlagRepository(db)

	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO trading_flags`).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT user_id, enabled`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "enabled", "created_at", "updated_at"}).
			AddRow(userID.String(), false, now, now))

	flag, err := repo.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, flag.Enabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_PeakPortfolioValueEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db)

	userID := uuid.New()
	since := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectQuery(`SELECT MAX\(portfolio_value_eur\)`).
		WithArgs(userID, since).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	peak, err := repo.PeakPortfolioValue(context.Background(), userID, since)
	require.NoError(t, err)
	assert.Zero(t, peak)
	assert.NoError(t, mock.ExpectationsWereMet())
}
