package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
	"github.com/tradepilot/pilot_service/internal/domain/services/budget"
	"github.com/tradepilot/pilot_service/internal/domain/services/preflight"
)

// location is the user's local timezone for day boundaries
func (c *Coordinator) location(ctx context.Context, userID uuid.UUID) *time.Location {
	job, err := c.jobs.GetByUserID(ctx, userID)
	if err == nil && job != nil && job.Timezone != "" {
		return job.Location()
	}
	return c.config.DefaultLocation
}

// riskContext gathers the account state the preflight risk rules look at.
// Lookups are skipped for rules the policy does not enable.
func (c *Coordinator) riskContext(ctx context.Context, policy *entities.Policy, proposal *entities.Proposal, existing *entities.TradeExecution, now time.Time) (preflight.RiskContext, error) {
	var risk preflight.RiskContext
	rc := policy.Config.Risk

	since := budget.StartOfDay(now, c.location(ctx, proposal.UserID))
	placed, err := c.executions.CountPlacedSince(ctx, proposal.UserID, since)
	if err != nil {
		return risk, fmt.Errorf("failed to count trades: %w", err)
	}
	// a retry of an order already counted today must not be blocked by its own attempt
	if existing != nil && existing.Status == entities.TradeExecutionSubmitting && !existing.CreatedAt.Before(since) {
		placed--
	}
	risk.TradesToday = placed

	if rc.CooldownAfterLossMinutes > 0 {
		window := time.Duration(rc.CooldownAfterLossMinutes) * time.Minute
		xctx, cancel := c.exchangeCtx(ctx)
		txs, err := c.gateway.FetchTransactions(xctx, now.Add(-window))
		cancel()
		if err != nil {
			return risk, domainerrors.ExchangeTransientError(err)
		}
		for i := range txs {
			tx := txs[i]
			if !tx.RealizedPnL.IsNegative() {
				continue
			}
			if risk.LastLossAt == nil || tx.ExecutedAt.After(*risk.LastLossAt) {
				at := tx.ExecutedAt
				risk.LastLossAt = &at
			}
		}
	}

	if rc.DrawdownStopPct > 0 {
		peak, err := c.snapshots.PeakPortfolioValue(ctx, proposal.UserID, now.Add(-c.config.DrawdownWindow))
		if err != nil {
			return risk, fmt.Errorf("failed to load portfolio peak: %w", err)
		}
		latest, err := c.snapshots.GetLatest(ctx, proposal.UserID)
		if err != nil {
			return risk, fmt.Errorf("failed to load latest snapshot: %w", err)
		}
		if peak > 0 && latest != nil && latest.PortfolioValueEur < peak {
			risk.DrawdownPct = (peak - latest.PortfolioValueEur) / peak * 100
		}
	}

	if rc.NoAveragingDown && proposal.Side == entities.OrderSideBuy {
		xctx, cancel := c.exchangeCtx(ctx)
		positions, err := c.gateway.FetchPositions(xctx)
		cancel()
		if err != nil {
			return risk, domainerrors.ExchangeTransientError(err)
		}
		for _, pos := range positions {
			if strings.EqualFold(pos.Asset, proposal.Asset) && pos.UnrealizedPnL.IsNegative() {
				risk.LosingPositionInAsset = true
				break
			}
		}
	}

	return risk, nil
}
