package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/internal/domain/services/events"
	"github.com/tradepilot/pilot_service/pkg/metrics"
)

// ReconcileSummary counts what one reconciliation pass did
type ReconcileSummary struct {
	Checked     int `json:"checked"`
	Adopted     int `json:"adopted"`
	Failed      int `json:"failed"`
	Unreachable int `json:"unreachable"`
	Skipped     int `json:"skipped"`
	Settled     int `json:"settled"`
}

// ReconcileStale resolves executions stuck in PENDING or SUBMITTING for longer than
// staleAfter. Orders found on the exchange are adopted; rows with no order are failed
// so the user can retry the still-approved proposal. Submitted executions whose
// proposal is still APPROVED get the proposal moved to EXECUTED.
func (c *Coordinator) ReconcileStale(ctx context.Context, staleAfter time.Duration, limit int) (ReconcileSummary, error) {
	var summary ReconcileSummary
	if staleAfter < c.config.SubmittingGrace {
		staleAfter = c.config.SubmittingGrace
	}

	stale, err := c.executions.ListStale(ctx, c.now().Add(-staleAfter), limit)
	if err != nil {
		return summary, fmt.Errorf("failed to list stale executions: %w", err)
	}

	for _, exec := range stale {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Checked++
		log := c.logger.With("execution_id", exec.ID, "proposal_id", exec.ProposalID, "client_order_id", exec.ClientOrderID)

		claimed, err := c.executions.Claim(ctx, exec.ID, exec.Status, exec.UpdatedAt)
		if err != nil {
			log.Error("Failed to claim stale execution", "error", err)
			summary.Skipped++
			continue
		}
		if claimed == nil {
			summary.Skipped++
			continue
		}

		xctx, cancel := c.exchangeCtx(ctx)
		order, err := c.gateway.FindByClientOrderID(xctx, claimed.ClientOrderID)
		cancel()
		if err != nil {
			metrics.ReconciliationsTotal.WithLabelValues("unreachable").Inc()
			if rerr := c.executions.Restore(ctx, claimed.ID, exec.Status, err.Error()); rerr != nil {
				log.Error("Failed to restore execution", "error", rerr)
			}
			summary.Unreachable++
			continue
		}

		proposal, err := c.proposals.GetByID(ctx, exec.UserID, exec.ProposalID)
		if err != nil || proposal == nil {
			log.Error("Failed to load proposal for reconciliation", "error", err)
			if rerr := c.executions.Restore(ctx, claimed.ID, exec.Status, "proposal unavailable during reconciliation"); rerr != nil {
				log.Error("Failed to restore execution", "error", rerr)
			}
			summary.Skipped++
			continue
		}
		policy, err := c.policies.GetActive(ctx, exec.UserID)
		if err != nil {
			log.Warn("Failed to load policy for reconciliation notice", "error", err)
		}

		if order == nil {
			metrics.ReconciliationsTotal.WithLabelValues("not_found").Inc()
			if err := c.executions.MarkFailed(ctx, claimed.ID, "order not found on exchange during reconciliation"); err != nil {
				log.Error("Failed to fail stale execution", "error", err)
				continue
			}
			log.Info("Stale execution had no exchange order")
			summary.Failed++
			continue
		}

		metrics.ReconciliationsTotal.WithLabelValues("found").Inc()
		res, err := c.settle(ctx, proposal, policy, claimed, order, true, log)
		if err != nil {
			log.Warn("Reconciled order did not settle", "error", err)
			summary.Failed++
			continue
		}
		if res.Execution != nil && res.Execution.Status == entities.TradeExecutionSubmitted {
			summary.Adopted++
		}
	}

	if err := c.settleUnsettled(ctx, staleAfter, limit, &summary); err != nil {
		return summary, err
	}

	if summary.Checked > 0 || summary.Settled > 0 {
		c.logger.Info("Reconciliation pass finished",
			"checked", summary.Checked,
			"adopted", summary.Adopted,
			"failed", summary.Failed,
			"unreachable", summary.Unreachable,
			"skipped", summary.Skipped,
			"settled", summary.Settled)
	}
	return summary, nil
}

// settleUnsettled finishes proposals whose order was recorded but whose transition
// to EXECUTED never landed
func (c *Coordinator) settleUnsettled(ctx context.Context, staleAfter time.Duration, limit int, summary *ReconcileSummary) error {
	unsettled, err := c.executions.ListUnsettled(ctx, c.now().Add(-staleAfter), limit)
	if err != nil {
		return fmt.Errorf("failed to list unsettled executions: %w", err)
	}

	for _, exec := range unsettled {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log := c.logger.With("execution_id", exec.ID, "proposal_id", exec.ProposalID)

		proposal, err := c.proposals.GetByID(ctx, exec.UserID, exec.ProposalID)
		if err != nil || proposal == nil {
			log.Error("Failed to load proposal for settlement", "error", err)
			summary.Skipped++
			continue
		}
		if proposal.Status != entities.ProposalStatusApproved {
			continue
		}

		ok, err := c.proposals.Transition(ctx, proposal.UserID, proposal.ID, entities.ProposalStatusApproved, entities.ProposalStatusExecuted)
		if err != nil {
			log.Error("Failed to settle proposal", "error", err)
			summary.Skipped++
			continue
		}
		if !ok {
			continue
		}
		metrics.ProposalTransitionsTotal.WithLabelValues(string(entities.ProposalStatusExecuted)).Inc()
		metrics.ReconciliationsTotal.WithLabelValues("settled").Inc()
		c.publish(ctx, events.New(events.ProposalTransitioned, proposal.UserID, proposal.ID, map[string]interface{}{
			"from": entities.ProposalStatusApproved,
			"to":   entities.ProposalStatusExecuted,
		}), log)
		log.Info("Settled proposal for submitted execution")
		summary.Settled++
	}
	return nil
}
