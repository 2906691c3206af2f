package signal

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/internal/domain/services/scan"
)

const maxRuleCandidates = 3

var _ scan.SignalGenerator = (*RuleBased)(nil)

// RuleBased derives candidates from the gate triggers alone. It makes no network
// calls and is used when no external generator is configured.
type RuleBased struct{}

// NewRuleBased creates a deterministic generator
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

// Generate proposes one order per eligible asset of the snapshot
func (r *RuleBased) Generate(ctx context.Context, req *entities.SignalRequest) ([]entities.ProposalCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil || req.Policy == nil || req.Snapshot == nil {
		return nil, fmt.Errorf("signal request requires policy and snapshot")
	}
	snap := req.Snapshot
	if len(snap.GateTriggers) == 0 {
		return nil, nil
	}

	confidence := ruleConfidence(len(snap.GateTriggers))
	side := entities.OrderSideBuy
	if snap.Move1hPct < 0 && snap.Move4hPct < 0 {
		side = entities.OrderSideSell
	}
	value := ruleOrderValue(req.Policy.Config.Risk)
	rationale := fmt.Sprintf("gate fired on %s (1h %.2f%%, 4h %.2f%%)",
		strings.Join(snap.GateTriggers, ", "), snap.Move1hPct, snap.Move4hPct)

	candidates := make([]entities.ProposalCandidate, 0, maxRuleCandidates)
	for _, asset := range snap.Assets {
		asset = strings.ToUpper(strings.TrimSpace(asset))
		if asset == "" || !eligible(req.Policy, asset) {
			continue
		}
		candidates = append(candidates, entities.ProposalCandidate{
			Asset:         asset,
			Side:          side,
			OrderType:     entities.OrderTypeMarket,
			OrderValueEur: value,
			Confidence:    confidence,
			Rationale:     rationale,
		})
		if len(candidates) == maxRuleCandidates {
			break
		}
	}
	return candidates, nil
}

func ruleConfidence(triggers int) int {
	switch {
	case triggers >= 3:
		return 100
	case triggers == 2:
		return 75
	default:
		return 50
	}
}

// ruleOrderValue sizes at twice the minimum, never above the maximum
func ruleOrderValue(risk entities.RiskConfig) decimal.Decimal {
	value := risk.MinOrderValueEur.Mul(decimal.NewFromInt(2))
	if value.IsZero() {
		value = risk.MaxOrderValueEur
	}
	if risk.MaxOrderValueEur.IsPositive() && value.GreaterThan(risk.MaxOrderValueEur) {
		value = risk.MaxOrderValueEur
	}
	return value.Round(2)
}

func eligible(p *entities.Policy, asset string) bool {
	for _, b := range p.Blocklist {
		if strings.EqualFold(b, asset) {
			return false
		}
	}
	if len(p.Allowlist) == 0 {
		return true
	}
	for _, a := range p.Allowlist {
		if strings.EqualFold(a, asset) {
			return true
		}
	}
	return false
}
