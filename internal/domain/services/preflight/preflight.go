// Package preflight checks a proposed order against the user's policy and risk state.
// Validate is pure: identical inputs always yield the identical, ordered violation list.
package preflight

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
)

// Rule codes
const (
	RuleTradingDisabled      = "trading_disabled"
	RuleOrderBelowMin        = "order_value_below_min"
	RuleOrderAboveMax        = "order_value_above_max"
	RuleConfidenceNotAllowed = "confidence_not_allowed"
	RuleConfidenceBelowMin   = "confidence_below_min"
	RuleAllowlistEmpty       = "allowlist_empty"
	RuleAssetNotAllowlisted  = "asset_not_allowlisted"
	RuleAssetBlocklisted     = "asset_blocklisted"
	RuleDailyTradeLimit      = "daily_trade_limit_reached"
	RuleCooldownAfterLoss    = "cooldown_after_loss"
	RuleDrawdownStop         = "drawdown_stop"
	RuleAveragingDown        = "averaging_down"
)

// Order is the part of a proposal preflight looks at
type Order struct {
	Asset         string
	Side          entities.OrderSide
	OrderValueEur decimal.Decimal
	Confidence    int
}

// OrderFromProposal extracts the order fields
func OrderFromProposal(p *entities.Proposal) Order {
	return Order{
		Asset:         p.Asset,
		Side:          p.Side,
		OrderValueEur: p.OrderValueEur,
		Confidence:    p.Confidence,
	}
}

// RiskContext is the account state the risk rules need
type RiskContext struct {
	TradesToday int
	// LastLossAt is when the most recent losing trade closed, nil if none is known
	LastLossAt *time.Time
	// DrawdownPct is the drop from the recent portfolio peak, as a positive percentage
	DrawdownPct float64
	// LosingPositionInAsset is true when the user already holds the asset at an unrealized loss
	LosingPositionInAsset bool
}

// Input is everything Validate needs. Now is explicit so the check stays pure.
type Input struct {
	Policy         *entities.Policy
	Order          Order
	TradingEnabled bool
	Risk           RiskContext
	Now            time.Time
}

// Result lists every violated rule in a fixed order
type Result struct {
	Passed     bool     `json:"passed"`
	Violations []string `json:"violations"`
}

// Validate runs every rule and returns all violations, not just the first
func Validate(in Input) Result {
	v := make([]string, 0)
	p := in.Policy
	risk := p.Config.Risk
	asset := strings.ToUpper(strings.TrimSpace(in.Order.Asset))

	if !in.TradingEnabled {
		v = append(v, RuleTradingDisabled)
	}

	if in.Order.OrderValueEur.LessThan(risk.MinOrderValueEur) {
		v = append(v, RuleOrderBelowMin)
	}
	if in.Order.OrderValueEur.GreaterThan(risk.MaxOrderValueEur) {
		v = append(v, RuleOrderAboveMax)
	}

	if !p.ConfidenceAllowed(in.Order.Confidence) {
		v = append(v, RuleConfidenceNotAllowed)
	}
	if in.Order.Confidence < p.Config.Signal.MinConfidence {
		v = append(v, RuleConfidenceBelowMin)
	}

	// an empty allowlist denies every asset
	if len(p.Allowlist) == 0 {
		v = append(v, RuleAllowlistEmpty)
	} else if !contains(p.Allowlist, asset) {
		v = append(v, RuleAssetNotAllowlisted)
	}
	if contains(p.Blocklist, asset) {
		v = append(v, RuleAssetBlocklisted)
	}

	if in.Risk.TradesToday >= risk.MaxDailyTrades {
		v = append(v, RuleDailyTradeLimit)
	}

	if risk.CooldownAfterLossMinutes > 0 && in.Risk.LastLossAt != nil {
		cooldown := time.Duration(risk.CooldownAfterLossMinutes) * time.Minute
		if in.Now.Before(in.Risk.LastLossAt.Add(cooldown)) {
			v = append(v, RuleCooldownAfterLoss)
		}
	}

	if risk.DrawdownStopPct > 0 && in.Risk.DrawdownPct >= risk.DrawdownStopPct {
		v = append(v, RuleDrawdownStop)
	}

	if risk.NoAveragingDown && in.Order.Side == entities.OrderSideBuy && in.Risk.LosingPositionInAsset {
		v = append(v, RuleAveragingDown)
	}

	return Result{Passed: len(v) == 0, Violations: v}
}

func contains(list []string, asset string) bool {
	for _, a := range list {
		if strings.EqualFold(a, asset) {
			return true
		}
	}
	return false
}
