// Package gate decides whether a market snapshot is interesting enough to spend a signal call on.
package gate

import (
	"math"

	"github.com/tradepilot/pilot_service/internal/domain/entities"
)

// Trigger names recorded on snapshots
const (
	TriggerVolatility24h = "volatility_24h"
	TriggerMove1h        = "move_1h"
	TriggerMove4h        = "move_4h"
	TriggerVolumeZ       = "volume_z"
)

// Result lists the thresholds a snapshot crossed
type Result struct {
	Fired    bool
	Triggers []string
}

// Evaluate checks the snapshot against the thresholds. The gate fires when any single
// metric reaches its threshold; moves are compared by absolute value. Triggers are
// always reported in the same order.
func Evaluate(cfg entities.GateConfig, snap *entities.MarketSnapshot) Result {
	triggers := make([]string, 0, 4)

	if snap.Volatility24hPct >= cfg.Volatility24hPct {
		triggers = append(triggers, TriggerVolatility24h)
	}
	if math.Abs(snap.Move1hPct) >= cfg.Move1hPct {
		triggers = append(triggers, TriggerMove1h)
	}
	if math.Abs(snap.Move4hPct) >= cfg.Move4hPct {
		triggers = append(triggers, TriggerMove4h)
	}
	if snap.VolumeZ >= cfg.VolumeZ {
		triggers = append(triggers, TriggerVolumeZ)
	}

	return Result{Fired: len(triggers) > 0, Triggers: triggers}
}
