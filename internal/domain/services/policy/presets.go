package policy

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
)

// Preset keys
const (
	PresetObserver = "observer"
	PresetBalanced = "balanced"
	PresetActive   = "active"
)

var defaultAllowlist = []string{"BTC", "ETH", "SOL"}

func defaultGate() entities.GateConfig {
	return entities.GateConfig{
		Volatility24hPct: 5,
		Move1hPct:        2,
		Move4hPct:        4,
		VolumeZ:          2.0,
	}
}

type presetTemplate struct {
	name        string
	description string
	interval    int
	callsDay    int
	callsHour   int
	minEur      int64
	maxEur      int64
	dailyTrades int
	confidence  []int
	minConf     int
}

var presetTemplates = map[string]presetTemplate{
	PresetObserver: {
		name:        "Observer",
		description: "Watches the market and proposes only high-confidence ideas. Never trades.",
		interval:    240,
		callsDay:    6,
		callsHour:   1,
		minEur:      10,
		maxEur:      50,
		dailyTrades: 0,
		confidence:  []int{75, 100},
		minConf:     75,
	},
	PresetBalanced: {
		name:        "Balanced",
		description: "Hourly scans with up to three trades a day.",
		interval:    60,
		callsDay:    24,
		callsHour:   5,
		minEur:      10,
		maxEur:      250,
		dailyTrades: 3,
		confidence:  []int{50, 75, 100},
		minConf:     50,
	},
	PresetActive: {
		name:        "Active",
		description: "Scans every 30 minutes and accepts lower-confidence ideas.",
		interval:    30,
		callsDay:    48,
		callsHour:   5,
		minEur:      10,
		maxEur:      500,
		dailyTrades: 6,
		confidence:  []int{25, 50, 75, 100},
		minConf:     25,
	},
}

// NewFromPreset builds a fresh preset template. Every call returns new slices,
// so callers may mutate the result.
func NewFromPreset(key string) (entities.PolicyPreset, bool) {
	tmpl, ok := presetTemplates[key]
	if !ok {
		return entities.PolicyPreset{}, false
	}

	allowlist := make([]string, len(defaultAllowlist))
	copy(allowlist, defaultAllowlist)
	confidence := make([]int, len(tmpl.confidence))
	copy(confidence, tmpl.confidence)

	return entities.PolicyPreset{
		Key:         key,
		Name:        tmpl.name,
		Description: tmpl.description,
		Config: entities.PolicyConfig{
			Scan: entities.ScanConfig{
				Mode:            entities.ScanModeScheduled,
				IntervalMinutes: tmpl.interval,
				MaxScansPerDay:  24 * 60 / tmpl.interval,
			},
			Budget: entities.BudgetConfig{
				MaxSignalCallsPerDay:  tmpl.callsDay,
				MaxSignalCallsPerHour: tmpl.callsHour,
			},
			Gate: defaultGate(),
			Risk: entities.RiskConfig{
				MinOrderValueEur:         decimal.NewFromInt(tmpl.minEur),
				MaxOrderValueEur:         decimal.NewFromInt(tmpl.maxEur),
				MaxDailyTrades:           tmpl.dailyTrades,
				CooldownAfterLossMinutes: 60,
				DrawdownStopPct:          10,
				NoAveragingDown:          true,
			},
			Signal: entities.SignalConfig{
				MinConfidence:     tmpl.minConf,
				AllowedConfidence: confidence,
			},
		},
		Allowlist: allowlist,
		Reporting: entities.ReportingSummary,
	}, true
}

// Presets returns every preset ordered by key
func Presets() []entities.PolicyPreset {
	keys := make([]string, 0, len(presetTemplates))
	for k := range presetTemplates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]entities.PolicyPreset, 0, len(keys))
	for _, k := range keys {
		p, _ := NewFromPreset(k)
		out = append(out, p)
	}
	return out
}
