package entities

import (
	"time"

	"github.com/google/uuid"
)

// PulseRequest asks the market pulse generator for a cheap snapshot of the user's assets
type PulseRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Assets []string  `json:"assets"`
	Quote  string    `json:"quote"`
}

// PulseMetrics is what the pulse generator returns
type PulseMetrics struct {
	Volatility24hPct  float64   `json:"volatility_24h_pct"`
	Move1hPct         float64   `json:"move_1h_pct"`
	Move4hPct         float64   `json:"move_4h_pct"`
	VolumeZ           float64   `json:"volume_z"`
	PortfolioValueEur float64   `json:"portfolio_value_eur"`
	ObservedAt        time.Time `json:"observed_at"`
}

// SignalRequest is sent to the signal generator when the gate fires
type SignalRequest struct {
	Policy   *Policy         `json:"policy"`
	Snapshot *MarketSnapshot `json:"snapshot"`
}

// SignalResponse is the signal generator's reply. Candidates are untrusted.
type SignalResponse struct {
	Candidates []ProposalCandidate `json:"candidates"`
}
