package strategy

import (
	"time"

	"hedge_go/internal/domain"
)

// Decision reasons attached to domain.HedgeDecision.Reason.
const (
	ReasonWithinThreshold = "within_threshold"
	ReasonCooldown        = "cooldown"
	ReasonRebalance       = "rebalance"
)

// Input is what a policy sees at one monitoring tick.
type Input struct {
	Symbol         string
	CurrentDelta   float64
	SinceLastHedge time.Duration
	HasHedged      bool // false until the first successful hedge
}

// HedgePolicy decides whether and how much to hedge.
// It is called synchronously by the HedgeMonitor, once per tick.
type HedgePolicy interface {
	Evaluate(in Input) domain.HedgeDecision
}
