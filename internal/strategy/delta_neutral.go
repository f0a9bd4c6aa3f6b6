package strategy

import (
	"fmt"
	"math"
	"time"

	"hedge_go/internal/domain"
)

// Params configures DeltaNeutral.
type Params struct {
	TargetDelta   float64
	Threshold     float64
	HedgeFraction float64
	Cooldown      time.Duration
}

// Validate rejects parameters the policy cannot act on.
func (p Params) Validate() error {
	if p.Threshold < 0 || math.IsNaN(p.Threshold) {
		return fmt.Errorf("threshold must be non-negative, got %v", p.Threshold)
	}
	if !(p.HedgeFraction > 0 && p.HedgeFraction <= 1) {
		return fmt.Errorf("hedge fraction must be in (0, 1], got %v", p.HedgeFraction)
	}
	if p.Cooldown < 0 {
		return fmt.Errorf("cooldown must be non-negative, got %s", p.Cooldown)
	}
	return nil
}

// DeltaNeutral closes a fraction of the gap between current and target delta
// once it exceeds a threshold, at most once per cooldown period.
// It is stateless; the monitor owns the last hedge time.
type DeltaNeutral struct {
	params Params
}

// NewDeltaNeutral creates a new instance.
func NewDeltaNeutral(p Params) (*DeltaNeutral, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &DeltaNeutral{params: p}, nil
}

// Params returns the active parameters.
func (s *DeltaNeutral) Params() Params {
	return s.params
}

// Evaluate implements HedgePolicy.
func (s *DeltaNeutral) Evaluate(in Input) domain.HedgeDecision {
	p := s.params
	dec := domain.HedgeDecision{
		Symbol:       in.Symbol,
		TargetDelta:  p.TargetDelta,
		CurrentDelta: in.CurrentDelta,
		Threshold:    p.Threshold,
		Action:       domain.ActionNone,
	}

	// 1. Inside the band
	if math.Abs(in.CurrentDelta-p.TargetDelta) <= p.Threshold {
		dec.Reason = ReasonWithinThreshold
		return dec
	}

	// 2. Too soon after the previous hedge
	if in.HasHedged && in.SinceLastHedge < p.Cooldown {
		dec.Reason = ReasonCooldown
		return dec
	}

	// 3. Rebalance
	size := (p.TargetDelta - in.CurrentDelta) * p.HedgeFraction
	dec.Action = domain.ActionBuy
	if in.CurrentDelta > p.TargetDelta {
		dec.Action = domain.ActionSell
	}
	dec.Size = math.Abs(size)
	dec.Reason = ReasonRebalance
	return dec
}
