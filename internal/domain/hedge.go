package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HedgeAction is the outcome of one hedge evaluation.
type HedgeAction int

const (
	ActionNone HedgeAction = iota
	ActionBuy
	ActionSell
)

// String returns the string representation of HedgeAction
func (a HedgeAction) String() string {
	switch a {
	case ActionNone:
		return "NONE"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Side maps a trading action to an order side. ActionNone has no side.
func (a HedgeAction) Side() (Side, bool) {
	switch a {
	case ActionBuy:
		return SideBuy, true
	case ActionSell:
		return SideSell, true
	default:
		return "", false
	}
}

// HedgeDecision is produced once per monitoring tick.
// Size is the absolute order quantity; the direction is in Action.
type HedgeDecision struct {
	Symbol       string      `json:"symbol"`
	TargetDelta  float64     `json:"target_delta"`
	CurrentDelta float64     `json:"current_delta"`
	Threshold    float64     `json:"threshold"`
	Action       HedgeAction `json:"action"`
	Size         float64     `json:"size"`
	Reason       string      `json:"reason,omitempty"`
}

// HedgeStatus is the final state of an executed hedge.
type HedgeStatus string

const (
	HedgeStatusSuccess HedgeStatus = "success"
	HedgeStatusFailed  HedgeStatus = "failed"
)

// HedgeEvent is an immutable record of an executed or failed hedge.
type HedgeEvent struct {
	ID                string          `json:"id"`
	Timestamp         time.Time       `json:"timestamp"`
	Account           string          `json:"account"`
	Symbol            string          `json:"symbol"`
	Side              Side            `json:"side"`
	Size              decimal.Decimal `json:"size"`
	Venue             string          `json:"venue,omitempty"`
	FillPriceEstimate decimal.Decimal `json:"fill_price_estimate"`
	Status            HedgeStatus     `json:"status"`
	Error             string          `json:"error,omitempty"`
}

// MonitorState is the HedgeMonitor state machine position.
type MonitorState int32

const (
	StateIdle MonitorState = iota
	StateEvaluating
	StateCooldown
	StateExecuting
)

func (s MonitorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateCooldown:
		return "cooldown"
	case StateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}
