package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Lower returns the lowercase form most venue APIs expect.
func (s Side) Lower() string {
	return strings.ToLower(string(s))
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus is the outcome reported by a venue.
type OrderStatus string

const (
	OrderStatusSuccess OrderStatus = "SUCCESS"
	OrderStatusError   OrderStatus = "ERROR"
)

// OrderRequest is a hedge order addressed to one venue.
type OrderRequest struct {
	ClientID string          // Idempotency key sent to the venue
	Venue    string          // Target venue, e.g. "bybit"
	Symbol   string          // Unified symbol, e.g. "BTCUSDT"
	Side     Side            // BUY or SELL
	Type     OrderType       // MARKET or LIMIT
	Qty      decimal.Decimal // Base quantity, always positive
	Price    decimal.Decimal // Limit price. Zero for market orders.
}

// FillInfo carries whatever fill details a venue returned.
// The engine never relies on it for cost accounting.
type FillInfo struct {
	OrderID   string
	FilledQty decimal.Decimal
	AvgPrice  decimal.Decimal
}

// OrderResult is the venue's answer to an OrderRequest.
type OrderResult struct {
	Status OrderStatus
	Fill   *FillInfo
	Err    error
}

// IsSuccess reports whether the venue confirmed the order.
func (r OrderResult) IsSuccess() bool {
	return r.Status == OrderStatusSuccess && r.Err == nil
}
