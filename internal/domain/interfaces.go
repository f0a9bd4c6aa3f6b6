package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExchangeWorker defines the interface for exchange WebSocket connectors
type ExchangeWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// OrderBookSource returns a book for a symbol or fails with DataUnavailableError.
type OrderBookSource interface {
	OrderBook(ctx context.Context, symbol string) (OrderBookSnapshot, error)
}

// OrderPlacer sends an order to the venue named in the request.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Venue is a tradable market that can both quote and execute.
type Venue interface {
	OrderBookSource
	OrderPlacer
	Name() string
}

// PriceSource returns a reference price for a symbol.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PositionStore holds positions per account. Get returns (nil, nil) when absent.
type PositionStore interface {
	GetPosition(ctx context.Context, account, symbol string) (*Position, error)
	UpsertPosition(ctx context.Context, account string, p Position) error
	ListPositions(ctx context.Context, account string) (map[string]Position, error)
	// UpdatePosition applies fn to the stored position in one transaction.
	UpdatePosition(ctx context.Context, account, symbol string, fn func(*Position) error) error
}

// EventSink is the append-only hedge audit log.
type EventSink interface {
	AppendEvent(ctx context.Context, ev HedgeEvent) error
}

// SettingsStore persists operator overrides that must survive a restart.
type SettingsStore interface {
	SaveSetting(ctx context.Context, key, value string) error
	LoadSettings(ctx context.Context) (map[string]string, error)
}

// Notifier delivers operator messages for an account.
type Notifier interface {
	Notify(ctx context.Context, account, message string) error
}
