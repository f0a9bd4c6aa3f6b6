package domain

import (
	"errors"
	"fmt"
	"time"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "orderbook", "place_order")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ======================================================================================
// Risk & Execution Errors
// ======================================================================================

// InvalidInputError is returned when a numeric input is outside its domain,
// e.g. non-positive volatility or time to expiry.
type InvalidInputError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %s=%g: %s", e.Field, e.Value, e.Reason)
}

// InsufficientDataError is returned by statistics over an empty series.
type InsufficientDataError struct {
	Metric string
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d, need %d", e.Metric, e.Have, e.Need)
}

// InsufficientLiquidityError is returned when a book cannot fill the requested size.
type InsufficientLiquidityError struct {
	Symbol    string
	Side      Side
	Requested string
	Available string
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("insufficient liquidity for %s %s: requested %s, available %s",
		e.Side, e.Symbol, e.Requested, e.Available)
}

// NoLiquidityError is returned when no venue produced a usable quote.
type NoLiquidityError struct {
	Symbol string
	Side   Side
	Err    error // Last rejection reason, if any
}

func (e *NoLiquidityError) Error() string {
	msg := fmt.Sprintf("no liquidity for %s %s", e.Side, e.Symbol)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NoLiquidityError) Unwrap() error {
	return e.Err
}

// UnsupportedInstrumentError is returned for an unknown instrument kind.
type UnsupportedInstrumentError struct {
	Symbol string
	Kind   string
}

func (e *UnsupportedInstrumentError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("unsupported instrument kind %q", e.Kind)
	}
	return fmt.Sprintf("unsupported instrument kind %q for %s", e.Kind, e.Symbol)
}

// DataUnavailableError wraps an upstream market-data failure. Retriable.
type DataUnavailableError struct {
	Source string
	Symbol string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("market data unavailable from %s for %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *DataUnavailableError) IsRetriable() bool {
	return true
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// ExecutionTimeoutError is returned when order placement exceeds its deadline.
type ExecutionTimeoutError struct {
	Venue   string
	Symbol  string
	Timeout time.Duration
	Err     error
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("order on %s for %s timed out after %s", e.Venue, e.Symbol, e.Timeout)
}

func (e *ExecutionTimeoutError) IsRetriable() bool {
	return true
}

func (e *ExecutionTimeoutError) Unwrap() error {
	return e.Err
}

var (
	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrInvalidSymbol is returned when a symbol is not supported or malformed. Not retriable.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrMonitorExists is returned when a monitor is already running for an account/symbol pair.
	ErrMonitorExists = errors.New("monitor already running")

	// ErrMonitorNotFound is returned when no monitor is registered for an account/symbol pair.
	ErrMonitorNotFound = errors.New("monitor not found")

	// ErrUnknownVenue is returned when an order targets a venue that is not registered.
	ErrUnknownVenue = errors.New("unknown venue")

	// ErrOrderRejected is returned when a venue answers with a non-success status.
	ErrOrderRejected = errors.New("order rejected")

	// ErrPositionNotFound is returned by read-modify-write on a missing position.
	ErrPositionNotFound = errors.New("position not found")
)
