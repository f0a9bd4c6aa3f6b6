package domain

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Level is one price level of an order book.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBookSnapshot is a point-in-time view of one venue's book.
// Asks are sorted ascending, bids descending; best price first on both sides.
type OrderBookSnapshot struct {
	Venue     string    `json:"venue"`
	Symbol    string    `json:"symbol"`
	Asks      []Level   `json:"asks"`
	Bids      []Level   `json:"bids"`
	Timestamp time.Time `json:"ts"`
}

// NewOrderBookSnapshot builds a snapshot, dropping non-positive levels and
// restoring priority order on both sides.
func NewOrderBookSnapshot(venue, symbol string, asks, bids []Level, ts time.Time) OrderBookSnapshot {
	return OrderBookSnapshot{
		Venue:     venue,
		Symbol:    symbol,
		Asks:      normalizeLevels(asks, true),
		Bids:      normalizeLevels(bids, false),
		Timestamp: ts,
	}
}

func normalizeLevels(levels []Level, ascending bool) []Level {
	out := make([]Level, 0, len(levels))
	for _, l := range levels {
		if l.Price.IsPositive() && l.Size.IsPositive() {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].Price.LessThan(out[j].Price)
		}
		return out[i].Price.GreaterThan(out[j].Price)
	})
	return out
}

// Levels returns the side a taker on `side` consumes: asks for a buy, bids for a sell.
func (b OrderBookSnapshot) Levels(side Side) []Level {
	if side == SideSell {
		return b.Bids
	}
	return b.Asks
}

// BestPrice returns the top of the side a taker on `side` consumes.
func (b OrderBookSnapshot) BestPrice(side Side) (decimal.Decimal, bool) {
	levels := b.Levels(side)
	if len(levels) == 0 {
		return decimal.Zero, false
	}
	return levels[0].Price, true
}

// MidPrice returns (best ask + best bid) / 2. False if either side is empty.
func (b OrderBookSnapshot) MidPrice() (decimal.Decimal, bool) {
	if len(b.Asks) == 0 || len(b.Bids) == 0 {
		return decimal.Zero, false
	}
	return b.Asks[0].Price.Add(b.Bids[0].Price).Div(decimal.NewFromInt(2)), true
}

// Depth returns the cumulative size on the side a taker on `side` consumes.
func (b OrderBookSnapshot) Depth(side Side) decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Levels(side) {
		total = total.Add(l.Size)
	}
	return total
}

// Age returns how old the snapshot is relative to now.
func (b OrderBookSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(b.Timestamp)
}

// VenueQuote is the top-of-book price of one venue for a given side.
type VenueQuote struct {
	Venue     string          `json:"venue"`
	BestPrice decimal.Decimal `json:"best_price"`
}

// QuoteFromBook derives a VenueQuote for `side`. False if that side is empty.
func QuoteFromBook(b OrderBookSnapshot, side Side) (VenueQuote, bool) {
	price, ok := b.BestPrice(side)
	if !ok {
		return VenueQuote{}, false
	}
	return VenueQuote{Venue: b.Venue, BestPrice: price}, true
}

// ParseLevels converts exchange [price, size, ...] string rows into levels.
// Extra columns are ignored.
func ParseLevels(rows [][]string) ([]Level, error) {
	levels := make([]Level, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("level %d: expected [price, size], got %d fields", i, len(row))
		}
		price, err := decimal.NewFromString(row[0])
		if err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		size, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, fmt.Errorf("level %d size: %w", i, err)
		}
		levels = append(levels, Level{Price: price, Size: size})
	}
	return levels, nil
}

// ParseMillis parses a millisecond epoch string, falling back to fallback on error.
func ParseMillis(s string, fallback time.Time) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}
