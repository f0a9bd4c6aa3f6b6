package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hedge_go/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperFill is one simulated execution.
type PaperFill struct {
	OrderID  string
	ClientID string
	Symbol   string
	Side     domain.Side
	Qty      decimal.Decimal
	AvgPrice decimal.Decimal
	Fee      decimal.Decimal
	Time     time.Time
}

// PaperVenue fills orders against live books without sending them anywhere.
// Market orders walk the book; limit orders must be marketable at the limit.
type PaperVenue struct {
	name    string
	books   domain.OrderBookSource
	feeRate decimal.Decimal

	mu        sync.RWMutex
	fills     []PaperFill
	positions map[string]decimal.Decimal
	logger    *slog.Logger
}

// NewPaperVenue creates a paper venue named `name` quoting from books.
func NewPaperVenue(name string, books domain.OrderBookSource, feeRate decimal.Decimal) *PaperVenue {
	return &PaperVenue{
		name:      name,
		books:     books,
		feeRate:   feeRate,
		positions: make(map[string]decimal.Decimal),
		logger:    slog.Default().With("module", "paper", "venue", name),
	}
}

func (p *PaperVenue) Name() string { return p.name }

// OrderBook delegates to the underlying source.
func (p *PaperVenue) OrderBook(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	book, err := p.books.OrderBook(ctx, symbol)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	book.Venue = p.name
	return book, nil
}

// PlaceOrder simulates execution of req.
func (p *PaperVenue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	fail := func(err error) (domain.OrderResult, error) {
		return domain.OrderResult{Status: domain.OrderStatusError, Err: err}, err
	}

	book, err := p.OrderBook(ctx, req.Symbol)
	if err != nil {
		return fail(err)
	}

	if req.Type == domain.OrderTypeLimit {
		best, ok := book.BestPrice(req.Side)
		if !ok {
			return fail(&domain.InsufficientLiquidityError{Symbol: req.Symbol, Side: req.Side, Requested: req.Qty.String(), Available: "0"})
		}
		if better(req.Side, req.Price, best) {
			return fail(fmt.Errorf("%w: limit %s not marketable against %s", domain.ErrOrderRejected, req.Price, best))
		}
	}

	fill, err := EstimateFill(book, req.Qty, req.Side)
	if err != nil {
		return fail(err)
	}

	pf := PaperFill{
		OrderID:  uuid.NewString(),
		ClientID: req.ClientID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Qty:      req.Qty,
		AvgPrice: fill.AvgPrice,
		Fee:      req.Qty.Mul(fill.AvgPrice).Mul(p.feeRate),
		Time:     time.Now(),
	}

	signed := req.Qty
	if req.Side == domain.SideSell {
		signed = signed.Neg()
	}

	p.mu.Lock()
	p.fills = append(p.fills, pf)
	p.positions[req.Symbol] = p.positions[req.Symbol].Add(signed)
	p.mu.Unlock()

	p.logger.Info("Paper order filled",
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("qty", req.Qty.String()),
		slog.String("avg_price", fill.AvgPrice.String()),
	)

	return domain.OrderResult{
		Status: domain.OrderStatusSuccess,
		Fill:   &domain.FillInfo{OrderID: pf.OrderID, FilledQty: pf.Qty, AvgPrice: pf.AvgPrice},
	}, nil
}

// GetFills returns a copy of all simulated fills.
func (p *PaperVenue) GetFills() []PaperFill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PaperFill, len(p.fills))
	copy(out, p.fills)
	return out
}

// NetPosition returns the signed filled quantity for symbol.
func (p *PaperVenue) NetPosition(symbol string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions[symbol]
}
