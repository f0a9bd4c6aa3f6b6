package execution

import (
	"hedge_go/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultFeeRate is the taker fee applied when a venue has none configured.
var DefaultFeeRate = decimal.RequireFromString("0.0006")

// Fill is the result of walking one side of a book for a quantity.
type Fill struct {
	Qty       decimal.Decimal
	BestPrice decimal.Decimal
	AvgPrice  decimal.Decimal
	// Slippage is (avg - best) / best. Positive when buying through the
	// asks, negative when selling through the bids.
	Slippage decimal.Decimal
}

// AdverseSlippage is the slippage magnitude regardless of side.
func (f Fill) AdverseSlippage() decimal.Decimal {
	return f.Slippage.Abs()
}

// EstimateFill walks the levels a taker on `side` consumes, best price first,
// until qty is filled. If the whole side cannot fill qty it fails with
// *domain.InsufficientLiquidityError rather than pricing a partial fill.
func EstimateFill(book domain.OrderBookSnapshot, qty decimal.Decimal, side domain.Side) (Fill, error) {
	if !qty.IsPositive() {
		return Fill{}, &domain.InvalidInputError{Field: "qty", Value: qty.InexactFloat64(), Reason: "must be positive"}
	}

	levels := book.Levels(side)
	if len(levels) == 0 {
		return Fill{}, &domain.InsufficientLiquidityError{
			Symbol: book.Symbol, Side: side, Requested: qty.String(), Available: "0",
		}
	}

	remaining := qty
	notional := decimal.Zero
	for _, l := range levels {
		take := decimal.Min(remaining, l.Size)
		notional = notional.Add(take.Mul(l.Price))
		remaining = remaining.Sub(take)
		if remaining.IsZero() {
			break
		}
	}

	if remaining.IsPositive() {
		return Fill{}, &domain.InsufficientLiquidityError{
			Symbol:    book.Symbol,
			Side:      side,
			Requested: qty.String(),
			Available: book.Depth(side).String(),
		}
	}

	best := levels[0].Price
	avg := notional.Div(qty)
	return Fill{
		Qty:       qty,
		BestPrice: best,
		AvgPrice:  avg,
		Slippage:  avg.Sub(best).Div(best),
	}, nil
}

// EstimateSlippage returns (avg_price - best_price) / best_price for qty on `side`.
func EstimateSlippage(book domain.OrderBookSnapshot, qty decimal.Decimal, side domain.Side) (decimal.Decimal, error) {
	fill, err := EstimateFill(book, qty, side)
	if err != nil {
		return decimal.Zero, err
	}
	return fill.Slippage, nil
}

// Cost is the estimated execution cost of an order.
type Cost struct {
	Fill
	MidPrice  decimal.Decimal
	Fee       decimal.Decimal // qty * mid * fee_rate
	TotalCost decimal.Decimal // |slippage| * qty + fee
}

// EstimateTransactionCost prices slippage and fees for qty on `side`.
// A book missing either side cannot provide a mid price and is treated as
// insufficient liquidity.
func EstimateTransactionCost(book domain.OrderBookSnapshot, qty decimal.Decimal, side domain.Side, feeRate decimal.Decimal) (Cost, error) {
	fill, err := EstimateFill(book, qty, side)
	if err != nil {
		return Cost{}, err
	}

	mid, ok := book.MidPrice()
	if !ok {
		return Cost{}, &domain.InsufficientLiquidityError{
			Symbol:    book.Symbol,
			Side:      side.Opposite(),
			Requested: qty.String(),
			Available: "0",
		}
	}

	fee := qty.Mul(mid).Mul(feeRate)
	return Cost{
		Fill:      fill,
		MidPrice:  mid,
		Fee:       fee,
		TotalCost: fill.AdverseSlippage().Mul(qty).Add(fee),
	}, nil
}
