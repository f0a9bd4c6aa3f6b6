package risk

import (
	"fmt"

	"hedge_go/internal/domain"
)

// Trade is one fill of a trade log.
type Trade struct {
	Symbol  string
	Side    domain.Side
	Qty     float64
	Price   float64
	LegType string // Optional label for multi-leg structures ("call", "put", "spot", ...)
}

// PnL is a profit and loss breakdown. Realized is the cash flow of the fills
// net of fees and slippage; Unrealized is mark-to-market against last prices.
type PnL struct {
	Realized      float64
	Unrealized    float64
	Total         float64
	TotalFees     float64
	TotalSlippage float64
}

// LegPnL is the breakdown of one leg of a multi-leg trade.
type LegPnL struct {
	Symbol     string
	LegType    string
	Realized   float64
	Unrealized float64
	Total      float64
}

// MultiLegPnL adds the per-leg breakdown.
type MultiLegPnL struct {
	PnL
	Legs []LegPnL
}

// ComputePnL evaluates a trade log against the latest price of each symbol.
func ComputePnL(trades []Trade, lastPrices map[string]float64, feeRate, slippageRate float64) (PnL, error) {
	res, err := ComputeMultiLegPnL(trades, lastPrices, feeRate, slippageRate)
	if err != nil {
		return PnL{}, err
	}
	return res.PnL, nil
}

// ComputeMultiLegPnL is ComputePnL with a per-leg breakdown.
func ComputeMultiLegPnL(trades []Trade, lastPrices map[string]float64, feeRate, slippageRate float64) (MultiLegPnL, error) {
	out := MultiLegPnL{Legs: make([]LegPnL, 0, len(trades))}

	for _, tr := range trades {
		last, ok := lastPrices[tr.Symbol]
		if !ok {
			return MultiLegPnL{}, &domain.InsufficientDataError{Metric: "pnl:" + tr.Symbol, Have: 0, Need: 1}
		}

		realized, unrealized, fee, slip, err := tradeFlows(tr.Side, tr.Qty, tr.Price, last, feeRate, slippageRate)
		if err != nil {
			return MultiLegPnL{}, err
		}

		legType := tr.LegType
		if legType == "" {
			legType = "spot"
		}
		out.Legs = append(out.Legs, LegPnL{
			Symbol:     tr.Symbol,
			LegType:    legType,
			Realized:   realized,
			Unrealized: unrealized,
			Total:      realized + unrealized,
		})

		out.Realized += realized
		out.Unrealized += unrealized
		out.TotalFees += fee
		out.TotalSlippage += slip
	}

	out.Total = out.Realized + out.Unrealized
	return out, nil
}

// Holding is an open position valued at its average entry price.
type Holding struct {
	Qty      float64
	AvgPrice float64
	Long     bool
}

// HoldingPnL is the per-symbol result of ComputePortfolioPnL.
type HoldingPnL struct {
	Realized     float64
	Unrealized   float64
	Total        float64
	CurrentPrice float64
	AvgPrice     float64
}

// PortfolioPnL aggregates holdings and reports gross portfolio value.
type PortfolioPnL struct {
	PnL
	PortfolioValue float64
	Positions      map[string]HoldingPnL
}

// ComputePortfolioPnL values long/short holdings against last prices.
func ComputePortfolioPnL(holdings map[string]Holding, lastPrices map[string]float64, feeRate, slippageRate float64) (PortfolioPnL, error) {
	out := PortfolioPnL{Positions: make(map[string]HoldingPnL, len(holdings))}

	for symbol, h := range holdings {
		last, ok := lastPrices[symbol]
		if !ok {
			return PortfolioPnL{}, &domain.InsufficientDataError{Metric: "pnl:" + symbol, Have: 0, Need: 1}
		}

		side := domain.SideSell
		if h.Long {
			side = domain.SideBuy
		}
		realized, unrealized, fee, slip, err := tradeFlows(side, h.Qty, h.AvgPrice, last, feeRate, slippageRate)
		if err != nil {
			return PortfolioPnL{}, err
		}

		out.Positions[symbol] = HoldingPnL{
			Realized:     realized,
			Unrealized:   unrealized,
			Total:        realized + unrealized,
			CurrentPrice: last,
			AvgPrice:     h.AvgPrice,
		}
		out.Realized += realized
		out.Unrealized += unrealized
		out.TotalFees += fee
		out.TotalSlippage += slip
		out.PortfolioValue += h.Qty * last
	}

	out.Total = out.Realized + out.Unrealized
	return out, nil
}

func tradeFlows(side domain.Side, qty, price, last, feeRate, slippageRate float64) (realized, unrealized, fee, slip float64, err error) {
	notional := qty * price
	if notional < 0 {
		notional = -notional
	}
	fee = notional * feeRate
	slip = notional * slippageRate

	switch side {
	case domain.SideBuy:
		realized = -(qty*price + fee + slip)
		unrealized = qty * (last - price)
	case domain.SideSell:
		realized = qty*price - fee - slip
		unrealized = -qty * (last - price)
	default:
		return 0, 0, 0, 0, fmt.Errorf("unknown side %q", side)
	}
	return realized, unrealized, fee, slip, nil
}
