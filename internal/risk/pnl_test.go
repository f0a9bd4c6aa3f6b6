package risk

import (
	"testing"

	"hedge_go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePnL(t *testing.T) {
	trades := []Trade{
		{Symbol: "BTCUSDT", Side: domain.SideBuy, Qty: 1, Price: 100},
		{Symbol: "BTCUSDT", Side: domain.SideSell, Qty: 0.5, Price: 120},
	}
	last := map[string]float64{"BTCUSDT": 110}

	pnl, err := ComputePnL(trades, last, 0.001, 0)
	require.NoError(t, err)

	// buy: -(100 + 0.1), unrealized +10; sell: 60 - 0.06, unrealized -0.5*(110-120)=+5
	assert.InDelta(t, -100.1+59.94, pnl.Realized, 1e-9)
	assert.InDelta(t, 15, pnl.Unrealized, 1e-9)
	assert.InDelta(t, pnl.Realized+pnl.Unrealized, pnl.Total, 1e-12)
	assert.InDelta(t, 0.16, pnl.TotalFees, 1e-12)

	_, err = ComputePnL(trades, map[string]float64{}, 0, 0)
	assert.Error(t, err)
}

func TestComputeMultiLegPnL(t *testing.T) {
	legs := []Trade{
		{Symbol: "BTC-C", Side: domain.SideBuy, Qty: 1, Price: 5, LegType: "call"},
		{Symbol: "BTC-P", Side: domain.SideBuy, Qty: 1, Price: 4, LegType: "put"},
	}
	res, err := ComputeMultiLegPnL(legs, map[string]float64{"BTC-C": 8, "BTC-P": 1}, 0, 0.01)
	require.NoError(t, err)

	require.Len(t, res.Legs, 2)
	assert.Equal(t, "call", res.Legs[0].LegType)
	assert.InDelta(t, -5.05+3, res.Legs[0].Total, 1e-12)
	assert.InDelta(t, 0.09, res.TotalSlippage, 1e-12)
}

func TestComputePortfolioPnL(t *testing.T) {
	holdings := map[string]Holding{
		"BTCUSDT": {Qty: 2, AvgPrice: 100, Long: true},
		"ETHUSDT": {Qty: 10, AvgPrice: 10, Long: false},
	}
	res, err := ComputePortfolioPnL(holdings, map[string]float64{"BTCUSDT": 90, "ETHUSDT": 8}, 0, 0)
	require.NoError(t, err)

	assert.InDelta(t, -20, res.Positions["BTCUSDT"].Unrealized, 1e-12)
	assert.InDelta(t, 20, res.Positions["ETHUSDT"].Unrealized, 1e-12)
	assert.InDelta(t, 2*90+10*8, res.PortfolioValue, 1e-12)
}
