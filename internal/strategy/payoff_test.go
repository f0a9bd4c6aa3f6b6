package strategy_test

import (
	"math"
	"testing"

	"hedge_go/internal/strategy"
)

func TestStraddle(t *testing.T) {
	c := strategy.Straddle(2, 100, 6, 4)

	if len(c.Prices) != 101 || len(c.Payoff) != 101 {
		t.Fatalf("Expected 101 points, got %d/%d", len(c.Prices), len(c.Payoff))
	}
	if c.Prices[0] != 50 || c.Prices[100] != 150 {
		t.Errorf("Expected range 50..150, got %v..%v", c.Prices[0], c.Prices[100])
	}
	// At the strike both legs expire worthless: 2 * (-10)
	if got := c.Payoff[50]; math.Abs(got-(-20)) > 1e-9 {
		t.Errorf("Expected payoff -20 at strike, got %v", got)
	}
	if got := c.MaxLoss(); math.Abs(got-(-20)) > 1e-9 {
		t.Errorf("Expected max loss -20, got %v", got)
	}

	be := c.Breakevens()
	if len(be) != 2 || math.Abs(be[0]-90) > 1e-9 || math.Abs(be[1]-110) > 1e-9 {
		t.Errorf("Expected breakevens [90 110], got %v", be)
	}
}

func TestButterfly(t *testing.T) {
	c := strategy.Butterfly(1, 90, 12, 100, 6, 110, 2)

	if math.Abs(c.Prices[0]-72) > 1e-9 || math.Abs(c.Prices[100]-132) > 1e-9 {
		t.Errorf("Expected range 72..132, got %v..%v", c.Prices[0], c.Prices[100])
	}
	// Net debit 12 - 12 + 2 = 2; below the lower strike the payoff is -2
	if got := c.Payoff[0]; math.Abs(got-(-2)) > 1e-9 {
		t.Errorf("Expected -2 below lower strike, got %v", got)
	}
}

func TestIronCondor(t *testing.T) {
	legs := strategy.IronCondorLegs{
		LowerPutStrike: 80, LowerPutPremium: 1,
		LowerCallStrike: 90, LowerCallPremium: 3,
		UpperCallStrike: 110, UpperCallPremium: 2,
		UpperPutStrike: 120, UpperPutPremium: 4,
	}
	c := strategy.IronCondor(1, legs)

	if math.Abs(c.Prices[0]-64) > 1e-9 || math.Abs(c.Prices[100]-132) > 1e-9 {
		t.Errorf("Expected range 64..132, got %v..%v", c.Prices[0], c.Prices[100])
	}
	if len(c.Payoff) != 101 {
		t.Fatalf("Expected 101 points, got %d", len(c.Payoff))
	}
}

func TestCoveredCall(t *testing.T) {
	c := strategy.CoveredCall(1, 100, 110, 5)

	// Above the strike the payoff is capped at (K - entry) + premium = 15
	if got := c.Payoff[100]; math.Abs(got-15) > 1e-9 {
		t.Errorf("Expected capped payoff 15, got %v", got)
	}
}
