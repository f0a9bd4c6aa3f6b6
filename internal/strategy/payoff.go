package strategy

import "math"

// payoffPoints is the number of price samples in a payoff curve.
const payoffPoints = 101

// Curve is a payoff profile sampled at expiry.
type Curve struct {
	Prices []float64
	Payoff []float64
}

func sample(lo, hi float64, qty float64, f func(s float64) float64) Curve {
	c := Curve{
		Prices: make([]float64, payoffPoints),
		Payoff: make([]float64, payoffPoints),
	}
	step := (hi - lo) / float64(payoffPoints-1)
	for i := 0; i < payoffPoints; i++ {
		s := lo + float64(i)*step
		c.Prices[i] = s
		c.Payoff[i] = qty * f(s)
	}
	return c
}

func callValue(s, k float64) float64 { return math.Max(s-k, 0) }
func putValue(s, k float64) float64  { return math.Max(k-s, 0) }

// Straddle is a long call and long put at the same strike, over 0.5K..1.5K.
func Straddle(qty, strike, callPremium, putPremium float64) Curve {
	return sample(strike*0.5, strike*1.5, qty, func(s float64) float64 {
		return callValue(s, strike) + putValue(s, strike) - callPremium - putPremium
	})
}

// Butterfly is long one lower call, short two middle calls, long one upper call.
func Butterfly(qty, lowerStrike, lowerPremium, midStrike, midPremium, upperStrike, upperPremium float64) Curve {
	return sample(lowerStrike*0.8, upperStrike*1.2, qty, func(s float64) float64 {
		v := callValue(s, lowerStrike) - lowerPremium
		v -= 2 * (callValue(s, midStrike) - midPremium)
		v += callValue(s, upperStrike) - upperPremium
		return v
	})
}

// IronCondorLegs holds strikes and premiums of the four legs.
type IronCondorLegs struct {
	LowerPutStrike, LowerPutPremium   float64 // long
	LowerCallStrike, LowerCallPremium float64 // short
	UpperCallStrike, UpperCallPremium float64 // short
	UpperPutStrike, UpperPutPremium   float64 // long
}

// IronCondor samples the four-leg structure over 0.8×lower put .. 1.2×upper call.
func IronCondor(qty float64, l IronCondorLegs) Curve {
	return sample(l.LowerPutStrike*0.8, l.UpperCallStrike*1.2, qty, func(s float64) float64 {
		v := putValue(s, l.LowerPutStrike) - l.LowerPutPremium
		v -= callValue(s, l.LowerCallStrike) - l.LowerCallPremium
		v -= callValue(s, l.UpperCallStrike) - l.UpperCallPremium
		v += putValue(s, l.UpperPutStrike) - l.UpperPutPremium
		return v
	})
}

// CoveredCall is long spot from entryPrice plus a short call, over 0.5K..1.5K.
func CoveredCall(qty, entryPrice, strike, premium float64) Curve {
	return sample(strike*0.5, strike*1.5, qty, func(s float64) float64 {
		return (s - entryPrice) - callValue(s, strike) + premium
	})
}

// Breakevens returns the prices where the payoff changes sign, interpolated
// between samples.
func (c Curve) Breakevens() []float64 {
	var out []float64
	for i := 1; i < len(c.Payoff); i++ {
		a, b := c.Payoff[i-1], c.Payoff[i]
		if a == 0 {
			out = append(out, c.Prices[i-1])
			continue
		}
		if (a < 0) != (b < 0) && b != 0 {
			t := a / (a - b)
			out = append(out, c.Prices[i-1]+t*(c.Prices[i]-c.Prices[i-1]))
		}
	}
	return out
}

// MaxLoss returns the lowest sampled payoff.
func (c Curve) MaxLoss() float64 {
	min := math.Inf(1)
	for _, v := range c.Payoff {
		min = math.Min(min, v)
	}
	return min
}
