package pricing

import (
	"math"

	"hedge_go/internal/domain"
)

// OptionType selects the call or put formula.
type OptionType int

const (
	Call OptionType = iota + 1
	Put
)

func (o OptionType) String() string {
	if o == Put {
		return "put"
	}
	return "call"
}

// OptionTypeFor maps an option instrument kind to its formula.
func OptionTypeFor(kind domain.InstrumentKind) (OptionType, bool) {
	switch kind {
	case domain.KindCall:
		return Call, true
	case domain.KindPut:
		return Put, true
	default:
		return 0, false
	}
}

// Greeks computes Black-Scholes Greeks for one unit of the option.
//
// It never substitutes defaults: an out-of-domain input returns an
// *domain.InvalidInputError and zero Greeks, and the caller decides the fallback.
func Greeks(opt OptionType, p domain.OptionParams) (domain.Greeks, error) {
	if err := validate(p); err != nil {
		return domain.Greeks{}, err
	}

	S, K, T, r, sigma := p.Spot, p.Strike, p.TimeToExpiry, p.RiskFreeRate, p.Volatility
	sqrtT := math.Sqrt(T)

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	pdf := normPDF(d1)
	discount := r * K * math.Exp(-r*T)
	decay := -S * pdf * sigma / (2 * sqrtT)

	g := domain.Greeks{
		Gamma: pdf / (S * sigma * sqrtT),
		Vega:  S * sqrtT * pdf,
	}

	if opt == Put {
		g.Delta = normCDF(d1) - 1
		g.Theta = decay + discount*normCDF(-d2)
	} else {
		g.Delta = normCDF(d1)
		g.Theta = decay - discount*normCDF(d2)
	}

	return g, nil
}

// Delta is a shortcut for Greeks(opt, p).Delta.
func Delta(opt OptionType, p domain.OptionParams) (float64, error) {
	g, err := Greeks(opt, p)
	return g.Delta, err
}

func validate(p domain.OptionParams) error {
	switch {
	case !(p.Spot > 0):
		return &domain.InvalidInputError{Field: "spot", Value: p.Spot, Reason: "must be positive"}
	case !(p.Strike > 0):
		return &domain.InvalidInputError{Field: "strike", Value: p.Strike, Reason: "must be positive"}
	case !(p.TimeToExpiry > 0):
		return &domain.InvalidInputError{Field: "time_to_expiry", Value: p.TimeToExpiry, Reason: "must be positive"}
	case !(p.Volatility > 0):
		return &domain.InvalidInputError{Field: "volatility", Value: p.Volatility, Reason: "must be positive"}
	}
	return nil
}

// normCDF is the standard normal cumulative distribution function
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPDF is the standard normal probability density function
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
