package domain

// Greeks holds first and second order sensitivities of a position.
// Theta is per year, vega is per unit of volatility.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Add returns the element-wise sum.
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
	}
}

// Scale multiplies every Greek by size.
func (g Greeks) Scale(size float64) Greeks {
	return Greeks{
		Delta: g.Delta * size,
		Gamma: g.Gamma * size,
		Theta: g.Theta * size,
		Vega:  g.Vega * size,
	}
}

// IsZero reports whether all Greeks are zero.
func (g Greeks) IsZero() bool {
	return g == Greeks{}
}
