package risk

import (
	"math"
	"sort"

	"hedge_go/internal/domain"
)

// ValueAtRisk returns the (1-confidence) quantile of returns, linearly
// interpolated between order statistics. The result is in return space, so a
// loss shows up as a negative number and -VaR is the loss magnitude.
func ValueAtRisk(returns []float64, confidence float64) (float64, error) {
	if len(returns) == 0 {
		return 0, &domain.InsufficientDataError{Metric: "value_at_risk", Have: 0, Need: 1}
	}
	if !(confidence > 0 && confidence < 1) {
		return 0, &domain.InvalidInputError{Field: "confidence", Value: confidence, Reason: "must be in (0, 1)"}
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	return percentile(sorted, 1-confidence), nil
}

// percentile expects sorted input and q in [0, 1].
func percentile(sorted []float64, q float64) float64 {
	rank := q * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// MaxDrawdown returns min over t of (equity[t] - peak[t]) / peak[t], in [-1, 0].
func MaxDrawdown(equity []float64) (float64, error) {
	if len(equity) == 0 {
		return 0, &domain.InsufficientDataError{Metric: "max_drawdown", Have: 0, Need: 1}
	}

	peak := equity[0]
	worst := 0.0
	for _, v := range equity {
		if v < 0 {
			return 0, &domain.InvalidInputError{Field: "equity", Value: v, Reason: "must be non-negative"}
		}
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			return 0, &domain.InvalidInputError{Field: "equity_peak", Value: peak, Reason: "must be positive"}
		}
		if dd := (v - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst, nil
}

// Volatility annualizes the population standard deviation of returns.
func Volatility(returns []float64, periodsPerYear float64) (float64, error) {
	if len(returns) == 0 {
		return 0, &domain.InsufficientDataError{Metric: "volatility", Have: 0, Need: 1}
	}
	_, sd := meanStdev(returns)
	return sd * math.Sqrt(periodsPerYear), nil
}

// SharpeRatio is mean/stdev annualized. Zero when returns have no dispersion.
func SharpeRatio(returns []float64, periodsPerYear float64) (float64, error) {
	if len(returns) == 0 {
		return 0, &domain.InsufficientDataError{Metric: "sharpe_ratio", Have: 0, Need: 1}
	}
	mean, sd := meanStdev(returns)
	if sd == 0 {
		return 0, nil
	}
	return mean / sd * math.Sqrt(periodsPerYear), nil
}

// Correlation is the Pearson correlation of two equally long series.
func Correlation(a, b []float64) (float64, error) {
	if err := pairCheck("correlation", a, b); err != nil {
		return 0, err
	}
	cov := covariance(a, b)
	va, vb := covariance(a, a), covariance(b, b)
	if va == 0 || vb == 0 {
		return 0, &domain.InvalidInputError{Field: "series", Value: 0, Reason: "zero variance"}
	}
	return cov / math.Sqrt(va*vb), nil
}

// Beta is cov(asset, benchmark) / var(benchmark), both with n-1 denominators.
func Beta(asset, benchmark []float64) (float64, error) {
	if err := pairCheck("beta", asset, benchmark); err != nil {
		return 0, err
	}
	vb := covariance(benchmark, benchmark)
	if vb == 0 {
		return 0, &domain.InvalidInputError{Field: "benchmark", Value: 0, Reason: "zero variance"}
	}
	return covariance(asset, benchmark) / vb, nil
}

// Returns converts a price series into simple period returns.
func Returns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, &domain.InsufficientDataError{Metric: "returns", Have: len(prices), Need: 2}
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			return nil, &domain.InvalidInputError{Field: "price", Value: 0, Reason: "must be non-zero"}
		}
		out = append(out, prices[i]/prices[i-1]-1)
	}
	return out, nil
}

func pairCheck(metric string, a, b []float64) error {
	if len(a) != len(b) {
		return &domain.InvalidInputError{Field: "length", Value: float64(len(b)), Reason: "series lengths differ"}
	}
	if len(a) < 2 {
		return &domain.InsufficientDataError{Metric: metric, Have: len(a), Need: 2}
	}
	return nil
}

func meanStdev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}

// covariance uses the sample (n-1) denominator.
func covariance(a, b []float64) float64 {
	n := float64(len(a))
	var ma, mb float64
	for i := range a {
		ma += a[i]
		mb += b[i]
	}
	ma /= n
	mb /= n

	var s float64
	for i := range a {
		s += (a[i] - ma) * (b[i] - mb)
	}
	return s / (n - 1)
}
