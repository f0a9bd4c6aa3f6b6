package risk

import (
	"errors"
	"fmt"
	"sort"

	"hedge_go/internal/domain"
	"hedge_go/internal/pricing"
)

// Resolution is the risk of one position after pricing.
//
// Priced is false when an option could not be priced; Greeks then holds the
// raw-size fallback (delta = size, the rest zero) and Warning the pricing error.
type Resolution struct {
	Greeks  domain.Greeks
	Priced  bool
	Warning error
}

// ResolveGreeks prices one position.
//
// Linear kinds carry delta equal to their signed size. Options are priced with
// Black-Scholes and scaled by size. Composites sum their legs. Accumulated
// hedge quantity is added to delta for every kind. The only returned error is
// *domain.UnsupportedInstrumentError; pricing failures are reported through
// Resolution.Warning.
func ResolveGreeks(p domain.Position) (Resolution, error) {
	var res Resolution

	switch p.Kind {
	case domain.KindSpot, domain.KindFutures:
		res = Resolution{Greeks: domain.Greeks{Delta: p.Size}, Priced: true}

	case domain.KindCall, domain.KindPut:
		res = resolveOption(p)

	case domain.KindComposite:
		res = Resolution{Priced: true}
		var warnings []error
		for _, name := range legNames(p.Legs) {
			sub, err := ResolveGreeks(p.Legs[name])
			if err != nil {
				return Resolution{}, fmt.Errorf("composite %s leg %s: %w", p.Symbol, name, err)
			}
			res.Greeks = res.Greeks.Add(sub.Greeks)
			if !sub.Priced {
				res.Priced = false
				warnings = append(warnings, fmt.Errorf("leg %s: %w", name, sub.Warning))
			}
		}
		res.Warning = errors.Join(warnings...)

	default:
		return Resolution{}, &domain.UnsupportedInstrumentError{Symbol: p.Symbol, Kind: p.Kind.String()}
	}

	res.Greeks.Delta += p.HedgeSize
	return res, nil
}

func legNames(legs map[string]domain.Position) []string {
	names := make([]string, 0, len(legs))
	for name := range legs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolveOption(p domain.Position) Resolution {
	opt, _ := pricing.OptionTypeFor(p.Kind)
	if p.Option == nil {
		return Resolution{
			Greeks:  domain.Greeks{Delta: p.Size},
			Warning: fmt.Errorf("%s: missing option params", p.Symbol),
		}
	}

	g, err := pricing.Greeks(opt, *p.Option)
	if err != nil {
		return Resolution{
			Greeks:  domain.Greeks{Delta: p.Size},
			Warning: fmt.Errorf("%s: %w", p.Symbol, err),
		}
	}
	return Resolution{Greeks: g.Scale(p.Size), Priced: true}
}

// PositionDelta returns the signed delta contribution of a position.
// See ResolveGreeks for the fallback rules.
func PositionDelta(p domain.Position) (float64, Resolution, error) {
	res, err := ResolveGreeks(p)
	if err != nil {
		return 0, Resolution{}, err
	}
	return res.Greeks.Delta, res, nil
}

// DeltaOrRawSize applies the monitoring-loop policy: an unsupported instrument
// counts with its raw size instead of failing. The error is still returned so
// the caller can log it.
func DeltaOrRawSize(p domain.Position) (float64, error) {
	delta, res, err := PositionDelta(p)
	if err != nil {
		return p.RawSize(), err
	}
	return delta, res.Warning
}
