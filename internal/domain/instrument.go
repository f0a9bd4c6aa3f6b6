package domain

import (
	"fmt"
	"strings"
)

// InstrumentKind is the closed set of instruments a Position can hold.
type InstrumentKind int

const (
	KindSpot InstrumentKind = iota + 1
	KindFutures
	KindCall
	KindPut
	KindComposite
)

// String returns the wire name of the kind.
func (k InstrumentKind) String() string {
	switch k {
	case KindSpot:
		return "spot"
	case KindFutures:
		return "futures"
	case KindCall:
		return "call"
	case KindPut:
		return "put"
	case KindComposite:
		return "composite"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsOption reports whether the kind carries OptionParams.
func (k InstrumentKind) IsOption() bool {
	return k == KindCall || k == KindPut
}

// ParseInstrumentKind maps a wire name to a kind.
// Unknown names fail here so that nothing downstream sees an unknown kind.
func ParseInstrumentKind(s string) (InstrumentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spot":
		return KindSpot, nil
	case "futures", "future", "perp", "perpetual":
		return KindFutures, nil
	case "call":
		return KindCall, nil
	case "put":
		return KindPut, nil
	case "composite", "portfolio":
		return KindComposite, nil
	default:
		return 0, &UnsupportedInstrumentError{Kind: s}
	}
}

// OptionParams are the Black-Scholes inputs of an option position.
type OptionParams struct {
	Spot         float64 `json:"spot"`
	Strike       float64 `json:"strike"`
	TimeToExpiry float64 `json:"time_to_expiry_years"`
	RiskFreeRate float64 `json:"risk_free_rate"`
	Volatility   float64 `json:"volatility"`
}

// Position is a signed holding in one instrument.
//
// Size is signed (negative = short). For composite positions Legs holds the
// sub-positions and Size is ignored. HedgeSize accumulates executed hedge
// quantity in the underlying for positions whose own size is not linear
// (options and composites); it always contributes 1:1 to delta.
type Position struct {
	Symbol     string              `json:"symbol"`
	Kind       InstrumentKind      `json:"kind"`
	Size       float64             `json:"size"`
	EntryPrice float64             `json:"entry_price"`
	Option     *OptionParams       `json:"option_params,omitempty"`
	Legs       map[string]Position `json:"legs,omitempty"`
	HedgeSize  float64             `json:"hedge_size,omitempty"`
}

// NewPosition builds a linear or option position and validates it.
func NewPosition(symbol string, kind InstrumentKind, size, entryPrice float64, opt *OptionParams) (Position, error) {
	p := Position{
		Symbol:     symbol,
		Kind:       kind,
		Size:       size,
		EntryPrice: entryPrice,
		Option:     opt,
	}
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

// NewComposite builds a composite position from sub-positions.
// A leg with no kind set is treated as spot.
func NewComposite(symbol string, legs map[string]Position) (Position, error) {
	normalized := make(map[string]Position, len(legs))
	for name, leg := range legs {
		if leg.Kind == 0 {
			leg.Kind = KindSpot
		}
		if leg.Symbol == "" {
			leg.Symbol = name
		}
		normalized[name] = leg
	}

	p := Position{Symbol: symbol, Kind: KindComposite, Legs: normalized}
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

// Validate enforces that option params are present iff the kind is an option.
func (p Position) Validate() error {
	switch p.Kind {
	case KindSpot, KindFutures:
		if p.Option != nil {
			return fmt.Errorf("%s: option params not allowed for %s", p.Symbol, p.Kind)
		}
	case KindCall, KindPut:
		if p.Option == nil {
			return fmt.Errorf("%s: option params required for %s", p.Symbol, p.Kind)
		}
	case KindComposite:
		if p.Option != nil {
			return fmt.Errorf("%s: option params not allowed for %s", p.Symbol, p.Kind)
		}
		for name, leg := range p.Legs {
			if err := leg.Validate(); err != nil {
				return fmt.Errorf("leg %s: %w", name, err)
			}
		}
	default:
		return &UnsupportedInstrumentError{Symbol: p.Symbol, Kind: p.Kind.String()}
	}
	return nil
}

// RawSize is the size used when a position cannot be priced:
// the signed size for a single instrument, the sum of leg raw sizes for a composite,
// plus any accumulated hedge quantity.
func (p Position) RawSize() float64 {
	if p.Kind == KindComposite {
		total := p.HedgeSize
		for _, leg := range p.Legs {
			total += leg.RawSize()
		}
		return total
	}
	return p.Size + p.HedgeSize
}

// ApplyHedge books an executed hedge quantity (signed, in the underlying).
// Linear positions absorb it into Size; options and composites track it in HedgeSize.
func (p *Position) ApplyHedge(qty float64) {
	switch p.Kind {
	case KindSpot, KindFutures:
		p.Size += qty
	default:
		p.HedgeSize += qty
	}
}
