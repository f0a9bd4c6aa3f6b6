package risk

import (
	"errors"
	"fmt"
	"sort"

	"hedge_go/internal/domain"
)

// Entry is one position of a PortfolioSnapshot. A nil Greeks counts as
// spot-equivalent (delta = size). Warning holds the pricing error of any
// option that fell back to its raw size; Greeks then already carry that
// fallback.
type Entry struct {
	Position domain.Position
	Greeks   *domain.Greeks
	Warning  error
}

// Delta returns the explicit delta, or the raw size when Greeks are absent.
func (e Entry) Delta() float64 {
	if e.Greeks == nil {
		return e.Position.RawSize()
	}
	return e.Greeks.Delta
}

// PortfolioSnapshot maps symbol to its position and Greeks.
type PortfolioSnapshot map[string]Entry

// BuildSnapshot prices every position. Unsupported instruments are left out
// and reported in the returned error (joined); pricing failures keep the
// position with its fallback Greeks and are reported the same way.
func BuildSnapshot(positions map[string]domain.Position) (PortfolioSnapshot, error) {
	snap := make(PortfolioSnapshot, len(positions))
	var errs []error

	for _, symbol := range sortedKeys(positions) {
		p := positions[symbol]
		res, err := ResolveGreeks(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		g := res.Greeks
		entry := Entry{Position: p, Greeks: &g}
		if !res.Priced {
			entry.Warning = res.Warning
			errs = append(errs, res.Warning)
		}
		snap[symbol] = entry
	}

	return snap, errors.Join(errs...)
}

// Aggregate sums Greeks across the snapshot. Entries without Greeks
// contribute their raw size to delta only.
func Aggregate(snap PortfolioSnapshot) domain.Greeks {
	var total domain.Greeks
	for _, e := range snap {
		if e.Greeks == nil {
			total.Delta += e.Position.RawSize()
			continue
		}
		total = total.Add(*e.Greeks)
	}
	return total
}

// StressTest shocks each position's delta linearly:
// delta * (1 + shockPct/100). It does not reprice options.
func StressTest(snap PortfolioSnapshot, shockPct float64) map[string]float64 {
	out := make(map[string]float64, len(snap))
	factor := 1 + shockPct/100
	for symbol, e := range snap {
		out[symbol] = e.Delta() * factor
	}
	return out
}

// Scenario is a named uniform price shock.
type Scenario struct {
	Name     string
	ShockPct float64
}

// DefaultScenarios are the stock shocks run by RunScenarios.
var DefaultScenarios = []Scenario{
	{Name: "FLASH_CRASH", ShockPct: -15},
	{Name: "GFC", ShockPct: -40},
	{Name: "RALLY", ShockPct: 20},
}

// ScenarioResult holds per-symbol shocked deltas and their sum.
type ScenarioResult struct {
	Scenario   Scenario
	Deltas     map[string]float64
	TotalDelta float64
}

// RunScenarios applies each scenario with StressTest.
func RunScenarios(snap PortfolioSnapshot, scenarios []Scenario) []ScenarioResult {
	results := make([]ScenarioResult, 0, len(scenarios))
	for _, sc := range scenarios {
		deltas := StressTest(snap, sc.ShockPct)
		var total float64
		for _, d := range deltas {
			total += d
		}
		results = append(results, ScenarioResult{Scenario: sc, Deltas: deltas, TotalDelta: total})
	}
	return results
}

// FindScenario looks up a default scenario by name.
func FindScenario(name string) (Scenario, error) {
	for _, sc := range DefaultScenarios {
		if sc.Name == name {
			return sc, nil
		}
	}
	return Scenario{}, fmt.Errorf("scenario %s not found", name)
}

func sortedKeys(m map[string]domain.Position) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
