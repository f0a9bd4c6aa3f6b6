package domain

import (
	"errors"
	"testing"
)

func TestParseInstrumentKind(t *testing.T) {
	tests := []struct {
		in   string
		want InstrumentKind
	}{
		{"spot", KindSpot},
		{"Futures", KindFutures},
		{"perp", KindFutures},
		{"call", KindCall},
		{" PUT ", KindPut},
		{"portfolio", KindComposite},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInstrumentKind(tt.in)
			if err != nil {
				t.Fatalf("ParseInstrumentKind(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseInstrumentKind(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		_, err := ParseInstrumentKind("swaption")
		var ue *UnsupportedInstrumentError
		if !errors.As(err, &ue) {
			t.Fatalf("Expected UnsupportedInstrumentError, got %v", err)
		}
		if ue.Kind != "swaption" {
			t.Errorf("Kind = %q, want %q", ue.Kind, "swaption")
		}
	})
}

func TestNewPosition_OptionParamsInvariant(t *testing.T) {
	opt := &OptionParams{Spot: 100, Strike: 100, TimeToExpiry: 0.5, RiskFreeRate: 0.01, Volatility: 0.6}

	if _, err := NewPosition("BTC-C", KindCall, 1, 0, opt); err != nil {
		t.Errorf("call with params should be valid: %v", err)
	}
	if _, err := NewPosition("BTC-C", KindCall, 1, 0, nil); err == nil {
		t.Error("call without params should be rejected")
	}
	if _, err := NewPosition("BTCUSDT", KindSpot, 1, 0, opt); err == nil {
		t.Error("spot with params should be rejected")
	}
	if _, err := NewPosition("BTCUSDT", InstrumentKind(42), 1, 0, nil); err == nil {
		t.Error("unknown kind should be rejected")
	}
}

func TestNewComposite(t *testing.T) {
	p, err := NewComposite("BOOK", map[string]Position{
		"BTCUSDT": {Size: 2},
		"ETHUSDT": {Kind: KindFutures, Size: -1},
	})
	if err != nil {
		t.Fatalf("NewComposite failed: %v", err)
	}

	if p.Legs["BTCUSDT"].Kind != KindSpot {
		t.Errorf("untagged leg kind = %s, want spot", p.Legs["BTCUSDT"].Kind)
	}
	if p.Legs["BTCUSDT"].Symbol != "BTCUSDT" {
		t.Errorf("leg symbol = %q, want BTCUSDT", p.Legs["BTCUSDT"].Symbol)
	}
	if got := p.RawSize(); got != 1 {
		t.Errorf("RawSize = %v, want 1", got)
	}
}

func TestPosition_ApplyHedge(t *testing.T) {
	t.Run("linear position absorbs hedge into size", func(t *testing.T) {
		p := Position{Symbol: "BTCUSDT", Kind: KindFutures, Size: 10}
		p.ApplyHedge(-10)
		if p.Size != 0 || p.HedgeSize != 0 {
			t.Errorf("Expected size 0 and hedge 0, got size=%v hedge=%v", p.Size, p.HedgeSize)
		}
	})

	t.Run("option position tracks hedge separately", func(t *testing.T) {
		p := Position{Symbol: "BTC-C", Kind: KindCall, Size: 10, Option: &OptionParams{}}
		p.ApplyHedge(-4)
		if p.Size != 10 {
			t.Errorf("Option size should be untouched, got %v", p.Size)
		}
		if p.HedgeSize != -4 {
			t.Errorf("HedgeSize = %v, want -4", p.HedgeSize)
		}
		if p.RawSize() != 6 {
			t.Errorf("RawSize = %v, want 6", p.RawSize())
		}
	})
}

func TestHedgeAction_Side(t *testing.T) {
	if s, ok := ActionSell.Side(); !ok || s != SideSell {
		t.Errorf("ActionSell.Side() = %v, %v", s, ok)
	}
	if _, ok := ActionNone.Side(); ok {
		t.Error("ActionNone should have no side")
	}
	if ActionBuy.String() != "BUY" {
		t.Errorf("ActionBuy.String() = %q", ActionBuy.String())
	}
}
