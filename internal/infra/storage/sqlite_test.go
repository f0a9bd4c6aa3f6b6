package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hedge_go/internal/domain"

	"github.com/shopspring/decimal"
)

type store interface {
	domain.PositionStore
	domain.EventSink
	domain.SettingsStore
	History(ctx context.Context, account, symbol string, limit int) ([]domain.HedgeEvent, error)
}

func setupTestDB(t *testing.T) *Storage {
	s, err := NewStorage(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachStore runs fn against both the SQLite and the in-memory store.
func forEachStore(t *testing.T, fn func(t *testing.T, s store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, setupTestDB(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
}

func optionPosition() domain.Position {
	return domain.Position{
		Symbol:     "BTC-65000-C",
		Kind:       domain.KindCall,
		Size:       10,
		EntryPrice: 1200,
		Option:     &domain.OptionParams{Spot: 65000, Strike: 65000, TimeToExpiry: 0.25, RiskFreeRate: 0.05, Volatility: 0.6},
	}
}

func TestUpsertAndGetPosition(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		missing, err := s.GetPosition(ctx, "main", "NOPE")
		if err != nil || missing != nil {
			t.Fatalf("Expected nil, nil for missing position, got %v, %v", missing, err)
		}

		if err := s.UpsertPosition(ctx, "main", optionPosition()); err != nil {
			t.Fatalf("UpsertPosition failed: %v", err)
		}

		fetched, err := s.GetPosition(ctx, "main", "BTC-65000-C")
		if err != nil {
			t.Fatalf("GetPosition failed: %v", err)
		}
		if fetched == nil {
			t.Fatal("fetched position is nil")
		}
		if fetched.Kind != domain.KindCall {
			t.Errorf("expected kind call, got %s", fetched.Kind)
		}
		if fetched.Option == nil || fetched.Option.Strike != 65000 {
			t.Errorf("option params not restored: %+v", fetched.Option)
		}

		// Other accounts are isolated
		other, _ := s.GetPosition(ctx, "other", "BTC-65000-C")
		if other != nil {
			t.Error("expected no position for another account")
		}
	})
}

func TestCompositeRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		comp, err := domain.NewComposite("BOOK", map[string]domain.Position{
			"BTCUSDT": {Kind: domain.KindFutures, Size: 2},
			"CALL":    optionPosition(),
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.UpsertPosition(ctx, "main", comp); err != nil {
			t.Fatalf("UpsertPosition failed: %v", err)
		}

		all, err := s.ListPositions(ctx, "main")
		if err != nil {
			t.Fatalf("ListPositions failed: %v", err)
		}
		got, ok := all["BOOK"]
		if !ok {
			t.Fatal("composite not listed")
		}
		if len(got.Legs) != 2 {
			t.Fatalf("expected 2 legs, got %d", len(got.Legs))
		}
		if got.Legs["CALL"].Option == nil {
			t.Error("leg option params lost")
		}
		if got.RawSize() != comp.RawSize() {
			t.Errorf("expected raw size %v, got %v", comp.RawSize(), got.RawSize())
		}
	})
}

func TestUpdatePosition(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		if err := s.UpsertPosition(ctx, "main", domain.Position{Symbol: "BTCUSDT", Kind: domain.KindFutures, Size: 1}); err != nil {
			t.Fatal(err)
		}

		err := s.UpdatePosition(ctx, "main", "BTCUSDT", func(p *domain.Position) error {
			p.ApplyHedge(-0.25)
			return nil
		})
		if err != nil {
			t.Fatalf("UpdatePosition failed: %v", err)
		}

		// A failing update must leave the stored value untouched
		boom := errors.New("boom")
		err = s.UpdatePosition(ctx, "main", "BTCUSDT", func(p *domain.Position) error {
			p.Size = 999
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}

		p, _ := s.GetPosition(ctx, "main", "BTCUSDT")
		if p.Size != 0.75 {
			t.Errorf("expected size 0.75, got %v", p.Size)
		}

		err = s.UpdatePosition(ctx, "main", "MISSING", func(*domain.Position) error { return nil })
		if !errors.Is(err, domain.ErrPositionNotFound) {
			t.Errorf("expected ErrPositionNotFound, got %v", err)
		}
	})
}

func TestUpdatePosition_Concurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		if err := s.UpsertPosition(ctx, "main", domain.Position{Symbol: "ETHUSDT", Kind: domain.KindSpot}); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.UpdatePosition(ctx, "main", "ETHUSDT", func(p *domain.Position) error {
					p.ApplyHedge(1)
					return nil
				}); err != nil {
					t.Errorf("UpdatePosition failed: %v", err)
				}
			}()
		}
		wg.Wait()

		p, _ := s.GetPosition(ctx, "main", "ETHUSDT")
		if p.Size != 20 {
			t.Errorf("expected no lost updates (20), got %v", p.Size)
		}
	})
}

func TestEventsHistory(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		for i, status := range []domain.HedgeStatus{domain.HedgeStatusSuccess, domain.HedgeStatusFailed, domain.HedgeStatusSuccess} {
			ev := domain.HedgeEvent{
				ID:                string(rune('a' + i)),
				Timestamp:         base.Add(time.Duration(i) * time.Minute),
				Account:           "main",
				Symbol:            "BTCUSDT",
				Side:              domain.SideSell,
				Size:              decimal.NewFromInt(int64(i + 1)),
				Venue:             "bybit",
				FillPriceEstimate: decimal.RequireFromString("65000.5"),
				Status:            status,
			}
			if err := s.AppendEvent(ctx, ev); err != nil {
				t.Fatalf("AppendEvent failed: %v", err)
			}
		}
		_ = s.AppendEvent(ctx, domain.HedgeEvent{ID: "z", Timestamp: base, Account: "main", Symbol: "ETHUSDT", Status: domain.HedgeStatusSuccess})

		events, err := s.History(ctx, "main", "BTCUSDT", 2)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].ID != "c" || events[1].ID != "b" {
			t.Errorf("expected newest first (c, b), got %s, %s", events[0].ID, events[1].ID)
		}
		if !events[0].Size.Equal(decimal.NewFromInt(3)) {
			t.Errorf("expected size 3, got %s", events[0].Size)
		}
		if events[1].Status != domain.HedgeStatusFailed {
			t.Errorf("expected failed status, got %s", events[1].Status)
		}

		all, _ := s.History(ctx, "main", "BTCUSDT", 0)
		if len(all) != 3 {
			t.Errorf("expected 3 events without limit, got %d", len(all))
		}
	})
}

func TestEventsHistory_SameTimestamp(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		// Slices of one manual hedge share a timestamp
		for _, id := range []string{"z-1", "a-2", "m-3"} {
			ev := domain.HedgeEvent{ID: id, Timestamp: at, Account: "main", Symbol: "BTCUSDT", Side: domain.SideSell, Status: domain.HedgeStatusSuccess}
			if err := s.AppendEvent(ctx, ev); err != nil {
				t.Fatalf("AppendEvent failed: %v", err)
			}
		}

		events, err := s.History(ctx, "main", "BTCUSDT", 0)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		var got []string
		for _, ev := range events {
			got = append(got, ev.ID)
		}
		if len(got) != 3 || got[0] != "m-3" || got[1] != "a-2" || got[2] != "z-1" {
			t.Errorf("expected last inserted first (m-3, a-2, z-1), got %v", got)
		}

		latest, _ := s.History(ctx, "main", "BTCUSDT", 1)
		if len(latest) != 1 || latest[0].ID != "m-3" {
			t.Errorf("expected m-3 as latest, got %v", latest)
		}
	})
}

func TestSettings(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		if err := s.SaveSetting(ctx, "monitor/main/BTCUSDT", `{"threshold":2}`); err != nil {
			t.Fatalf("SaveSetting failed: %v", err)
		}
		if err := s.SaveSetting(ctx, "monitor/main/BTCUSDT", `{"threshold":3}`); err != nil {
			t.Fatalf("SaveSetting failed: %v", err)
		}

		settings, err := s.LoadSettings(ctx)
		if err != nil {
			t.Fatalf("LoadSettings failed: %v", err)
		}
		if settings["monitor/main/BTCUSDT"] != `{"threshold":3}` {
			t.Errorf("expected overwritten value, got %q", settings["monitor/main/BTCUSDT"])
		}
	})
}
