package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"hedge_go/internal/domain"
	"hedge_go/internal/execution"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testBook(venue string, bid, ask int64, ts time.Time) domain.OrderBookSnapshot {
	return domain.NewOrderBookSnapshot(venue, "BTCUSDT",
		[]domain.Level{{Price: decimal.NewFromInt(ask), Size: decimal.NewFromInt(1)}},
		[]domain.Level{{Price: decimal.NewFromInt(bid), Size: decimal.NewFromInt(1)}},
		ts,
	)
}

type countingSource struct {
	book  domain.OrderBookSnapshot
	err   error
	calls atomic.Int32
}

func (c *countingSource) OrderBook(context.Context, string) (domain.OrderBookSnapshot, error) {
	c.calls.Add(1)
	return c.book, c.err
}

type recorder struct{ n atomic.Int32 }

func (r *recorder) RecordBookUpdate(string) { r.n.Add(1) }

func TestBookService_UpdateKeepsNewest(t *testing.T) {
	rec := &recorder{}
	svc := NewBookService(WithRecorder(rec))

	svc.Update(testBook("bybit", 100, 101, t0.Add(time.Second)))
	svc.Update(testBook("bybit", 90, 91, t0)) // Stale, ignored

	b, ok := svc.Book("bybit", "BTCUSDT")
	if !ok {
		t.Fatal("Expected cached book")
	}
	if best, _ := b.BestPrice(domain.SideSell); !best.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected newest book kept, got bid %s", best)
	}
	if rec.n.Load() != 1 {
		t.Errorf("Expected 1 recorded update, got %d", rec.n.Load())
	}
}

func TestBookService_Processor(t *testing.T) {
	svc := NewBookService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartProcessor(ctx)

	svc.Inbox() <- testBook("bybit", 100, 101, t0)
	svc.Inbox() <- testBook("okx", 100, 102, t0)

	deadline := time.Now().Add(2 * time.Second)
	for len(svc.GetAll()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Processor did not apply books")
		}
		time.Sleep(5 * time.Millisecond)
	}

	all := svc.GetAll()
	if all[0].Venue != "bybit" || all[1].Venue != "okx" {
		t.Errorf("Expected sorted venues, got %s, %s", all[0].Venue, all[1].Venue)
	}
}

func TestBookService_SourceFreshness(t *testing.T) {
	now := t0
	svc := NewBookService(WithNow(func() time.Time { return now }))
	rest := &countingSource{book: testBook("", 200, 201, t0)}
	src := svc.Source("bybit", rest, 2*time.Second)

	svc.Update(testBook("bybit", 100, 101, t0))

	// Fresh cache hit
	now = t0.Add(time.Second)
	b, err := src.OrderBook(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("OrderBook failed: %v", err)
	}
	if mid, _ := b.MidPrice(); !mid.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("Expected cached mid 100.5, got %s", mid)
	}
	if rest.calls.Load() != 0 {
		t.Errorf("Expected no REST call, got %d", rest.calls.Load())
	}

	// Stale cache falls back and refreshes the cache
	now = t0.Add(10 * time.Second)
	rest.book = testBook("", 200, 201, now)
	b, err = src.OrderBook(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("OrderBook failed: %v", err)
	}
	if b.Venue != "bybit" {
		t.Errorf("Expected venue set, got %q", b.Venue)
	}
	if rest.calls.Load() != 1 {
		t.Errorf("Expected 1 REST call, got %d", rest.calls.Load())
	}
	if cached, _ := svc.Book("bybit", "BTCUSDT"); !cached.Timestamp.Equal(now) {
		t.Error("Expected REST book to refresh the cache")
	}
}

func TestBookService_StreamOnlySource(t *testing.T) {
	svc := NewBookService()
	src := svc.Source("bybit", nil, time.Second)

	_, err := src.OrderBook(context.Background(), "BTCUSDT")
	var de *domain.DataUnavailableError
	if !errors.As(err, &de) {
		t.Errorf("Expected DataUnavailableError, got %v", err)
	}
}

func TestBookService_Price(t *testing.T) {
	svc := NewBookService(WithNow(func() time.Time { return t0 }))
	svc.Source("bybit", &countingSource{book: testBook("bybit", 100, 102, t0)}, 0)
	svc.Source("okx", &countingSource{book: testBook("okx", 104, 106, t0)}, 0)
	svc.Source("bitget", &countingSource{err: errors.New("down")}, 0)

	price, err := svc.Price(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	// mids 101 and 105
	if !price.Equal(decimal.NewFromInt(103)) {
		t.Errorf("Expected 103, got %s", price)
	}
}

func TestBookService_PriceUnavailable(t *testing.T) {
	svc := NewBookService()
	down := errors.New("down")
	svc.Source("bitget", &countingSource{err: down}, 0)

	_, err := svc.Price(context.Background(), "BTCUSDT")
	if !errors.Is(err, down) {
		t.Errorf("Expected wrapped venue error, got %v", err)
	}
	if !domain.IsRetriable(err) {
		t.Error("Expected retriable error")
	}
}

// flakySource fails with a retriable error until failures is used up.
type flakySource struct {
	book     domain.OrderBookSnapshot
	failures int32
	calls    atomic.Int32
}

func (f *flakySource) OrderBook(_ context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	if f.calls.Add(1) <= f.failures {
		return domain.OrderBookSnapshot{}, &domain.DataUnavailableError{Source: "rest", Symbol: symbol, Err: errors.New("timeout")}
	}
	return f.book, nil
}

func TestBookService_SourceRelabelsUpstreamVenue(t *testing.T) {
	svc := NewBookService(WithNow(func() time.Time { return t0 }))
	upstream := &countingSource{book: testBook("bybit", 65000, 65010, t0)}
	src := svc.Source("paper", upstream, 2*time.Second)

	b, err := src.OrderBook(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("OrderBook failed: %v", err)
	}
	if b.Venue != "paper" {
		t.Errorf("Expected venue paper, got %q", b.Venue)
	}
	if _, ok := svc.Book("bybit", "BTCUSDT"); ok {
		t.Error("Expected no bybit cache entry from the paper source")
	}
	if cached, ok := svc.Book("paper", "BTCUSDT"); !ok || cached.Venue != "paper" {
		t.Errorf("Expected paper cache entry, got %+v", cached)
	}
}

func TestBookService_PaperOnlyRouteAndPlace(t *testing.T) {
	svc := NewBookService(WithNow(func() time.Time { return t0 }))
	upstream := &countingSource{book: testBook("bybit", 65000, 65010, t0)}
	src := svc.Source("paper", upstream, 2*time.Second)

	router := execution.NewRouter(map[string]domain.OrderBookSource{"paper": src})
	gw := execution.NewGateway(execution.NewPaperVenue("paper", src, decimal.Zero))

	qty := decimal.RequireFromString("0.5")
	decision, err := router.Select(context.Background(), "BTCUSDT", domain.SideSell, qty, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if decision.Venue != "paper" {
		t.Fatalf("Expected paper selected, got %q", decision.Venue)
	}

	res, err := gw.PlaceOrder(context.Background(), domain.OrderRequest{
		ClientID: "c-1",
		Venue:    decision.Venue,
		Symbol:   "BTCUSDT",
		Side:     domain.SideSell,
		Type:     domain.OrderTypeMarket,
		Qty:      qty,
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if !res.IsSuccess() {
		t.Errorf("Expected a filled paper order, got %+v", res)
	}
}

func TestBookService_FetchRetry(t *testing.T) {
	t.Run("retriable failures are retried", func(t *testing.T) {
		svc := NewBookService(WithNow(func() time.Time { return t0 }), WithFetchRetry(3, time.Millisecond))
		rest := &flakySource{book: testBook("", 100, 101, t0), failures: 2}
		src := svc.Source("okx", rest, time.Second)

		b, err := src.OrderBook(context.Background(), "BTCUSDT")
		if err != nil {
			t.Fatalf("Expected success after retries, got %v", err)
		}
		if b.Venue != "okx" {
			t.Errorf("Expected venue okx, got %q", b.Venue)
		}
		if rest.calls.Load() != 3 {
			t.Errorf("Expected 3 calls, got %d", rest.calls.Load())
		}
	})

	t.Run("single attempt by default", func(t *testing.T) {
		svc := NewBookService(WithNow(func() time.Time { return t0 }))
		rest := &flakySource{book: testBook("", 100, 101, t0), failures: 1}
		src := svc.Source("okx", rest, time.Second)

		_, err := src.OrderBook(context.Background(), "BTCUSDT")
		var de *domain.DataUnavailableError
		if !errors.As(err, &de) {
			t.Errorf("Expected DataUnavailableError, got %v", err)
		}
		if rest.calls.Load() != 1 {
			t.Errorf("Expected 1 call, got %d", rest.calls.Load())
		}
	})
}
