package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hedge_go/internal/domain"
	"hedge_go/internal/infra"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// UpdateRecorder is notified for every book applied to the cache.
type UpdateRecorder interface {
	RecordBookUpdate(venue string)
}

// BookService caches the latest order book per venue and symbol. Books arrive
// from streaming workers through Inbox or are pulled on demand via Source.
type BookService struct {
	mu      sync.RWMutex
	books   map[string]domain.OrderBookSnapshot
	sources map[string]domain.OrderBookSource
	inbox   chan domain.OrderBookSnapshot

	now      func() time.Time
	recorder UpdateRecorder

	fetchAttempts int
	fetchBackoff  time.Duration
}

// Option configures a BookService.
type Option func(*BookService)

// WithNow overrides the clock used for book age checks.
func WithNow(now func() time.Time) Option {
	return func(s *BookService) { s.now = now }
}

// WithRecorder reports cache updates, usually to metrics.
func WithRecorder(r UpdateRecorder) Option {
	return func(s *BookService) { s.recorder = r }
}

// WithFetchRetry retries retriable REST fallback failures up to attempts
// times, backing off from base.
func WithFetchRetry(attempts int, base time.Duration) Option {
	return func(s *BookService) {
		s.fetchAttempts = attempts
		s.fetchBackoff = base
	}
}

// NewBookService creates a new BookService instance
func NewBookService(opts ...Option) *BookService {
	s := &BookService{
		books:   make(map[string]domain.OrderBookSnapshot),
		sources: make(map[string]domain.OrderBookSource),
		inbox:   make(chan domain.OrderBookSnapshot, 1000), // Headroom for bursts
		now:     time.Now,

		fetchAttempts: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func bookKey(venue, symbol string) string {
	return venue + "|" + symbol
}

// Inbox returns the channel streaming workers push books into.
func (s *BookService) Inbox() chan<- domain.OrderBookSnapshot {
	return s.inbox
}

// StartProcessor drains Inbox until ctx is cancelled.
func (s *BookService) StartProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case book := <-s.inbox:
				s.Update(book)
			}
		}
	}()
}

// Update stores book unless a newer one for the same venue and symbol is cached.
func (s *BookService) Update(book domain.OrderBookSnapshot) {
	s.mu.Lock()
	key := bookKey(book.Venue, book.Symbol)
	if cur, ok := s.books[key]; ok && cur.Timestamp.After(book.Timestamp) {
		s.mu.Unlock()
		return
	}
	s.books[key] = book
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordBookUpdate(book.Venue)
	}
}

// Book returns the cached book, if any.
func (s *BookService) Book(venue, symbol string) (domain.OrderBookSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[bookKey(venue, symbol)]
	return b, ok
}

// GetAll returns all cached books sorted by venue then symbol.
func (s *BookService) GetAll() []domain.OrderBookSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.OrderBookSnapshot, 0, len(s.books))
	for _, b := range s.books {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Venue != result[j].Venue {
			return result[i].Venue < result[j].Venue
		}
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// Source returns an OrderBookSource for venue that serves cached books no
// older than maxAge and otherwise falls back to REST. fallback may be nil for
// stream-only venues. Books fetched through fallback are cached and returned
// under venue, whatever venue fallback reports. The source is also
// registered for Price.
func (s *BookService) Source(venue string, fallback domain.OrderBookSource, maxAge time.Duration) domain.OrderBookSource {
	src := &cachedSource{svc: s, venue: venue, fallback: fallback, maxAge: maxAge}

	s.mu.Lock()
	s.sources[venue] = src
	s.mu.Unlock()
	return src
}

type cachedSource struct {
	svc      *BookService
	venue    string
	fallback domain.OrderBookSource
	maxAge   time.Duration
}

func (c *cachedSource) OrderBook(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	if b, ok := c.svc.Book(c.venue, symbol); ok && b.Age(c.svc.now()) <= c.maxAge {
		return b, nil
	}
	if c.fallback == nil {
		return domain.OrderBookSnapshot{}, &domain.DataUnavailableError{Source: c.venue, Symbol: symbol, Err: fmt.Errorf("no fresh book in cache")}
	}

	var b domain.OrderBookSnapshot
	err := infra.Retry(ctx, c.svc.fetchAttempts, c.svc.fetchBackoff, c.venue+" orderbook", func(ctx context.Context) error {
		var err error
		b, err = c.fallback.OrderBook(ctx, symbol)
		return err
	})
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	b.Venue = c.venue
	c.svc.Update(b)
	return b, nil
}

// Price returns the mid price averaged over every registered venue that has
// a two-sided book for symbol.
func (s *BookService) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	venues := make([]string, 0, len(s.sources))
	srcs := make([]domain.OrderBookSource, 0, len(s.sources))
	for v, src := range s.sources {
		venues = append(venues, v)
		srcs = append(srcs, src)
	}
	s.mu.RUnlock()

	mids := make([]decimal.Decimal, len(srcs))
	ok := make([]bool, len(srcs))
	errs := make([]error, len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range srcs {
		g.Go(func() error {
			book, err := src.OrderBook(gctx, symbol)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", venues[i], err)
				return nil // One venue failing must not cancel the others
			}
			mids[i], ok[i] = book.MidPrice()
			return nil
		})
	}
	_ = g.Wait()

	sum := decimal.Zero
	n := 0
	for i := range mids {
		if ok[i] {
			sum = sum.Add(mids[i])
			n++
		}
	}
	if n == 0 {
		err := errors.Join(errs...)
		if err == nil {
			err = fmt.Errorf("no venue quotes %s", symbol)
		}
		return decimal.Zero, &domain.DataUnavailableError{Source: "books", Symbol: symbol, Err: err}
	}
	return sum.Div(decimal.NewFromInt(int64(n))), nil
}
