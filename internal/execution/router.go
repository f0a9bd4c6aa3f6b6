package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"hedge_go/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrSlippageExceeded marks a venue rejected because the estimated slippage is over the cap.
var ErrSlippageExceeded = errors.New("estimated slippage exceeds cap")

// Route is a point-in-time venue choice.
type Route struct {
	Venue string
	Price decimal.Decimal
}

// RouteOrder picks the best quote for a taker: the lowest price when buying,
// the highest when selling. Non-positive quotes are ignored. Ties keep the
// earlier quote. It does not look at depth.
func RouteOrder(symbol string, side domain.Side, qty decimal.Decimal, quotes []domain.VenueQuote) (Route, error) {
	var best *domain.VenueQuote
	for i := range quotes {
		q := &quotes[i]
		if !q.BestPrice.IsPositive() {
			continue
		}
		if best == nil || better(side, q.BestPrice, best.BestPrice) {
			best = q
		}
	}
	if best == nil {
		return Route{}, &domain.NoLiquidityError{Symbol: symbol, Side: side}
	}
	return Route{Venue: best.Venue, Price: best.BestPrice}, nil
}

func better(side domain.Side, a, b decimal.Decimal) bool {
	if side == domain.SideSell {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// Observer receives routing outcomes.
type Observer interface {
	RouteSelected(venue string)
	RouteRejected(venue, reason string)
}

// Rejection records why a candidate venue was skipped.
type Rejection struct {
	Venue  string
	Reason error
}

// Decision is the outcome of Router.Select.
type Decision struct {
	Route
	Cost     Cost
	Book     domain.OrderBookSnapshot
	Rejected []Rejection
}

// Router performs cost-aware routing across venues: it ranks venues by
// top-of-book price, then walks each candidate's book and rejects venues
// that cannot fill the quantity or whose slippage is over the cap.
type Router struct {
	sources  map[string]domain.OrderBookSource
	feeRates map[string]decimal.Decimal
	observer Observer
	logger   *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithFeeRate sets the taker fee used to estimate cost on one venue.
func WithFeeRate(venue string, rate decimal.Decimal) RouterOption {
	return func(r *Router) { r.feeRates[venue] = rate }
}

// WithObserver reports routing outcomes, e.g. to metrics.
func WithObserver(o Observer) RouterOption {
	return func(r *Router) { r.observer = o }
}

// WithRouterLogger overrides the logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a Router over the given book sources keyed by venue name.
func NewRouter(sources map[string]domain.OrderBookSource, opts ...RouterOption) *Router {
	r := &Router{
		sources:  sources,
		feeRates: make(map[string]decimal.Decimal),
		logger:   slog.Default().With("module", "router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Venues returns the configured venue names, sorted.
func (r *Router) Venues() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) feeRate(venue string) decimal.Decimal {
	if rate, ok := r.feeRates[venue]; ok {
		return rate
	}
	return DefaultFeeRate
}

// Books fetches the book of every venue concurrently. Venues that fail are
// returned in the error map and left out of the books.
func (r *Router) Books(ctx context.Context, symbol string) ([]domain.OrderBookSnapshot, map[string]error) {
	var (
		mu    sync.Mutex
		books []domain.OrderBookSnapshot
		fails = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range r.Venues() {
		src := r.sources[name]
		g.Go(func() error {
			book, err := src.OrderBook(gctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fails[name] = err
				return nil
			}
			if book.Venue == "" {
				book.Venue = name
			}
			books = append(books, book)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(books, func(i, j int) bool { return books[i].Venue < books[j].Venue })
	return books, fails
}

// Select chooses the venue for an order of qty on `side`.
// maxSlippage caps the adverse slippage fraction; zero disables the cap.
// With no acceptable venue it fails with *domain.NoLiquidityError wrapping
// the last rejection.
func (r *Router) Select(ctx context.Context, symbol string, side domain.Side, qty, maxSlippage decimal.Decimal) (Decision, error) {
	if symbol == "" {
		return Decision{}, fmt.Errorf("%w: empty symbol", domain.ErrInvalidSymbol)
	}

	books, fails := r.Books(ctx, symbol)
	for venue, err := range fails {
		r.logger.Warn("Order book unavailable", slog.String("venue", venue), slog.String("symbol", symbol), slog.Any("error", err))
		r.reject(venue, "unavailable")
	}

	byVenue := make(map[string]domain.OrderBookSnapshot, len(books))
	quotes := make([]domain.VenueQuote, 0, len(books))
	for _, b := range books {
		if q, ok := domain.QuoteFromBook(b, side); ok {
			quotes = append(quotes, q)
			byVenue[b.Venue] = b
		}
	}

	var rejected []Rejection
	for len(quotes) > 0 {
		route, err := RouteOrder(symbol, side, qty, quotes)
		if err != nil {
			break
		}
		quotes = without(quotes, route.Venue)

		book := byVenue[route.Venue]
		cost, err := EstimateTransactionCost(book, qty, side, r.feeRate(route.Venue))
		if err == nil && maxSlippage.IsPositive() && cost.AdverseSlippage().GreaterThan(maxSlippage) {
			err = fmt.Errorf("%w: %s > %s", ErrSlippageExceeded, cost.AdverseSlippage().StringFixed(6), maxSlippage.String())
		}
		if err != nil {
			r.logger.Info("Venue rejected, rerouting",
				slog.String("venue", route.Venue),
				slog.String("symbol", symbol),
				slog.String("side", string(side)),
				slog.String("qty", qty.String()),
				slog.Any("error", err),
			)
			r.reject(route.Venue, rejectReason(err))
			rejected = append(rejected, Rejection{Venue: route.Venue, Reason: err})
			continue
		}

		if r.observer != nil {
			r.observer.RouteSelected(route.Venue)
		}
		return Decision{Route: route, Cost: cost, Book: book, Rejected: rejected}, nil
	}

	noLiq := &domain.NoLiquidityError{Symbol: symbol, Side: side}
	if len(rejected) > 0 {
		noLiq.Err = rejected[len(rejected)-1].Reason
	} else if len(fails) > 0 {
		errs := make([]error, 0, len(fails))
		for _, err := range fails {
			errs = append(errs, err)
		}
		noLiq.Err = errors.Join(errs...)
	}
	return Decision{Rejected: rejected}, noLiq
}

func (r *Router) reject(venue, reason string) {
	if r.observer != nil {
		r.observer.RouteRejected(venue, reason)
	}
}

func rejectReason(err error) string {
	var liq *domain.InsufficientLiquidityError
	switch {
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage"
	case errors.As(err, &liq):
		return "depth"
	default:
		return "other"
	}
}

func without(quotes []domain.VenueQuote, venue string) []domain.VenueQuote {
	out := quotes[:0:0]
	for _, q := range quotes {
		if q.Venue != venue {
			out = append(out, q)
		}
	}
	return out
}
