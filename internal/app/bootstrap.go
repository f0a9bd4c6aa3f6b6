package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hedge_go/internal/domain"
	"hedge_go/internal/engine"
	"hedge_go/internal/execution"
	"hedge_go/internal/infra"
	"hedge_go/internal/infra/bitget"
	"hedge_go/internal/infra/bybit"
	"hedge_go/internal/infra/notify"
	"hedge_go/internal/infra/okx"
	"hedge_go/internal/infra/storage"
	"hedge_go/internal/service"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	paperVenue = "paper"

	restFetchAttempts = 3
	restFetchBackoff  = 200 * time.Millisecond
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Logger   *slog.Logger
	Storage  *storage.Storage
	Metrics  *infra.Metrics
	Books    *service.BookService
	Gateway  *execution.Gateway
	Router   *execution.Router
	Notifier domain.Notifier
	Registry *engine.Registry

	workers []domain.ExchangeWorker
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (logger, DB, metrics).
func (b *Bootstrap) Initialize(cfg *infra.Config) error {
	b.Config = cfg

	// 1. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	slog.Info("🚀 Bootstrapping hedge engine...", slog.String("version", cfg.App.Version))

	// 2. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))

	// 3. Metrics and notifications
	b.Metrics = infra.NewMetrics(prometheus.NewRegistry())

	notifiers := notify.Multi{notify.NewLogNotifier(b.Logger)}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	b.Notifier = notifiers

	b.Registry = engine.NewRegistry(b.Metrics)
	return nil
}

// liveVenues builds the enabled exchange adapters in a fixed order.
func (b *Bootstrap) liveVenues() []domain.Venue {
	v := b.Config.Venues
	var venues []domain.Venue
	if v.Bybit.Enabled {
		venues = append(venues, bybit.NewClient(v.Bybit))
	}
	if v.OKX.Enabled {
		venues = append(venues, okx.NewClient(v.OKX))
	}
	if v.Bitget.Enabled {
		venues = append(venues, bitget.NewClient(v.Bitget))
	}
	return venues
}

func (b *Bootstrap) venueConfig(venue string) infra.VenueConfig {
	v := b.Config.Venues
	switch venue {
	case "bybit":
		return v.Bybit
	case "okx":
		return v.OKX
	case "bitget":
		return v.Bitget
	default:
		return v.Paper
	}
}

// BuildExecution wires venues, the book cache, the router and the order gateway.
// In dry-run mode every live venue is replaced by a paper venue quoting from it.
func (b *Bootstrap) BuildExecution(ctx context.Context) error {
	cfg := b.Config
	maxAge := cfg.BookMaxAge()

	b.Books = service.NewBookService(
		service.WithRecorder(b.Metrics),
		service.WithFetchRetry(restFetchAttempts, restFetchBackoff),
	)
	b.Books.StartProcessor(ctx)

	live := b.liveVenues()
	var (
		venues  []domain.Venue
		sources = make(map[string]domain.OrderBookSource)
		opts    = []execution.RouterOption{execution.WithObserver(b.Metrics)}
	)

	for _, v := range live {
		name := v.Name()
		src := b.Books.Source(name, v, maxAge)
		sources[name] = src
		opts = append(opts, execution.WithFeeRate(name, b.venueConfig(name).FeeRate))

		if cfg.Hedging.DryRun {
			venues = append(venues, execution.NewPaperVenue(name, src, b.venueConfig(name).FeeRate))
		} else {
			venues = append(venues, v)
		}
	}

	if cfg.Venues.Paper.Enabled {
		// Public Bybit books need no credentials
		var quote domain.OrderBookSource = bybit.NewClient(cfg.Venues.Bybit)
		if len(live) > 0 {
			quote = live[0]
		}
		src := b.Books.Source(paperVenue, quote, maxAge)
		sources[paperVenue] = src
		opts = append(opts, execution.WithFeeRate(paperVenue, cfg.Venues.Paper.FeeRate))
		venues = append(venues, execution.NewPaperVenue(paperVenue, src, cfg.Venues.Paper.FeeRate))
	}

	if len(venues) == 0 {
		return &domain.ConfigError{Field: "venues", Err: errors.New("no venue enabled")}
	}

	b.Gateway = execution.NewGateway(venues...)
	b.Router = execution.NewRouter(sources, opts...)
	slog.Info("✅ Execution ready",
		slog.Any("venues", b.Gateway.Names()),
		slog.Bool("dry_run", cfg.Hedging.DryRun),
	)
	return nil
}

// StartWorkers connects streaming book workers.
func (b *Bootstrap) StartWorkers(ctx context.Context) {
	by := b.Config.Venues.Bybit
	if !by.Enabled || !by.Stream {
		return
	}

	symbols := b.monitoredSymbols()
	if len(symbols) == 0 {
		return
	}

	w := bybit.NewBookWorker(by.WSURL, symbols, b.Books.Inbox())
	if err := w.Connect(ctx); err != nil {
		slog.Error("Failed to connect Bybit book stream", slog.Any("error", err))
		return
	}
	b.workers = append(b.workers, w)
	slog.Info("✅ Bybit book stream started", slog.Int("symbols", len(symbols)))
}

func (b *Bootstrap) monitoredSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range b.Config.Monitors {
		if !seen[m.Symbol] {
			seen[m.Symbol] = true
			out = append(out, m.Symbol)
		}
	}
	return out
}

// StartMonitors seeds configured positions and starts one monitor per pair.
func (b *Bootstrap) StartMonitors(ctx context.Context) error {
	cfg := b.Config
	for _, mc := range cfg.Monitors {
		if err := b.seed(ctx, mc); err != nil {
			return err
		}

		m, err := engine.NewMonitor(monitorConfig(cfg, mc), b.Storage, b.Router, b.Gateway, b.Storage,
			engine.WithNotifier(b.Notifier),
			engine.WithMetrics(b.Metrics),
			engine.WithPriceSource(b.Books),
			engine.WithSettingsStore(b.Storage),
		)
		if err != nil {
			return err
		}

		restored, err := m.RestoreSettings(ctx)
		if err != nil {
			slog.Warn("Ignoring stored monitor settings", slog.String("symbol", mc.Symbol), slog.Any("error", err))
		} else if restored {
			slog.Info("Restored monitor settings", slog.String("account", mc.Account), slog.String("symbol", mc.Symbol))
		}

		if err := b.Registry.Start(ctx, m); err != nil {
			return err
		}
	}
	slog.Info("✅ Monitors started", slog.Int("count", len(cfg.Monitors)))
	return nil
}

func monitorConfig(cfg *infra.Config, mc infra.MonitorConfig) engine.Config {
	target := cfg.Hedging.TargetDelta
	if mc.TargetDelta != nil {
		target = *mc.TargetDelta
	}
	fraction := cfg.Hedging.HedgeFraction
	if mc.HedgeFraction > 0 {
		fraction = mc.HedgeFraction
	}

	return engine.Config{
		Account:  mc.Account,
		Symbol:   mc.Symbol,
		Interval: cfg.Interval(),
		Settings: engine.Settings{
			TargetDelta:   target,
			Threshold:     mc.Threshold,
			HedgeFraction: fraction,
			Cooldown:      cfg.Cooldown(),
		},
		MaxSlippage: cfg.Hedging.MaxSlippage,
		ExecTimeout: cfg.ExecutionTimeout(),
		OrderType:   domain.OrderType(strings.ToUpper(cfg.Hedging.OrderType)),
	}
}

// seed stores the configured starting position unless one is already stored.
func (b *Bootstrap) seed(ctx context.Context, mc infra.MonitorConfig) error {
	if mc.Seed == nil {
		return nil
	}
	existing, err := b.Storage.GetPosition(ctx, mc.Account, mc.Symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	p, err := seedPosition(mc.Symbol, *mc.Seed)
	if err != nil {
		return fmt.Errorf("seed %s/%s: %w", mc.Account, mc.Symbol, err)
	}
	slog.Info("Seeding position", slog.String("account", mc.Account), slog.String("symbol", mc.Symbol), slog.String("kind", p.Kind.String()))
	return b.Storage.UpsertPosition(ctx, mc.Account, p)
}

func seedPosition(symbol string, s infra.SeedPosition) (domain.Position, error) {
	kind, err := domain.ParseInstrumentKind(s.Kind)
	if err != nil {
		return domain.Position{}, err
	}

	var opt *domain.OptionParams
	if kind.IsOption() {
		opt = &domain.OptionParams{
			Spot:         s.EntryPrice,
			Strike:       s.Strike,
			TimeToExpiry: s.ExpiryDays / 365,
			RiskFreeRate: s.RiskFree,
			Volatility:   s.Volatility,
		}
	}
	if kind == domain.KindComposite {
		return domain.Position{}, errors.New("composite positions cannot be seeded from config")
	}
	return domain.NewPosition(symbol, kind, s.Size, s.EntryPrice, opt)
}

// Shutdown stops monitors at their tick boundary, then releases resources.
func (b *Bootstrap) Shutdown() {
	if b.Registry != nil {
		b.Registry.StopAll()
	}
	for _, w := range b.workers {
		w.Disconnect()
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Error("Failed to close database", slog.Any("error", err))
		}
	}
}
