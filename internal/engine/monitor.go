package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"hedge_go/internal/domain"
	"hedge_go/internal/execution"
	"hedge_go/internal/risk"
	"hedge_go/internal/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultInterval    = 30 * time.Second
	defaultExecTimeout = 10 * time.Second

	// Order quantities are rounded to this many decimals before routing.
	sizePrecision = 8

	reasonSizeTooSmall = "size_rounds_to_zero"
)

// Router selects a venue for an order. *execution.Router implements it.
type Router interface {
	Select(ctx context.Context, symbol string, side domain.Side, qty, maxSlippage decimal.Decimal) (execution.Decision, error)
}

// EventLog is the hedge audit log.
type EventLog interface {
	domain.EventSink
	History(ctx context.Context, account, symbol string, limit int) ([]domain.HedgeEvent, error)
}

// Recorder receives monitor metrics. *infra.Metrics implements it.
type Recorder interface {
	RecordTick(account, symbol, action string, delta float64)
	RecordHedge(symbol, side, status string, size float64)
	RecordError(kind string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTick(string, string, string, float64)  {}
func (nopRecorder) RecordHedge(string, string, string, float64) {}
func (nopRecorder) RecordError(string)                          {}

// Settings are the hedge policy knobs an operator may change at runtime.
type Settings struct {
	TargetDelta   float64
	Threshold     float64
	HedgeFraction float64
	Cooldown      time.Duration
}

func (s Settings) params() strategy.Params {
	return strategy.Params{
		TargetDelta:   s.TargetDelta,
		Threshold:     s.Threshold,
		HedgeFraction: s.HedgeFraction,
		Cooldown:      s.Cooldown,
	}
}

// settingsRecord is the persisted form of Settings.
type settingsRecord struct {
	TargetDelta   float64 `json:"target_delta"`
	Threshold     float64 `json:"threshold"`
	HedgeFraction float64 `json:"hedge_fraction"`
	CooldownSec   float64 `json:"cooldown_sec"`
}

// Config configures one Monitor.
type Config struct {
	Account     string
	Symbol      string
	Interval    time.Duration // Tick period. Defaults to 30s.
	Settings    Settings
	MaxSlippage decimal.Decimal // Zero disables the router's slippage cap
	ExecTimeout time.Duration   // Bounds routing plus placement. Defaults to 10s.
	OrderType   domain.OrderType
}

// Monitor is the hedge control loop for one (account, symbol) pair.
//
// Each tick moves Idle -> Evaluating -> (Cooldown | Executing) -> Idle.
// The stored position is only changed after a venue confirms the order, and
// the last hedge time only advances on success so a failed hedge is retried
// on the next tick.
type Monitor struct {
	cfg    Config
	store  domain.PositionStore
	router Router
	placer domain.OrderPlacer
	events EventLog

	clock    Clock
	notifier domain.Notifier
	recorder Recorder
	prices   domain.PriceSource
	settings domain.SettingsStore
	logger   *slog.Logger

	execMu sync.Mutex // Serializes Tick and HedgeNow

	mu        sync.RWMutex
	policy    *strategy.DeltaNeutral
	current   Settings
	lastHedge time.Time
	hasHedged bool

	state atomic.Int32
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithLastHedgeTime seeds the time of the previous successful hedge.
func WithLastHedgeTime(t time.Time) Option {
	return func(m *Monitor) {
		m.lastHedge = t
		m.hasHedged = true
	}
}

func WithNotifier(n domain.Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

func WithMetrics(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithPriceSource refreshes the spot of option positions every tick.
func WithPriceSource(p domain.PriceSource) Option {
	return func(m *Monitor) { m.prices = p }
}

// WithSettingsStore persists runtime settings changes.
func WithSettingsStore(s domain.SettingsStore) Option {
	return func(m *Monitor) { m.settings = s }
}

// NewMonitor creates a monitor. It does not start ticking until Run.
func NewMonitor(cfg Config, store domain.PositionStore, router Router, placer domain.OrderPlacer, events EventLog, opts ...Option) (*Monitor, error) {
	if cfg.Account == "" || cfg.Symbol == "" {
		return nil, errors.New("monitor: account and symbol are required")
	}
	if store == nil || router == nil || placer == nil || events == nil {
		return nil, errors.New("monitor: store, router, placer and event log are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = defaultExecTimeout
	}
	if cfg.OrderType == "" {
		cfg.OrderType = domain.OrderTypeMarket
	}

	policy, err := strategy.NewDeltaNeutral(cfg.Settings.params())
	if err != nil {
		return nil, fmt.Errorf("monitor %s/%s: %w", cfg.Account, cfg.Symbol, err)
	}

	m := &Monitor{
		cfg:      cfg,
		store:    store,
		router:   router,
		placer:   placer,
		events:   events,
		clock:    RealClock(),
		recorder: nopRecorder{},
		policy:   policy,
		current:  cfg.Settings,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("module", "monitor", "account", cfg.Account, "symbol", cfg.Symbol)
	return m, nil
}

func (m *Monitor) Account() string { return m.cfg.Account }
func (m *Monitor) Symbol() string  { return m.cfg.Symbol }

// State returns the current state machine position.
func (m *Monitor) State() domain.MonitorState {
	return domain.MonitorState(m.state.Load())
}

func (m *Monitor) setState(s domain.MonitorState) {
	m.state.Store(int32(s))
}

// Settings returns the active settings.
func (m *Monitor) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// LastHedge returns the time of the last successful hedge.
func (m *Monitor) LastHedge() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHedge, m.hasHedged
}

// Run ticks immediately and then every interval until ctx is cancelled.
// Cancellation is observed between ticks; a tick in progress completes.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("Monitor started", slog.Duration("interval", m.cfg.Interval))

	for ctx.Err() == nil {
		m.safeTick(ctx)

		select {
		case <-ctx.Done():
		case <-m.clock.After(m.cfg.Interval):
		}
	}

	m.setState(domain.StateIdle)
	m.logger.Info("Monitor stopped")
}

func (m *Monitor) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("MONITOR_TICK_PANIC", slog.Any("panic", r))
			m.recorder.RecordError("panic")
			m.setState(domain.StateIdle)
		}
	}()

	if _, err := m.Tick(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("Tick failed", slog.Any("error", err))
	}
}

// Tick runs one evaluation and, if the policy asks for it, one hedge.
// A failed hedge is returned as an error after it has been recorded.
func (m *Monitor) Tick(ctx context.Context) (domain.HedgeDecision, error) {
	m.execMu.Lock()
	defer m.execMu.Unlock()

	m.setState(domain.StateEvaluating)

	delta, err := m.currentDelta(ctx)
	if err != nil {
		m.setState(domain.StateIdle)
		m.recorder.RecordError("position")
		return domain.HedgeDecision{Symbol: m.cfg.Symbol}, fmt.Errorf("load position: %w", err)
	}

	m.mu.RLock()
	policy := m.policy
	in := strategy.Input{
		Symbol:         m.cfg.Symbol,
		CurrentDelta:   delta,
		SinceLastHedge: m.clock.Now().Sub(m.lastHedge),
		HasHedged:      m.hasHedged,
	}
	m.mu.RUnlock()

	dec := policy.Evaluate(in)
	m.recorder.RecordTick(m.cfg.Account, m.cfg.Symbol, dec.Action.String(), delta)

	side, ok := dec.Action.Side()
	if !ok {
		if dec.Reason == strategy.ReasonCooldown {
			m.setState(domain.StateCooldown)
			m.logger.Debug("Hedge suppressed by cooldown", slog.Float64("delta", delta))
		} else {
			m.setState(domain.StateIdle)
		}
		return dec, nil
	}

	qty := decimal.NewFromFloat(dec.Size).Round(sizePrecision)
	if !qty.IsPositive() {
		dec.Action = domain.ActionNone
		dec.Reason = reasonSizeTooSmall
		m.setState(domain.StateIdle)
		return dec, nil
	}

	m.logger.Info("Delta outside band, hedging",
		slog.Float64("delta", delta),
		slog.Float64("target", dec.TargetDelta),
		slog.String("side", string(side)),
		slog.String("qty", qty.String()),
	)

	m.setState(domain.StateExecuting)
	_, err = m.execute(ctx, side, qty)
	m.setState(domain.StateIdle)
	return dec, err
}

// currentDelta loads the position and prices it. A missing position is flat.
// Pricing problems fall back to raw size and are only logged.
func (m *Monitor) currentDelta(ctx context.Context) (float64, error) {
	p, err := m.store.GetPosition(ctx, m.cfg.Account, m.cfg.Symbol)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, nil
	}

	pos := *p
	if m.prices != nil && needsSpot(pos) {
		spot, err := m.prices.Price(ctx, m.cfg.Symbol)
		if err != nil {
			m.logger.Warn("Spot refresh failed, using stored spot", slog.Any("error", err))
		} else {
			pos = withSpot(pos, spot.InexactFloat64())
		}
	}

	delta, err := risk.DeltaOrRawSize(pos)
	if err != nil {
		m.logger.Warn("Position could not be priced, using fallback delta",
			slog.Float64("delta", delta),
			slog.Any("error", err),
		)
		m.recorder.RecordError("pricing")
	}
	return delta, nil
}

func needsSpot(p domain.Position) bool {
	if p.Kind.IsOption() {
		return true
	}
	for _, leg := range p.Legs {
		if needsSpot(leg) {
			return true
		}
	}
	return false
}

// withSpot returns a copy of p with every option spot set to spot.
func withSpot(p domain.Position, spot float64) domain.Position {
	if p.Option != nil {
		opt := *p.Option
		opt.Spot = spot
		p.Option = &opt
	}
	if len(p.Legs) > 0 {
		legs := make(map[string]domain.Position, len(p.Legs))
		for name, leg := range p.Legs {
			legs[name] = withSpot(leg, spot)
		}
		p.Legs = legs
	}
	return p
}

// execute routes and places one order, then records the outcome.
func (m *Monitor) execute(ctx context.Context, side domain.Side, qty decimal.Decimal) (domain.HedgeEvent, error) {
	ev := domain.HedgeEvent{
		ID:      uuid.NewString(),
		Account: m.cfg.Account,
		Symbol:  m.cfg.Symbol,
		Side:    side,
		Size:    qty,
	}

	err := m.routeAndPlace(ctx, side, qty, &ev)
	ev.Timestamp = m.clock.Now()

	// Bookkeeping must finish even if the caller is going away
	bg := context.WithoutCancel(ctx)

	if err != nil {
		ev.Status = domain.HedgeStatusFailed
		ev.Error = err.Error()
		m.recorder.RecordError("execution")
		m.logger.Error("Hedge failed",
			slog.String("side", string(side)),
			slog.String("qty", qty.String()),
			slog.String("venue", ev.Venue),
			slog.Any("error", err),
		)
	} else {
		ev.Status = domain.HedgeStatusSuccess
		if perr := m.bookHedge(bg, side, qty, ev.FillPriceEstimate); perr != nil {
			// The venue filled; only our copy of the position is stale
			ev.Error = "position update failed: " + perr.Error()
			m.recorder.RecordError("store")
			m.logger.Error("Position update after fill failed", slog.Any("error", perr))
		}

		m.mu.Lock()
		m.lastHedge = ev.Timestamp
		m.hasHedged = true
		m.mu.Unlock()

		m.logger.Info("Hedge executed",
			slog.String("side", string(side)),
			slog.String("qty", qty.String()),
			slog.String("venue", ev.Venue),
			slog.String("est_price", ev.FillPriceEstimate.String()),
		)
	}

	if aerr := m.events.AppendEvent(bg, ev); aerr != nil {
		m.recorder.RecordError("store")
		m.logger.Error("Failed to append hedge event", slog.String("id", ev.ID), slog.Any("error", aerr))
	}
	m.notify(bg, ev)
	m.recorder.RecordHedge(m.cfg.Symbol, string(side), string(ev.Status), qty.InexactFloat64())

	return ev, err
}

func (m *Monitor) routeAndPlace(ctx context.Context, side domain.Side, qty decimal.Decimal, ev *domain.HedgeEvent) error {
	execCtx, cancel := context.WithTimeout(ctx, m.cfg.ExecTimeout)
	defer cancel()

	decision, err := m.router.Select(execCtx, m.cfg.Symbol, side, qty, m.cfg.MaxSlippage)
	if err != nil {
		return m.timeoutOr(execCtx, "", err)
	}
	ev.Venue = decision.Venue
	ev.FillPriceEstimate = decision.Cost.AvgPrice

	req := domain.OrderRequest{
		ClientID: uuid.NewString(),
		Venue:    decision.Venue,
		Symbol:   m.cfg.Symbol,
		Side:     side,
		Type:     m.cfg.OrderType,
		Qty:      qty,
	}
	if req.Type == domain.OrderTypeLimit {
		req.Price = limitPrice(side, decision.Cost.BestPrice, m.cfg.MaxSlippage)
	}

	type placed struct {
		res domain.OrderResult
		err error
	}
	done := make(chan placed, 1)
	go func() {
		res, err := m.placer.PlaceOrder(execCtx, req)
		done <- placed{res, err}
	}()

	select {
	case <-execCtx.Done():
		m.logger.Warn("Order placement did not answer in time; venue state unknown",
			slog.String("venue", req.Venue),
			slog.String("client_id", req.ClientID),
		)
		return m.timeoutOr(execCtx, req.Venue, execCtx.Err())
	case p := <-done:
		if p.err != nil {
			return m.timeoutOr(execCtx, req.Venue, p.err)
		}
		if !p.res.IsSuccess() {
			if p.res.Err != nil {
				return p.res.Err
			}
			return fmt.Errorf("%w: status %s", domain.ErrOrderRejected, p.res.Status)
		}
		return nil
	}
}

// timeoutOr converts err into an ExecutionTimeoutError when the execution deadline fired.
func (m *Monitor) timeoutOr(execCtx context.Context, venue string, err error) error {
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return &domain.ExecutionTimeoutError{
			Venue:   venue,
			Symbol:  m.cfg.Symbol,
			Timeout: m.cfg.ExecTimeout,
			Err:     err,
		}
	}
	return err
}

// limitPrice is the worst price a limit order may accept within the slippage cap.
func limitPrice(side domain.Side, best, maxSlippage decimal.Decimal) decimal.Decimal {
	if side == domain.SideBuy {
		return best.Mul(decimal.NewFromInt(1).Add(maxSlippage))
	}
	return best.Mul(decimal.NewFromInt(1).Sub(maxSlippage))
}

// bookHedge applies a confirmed fill to the stored position.
// A pair with no stored position gets a futures position holding the hedge.
func (m *Monitor) bookHedge(ctx context.Context, side domain.Side, qty, price decimal.Decimal) error {
	signed := qty.InexactFloat64()
	if side == domain.SideSell {
		signed = -signed
	}

	err := m.store.UpdatePosition(ctx, m.cfg.Account, m.cfg.Symbol, func(p *domain.Position) error {
		p.ApplyHedge(signed)
		return nil
	})
	if !errors.Is(err, domain.ErrPositionNotFound) {
		return err
	}

	p, err := domain.NewPosition(m.cfg.Symbol, domain.KindFutures, signed, price.InexactFloat64(), nil)
	if err != nil {
		return err
	}
	return m.store.UpsertPosition(ctx, m.cfg.Account, p)
}

func (m *Monitor) notify(ctx context.Context, ev domain.HedgeEvent) {
	if m.notifier == nil {
		return
	}

	var msg string
	if ev.Status == domain.HedgeStatusSuccess {
		msg = fmt.Sprintf("Hedge %s %s %s on %s at ~%s", ev.Side, ev.Size, ev.Symbol, ev.Venue, ev.FillPriceEstimate.StringFixed(2))
	} else {
		msg = fmt.Sprintf("Hedge %s %s %s failed: %s", ev.Side, ev.Size, ev.Symbol, ev.Error)
	}

	if err := m.notifier.Notify(ctx, ev.Account, msg); err != nil {
		m.recorder.RecordError("notify")
		m.logger.Warn("Notification failed", slog.Any("error", err))
	}
}

// HedgeNow places a manual hedge of qty split into `steps` equal slices,
// ignoring threshold and cooldown. The last slice carries any rounding
// remainder. It stops at the first failed slice.
func (m *Monitor) HedgeNow(ctx context.Context, side domain.Side, qty decimal.Decimal, steps int) ([]domain.HedgeEvent, error) {
	if side != domain.SideBuy && side != domain.SideSell {
		return nil, fmt.Errorf("invalid side %q", side)
	}
	if !qty.IsPositive() {
		return nil, &domain.InvalidInputError{Field: "qty", Value: qty.InexactFloat64(), Reason: "must be positive"}
	}
	if steps < 1 {
		steps = 1
	}

	slice := qty.Div(decimal.NewFromInt(int64(steps))).Truncate(sizePrecision)
	if !slice.IsPositive() {
		return nil, &domain.InvalidInputError{Field: "qty", Value: qty.InexactFloat64(), Reason: "too small to split"}
	}
	last := qty.Sub(slice.Mul(decimal.NewFromInt(int64(steps - 1))))

	m.execMu.Lock()
	defer m.execMu.Unlock()

	events := make([]domain.HedgeEvent, 0, steps)
	for i := 0; i < steps; i++ {
		size := slice
		if i == steps-1 {
			size = last
		}

		m.setState(domain.StateExecuting)
		ev, err := m.execute(ctx, side, size)
		m.setState(domain.StateIdle)
		events = append(events, ev)
		if err != nil {
			return events, fmt.Errorf("slice %d/%d: %w", i+1, steps, err)
		}
	}
	return events, nil
}

// History returns the newest hedge events of this pair, newest first.
func (m *Monitor) History(ctx context.Context, limit int) ([]domain.HedgeEvent, error) {
	return m.events.History(ctx, m.cfg.Account, m.cfg.Symbol, limit)
}

func (m *Monitor) settingsKey() string {
	return "monitor/" + m.cfg.Account + "/" + m.cfg.Symbol
}

// UpdateSettings replaces the policy settings from the next tick on and
// persists them when a settings store is configured.
func (m *Monitor) UpdateSettings(ctx context.Context, s Settings) error {
	policy, err := strategy.NewDeltaNeutral(s.params())
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.policy = policy
	m.current = s
	m.mu.Unlock()

	m.logger.Info("Settings updated",
		slog.Float64("target_delta", s.TargetDelta),
		slog.Float64("threshold", s.Threshold),
		slog.Float64("hedge_fraction", s.HedgeFraction),
		slog.Duration("cooldown", s.Cooldown),
	)

	if m.settings == nil {
		return nil
	}
	b, err := json.Marshal(settingsRecord{
		TargetDelta:   s.TargetDelta,
		Threshold:     s.Threshold,
		HedgeFraction: s.HedgeFraction,
		CooldownSec:   s.Cooldown.Seconds(),
	})
	if err != nil {
		return err
	}
	return m.settings.SaveSetting(ctx, m.settingsKey(), string(b))
}

// RestoreSettings applies previously persisted settings, if any.
func (m *Monitor) RestoreSettings(ctx context.Context) (bool, error) {
	if m.settings == nil {
		return false, nil
	}
	all, err := m.settings.LoadSettings(ctx)
	if err != nil {
		return false, err
	}
	raw, ok := all[m.settingsKey()]
	if !ok {
		return false, nil
	}

	var rec settingsRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return false, fmt.Errorf("decode %s: %w", m.settingsKey(), err)
	}
	s := Settings{
		TargetDelta:   rec.TargetDelta,
		Threshold:     rec.Threshold,
		HedgeFraction: rec.HedgeFraction,
		Cooldown:      time.Duration(rec.CooldownSec * float64(time.Second)),
	}
	policy, err := strategy.NewDeltaNeutral(s.params())
	if err != nil {
		return false, fmt.Errorf("stored settings for %s: %w", m.settingsKey(), err)
	}

	m.mu.Lock()
	m.policy = policy
	m.current = s
	m.mu.Unlock()
	return true, nil
}
