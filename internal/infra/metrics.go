package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes hedging activity to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	hedgesTotal    *prometheus.CounterVec
	hedgeSize      *prometheus.HistogramVec
	currentDelta   *prometheus.GaugeVec
	ticksTotal     *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	activeMonitors prometheus.Gauge
	routeSelected  *prometheus.CounterVec
	routeRejected  *prometheus.CounterVec
	bookUpdates    *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		hedgesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hedge_orders_total",
			Help: "Hedge orders by outcome",
		}, []string{"symbol", "side", "status"}),
		hedgeSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hedge_order_size",
			Help:    "Distribution of hedge order sizes",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"symbol"}),
		currentDelta: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hedge_current_delta",
			Help: "Last observed delta per monitor",
		}, []string{"account", "symbol"}),
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hedge_monitor_ticks_total",
			Help: "Monitor evaluations by decision",
		}, []string{"symbol", "action"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hedge_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
		activeMonitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hedge_active_monitors",
			Help: "Number of running monitors",
		}),
		routeSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hedge_route_selected_total",
			Help: "Venues chosen by the router",
		}, []string{"venue"}),
		routeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hedge_route_rejected_total",
			Help: "Venues skipped by the router",
		}, []string{"venue", "reason"}),
		bookUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hedge_book_updates_total",
			Help: "Order book updates applied to the cache",
		}, []string{"venue"}),
	}

	reg.MustRegister(
		m.hedgesTotal, m.hedgeSize, m.currentDelta, m.ticksTotal,
		m.errorsTotal, m.activeMonitors, m.routeSelected, m.routeRejected, m.bookUpdates,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHedge records an executed or failed hedge order.
func (m *Metrics) RecordHedge(symbol, side, status string, size float64) {
	if m == nil {
		return
	}
	m.hedgesTotal.WithLabelValues(symbol, side, status).Inc()
	if status == "success" {
		m.hedgeSize.WithLabelValues(symbol).Observe(size)
	}
}

// RecordTick records one monitor evaluation.
func (m *Metrics) RecordTick(account, symbol, action string, delta float64) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(symbol, action).Inc()
	m.currentDelta.WithLabelValues(account, symbol).Set(delta)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordBookUpdate counts an applied order book update.
func (m *Metrics) RecordBookUpdate(venue string) {
	if m == nil {
		return
	}
	m.bookUpdates.WithLabelValues(venue).Inc()
}

// IncrementMonitors increments active monitors by 1.
func (m *Metrics) IncrementMonitors() {
	if m == nil {
		return
	}
	m.activeMonitors.Inc()
}

// DecrementMonitors decrements active monitors by 1.
func (m *Metrics) DecrementMonitors() {
	if m == nil {
		return
	}
	m.activeMonitors.Dec()
}

// RouteSelected implements the router observer.
func (m *Metrics) RouteSelected(venue string) {
	if m == nil {
		return
	}
	m.routeSelected.WithLabelValues(venue).Inc()
}

// RouteRejected implements the router observer.
func (m *Metrics) RouteRejected(venue, reason string) {
	if m == nil {
		return
	}
	m.routeRejected.WithLabelValues(venue, reason).Inc()
}
