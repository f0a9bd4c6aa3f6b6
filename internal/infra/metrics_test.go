package infra

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordHedge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordHedge("BTCUSDT", "SELL", "success", 10)
	m.RecordHedge("BTCUSDT", "SELL", "success", 2)
	m.RecordHedge("BTCUSDT", "SELL", "failed", 3)

	if got := testutil.ToFloat64(m.hedgesTotal.WithLabelValues("BTCUSDT", "SELL", "success")); got != 2 {
		t.Errorf("Expected 2 successful hedges, got %v", got)
	}
	if got := testutil.ToFloat64(m.hedgesTotal.WithLabelValues("BTCUSDT", "SELL", "failed")); got != 1 {
		t.Errorf("Expected 1 failed hedge, got %v", got)
	}
	// Only successful hedges feed the size histogram
	if got := testutil.CollectAndCount(m.hedgeSize); got != 1 {
		t.Errorf("Expected 1 histogram series, got %d", got)
	}
}

func TestMetrics_Monitors(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.IncrementMonitors()
	m.IncrementMonitors()
	m.IncrementMonitors()
	m.DecrementMonitors()

	if got := testutil.ToFloat64(m.activeMonitors); got != 2 {
		t.Errorf("Expected 2 monitors, got %v", got)
	}
}

func TestMetrics_TickAndRoutes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTick("acct", "BTCUSDT", "SELL", 12.5)
	m.RouteSelected("bybit")
	m.RouteRejected("okx", "slippage")

	if got := testutil.ToFloat64(m.currentDelta.WithLabelValues("acct", "BTCUSDT")); got != 12.5 {
		t.Errorf("Expected delta 12.5, got %v", got)
	}
	if got := testutil.ToFloat64(m.routeRejected.WithLabelValues("okx", "slippage")); got != 1 {
		t.Errorf("Expected 1 rejection, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordHedge("X", "BUY", "success", 1)
	m.RecordTick("a", "X", "NONE", 0)
	m.RecordError("x")
	m.IncrementMonitors()
	m.RouteSelected("x")
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordError("pricing")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `hedge_errors_total{kind="pricing"} 1`) {
		t.Errorf("Expected error counter in output, got:\n%s", body)
	}
}
