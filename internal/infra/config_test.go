package infra

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hedge_go/internal/domain"
)

const sampleConfig = `
app:
  name: hedge
venues:
  bybit:
    enabled: true
    stream: true
  paper:
    enabled: true
hedging:
  interval_sec: 15
  max_slippage: "0.01"
monitors:
  - account: main
    symbol: BTCUSDT
    threshold: 2
    seed_position:
      kind: call
      size: 10
      strike: 65000
      expiry_days: 30
      volatility: 0.6
`

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.Interval() != 15*time.Second {
		t.Errorf("Expected 15s interval, got %v", cfg.Interval())
	}
	if cfg.Cooldown() != 300*time.Second {
		t.Errorf("Expected default cooldown 300s, got %v", cfg.Cooldown())
	}
	if cfg.Hedging.HedgeFraction != 1.0 {
		t.Errorf("Expected default fraction 1.0, got %v", cfg.Hedging.HedgeFraction)
	}
	if cfg.Hedging.MaxSlippage.String() != "0.01" {
		t.Errorf("Expected max slippage 0.01, got %s", cfg.Hedging.MaxSlippage)
	}
	if cfg.Venues.Bybit.Category != "linear" || cfg.Venues.Bybit.Depth != 5 {
		t.Errorf("Unexpected bybit defaults: %+v", cfg.Venues.Bybit)
	}
	if cfg.Venues.OKX.FeeRate.String() != "0.0006" {
		t.Errorf("Expected default fee 0.0006, got %s", cfg.Venues.OKX.FeeRate)
	}
	if len(cfg.Monitors) != 1 || cfg.Monitors[0].Seed == nil || cfg.Monitors[0].Seed.Kind != "call" {
		t.Errorf("Monitor not parsed: %+v", cfg.Monitors)
	}
}

func TestParseConfig_EnvOverride(t *testing.T) {
	t.Setenv("HEDGE_BYBIT_KEY", "env-key")
	t.Setenv("HEDGE_WEBHOOK_URL", "http://hook")

	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Venues.Bybit.APIKey != "env-key" {
		t.Errorf("Expected env key, got %q", cfg.Venues.Bybit.APIKey)
	}
	if cfg.Notify.WebhookURL != "http://hook" {
		t.Errorf("Expected env webhook, got %q", cfg.Notify.WebhookURL)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no venues", "hedging: {interval_sec: 5}"},
		{"bad fraction", "venues: {paper: {enabled: true}}\nhedging: {hedge_fraction: 1.5}"},
		{"bad order type", "venues: {paper: {enabled: true}}\nhedging: {order_type: stop}"},
		{"negative threshold", "venues: {paper: {enabled: true}}\nmonitors: [{account: a, symbol: X, threshold: -1}]"},
		{"duplicate monitor", "venues: {paper: {enabled: true}}\nmonitors: [{account: a, symbol: X}, {account: a, symbol: X}]"},
		{"missing symbol", "venues: {paper: {enabled: true}}\nmonitors: [{account: a}]"},
		{"bad ws url", "venues: {bybit: {enabled: true, stream: true, ws_url: http://x}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.yaml)); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.retry); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestRetry(t *testing.T) {
	t.Run("retriable errors are retried", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, time.Millisecond, "test", func(context.Context) error {
			calls++
			if calls < 3 {
				return domain.NewNetworkError("orderbook", errors.New("reset"))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Expected success, got %v", err)
		}
		if calls != 3 {
			t.Errorf("Expected 3 calls, got %d", calls)
		}
	})

	t.Run("fatal errors stop immediately", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, time.Millisecond, "test", func(context.Context) error {
			calls++
			return domain.ErrInvalidSymbol
		})
		if !errors.Is(err, domain.ErrInvalidSymbol) {
			t.Errorf("Expected ErrInvalidSymbol, got %v", err)
		}
		if calls != 1 {
			t.Errorf("Expected 1 call, got %d", calls)
		}
	})
}
