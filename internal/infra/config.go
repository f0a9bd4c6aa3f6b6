package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"hedge_go/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is sent with REST requests to venues
	DefaultUserAgent = "hedge-go/1.0"

	// DefaultConfigPath is used when HEDGE_CONFIG is not set
	DefaultConfigPath = "configs/config.yaml"
)

// VenueConfig holds connection settings shared by all venues.
type VenueConfig struct {
	Enabled    bool            `yaml:"enabled"`
	RestURL    string          `yaml:"rest_url"`
	WSURL      string          `yaml:"ws_url"`
	APIKey     string          `yaml:"api_key"`
	APISecret  string          `yaml:"api_secret"`
	Passphrase string          `yaml:"passphrase"`
	FeeRate    decimal.Decimal `yaml:"fee_rate"`
	Depth      int             `yaml:"depth"`
	Stream     bool            `yaml:"stream"`  // Maintain a websocket book instead of polling REST
	Testnet    bool            `yaml:"testnet"` // Bybit only
	Demo       bool            `yaml:"demo"`    // Bybit demo trading host
	Category   string          `yaml:"category"`
}

// SeedPosition describes the position a monitor starts with when the store has none.
type SeedPosition struct {
	Kind       string  `yaml:"kind"`
	Size       float64 `yaml:"size"`
	EntryPrice float64 `yaml:"entry_price"`
	Strike     float64 `yaml:"strike"`
	ExpiryDays float64 `yaml:"expiry_days"`
	Volatility float64 `yaml:"volatility"`
	RiskFree   float64 `yaml:"risk_free_rate"`
}

// MonitorConfig configures one (account, symbol) hedge monitor.
// Zero-valued overrides inherit from Hedging.
type MonitorConfig struct {
	Account       string        `yaml:"account"`
	Symbol        string        `yaml:"symbol"`
	Threshold     float64       `yaml:"threshold"`
	TargetDelta   *float64      `yaml:"target_delta"`
	HedgeFraction float64       `yaml:"hedge_fraction"`
	Seed          *SeedPosition `yaml:"seed_position"`
}

// Config holds every application setting.
// It is loaded with LoadConfig and secrets are then overridden from the environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Venues struct {
		Bybit  VenueConfig `yaml:"bybit"`
		OKX    VenueConfig `yaml:"okx"`
		Bitget VenueConfig `yaml:"bitget"`
		Paper  VenueConfig `yaml:"paper"`
	} `yaml:"venues"`

	Hedging struct {
		IntervalSec         int             `yaml:"interval_sec"`
		CooldownSec         int             `yaml:"cooldown_sec"`
		HedgeFraction       float64         `yaml:"hedge_fraction"`
		TargetDelta         float64         `yaml:"target_delta"`
		ExecutionTimeoutSec int             `yaml:"execution_timeout_sec"`
		MaxSlippage         decimal.Decimal `yaml:"max_slippage"`
		OrderType           string          `yaml:"order_type"`
		DryRun              bool            `yaml:"dry_run"`
		BookMaxAgeMS        int             `yaml:"book_max_age_ms"`
	} `yaml:"hedging"`

	Monitors []MonitorConfig `yaml:"monitors"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`

	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notify"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. A .env file in the working directory
// is loaded first if present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)
	}
	if err != nil {
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig is LoadConfig without the file system.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	// Secrets never need to live in the YAML file
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	h := &c.Hedging
	if h.IntervalSec == 0 {
		h.IntervalSec = 30
	}
	if h.CooldownSec == 0 {
		h.CooldownSec = 300
	}
	if h.HedgeFraction == 0 {
		h.HedgeFraction = 1.0
	}
	if h.ExecutionTimeoutSec == 0 {
		h.ExecutionTimeoutSec = 10
	}
	if h.MaxSlippage.IsZero() {
		h.MaxSlippage = decimal.RequireFromString("0.005")
	}
	if h.OrderType == "" {
		h.OrderType = "market"
	}
	if h.BookMaxAgeMS == 0 {
		h.BookMaxAgeMS = 2000
	}

	setVenueDefaults(&c.Venues.Bybit, "https://api.bybit.com", "wss://stream.bybit.com/v5/public/linear", 5)
	setVenueDefaults(&c.Venues.OKX, "https://www.okx.com", "", 5)
	setVenueDefaults(&c.Venues.Bitget, "https://api.bitget.com", "", 5)
	setVenueDefaults(&c.Venues.Paper, "", "", 0)
	if c.Venues.Bybit.Category == "" {
		c.Venues.Bybit.Category = "linear"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/hedge.db"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "localhost:6060"
	}
}

func setVenueDefaults(v *VenueConfig, rest, ws string, depth int) {
	if v.RestURL == "" {
		v.RestURL = rest
	}
	if v.WSURL == "" {
		v.WSURL = ws
	}
	if v.Depth == 0 {
		v.Depth = depth
	}
	if v.FeeRate.IsZero() {
		v.FeeRate = decimal.RequireFromString("0.0006")
	}
}

// Interval is the monitor tick period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Hedging.IntervalSec) * time.Second
}

// Cooldown is the minimum time between hedges.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Hedging.CooldownSec) * time.Second
}

// ExecutionTimeout bounds routing plus order placement.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Hedging.ExecutionTimeoutSec) * time.Second
}

// BookMaxAge is how old a cached book may be before REST is used.
func (c *Config) BookMaxAge() time.Duration {
	return time.Duration(c.Hedging.BookMaxAgeMS) * time.Millisecond
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	h := c.Hedging
	if h.IntervalSec <= 0 {
		return fmt.Errorf("hedging interval must be positive")
	}
	if h.CooldownSec < 0 {
		return fmt.Errorf("hedging cooldown must be non-negative")
	}
	if !(h.HedgeFraction > 0 && h.HedgeFraction <= 1) {
		return fmt.Errorf("hedge fraction must be in (0, 1], got %v", h.HedgeFraction)
	}
	if h.MaxSlippage.IsNegative() {
		return fmt.Errorf("max slippage must be non-negative")
	}
	switch strings.ToLower(h.OrderType) {
	case "market", "limit":
	default:
		return fmt.Errorf("invalid order type: %s", h.OrderType)
	}

	if !c.Venues.Bybit.Enabled && !c.Venues.OKX.Enabled && !c.Venues.Bitget.Enabled && !c.Venues.Paper.Enabled {
		return fmt.Errorf("at least one venue must be enabled")
	}
	if b := c.Venues.Bybit; b.Enabled && b.Stream && !hasPrefix(b.WSURL, "ws://") && !hasPrefix(b.WSURL, "wss://") {
		return fmt.Errorf("invalid Bybit WS URL: %s", b.WSURL)
	}

	seen := make(map[string]bool, len(c.Monitors))
	for i, m := range c.Monitors {
		if m.Account == "" || m.Symbol == "" {
			return fmt.Errorf("monitor %d: account and symbol are required", i)
		}
		if m.Threshold < 0 {
			return fmt.Errorf("monitor %s/%s: threshold must be non-negative", m.Account, m.Symbol)
		}
		key := m.Account + "|" + m.Symbol
		if seen[key] {
			return fmt.Errorf("monitor %s/%s: duplicate", m.Account, m.Symbol)
		}
		seen[key] = true
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv replaces secrets with environment values when present.
func overrideWithEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	set(&cfg.Venues.Bybit.APIKey, "HEDGE_BYBIT_KEY")
	set(&cfg.Venues.Bybit.APISecret, "HEDGE_BYBIT_SECRET")
	set(&cfg.Venues.OKX.APIKey, "HEDGE_OKX_KEY")
	set(&cfg.Venues.OKX.APISecret, "HEDGE_OKX_SECRET")
	set(&cfg.Venues.OKX.Passphrase, "HEDGE_OKX_PASSPHRASE")
	set(&cfg.Venues.Bitget.APIKey, "HEDGE_BITGET_KEY")
	set(&cfg.Venues.Bitget.APISecret, "HEDGE_BITGET_SECRET")
	set(&cfg.Venues.Bitget.Passphrase, "HEDGE_BITGET_PASSPHRASE")
	set(&cfg.Notify.WebhookURL, "HEDGE_WEBHOOK_URL")
	set(&cfg.Storage.Path, "HEDGE_DB_PATH")
	set(&cfg.Logging.Level, "HEDGE_LOG_LEVEL")
}
