// Package config provides application configuration loaded from environment
// variables.  Use the package-level Get() function to obtain the singleton
// Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        // e.g. "8080"
	Env            string        // "development" | "production"
	ReadTimeout    time.Duration // default 10s
	WriteTimeout   time.Duration // default 10s
	AllowedOrigins []string      // CORS/WS origins; empty = allow all
}

// StoreConfig holds local persistence settings.
type StoreConfig struct {
	Path string // sqlite database file, default "optionsim.db"
}

// FeedConfig holds exchange API settings.
type FeedConfig struct {
	BinanceURL        string        // default "https://api.binance.com"
	BinanceFuturesURL string        // default "https://fapi.binance.com"
	FetchTimeout      time.Duration // default 5s
	KlineLimit        int           // default 100 candles per fetch
	DepthLimit        int           // default 20 book levels per side
}

// TradingConfig holds simulator ledger settings.
type TradingConfig struct {
	Symbol         string  // default "BTCUSDT"
	InitialBalance float64 // starting simulated balance, default 1000
	PayoutRate     float64 // profit fraction on a WIN, default 0.85
	MinStake       float64 // default 5
	MaxPositions   int     // max concurrent open positions, default 5
}

// SchedulerConfig holds the background loop intervals.
type SchedulerConfig struct {
	PricePollInterval    time.Duration // default 500ms
	ChartRefreshInterval time.Duration // default 30s
	ExpirySweepInterval  time.Duration // default 1s
}

// AdvisorConfig holds the default prediction provider settings.  The values
// here only seed the persisted advisor record on first boot; afterwards the
// record is user-editable via the API.
type AdvisorConfig struct {
	Provider       string        // default "mock"
	APIKey         string        // default "" (mock needs none)
	Model          string        // default "gpt-4o-mini"
	Threshold      int           // default 60
	RequestTimeout time.Duration // default 30s
	OpenAIURL      string        // default "https://api.openai.com"
	DeepSeekURL    string        // default "https://api.deepseek.com"
	GeminiURL      string        // default "https://generativelanguage.googleapis.com"
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Feed      FeedConfig
	Trading   TradingConfig
	Scheduler SchedulerConfig
	Advisor   AdvisorConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all configuration values are sane.
// Returns every validation error encountered, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Trading.PayoutRate <= 0 || c.Trading.PayoutRate >= 1 {
		errs = append(errs, fmt.Errorf(
			"PAYOUT_RATE must be between 0 and 1 (exclusive), got %.4f", c.Trading.PayoutRate))
	}
	if c.Trading.MinStake <= 0 {
		errs = append(errs, fmt.Errorf("MIN_STAKE must be positive, got %.2f", c.Trading.MinStake))
	}
	if c.Trading.MaxPositions <= 0 {
		errs = append(errs, fmt.Errorf("MAX_POSITIONS must be positive, got %d", c.Trading.MaxPositions))
	}
	if c.Trading.InitialBalance < 0 {
		errs = append(errs, fmt.Errorf("INITIAL_BALANCE must not be negative, got %.2f", c.Trading.InitialBalance))
	}
	if c.Scheduler.PricePollInterval <= 0 ||
		c.Scheduler.ChartRefreshInterval <= 0 ||
		c.Scheduler.ExpirySweepInterval <= 0 {
		errs = append(errs, errors.New("scheduler intervals must all be positive"))
	}
	if c.Advisor.Threshold < 0 || c.Advisor.Threshold > 100 {
		errs = append(errs, fmt.Errorf("ADVISOR_THRESHOLD must be 0–100, got %d", c.Advisor.Threshold))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch
// misconfigurations at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration.  Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:           getEnv("SERVER_PORT", "8080"),
		Env:            getEnv("ENVIRONMENT", "development"),
		ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		AllowedOrigins: getList("ALLOWED_ORIGINS"),
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	cfg.Store = StoreConfig{
		Path: getEnv("STORE_PATH", "optionsim.db"),
	}

	// ── Feed ──────────────────────────────────────────────────────────────────
	klineLimit, err := getInt("FEED_KLINE_LIMIT", 100)
	if err != nil {
		return nil, fmt.Errorf("FEED_KLINE_LIMIT: %w", err)
	}
	depthLimit, err := getInt("FEED_DEPTH_LIMIT", 20)
	if err != nil {
		return nil, fmt.Errorf("FEED_DEPTH_LIMIT: %w", err)
	}
	cfg.Feed = FeedConfig{
		BinanceURL:        getEnv("FEED_BINANCE_URL", "https://api.binance.com"),
		BinanceFuturesURL: getEnv("FEED_BINANCE_FUTURES_URL", "https://fapi.binance.com"),
		FetchTimeout:      getDuration("FEED_FETCH_TIMEOUT", 5*time.Second),
		KlineLimit:        klineLimit,
		DepthLimit:        depthLimit,
	}

	// ── Trading ───────────────────────────────────────────────────────────────
	initialBalance, err := getFloat("INITIAL_BALANCE", 1000)
	if err != nil {
		return nil, fmt.Errorf("INITIAL_BALANCE: %w", err)
	}
	payoutRate, err := getFloat("PAYOUT_RATE", 0.85)
	if err != nil {
		return nil, fmt.Errorf("PAYOUT_RATE: %w", err)
	}
	minStake, err := getFloat("MIN_STAKE", 5)
	if err != nil {
		return nil, fmt.Errorf("MIN_STAKE: %w", err)
	}
	maxPositions, err := getInt("MAX_POSITIONS", 5)
	if err != nil {
		return nil, fmt.Errorf("MAX_POSITIONS: %w", err)
	}
	cfg.Trading = TradingConfig{
		Symbol:         getEnv("SYMBOL", "BTCUSDT"),
		InitialBalance: initialBalance,
		PayoutRate:     payoutRate,
		MinStake:       minStake,
		MaxPositions:   maxPositions,
	}

	// ── Scheduler ─────────────────────────────────────────────────────────────
	cfg.Scheduler = SchedulerConfig{
		PricePollInterval:    getDuration("PRICE_POLL_INTERVAL", 500*time.Millisecond),
		ChartRefreshInterval: getDuration("CHART_REFRESH_INTERVAL", 30*time.Second),
		ExpirySweepInterval:  getDuration("EXPIRY_SWEEP_INTERVAL", 1*time.Second),
	}

	// ── Advisor ───────────────────────────────────────────────────────────────
	threshold, err := getInt("ADVISOR_THRESHOLD", 60)
	if err != nil {
		return nil, fmt.Errorf("ADVISOR_THRESHOLD: %w", err)
	}
	cfg.Advisor = AdvisorConfig{
		Provider:       getEnv("ADVISOR_PROVIDER", "mock"),
		APIKey:         getEnv("ADVISOR_API_KEY", ""),
		Model:          getEnv("ADVISOR_MODEL", "gpt-4o-mini"),
		Threshold:      threshold,
		RequestTimeout: getDuration("ADVISOR_REQUEST_TIMEOUT", 30*time.Second),
		OpenAIURL:      getEnv("ADVISOR_OPENAI_URL", "https://api.openai.com"),
		DeepSeekURL:    getEnv("ADVISOR_DEEPSEEK_URL", "https://api.deepseek.com"),
		GeminiURL:      getEnv("ADVISOR_GEMINI_URL", "https://generativelanguage.googleapis.com"),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getList splits a comma-separated env var into trimmed non-empty entries.
func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "500ms", "30s").
// Falls back to defaultVal if the variable is unset or unparseable.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
