package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the full environment-sourced configuration surface shared
// by all workers. Every field has a default; Validate reports the full
// list of problems so the operator fixes them in one pass.
type Config struct {
	// Storage
	SQLitePath string
	BadgerDir  string

	// Exchange
	ExchangeBaseURL string
	APIKey          string
	APISecret       string
	PaperTrading    bool
	RequestTimeout  time.Duration
	RateLimitBudget int // requests per 10s window

	// Scanner
	ScanInterval     time.Duration
	MaxAssetsPerScan int
	MinVolume24h     decimal.Decimal
	ExcludedSymbols  []string
	InstrumentType   string

	// Analyzer
	AnalyzeInterval time.Duration // batch cadence; due-ness is decided per asset
	ReevalInterval  time.Duration
	EvalTimeout     time.Duration
	OHLCVInterval   string
	OHLCVLimit      int
	FreshWindow     time.Duration

	// Risk
	RiskPct                decimal.Decimal // fraction of equity risked per trade
	MinConfidence          decimal.Decimal
	MaxConcurrentPositions int
	MaxExposurePct         decimal.Decimal
	MinOrderValue          decimal.Decimal
	MinStopPct             decimal.Decimal
	MaxStopPct             decimal.Decimal
	MinTargetPct           decimal.Decimal
	MaxTargetPct           decimal.Decimal

	// Executor
	TradeInterval     time.Duration
	SignalMaxAge      time.Duration
	TradeLeaseTTL     time.Duration
	ReconcileInterval time.Duration
	MinFillRatio      decimal.Decimal
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration

	// Maintenance
	SweepInterval     time.Duration
	SignalRetention   time.Duration
	PositionRetention time.Duration
	AssetRetention    time.Duration

	// Process
	HealthAddr string
	LogLevel   string
	LogFile    string
}

// Load reads .env (if present) and the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		SQLitePath: getenv("BOT_SQLITE_PATH", "data/bot.db"),
		BadgerDir:  getenv("BOT_BADGER_DIR", "data/coordination"),

		ExchangeBaseURL: getenv("EXCHANGE_BASE_URL", "https://open-api.bingx.com"),
		APIKey:          getenv("EXCHANGE_API_KEY", ""),
		APISecret:       getenv("EXCHANGE_API_SECRET", ""),
		PaperTrading:    getenvBool("PAPER_TRADING", false),
		RequestTimeout:  getenvDuration("EXCHANGE_REQUEST_TIMEOUT", 10*time.Second),
		RateLimitBudget: getenvInt("EXCHANGE_RATE_BUDGET", 85),

		ScanInterval:     getenvDuration("SCAN_INTERVAL", 30*time.Second),
		MaxAssetsPerScan: getenvInt("MAX_ASSETS_TO_SCAN", 100),
		MinVolume24h:     getenvDecimal("MIN_VOLUME_24H_USDT", "10000"),
		ExcludedSymbols:  getenvList("EXCLUDED_SYMBOLS"),
		InstrumentType:   getenv("INSTRUMENT_TYPE", "perpetual"),

		AnalyzeInterval: getenvDuration("ANALYZE_INTERVAL", time.Minute),
		ReevalInterval:  getenvDuration("REEVAL_INTERVAL", 5*time.Minute),
		EvalTimeout:     getenvDuration("EVAL_TIMEOUT", 60*time.Second),
		OHLCVInterval:   getenv("ANALYSIS_TIMEFRAME", "2h"),
		OHLCVLimit:      getenvInt("ANALYSIS_CANDLES", 100),
		FreshWindow:     getenvDuration("ASSET_FRESH_WINDOW", 10*time.Minute),

		RiskPct:                getenvDecimal("RISK_PERCENT", "0.02"),
		MinConfidence:          getenvDecimal("MIN_CONFIDENCE", "0.6"),
		MaxConcurrentPositions: getenvInt("MAX_CONCURRENT_TRADES", 5),
		MaxExposurePct:         getenvDecimal("MAX_EXPOSURE_PERCENT", "0.5"),
		MinOrderValue:          getenvDecimal("MIN_ORDER_SIZE_USDT", "10"),
		MinStopPct:             getenvDecimal("MIN_STOP_PERCENT", "0.005"),
		MaxStopPct:             getenvDecimal("MAX_STOP_PERCENT", "0.05"),
		MinTargetPct:           getenvDecimal("MIN_TARGET_PERCENT", "0.01"),
		MaxTargetPct:           getenvDecimal("MAX_TARGET_PERCENT", "0.15"),

		TradeInterval:     getenvDuration("TRADE_INTERVAL", 10*time.Second),
		SignalMaxAge:      getenvDuration("SIGNAL_MAX_AGE", 10*time.Minute),
		TradeLeaseTTL:     getenvDuration("TRADE_LEASE_TTL", 60*time.Second),
		ReconcileInterval: getenvDuration("RECONCILE_INTERVAL", 15*time.Second),
		MinFillRatio:      getenvDecimal("MIN_FILL_RATIO", "0.9"),
		RetryAttempts:     getenvInt("ORDER_RETRY_ATTEMPTS", 3),
		RetryBaseDelay:    getenvDuration("ORDER_RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:     getenvDuration("ORDER_RETRY_MAX_DELAY", 5*time.Second),

		SweepInterval:     getenvDuration("SWEEP_INTERVAL", 24*time.Hour),
		SignalRetention:   getenvDuration("SIGNAL_RETENTION", 7*24*time.Hour),
		PositionRetention: getenvDuration("POSITION_RETENTION", 30*24*time.Hour),
		AssetRetention:    getenvDuration("ASSET_RETENTION", 14*24*time.Hour),

		HealthAddr: getenv("HEALTH_ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogFile:    getenv("LOG_FILE", ""),
	}
}

// Validate returns every configuration problem found. A non-empty
// result is fatal at startup.
func (c Config) Validate() []error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.SQLitePath) == "" {
		add("BOT_SQLITE_PATH must not be empty")
	}
	if strings.TrimSpace(c.BadgerDir) == "" {
		add("BOT_BADGER_DIR must not be empty")
	}
	if !c.PaperTrading && (c.APIKey == "" || c.APISecret == "") {
		add("EXCHANGE_API_KEY and EXCHANGE_API_SECRET are required unless PAPER_TRADING=true")
	}
	if c.ScanInterval <= 0 {
		add("SCAN_INTERVAL must be positive")
	}
	if c.MaxAssetsPerScan < 1 {
		add("MAX_ASSETS_TO_SCAN must be at least 1")
	}
	if c.MinVolume24h.IsNegative() {
		add("MIN_VOLUME_24H_USDT must not be negative")
	}
	if c.RiskPct.LessThanOrEqual(decimal.Zero) || c.RiskPct.GreaterThan(decimal.NewFromFloat(0.1)) {
		add("RISK_PERCENT must be in (0, 0.1]")
	}
	if c.MinConfidence.IsNegative() || c.MinConfidence.GreaterThan(decimal.NewFromInt(1)) {
		add("MIN_CONFIDENCE must be in [0, 1]")
	}
	if c.MaxConcurrentPositions < 1 {
		add("MAX_CONCURRENT_TRADES must be at least 1")
	}
	if c.MinStopPct.GreaterThan(c.MaxStopPct) {
		add("MIN_STOP_PERCENT must not exceed MAX_STOP_PERCENT")
	}
	if c.MinTargetPct.GreaterThan(c.MaxTargetPct) {
		add("MIN_TARGET_PERCENT must not exceed MAX_TARGET_PERCENT")
	}
	if c.MinFillRatio.LessThanOrEqual(decimal.Zero) || c.MinFillRatio.GreaterThan(decimal.NewFromInt(1)) {
		add("MIN_FILL_RATIO must be in (0, 1]")
	}
	if c.TradeLeaseTTL <= 0 || c.EvalTimeout <= 0 {
		add("lease TTLs must be positive")
	}
	if c.RetryAttempts < 1 {
		add("ORDER_RETRY_ATTEMPTS must be at least 1")
	}
	if c.ReconcileInterval <= 0 {
		add("RECONCILE_INTERVAL must be positive")
	}
	return errs
}

// IsExcluded reports whether a symbol is on the exclusion list.
func (c Config) IsExcluded(symbol string) bool {
	for _, s := range c.ExcludedSymbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// bare numbers are seconds, matching the older deployments
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func getenvDecimal(key, def string) decimal.Decimal {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(def)
	return d
}

func getenvList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
