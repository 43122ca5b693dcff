package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "data/bot.db", cfg.SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.ScanInterval)
	assert.Equal(t, 100, cfg.MaxAssetsPerScan)
	assert.True(t, cfg.MinVolume24h.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 5, cfg.MaxConcurrentPositions)
	assert.True(t, cfg.RiskPct.Equal(decimal.NewFromFloat(0.02)))
	assert.Equal(t, 3, cfg.RetryAttempts)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SCAN_INTERVAL", "2m")
	t.Setenv("MAX_ASSETS_TO_SCAN", "25")
	t.Setenv("EXCLUDED_SYMBOLS", "FOO-USDT, BAR-USDT")
	t.Setenv("PAPER_TRADING", "true")
	t.Setenv("RISK_PERCENT", "0.01")

	cfg := Load()
	assert.Equal(t, 2*time.Minute, cfg.ScanInterval)
	assert.Equal(t, 25, cfg.MaxAssetsPerScan)
	assert.Equal(t, []string{"FOO-USDT", "BAR-USDT"}, cfg.ExcludedSymbols)
	assert.True(t, cfg.PaperTrading)
	assert.True(t, cfg.RiskPct.Equal(decimal.NewFromFloat(0.01)))

	assert.True(t, cfg.IsExcluded("foo-usdt"), "exclusion is case-insensitive")
	assert.False(t, cfg.IsExcluded("BTC-USDT"))
}

func TestBareNumberDurationsAreSeconds(t *testing.T) {
	t.Setenv("SCAN_INTERVAL", "45")
	cfg := Load()
	assert.Equal(t, 45*time.Second, cfg.ScanInterval)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	t.Setenv("PAPER_TRADING", "true")
	cfg := Load()
	require.Empty(t, cfg.Validate())

	cfg.ScanInterval = 0
	cfg.MaxConcurrentPositions = 0
	cfg.RiskPct = decimal.NewFromInt(1)
	errs := cfg.Validate()
	assert.Len(t, errs, 3, "every problem is reported, not just the first")
}

func TestValidateRequiresKeysForLiveTrading(t *testing.T) {
	t.Setenv("PAPER_TRADING", "false")
	t.Setenv("EXCHANGE_API_KEY", "")
	t.Setenv("EXCHANGE_API_SECRET", "")
	cfg := Load()
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "EXCHANGE_API_KEY")
}
