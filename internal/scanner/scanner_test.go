package scanner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewatch/cryptobot/internal/coordinator"
	"github.com/tradewatch/cryptobot/internal/domain"
	"github.com/tradewatch/cryptobot/internal/exchange"
	"github.com/tradewatch/cryptobot/internal/store"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

type scannerFixture struct {
	store *store.Store
	coord *coordinator.Coordinator
	paper *exchange.Paper
}

func newFixture(t *testing.T) scannerFixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	coord, err := coordinator.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { coord.Close() })

	return scannerFixture{store: st, coord: coord, paper: exchange.NewPaper(decimal.NewFromInt(10000))}
}

func (f scannerFixture) newScanner(cfg Config, workerID string) *Scanner {
	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = 30 * time.Second
	}
	if cfg.MaxAssetsPerScan == 0 {
		cfg.MaxAssetsPerScan = 100
	}
	if cfg.InstrumentType == "" {
		cfg.InstrumentType = "perpetual"
	}
	return New(f.store, f.coord, f.paper, cfg, workerID)
}

func perp(symbol, volume string) domain.Market {
	return domain.Market{Symbol: symbol, QuoteVolume24h: dec(volume), InstrumentType: "perpetual"}
}

func TestScanDiscoversAndFilters(t *testing.T) {
	f := newFixture(t)
	f.paper.SeedMarket(perp("BTC-USDT", "5000000"), dec("97000"))
	f.paper.SeedMarket(perp("ETH-USDT", "3000000"), dec("3500"))
	f.paper.SeedMarket(perp("DUST-USDT", "900"), dec("0.001"))
	f.paper.SeedMarket(perp("EXCL-USDT", "8000000"), dec("1"))
	f.paper.SeedMarket(domain.Market{Symbol: "SPOT-USDT", QuoteVolume24h: dec("7000000"), InstrumentType: "spot"}, dec("10"))

	sc := f.newScanner(Config{
		MinVolume24h:    dec("10000"),
		ExcludedSymbols: map[string]bool{"EXCL-USDT": true},
	}, "worker-a")

	rep, err := sc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Discovered)
	assert.Equal(t, 3, rep.Filtered)
	assert.Equal(t, 2, rep.Upserted)
	assert.Empty(t, rep.Errors)

	active, err := f.store.ListActiveAssets(context.Background())
	require.NoError(t, err)
	symbols := make([]string, len(active))
	for i, a := range active {
		symbols[i] = a.Symbol
	}
	assert.ElementsMatch(t, []string{"BTC-USDT", "ETH-USDT"}, symbols)
}

func TestScanCapsAtMaxAssetsByVolume(t *testing.T) {
	f := newFixture(t)
	f.paper.SeedMarket(perp("A-USDT", "100000"), dec("1"))
	f.paper.SeedMarket(perp("B-USDT", "300000"), dec("1"))
	f.paper.SeedMarket(perp("C-USDT", "200000"), dec("1"))

	sc := f.newScanner(Config{MinVolume24h: dec("10000"), MaxAssetsPerScan: 2}, "worker-a")
	rep, err := sc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Upserted)

	// The two highest-volume symbols survive the cap.
	active, err := f.store.ListActiveAssets(context.Background())
	require.NoError(t, err)
	symbols := make([]string, len(active))
	for i, a := range active {
		symbols[i] = a.Symbol
	}
	assert.ElementsMatch(t, []string{"B-USDT", "C-USDT"}, symbols)
}

func TestScanDeactivatesDroppedAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A previous cycle registered FADE-USDT; this listing no longer
	// clears the volume bar for it.
	require.NoError(t, f.store.UpsertAsset(ctx, domain.Asset{
		Symbol:      "FADE-USDT",
		Volume24h:   dec("50000"),
		LastScanned: time.Now().Add(-time.Minute),
		Active:      true,
	}))
	f.paper.SeedMarket(perp("BTC-USDT", "5000000"), dec("97000"))
	f.paper.SeedMarket(perp("FADE-USDT", "500"), dec("2"))

	sc := f.newScanner(Config{MinVolume24h: dec("10000")}, "worker-a")
	rep, err := sc.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deactivated)

	faded, err := f.store.GetAsset(ctx, "FADE-USDT")
	require.NoError(t, err)
	assert.False(t, faded.Active)
}

func TestScanSkipsWhenLeaseBusy(t *testing.T) {
	f := newFixture(t)
	f.paper.SeedMarket(perp("BTC-USDT", "5000000"), dec("97000"))

	_, err := f.coord.Acquire(domain.ScanLeaseKey, "other-worker", time.Minute)
	require.NoError(t, err)

	sc := f.newScanner(Config{MinVolume24h: dec("10000")}, "worker-a")
	_, err = sc.Scan(context.Background())
	assert.ErrorIs(t, err, domain.ErrSkipped)
}
