package maintenance

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
	"github.com/tradewatch/cryptobot/internal/store"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestSweep(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	coord, err := coordinator.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { coord.Close() })

	ctx := context.Background()
	now := time.Now()

	// Old and fresh signals.
	require.NoError(t, st.AppendSignal(ctx, &domain.Signal{
		Symbol: "BTC-USDT", Direction: domain.DirectionFlat,
		Confidence: dec("0"), GeneratedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, st.AppendSignal(ctx, &domain.Signal{
		Symbol: "BTC-USDT", Direction: domain.DirectionLong,
		Confidence: dec("0.8"), GeneratedAt: now,
	}))

	// A cancelled position old enough to archive. Backdating goes
	// through the archive cutoff, so create then cancel and archive with
	// a future cutoff inside Sweep via a zero retention.
	require.NoError(t, st.CreatePosition(ctx, &domain.Position{
		ID: "p1", Symbol: "ETH-USDT", Direction: domain.DirectionLong,
		EntryPrice: dec("3500"), Size: dec("1"), Status: domain.PositionStatusPending,
	}))
	require.NoError(t, st.TransitionPosition(ctx, "p1",
		[]domain.PositionStatus{domain.PositionStatusPending},
		domain.PositionStatusCancelled, nil))

	// A long-inactive asset and a live one.
	require.NoError(t, st.UpsertAsset(ctx, domain.Asset{
		Symbol: "DEAD-USDT", Volume24h: dec("100"), LastScanned: now.Add(-30 * 24 * time.Hour), Active: false,
	}))
	require.NoError(t, st.UpsertAsset(ctx, domain.Asset{
		Symbol: "BTC-USDT", Volume24h: dec("5000000"), LastScanned: now, Active: true,
	}))

	// A lease held far past its TTL.
	_, err = coord.Acquire("asset:WEDGED-USDT:trade", "crashed-worker", 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	w := New(st, coord, Config{
		SignalRetention:   24 * time.Hour,
		PositionRetention: -time.Minute, // cutoff in the future: archive immediately
		AssetRetention:    14 * 24 * time.Hour,
		StaleLeaseFactor:  2,
	})
	rep, err := w.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), rep.SignalsDeleted)
	assert.Equal(t, int64(1), rep.PositionsArchived)
	assert.Equal(t, int64(1), rep.AssetsDeleted)
	assert.Equal(t, 1, rep.StaleLeases)
	assert.Empty(t, rep.Errors)

	// The fresh signal and live asset survive.
	latest, err := st.LatestSignal(ctx, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionLong, latest.Direction)
	_, err = st.GetAsset(ctx, "BTC-USDT")
	assert.NoError(t, err)

	_, err = st.GetPosition(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSweepNeverFailsOnEmptyStores(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	coord, err := coordinator.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { coord.Close() })

	w := New(st, coord, Config{
		SignalRetention:   time.Hour,
		PositionRetention: time.Hour,
		AssetRetention:    time.Hour,
	})
	rep, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Errors)
	assert.Zero(t, rep.SignalsDeleted)
}
