package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewatch/cryptobot/internal/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestAssetUpsertAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a := domain.Asset{Symbol: "BTC-USDT", Volume24h: dec("1500000"), LastScanned: time.Now(), Active: true}
	require.NoError(t, s.UpsertAsset(ctx, a))

	got, err := s.GetAsset(ctx, "BTC-USDT")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.True(t, got.Volume24h.Equal(dec("1500000")))

	// Second upsert refreshes the same row.
	a.Volume24h = dec("2000000")
	require.NoError(t, s.UpsertAsset(ctx, a))
	got, err = s.GetAsset(ctx, "BTC-USDT")
	require.NoError(t, err)
	assert.True(t, got.Volume24h.Equal(dec("2000000")))

	active, err := s.ListActiveAssets(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = s.GetAsset(ctx, "NOPE-USDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeactivateAssetsNotScannedSince(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	require.NoError(t, s.UpsertAsset(ctx, domain.Asset{Symbol: "STALE-USDT", Volume24h: dec("5000"), LastScanned: old, Active: true}))
	require.NoError(t, s.UpsertAsset(ctx, domain.Asset{Symbol: "FRESH-USDT", Volume24h: dec("90000"), LastScanned: time.Now(), Active: true}))

	n, err := s.DeactivateAssetsNotScannedSince(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stale, err := s.GetAsset(ctx, "STALE-USDT")
	require.NoError(t, err)
	assert.False(t, stale.Active)
	fresh, err := s.GetAsset(ctx, "FRESH-USDT")
	require.NoError(t, err)
	assert.True(t, fresh.Active)
}

func TestListAssetsDueForAnalysis(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now()

	// Fresh asset with no signal yet: due.
	require.NoError(t, s.UpsertAsset(ctx, domain.Asset{Symbol: "NEW-USDT", Volume24h: dec("50000"), LastScanned: now, Active: true}))
	// Fresh asset with a recent signal: not due.
	require.NoError(t, s.UpsertAsset(ctx, domain.Asset{Symbol: "DONE-USDT", Volume24h: dec("50000"), LastScanned: now, Active: true}))
	require.NoError(t, s.AppendSignal(ctx, &domain.Signal{
		Symbol: "DONE-USDT", Direction: domain.DirectionFlat,
		Confidence: dec("0"), GeneratedAt: now,
	}))
	// Fresh asset with a stale signal: due again.
	require.NoError(t, s.UpsertAsset(ctx, domain.Asset{Symbol: "STALE-SIG-USDT", Volume24h: dec("50000"), LastScanned: now, Active: true}))
	require.NoError(t, s.AppendSignal(ctx, &domain.Signal{
		Symbol: "STALE-SIG-USDT", Direction: domain.DirectionFlat,
		Confidence: dec("0"), GeneratedAt: now.Add(-time.Hour),
	}))
	// Asset the scanner has not refreshed: never due.
	require.NoError(t, s.UpsertAsset(ctx, domain.Asset{Symbol: "OLD-SCAN-USDT", Volume24h: dec("50000"), LastScanned: now.Add(-time.Hour), Active: true}))

	due, err := s.ListAssetsDueForAnalysis(ctx, 10*time.Minute, 5*time.Minute)
	require.NoError(t, err)

	symbols := make([]string, len(due))
	for i, a := range due {
		symbols[i] = a.Symbol
	}
	assert.ElementsMatch(t, []string{"NEW-USDT", "STALE-SIG-USDT"}, symbols)
}

func TestSignalsAppendOnly(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first := &domain.Signal{
		Symbol: "BTC-USDT", Direction: domain.DirectionLong,
		Confidence: dec("0.7"), SuggestedStop: dec("94000"), SuggestedTarget: dec("99000"),
		GeneratedAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, s.AppendSignal(ctx, first))
	require.NotZero(t, first.ID)

	second := &domain.Signal{
		Symbol: "BTC-USDT", Direction: domain.DirectionShort,
		Confidence: dec("0.8"), SuggestedStop: dec("98000"), SuggestedTarget: dec("92000"),
		GeneratedAt: time.Now(),
	}
	require.NoError(t, s.AppendSignal(ctx, second))

	latest, err := s.LatestSignal(ctx, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, domain.DirectionShort, latest.Direction)
	assert.True(t, latest.Confidence.Equal(dec("0.8")))

	n, err := s.DeleteSignalsBefore(ctx, time.Now().Add(-30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func livePosition(symbol string) *domain.Position {
	return &domain.Position{
		ID:         "pos-" + symbol,
		Symbol:     symbol,
		Direction:  domain.DirectionLong,
		EntryPrice: dec("100"),
		Size:       dec("2"),
		StopLoss:   dec("98"),
		TakeProfit: dec("103"),
		Status:     domain.PositionStatusPending,
	}
}

func TestSecondLivePositionRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePosition(ctx, livePosition("BTC-USDT")))

	dup := livePosition("BTC-USDT")
	dup.ID = "other-id"
	assert.ErrorIs(t, s.CreatePosition(ctx, dup), domain.ErrConflict)

	// A terminal position frees the slot.
	require.NoError(t, s.TransitionPosition(ctx, "pos-BTC-USDT",
		[]domain.PositionStatus{domain.PositionStatusPending},
		domain.PositionStatusCancelled, nil))
	require.NoError(t, s.CreatePosition(ctx, dup))
}

func TestTransitionPositionCAS(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePosition(ctx, livePosition("BTC-USDT")))

	entry := dec("101.5")
	require.NoError(t, s.TransitionPosition(ctx, "pos-BTC-USDT",
		[]domain.PositionStatus{domain.PositionStatusPending},
		domain.PositionStatusOpen, &PositionUpdate{EntryPrice: &entry}))

	got, err := s.GetPosition(ctx, "pos-BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, got.Status)
	assert.True(t, got.EntryPrice.Equal(entry))

	// The guard rejects a transition from a status the row is not in.
	err = s.TransitionPosition(ctx, "pos-BTC-USDT",
		[]domain.PositionStatus{domain.PositionStatusPending},
		domain.PositionStatusCancelled, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err = s.GetPosition(ctx, "pos-BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, got.Status)
}

func TestNonTerminalPositionQueries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePosition(ctx, livePosition("BTC-USDT")))
	require.NoError(t, s.CreatePosition(ctx, livePosition("ETH-USDT")))
	require.NoError(t, s.TransitionPosition(ctx, "pos-ETH-USDT",
		[]domain.PositionStatus{domain.PositionStatusPending},
		domain.PositionStatusOpen, nil))

	n, err := s.CountNonTerminalPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p, err := s.GetNonTerminalPosition(ctx, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, "pos-BTC-USDT", p.ID)

	exposure, err := s.TotalOpenExposure(ctx)
	require.NoError(t, err)
	assert.True(t, exposure.Equal(dec("400")), "2 positions x 100 entry x 2 size")

	require.NoError(t, s.TransitionPosition(ctx, "pos-BTC-USDT",
		[]domain.PositionStatus{domain.PositionStatusPending},
		domain.PositionStatusCancelled, nil))
	_, err = s.GetNonTerminalPosition(ctx, "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderIdempotencyAndUpdate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePosition(ctx, livePosition("BTC-USDT")))

	order := &domain.Order{
		ClientOrderID: "pos-pos-BTC-USDT",
		PositionID:    "pos-BTC-USDT",
		Symbol:        "BTC-USDT",
		Side:          domain.SideBuy,
		RequestedSize: dec("2"),
		Status:        domain.OrderStatusSubmitted,
	}
	require.NoError(t, s.CreateOrder(ctx, order))

	// The idempotency token is the primary key: same token, no second row.
	assert.ErrorIs(t, s.CreateOrder(ctx, order), domain.ErrConflict)

	require.NoError(t, s.UpdateOrderFromExchange(ctx, order.ClientOrderID,
		"ex-123", domain.OrderStatusFilled, dec("2"), dec("100.5")))

	got, err := s.GetOrderByClientID(ctx, order.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, "ex-123", got.ID)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assert.True(t, got.AvgFillPrice.Equal(dec("100.5")))
	assert.False(t, got.LastReconciled.IsZero())

	pending, err := s.ListNonTerminalOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestArchiveTerminalPositions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePosition(ctx, livePosition("BTC-USDT")))
	require.NoError(t, s.CreateOrder(ctx, &domain.Order{
		ClientOrderID: "pos-pos-BTC-USDT",
		PositionID:    "pos-BTC-USDT",
		Symbol:        "BTC-USDT",
		Side:          domain.SideBuy,
		RequestedSize: dec("2"),
		Status:        domain.OrderStatusFilled,
	}))
	require.NoError(t, s.TransitionPosition(ctx, "pos-BTC-USDT",
		[]domain.PositionStatus{domain.PositionStatusPending},
		domain.PositionStatusClosed, nil))

	// Still inside the retention window: untouched.
	n, err := s.ArchiveTerminalPositionsBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.ArchiveTerminalPositionsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetPosition(ctx, "pos-BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetOrderByClientID(ctx, "pos-pos-BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobRunAudit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.StartJobRun(ctx, "scanner", "worker-a")
	require.NoError(t, err)
	require.NotZero(t, id)

	msg := "list markets: timeout"
	require.NoError(t, s.FinishJobRun(ctx, id, false, &msg, nil))

	runs, err := s.ListJobRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "scanner", runs[0].JobName)
	require.NotNil(t, runs[0].OK)
	assert.False(t, *runs[0].OK)
	require.NotNil(t, runs[0].Error)
	assert.Equal(t, msg, *runs[0].Error)
	assert.NotNil(t, runs[0].FinishedAt)
}
