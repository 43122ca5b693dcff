package maintenance

import (
	"context"
	"time"

	"github.com/tradewatch/cryptobot/internal/coordinator"
	"github.com/tradewatch/cryptobot/internal/store"
	"github.com/tradewatch/cryptobot/pkg/logger"
)

// Worker performs the periodic housekeeping sweep: signal pruning,
// position archival, stale-lease audit, and inactive-asset cleanup.
// Every step is best-effort; a failing step is logged and the sweep
// moves on, so housekeeping can never take down the process.
type Worker struct {
	store *store.Store
	coord *coordinator.Coordinator
	cfg   Config
}

// Config is the maintenance worker's slice of the configuration
// surface.
type Config struct {
	SignalRetention   time.Duration
	PositionRetention time.Duration
	AssetRetention    time.Duration
	StaleLeaseFactor  int
}

// New builds a maintenance worker.
func New(st *store.Store, coord *coordinator.Coordinator, cfg Config) *Worker {
	if cfg.StaleLeaseFactor < 1 {
		cfg.StaleLeaseFactor = 2
	}
	return &Worker{store: st, coord: coord, cfg: cfg}
}

// Report summarizes one sweep.
type Report struct {
	SignalsDeleted    int64
	PositionsArchived int64
	AssetsDeleted     int64
	StaleLeases       int
	Errors            []string
}

// Sweep runs one housekeeping pass. It always returns a report; the
// error return is reserved for the context being cancelled.
func (w *Worker) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	now := time.Now()

	n, err := w.store.DeleteSignalsBefore(ctx, now.Add(-w.cfg.SignalRetention))
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())
		logger.Warnf("sweep: delete signals: %v", err)
	}
	rep.SignalsDeleted = n

	n, err = w.store.ArchiveTerminalPositionsBefore(ctx, now.Add(-w.cfg.PositionRetention))
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())
		logger.Warnf("sweep: archive positions: %v", err)
	}
	rep.PositionsArchived = n

	// Expired leases need no cleanup; leases held far past their TTL
	// mean a holder crashed or is wedged, which is worth surfacing.
	stale, err := w.coord.StaleLeases(w.cfg.StaleLeaseFactor)
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())
		logger.Warnf("sweep: stale leases: %v", err)
	}
	rep.StaleLeases = len(stale)
	for i := range stale {
		logger.WithFields(map[string]interface{}{
			"key":        stale[i].Key,
			"holder":     stale[i].Holder,
			"expires_at": stale[i].ExpiresAt,
		}).Warnf("lease held past %dx ttl", w.cfg.StaleLeaseFactor)
	}

	n, err = w.store.DeleteInactiveAssetsBefore(ctx, now.Add(-w.cfg.AssetRetention))
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())
		logger.Warnf("sweep: delete inactive assets: %v", err)
	}
	rep.AssetsDeleted = n

	logger.WithFields(map[string]interface{}{
		"signals_deleted":    rep.SignalsDeleted,
		"positions_archived": rep.PositionsArchived,
		"assets_deleted":     rep.AssetsDeleted,
		"stale_leases":       rep.StaleLeases,
	}).Infof("maintenance sweep complete")
	return rep, ctx.Err()
}
