package app

import (
	"context"

	"github.com/tradewatch/cryptobot/internal/analyzer"
	"github.com/tradewatch/cryptobot/internal/executor"
	"github.com/tradewatch/cryptobot/internal/maintenance"
	"github.com/tradewatch/cryptobot/internal/risk"
	"github.com/tradewatch/cryptobot/internal/scanner"
	"github.com/tradewatch/cryptobot/internal/worker"
	"github.com/tradewatch/cryptobot/pkg/retry"
)

func (a *App) retryConfig() retry.Config {
	return retry.Config{
		Attempts:  a.Cfg.RetryAttempts,
		BaseDelay: a.Cfg.RetryBaseDelay,
		MaxDelay:  a.Cfg.RetryMaxDelay,
	}
}

func (a *App) riskConfig() risk.Config {
	return risk.Config{
		RiskPct:                a.Cfg.RiskPct,
		MinConfidence:          a.Cfg.MinConfidence,
		MaxConcurrentPositions: a.Cfg.MaxConcurrentPositions,
		MaxExposurePct:         a.Cfg.MaxExposurePct,
		MinOrderValue:          a.Cfg.MinOrderValue,
		MinStopPct:             a.Cfg.MinStopPct,
		MaxStopPct:             a.Cfg.MaxStopPct,
		MinTargetPct:           a.Cfg.MinTargetPct,
		MaxTargetPct:           a.Cfg.MaxTargetPct,
	}
}

// ScannerRunner builds the asset discovery loop.
func (a *App) ScannerRunner() *worker.Runner {
	excluded := make(map[string]bool, len(a.Cfg.ExcludedSymbols))
	for _, s := range a.Cfg.ExcludedSymbols {
		excluded[s] = true
	}
	sc := scanner.New(a.Store, a.Coord, a.Exchange, scanner.Config{
		ScanInterval:     a.Cfg.ScanInterval,
		MaxAssetsPerScan: a.Cfg.MaxAssetsPerScan,
		MinVolume24h:     a.Cfg.MinVolume24h,
		ExcludedSymbols:  excluded,
		InstrumentType:   a.Cfg.InstrumentType,
		Retry:            a.retryConfig(),
	}, a.WorkerID)
	return &worker.Runner{
		Name:     "scanner",
		WorkerID: a.WorkerID,
		Interval: a.Cfg.ScanInterval,
		Store:    a.Store,
		Task: func(ctx context.Context) error {
			_, err := sc.Scan(ctx)
			return err
		},
	}
}

// AnalyzerRunner builds the signal generation loop.
func (a *App) AnalyzerRunner() *worker.Runner {
	an := analyzer.New(a.Store, a.Coord, a.Exchange, nil, analyzer.Config{
		ReevalInterval: a.Cfg.ReevalInterval,
		EvalTimeout:    a.Cfg.EvalTimeout,
		FreshWindow:    a.Cfg.FreshWindow,
		OHLCVInterval:  a.Cfg.OHLCVInterval,
		OHLCVLimit:     a.Cfg.OHLCVLimit,
		Retry:          a.retryConfig(),
	}, a.WorkerID)
	return &worker.Runner{
		Name:     "analyzer",
		WorkerID: a.WorkerID,
		Interval: a.Cfg.AnalyzeInterval,
		Store:    a.Store,
		Task: func(ctx context.Context) error {
			_, err := an.EvaluateDue(ctx)
			return err
		},
	}
}

// ExecutorRunners builds the trading loop and the reconcile loop. They
// share one executor so both sides use the same lease holder id.
func (a *App) ExecutorRunners() []*worker.Runner {
	exec := executor.New(a.Store, a.Coord, a.Exchange, executor.Config{
		TradeLeaseTTL: a.Cfg.TradeLeaseTTL,
		MinFillRatio:  a.Cfg.MinFillRatio,
		Retry:         a.retryConfig(),
	}, a.WorkerID)
	trader := executor.NewTrader(exec, a.riskConfig(), a.Cfg.SignalMaxAge)

	return []*worker.Runner{
		{
			Name:     "trader",
			WorkerID: a.WorkerID,
			Interval: a.Cfg.TradeInterval,
			Store:    a.Store,
			Task: func(ctx context.Context) error {
				_, err := trader.ProcessSignals(ctx)
				return err
			},
		},
		{
			Name:     "reconciler",
			WorkerID: a.WorkerID,
			Interval: a.Cfg.ReconcileInterval,
			Store:    a.Store,
			Task: func(ctx context.Context) error {
				_, err := exec.Reconcile(ctx)
				return err
			},
		},
	}
}

// MaintenanceRunner builds the housekeeping loop.
func (a *App) MaintenanceRunner() *worker.Runner {
	mw := maintenance.New(a.Store, a.Coord, maintenance.Config{
		SignalRetention:   a.Cfg.SignalRetention,
		PositionRetention: a.Cfg.PositionRetention,
		AssetRetention:    a.Cfg.AssetRetention,
		StaleLeaseFactor:  2,
	})
	return &worker.Runner{
		Name:     "maintenance",
		WorkerID: a.WorkerID,
		Interval: a.Cfg.SweepInterval,
		Store:    a.Store,
		Task: func(ctx context.Context) error {
			_, err := mw.Sweep(ctx)
			return err
		},
	}
}
