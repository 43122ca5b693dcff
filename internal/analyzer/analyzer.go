package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradewatch/cryptobot/internal/coordinator"
	"github.com/tradewatch/cryptobot/internal/domain"
	"github.com/tradewatch/cryptobot/internal/exchange"
	"github.com/tradewatch/cryptobot/internal/store"
	"github.com/tradewatch/cryptobot/pkg/logger"
	"github.com/tradewatch/cryptobot/pkg/retry"
)

// Analyzer turns fresh registry entries into signals. Multiple analyzer
// instances may run concurrently; the per-asset analyze lease makes
// sure only one works a symbol at a time, and a busy lease is a skip,
// never an error.
type Analyzer struct {
	store     *store.Store
	coord     *coordinator.Coordinator
	exchange  exchange.Exchange
	indicator IndicatorFunc
	cfg       Config
	workerID  string
}

// Config is the analyzer's slice of the configuration surface.
type Config struct {
	ReevalInterval time.Duration
	EvalTimeout    time.Duration
	FreshWindow    time.Duration
	OHLCVInterval  string
	OHLCVLimit     int
	Retry          retry.Config
}

// New builds an analyzer. A nil indicator selects DefaultIndicator.
func New(st *store.Store, coord *coordinator.Coordinator, ex exchange.Exchange, indicator IndicatorFunc, cfg Config, workerID string) *Analyzer {
	if indicator == nil {
		indicator = DefaultIndicator
	}
	return &Analyzer{
		store:     st,
		coord:     coord,
		exchange:  ex,
		indicator: indicator,
		cfg:       cfg,
		workerID:  workerID,
	}
}

// Report summarizes one evaluation batch.
type Report struct {
	Due      int
	Signals  int
	Skipped  int
	Failures int
}

// EvaluateDue runs one batch over every asset due for re-evaluation.
// Per-asset failures are logged and counted; they never abort the
// batch.
func (a *Analyzer) EvaluateDue(ctx context.Context) (Report, error) {
	assets, err := a.store.ListAssetsDueForAnalysis(ctx, a.cfg.FreshWindow, a.cfg.ReevalInterval)
	if err != nil {
		return Report{}, fmt.Errorf("list due assets: %w", err)
	}

	rep := Report{Due: len(assets)}
	for i := range assets {
		if ctx.Err() != nil {
			break
		}
		sig, err := a.Evaluate(ctx, assets[i])
		switch {
		case err == nil && sig != nil:
			rep.Signals++
		case errors.Is(err, domain.ErrSkipped):
			rep.Skipped++
		case err != nil:
			rep.Failures++
			logger.WithField("symbol", assets[i].Symbol).Warnf("evaluation failed: %v", err)
		}
	}
	return rep, nil
}

// Evaluate computes and stores a signal for one asset. Returns
// domain.ErrSkipped (wrapped with the reason) when the analyze lease is
// busy, and domain.ErrDataError when price history is unusable.
func (a *Analyzer) Evaluate(ctx context.Context, asset domain.Asset) (*domain.Signal, error) {
	lease, err := a.coord.Acquire(domain.AnalyzeLeaseKey(asset.Symbol), a.workerID, a.cfg.EvalTimeout)
	if err != nil {
		if errors.Is(err, domain.ErrBusy) {
			return nil, fmt.Errorf("%s busy: %w", asset.Symbol, domain.ErrSkipped)
		}
		return nil, fmt.Errorf("acquire analyze lease: %w", err)
	}
	defer func() {
		if err := a.coord.Release(lease); err != nil {
			logger.Warnf("release analyze lease %s: %v", lease.Key, err)
		}
	}()

	var candles []domain.Candle
	err = retry.Do(ctx, a.cfg.Retry, exchange.Retryable, func() error {
		var ferr error
		candles, ferr = a.exchange.FetchOHLCV(ctx, asset.Symbol, a.cfg.OHLCVInterval, a.cfg.OHLCVLimit)
		return ferr
	})
	if err != nil {
		if exchange.IsKind(err, exchange.KindNotFound) {
			return nil, fmt.Errorf("no history for %s: %w", asset.Symbol, domain.ErrDataError)
		}
		return nil, fmt.Errorf("fetch ohlcv %s: %w", asset.Symbol, err)
	}

	score, err := a.indicator(candles)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", asset.Symbol, err)
	}

	sig := &domain.Signal{
		Symbol:          asset.Symbol,
		Direction:       score.Direction,
		Confidence:      score.Confidence,
		SuggestedStop:   score.SuggestedStop,
		SuggestedTarget: score.SuggestedTarget,
		GeneratedAt:     time.Now(),
	}
	if err := a.store.AppendSignal(ctx, sig); err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"symbol":     sig.Symbol,
		"direction":  sig.Direction,
		"confidence": sig.Confidence,
	}).Debugf("signal generated")
	return sig, nil
}
