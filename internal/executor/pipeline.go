package executor

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/domain"
	"github.com/tradewatch/cryptobot/internal/exchange"
	"github.com/tradewatch/cryptobot/internal/risk"
	"github.com/tradewatch/cryptobot/pkg/logger"
	"github.com/tradewatch/cryptobot/pkg/retry"
)

// Trader is the signal consumption pipeline: it walks the latest signal
// per active asset, runs the risk policy, and hands approved decisions
// to the executor. The risk check itself is pure; Trader's job is
// gathering the account state it needs.
type Trader struct {
	exec     *Executor
	riskCfg  risk.Config
	maxAge   time.Duration
	retryCfg retry.Config
}

// NewTrader builds a trader over an executor. Signals older than maxAge
// are considered stale and ignored.
func NewTrader(exec *Executor, riskCfg risk.Config, maxAge time.Duration) *Trader {
	return &Trader{exec: exec, riskCfg: riskCfg, maxAge: maxAge, retryCfg: exec.cfg.Retry}
}

// TradeReport summarizes one signal pass.
type TradeReport struct {
	Signals  int
	Opened   int
	Rejected int
	Skipped  int
	Failures int
}

// ProcessSignals runs one pass over the active asset set. Per-symbol
// failures are logged and counted, never aborting the pass.
func (t *Trader) ProcessSignals(ctx context.Context) (TradeReport, error) {
	var rep TradeReport

	assets, err := t.exec.store.ListActiveAssets(ctx)
	if err != nil {
		return rep, err
	}

	var balance decimal.Decimal
	err = retry.Do(ctx, t.retryCfg, exchange.Retryable, func() error {
		var ferr error
		balance, ferr = t.exec.exchange.FetchBalance(ctx)
		return ferr
	})
	if err != nil {
		return rep, err
	}

	for i := range assets {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		opened, err := t.processSymbol(ctx, assets[i].Symbol, balance, &rep)
		if err != nil {
			rep.Failures++
			logger.WithField("symbol", assets[i].Symbol).Warnf("process signal: %v", err)
			continue
		}
		if opened {
			rep.Opened++
		}
	}
	return rep, nil
}

func (t *Trader) processSymbol(ctx context.Context, symbol string, balance decimal.Decimal, rep *TradeReport) (bool, error) {
	sig, err := t.exec.store.LatestSignal(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !sig.Actionable() || time.Since(sig.GeneratedAt) > t.maxAge {
		return false, nil
	}
	rep.Signals++

	acct, err := t.accountState(ctx, symbol, balance)
	if err != nil {
		return false, err
	}

	dec := risk.Decide(*sig, acct, t.riskCfg)
	if !dec.Act {
		rep.Rejected++
		logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"reason": dec.Reason,
		}).Debugf("signal rejected")
		return false, nil
	}

	if _, err := t.exec.Open(ctx, dec); err != nil {
		if errors.Is(err, domain.ErrSkipped) {
			rep.Skipped++
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// accountState assembles the risk inputs for one symbol from the store
// and the exchange.
func (t *Trader) accountState(ctx context.Context, symbol string, balance decimal.Decimal) (risk.AccountState, error) {
	acct := risk.AccountState{
		Equity:           balance,
		AvailableBalance: balance,
	}

	var err error
	acct.OpenPositions, err = t.exec.store.CountNonTerminalPositions(ctx)
	if err != nil {
		return acct, err
	}
	acct.OpenExposure, err = t.exec.store.TotalOpenExposure(ctx)
	if err != nil {
		return acct, err
	}
	if _, err := t.exec.store.GetNonTerminalPosition(ctx, symbol); err == nil {
		acct.HasPositionOnSymbol = true
	} else if !errors.Is(err, domain.ErrNotFound) {
		return acct, err
	}

	var ticker domain.Ticker
	err = retry.Do(ctx, t.retryCfg, exchange.Retryable, func() error {
		var ferr error
		ticker, ferr = t.exec.exchange.FetchTicker(ctx, symbol)
		return ferr
	})
	if err != nil {
		return acct, err
	}
	acct.LastPrice = ticker.Last
	return acct, nil
}
