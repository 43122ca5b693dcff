package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/domain"
)

// AccountState is everything Decide needs to know about the account at
// decision time. The caller gathers it; Decide itself does no I/O.
type AccountState struct {
	Equity              decimal.Decimal
	AvailableBalance    decimal.Decimal
	OpenPositions       int
	OpenExposure        decimal.Decimal // sum of entry*size over live positions
	HasPositionOnSymbol bool
	LastPrice           decimal.Decimal
}

// Config is the risk policy surface.
type Config struct {
	RiskPct                decimal.Decimal // fraction of equity per trade
	MinConfidence          decimal.Decimal
	MaxConcurrentPositions int
	MaxExposurePct         decimal.Decimal // cap on aggregate exposure / equity
	MinOrderValue          decimal.Decimal
	MinStopPct             decimal.Decimal
	MaxStopPct             decimal.Decimal
	MinTargetPct           decimal.Decimal
	MaxTargetPct           decimal.Decimal
}

// Decide converts a signal into a sized decision, or a rejection with a
// reason. Pure with respect to its inputs.
func Decide(sig domain.Signal, acct AccountState, cfg Config) domain.Decision {
	reject := func(format string, args ...interface{}) domain.Decision {
		return domain.Decision{Symbol: sig.Symbol, Direction: sig.Direction, Reason: fmt.Sprintf(format, args...)}
	}

	if !sig.Actionable() {
		return reject("signal direction is flat")
	}
	if sig.Confidence.LessThan(cfg.MinConfidence) {
		return reject("confidence %s below threshold %s", sig.Confidence, cfg.MinConfidence)
	}
	if acct.HasPositionOnSymbol {
		return reject("non-terminal position already exists for %s", sig.Symbol)
	}
	if acct.OpenPositions >= cfg.MaxConcurrentPositions {
		return reject("max concurrent positions reached (%d)", cfg.MaxConcurrentPositions)
	}
	if acct.LastPrice.LessThanOrEqual(decimal.Zero) {
		return reject("no valid price for %s", sig.Symbol)
	}

	// Fixed fraction of equity, scaled by signal confidence.
	value := acct.Equity.Mul(cfg.RiskPct).Mul(sig.Confidence)
	if value.LessThan(cfg.MinOrderValue) {
		value = cfg.MinOrderValue
	}
	if value.GreaterThan(acct.AvailableBalance) {
		return reject("available balance %s below order value %s", acct.AvailableBalance, value)
	}
	if !acct.Equity.IsZero() {
		projected := acct.OpenExposure.Add(value)
		if projected.GreaterThan(acct.Equity.Mul(cfg.MaxExposurePct)) {
			return reject("exposure cap exceeded: %s > %s of equity",
				projected, cfg.MaxExposurePct)
		}
	}

	size := value.DivRound(acct.LastPrice, 8)
	stop := clampLevel(acct.LastPrice, sig.SuggestedStop, sig.Direction, true, cfg.MinStopPct, cfg.MaxStopPct)
	target := clampLevel(acct.LastPrice, sig.SuggestedTarget, sig.Direction, false, cfg.MinTargetPct, cfg.MaxTargetPct)

	return domain.Decision{
		Act:       true,
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Size:      size,
		Stop:      stop,
		Target:    target,
	}
}

// clampLevel bounds a suggested stop/target so its distance from entry
// stays within [minPct, maxPct]. adverse=true means the level sits on
// the losing side of entry (a stop).
func clampLevel(entry, suggested decimal.Decimal, dir domain.Direction, adverse bool, minPct, maxPct decimal.Decimal) decimal.Decimal {
	// The losing side for a long is below entry; for a short, above.
	below := adverse
	if dir == domain.DirectionShort {
		below = !adverse
	}

	dist := suggested.Sub(entry).Abs()
	if suggested.IsZero() {
		dist = entry.Mul(minPct)
	}
	minDist := entry.Mul(minPct)
	maxDist := entry.Mul(maxPct)
	if dist.LessThan(minDist) {
		dist = minDist
	}
	if dist.GreaterThan(maxDist) {
		dist = maxDist
	}
	if below {
		return entry.Sub(dist)
	}
	return entry.Add(dist)
}
