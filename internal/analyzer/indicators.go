package analyzer

import (
	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/domain"
)

// Score is the output of an indicator function: a direction with a
// confidence and suggested protective levels.
type Score struct {
	Direction       domain.Direction
	Confidence      decimal.Decimal
	SuggestedStop   decimal.Decimal
	SuggestedTarget decimal.Decimal
}

// IndicatorFunc scores a series of candles. It must be deterministic
// and pure; the analyzer treats it as an external black box.
type IndicatorFunc func(candles []domain.Candle) (Score, error)

// Rule weights. The three entry rules contribute independently and the
// capped sum becomes the confidence.
var (
	weightCrossover   = decimal.NewFromFloat(0.4)
	weightMADistance  = decimal.NewFromFloat(0.3)
	weightVolumeSpike = decimal.NewFromFloat(0.3)
)

const (
	fastPeriod      = 9
	slowPeriod      = 21
	rsiPeriod       = 14
	volumeSMAPeriod = 20

	rsiMin = 35.0
	rsiMax = 73.0

	maDistancePct    = 0.02
	volumeSpikeRatio = 2.0

	stopPct   = 0.02
	targetPct = 0.03
)

// DefaultIndicator scores candles with the bot's standard rule set:
// EMA(9)/EMA(21) crossover gated by RSI(14) in [35, 73], MA distance,
// and a 2x volume spike over the 20-period average.
func DefaultIndicator(candles []domain.Candle) (Score, error) {
	if len(candles) < slowPeriod+1 {
		return Score{}, domain.ErrDataError
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i], _ = c.Close.Float64()
		volumes[i], _ = c.Volume.Float64()
		if closes[i] <= 0 {
			return Score{}, domain.ErrDataError
		}
	}

	fast := ema(closes, fastPeriod)
	slow := ema(closes, slowPeriod)
	rsi := rsiAt(closes, rsiPeriod)
	last := len(closes) - 1

	var dir domain.Direction = domain.DirectionFlat
	confidence := decimal.Zero

	crossedUp := fast[last] > slow[last] && fast[last-1] <= slow[last-1]
	crossedDown := fast[last] < slow[last] && fast[last-1] >= slow[last-1]

	// Rule 1: crossover with RSI inside the entry band.
	if crossedUp && rsi >= rsiMin && rsi <= rsiMax {
		dir = domain.DirectionLong
		confidence = confidence.Add(weightCrossover)
	} else if crossedDown && rsi >= rsiMin && rsi <= rsiMax {
		dir = domain.DirectionShort
		confidence = confidence.Add(weightCrossover)
	}

	// Rule 2: price stretched away from the slow MA in trend direction.
	if dir != domain.DirectionFlat {
		distance := (closes[last] - slow[last]) / slow[last]
		if dir == domain.DirectionShort {
			distance = -distance
		}
		if distance >= maDistancePct {
			confidence = confidence.Add(weightMADistance)
		}
	}

	// Rule 3: volume spike.
	if dir != domain.DirectionFlat {
		avgVol := sma(volumes, volumeSMAPeriod)
		if avgVol > 0 && volumes[last] >= avgVol*volumeSpikeRatio {
			confidence = confidence.Add(weightVolumeSpike)
		}
	}

	one := decimal.NewFromInt(1)
	if confidence.GreaterThan(one) {
		confidence = one
	}

	score := Score{Direction: dir, Confidence: confidence}
	if dir != domain.DirectionFlat {
		lastClose := candles[last].Close
		stopDist := lastClose.Mul(decimal.NewFromFloat(stopPct))
		targetDist := lastClose.Mul(decimal.NewFromFloat(targetPct))
		if dir == domain.DirectionShort {
			score.SuggestedStop = lastClose.Add(stopDist)
			score.SuggestedTarget = lastClose.Sub(targetDist)
		} else {
			score.SuggestedStop = lastClose.Sub(stopDist)
			score.SuggestedTarget = lastClose.Add(targetDist)
		}
	}
	return score, nil
}

// ema returns the exponential moving average series; entries before the
// warm-up period hold the running seed.
func ema(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	k := 2.0 / float64(n+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// rsiAt returns Wilder's RSI for the final bar.
func rsiAt(closes []float64, n int) float64 {
	if len(closes) <= n {
		return 50
	}
	var gain, loss float64
	for i := 1; i <= n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(n)
	avgLoss := loss / float64(n)
	for i := n + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(n-1) + g) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + l) / float64(n)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// sma averages the last n values, excluding the final bar (the bar
// being tested for a spike).
func sma(values []float64, n int) float64 {
	if len(values) < 2 {
		return 0
	}
	end := len(values) - 1
	start := end - n
	if start < 0 {
		start = 0
	}
	if end == start {
		return 0
	}
	var sum float64
	for _, v := range values[start:end] {
		sum += v
	}
	return sum / float64(end-start)
}
