package analyzer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewatch/cryptobot/internal/domain"
)

// candlesFrom builds a bar series with the given closes. The last
// volume can be spiked to trigger the volume rule.
func candlesFrom(closes []float64, lastVolume float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		vol := decimal.NewFromInt(100)
		if i == len(closes)-1 && lastVolume > 0 {
			vol = decimal.NewFromFloat(lastVolume)
		}
		out[i] = domain.Candle{
			OpenTime: base.Add(time.Duration(i) * 2 * time.Hour),
			Open:     price, High: price, Low: price, Close: price,
			Volume: vol,
		}
	}
	return out
}

// A quiet base, a pullback, then a recovery strong enough to push the
// fast average over the slow one on the final bar with RSI inside the
// entry band.
func bullishCloses() []float64 {
	closes := make([]float64, 0, 28)
	for i := 0; i < 14; i++ {
		closes = append(closes, 100)
	}
	closes = append(closes, 99, 98, 97, 96, 95, 94, 93, 92)
	closes = append(closes, 94, 96, 98, 100, 102, 104)
	return closes
}

// The mirror image: a run-up, then a decline that drops the fast
// average under the slow one on the final bar.
func bearishCloses() []float64 {
	closes := make([]float64, 0, 28)
	for i := 0; i < 12; i++ {
		closes = append(closes, 100)
	}
	closes = append(closes, 101, 102, 103, 104, 105, 106, 107, 108)
	closes = append(closes, 107, 106, 105, 104, 103, 102, 101, 100)
	return closes
}

func TestDefaultIndicatorLongFullConfidence(t *testing.T) {
	score, err := DefaultIndicator(candlesFrom(bullishCloses(), 300))
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionLong, score.Direction)
	// Crossover 0.4 + MA distance 0.3 + volume spike 0.3, capped at 1.
	assert.True(t, score.Confidence.Equal(decimal.NewFromInt(1)), "confidence %s", score.Confidence)
	// Protective levels sit 2% below / 3% above the last close of 104.
	assert.True(t, score.SuggestedStop.Equal(decimal.NewFromFloat(101.92)), "stop %s", score.SuggestedStop)
	assert.True(t, score.SuggestedTarget.Equal(decimal.NewFromFloat(107.12)), "target %s", score.SuggestedTarget)
}

func TestDefaultIndicatorShortWithoutVolumeSpike(t *testing.T) {
	score, err := DefaultIndicator(candlesFrom(bearishCloses(), 0))
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionShort, score.Direction)
	// Crossover 0.4 + MA distance 0.3; flat volume contributes nothing.
	assert.True(t, score.Confidence.Equal(decimal.NewFromFloat(0.7)), "confidence %s", score.Confidence)
	// Levels flip sides for a short from the last close of 100.
	assert.True(t, score.SuggestedStop.Equal(decimal.NewFromInt(102)), "stop %s", score.SuggestedStop)
	assert.True(t, score.SuggestedTarget.Equal(decimal.NewFromInt(97)), "target %s", score.SuggestedTarget)
}

func TestDefaultIndicatorFlatMarket(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	score, err := DefaultIndicator(candlesFrom(closes, 500))
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionFlat, score.Direction)
	assert.True(t, score.Confidence.IsZero())
	assert.True(t, score.SuggestedStop.IsZero())
}

func TestDefaultIndicatorNoFreshCrossover(t *testing.T) {
	// A steady uptrend keeps fast above slow the whole time; with no
	// crossover on the final bar there is nothing to act on.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	score, err := DefaultIndicator(candlesFrom(closes, 500))
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionFlat, score.Direction)
}

func TestDefaultIndicatorShortHistory(t *testing.T) {
	_, err := DefaultIndicator(candlesFrom([]float64{100, 101, 102}, 0))
	assert.ErrorIs(t, err, domain.ErrDataError)
}

func TestDefaultIndicatorRejectsNonPositivePrices(t *testing.T) {
	closes := bullishCloses()
	closes[5] = 0
	_, err := DefaultIndicator(candlesFrom(closes, 0))
	assert.ErrorIs(t, err, domain.ErrDataError)
}
