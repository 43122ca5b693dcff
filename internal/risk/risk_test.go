package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tradewatch/cryptobot/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func baseConfig() Config {
	return Config{
		RiskPct:                dec("0.02"),
		MinConfidence:          dec("0.6"),
		MaxConcurrentPositions: 5,
		MaxExposurePct:         dec("0.5"),
		MinOrderValue:          dec("10"),
		MinStopPct:             dec("0.005"),
		MaxStopPct:             dec("0.05"),
		MinTargetPct:           dec("0.01"),
		MaxTargetPct:           dec("0.15"),
	}
}

func baseAccount() AccountState {
	return AccountState{
		Equity:           dec("10000"),
		AvailableBalance: dec("10000"),
		LastPrice:        dec("100"),
	}
}

func longSignal(confidence string) domain.Signal {
	return domain.Signal{
		Symbol:          "BTC-USDT",
		Direction:       domain.DirectionLong,
		Confidence:      dec(confidence),
		SuggestedStop:   dec("98"),
		SuggestedTarget: dec("103"),
	}
}

func TestDecideApproves(t *testing.T) {
	d := Decide(longSignal("0.7"), baseAccount(), baseConfig())
	assert.True(t, d.Act)
	assert.Equal(t, domain.DirectionLong, d.Direction)
	// 10000 * 0.02 * 0.7 / 100 = 1.4
	assert.True(t, d.Size.Equal(dec("1.4")), "size %s", d.Size)
	assert.True(t, d.Stop.Equal(dec("98")), "stop %s", d.Stop)
	assert.True(t, d.Target.Equal(dec("103")), "target %s", d.Target)
}

func TestDecideRejectsFlat(t *testing.T) {
	sig := longSignal("0.9")
	sig.Direction = domain.DirectionFlat
	d := Decide(sig, baseAccount(), baseConfig())
	assert.False(t, d.Act)
	assert.NotEmpty(t, d.Reason)
}

func TestDecideRejectsLowConfidence(t *testing.T) {
	d := Decide(longSignal("0.5"), baseAccount(), baseConfig())
	assert.False(t, d.Act)
	assert.Contains(t, d.Reason, "confidence")
}

func TestDecideRejectsExistingPosition(t *testing.T) {
	acct := baseAccount()
	acct.HasPositionOnSymbol = true
	d := Decide(longSignal("0.9"), acct, baseConfig())
	assert.False(t, d.Act)
	assert.Contains(t, d.Reason, "position")
}

func TestDecideRejectsMaxPositions(t *testing.T) {
	acct := baseAccount()
	acct.OpenPositions = 5
	d := Decide(longSignal("0.9"), acct, baseConfig())
	assert.False(t, d.Act)
	assert.Contains(t, d.Reason, "max concurrent")
}

func TestDecideRejectsMissingPrice(t *testing.T) {
	acct := baseAccount()
	acct.LastPrice = decimal.Zero
	d := Decide(longSignal("0.9"), acct, baseConfig())
	assert.False(t, d.Act)
}

func TestDecideRejectsInsufficientBalance(t *testing.T) {
	acct := baseAccount()
	acct.AvailableBalance = dec("5")
	d := Decide(longSignal("0.9"), acct, baseConfig())
	assert.False(t, d.Act)
	assert.Contains(t, d.Reason, "balance")
}

func TestDecideRejectsExposureCap(t *testing.T) {
	acct := baseAccount()
	acct.OpenExposure = dec("4990")
	d := Decide(longSignal("0.9"), acct, baseConfig())
	assert.False(t, d.Act)
	assert.Contains(t, d.Reason, "exposure")
}

func TestDecideFloorsAtMinOrderValue(t *testing.T) {
	acct := baseAccount()
	acct.Equity = dec("500") // 500 * 0.02 * 0.6 = 6, below the 10 floor
	acct.AvailableBalance = dec("500")
	d := Decide(longSignal("0.6"), acct, baseConfig())
	assert.True(t, d.Act)
	assert.True(t, d.Size.Equal(dec("0.1")), "size %s", d.Size) // 10 / 100
}

func TestStopClampedIntoBand(t *testing.T) {
	sig := longSignal("0.8")
	sig.SuggestedStop = dec("50") // 50% away, far past MaxStopPct
	d := Decide(sig, baseAccount(), baseConfig())
	assert.True(t, d.Act)
	assert.True(t, d.Stop.Equal(dec("95")), "stop clamped to 5%%, got %s", d.Stop)

	sig.SuggestedStop = dec("99.99") // 0.01% away, below MinStopPct
	d = Decide(sig, baseAccount(), baseConfig())
	assert.True(t, d.Stop.Equal(dec("99.5")), "stop widened to 0.5%%, got %s", d.Stop)
}

func TestShortLevelsSitOnCorrectSides(t *testing.T) {
	sig := domain.Signal{
		Symbol:          "ETH-USDT",
		Direction:       domain.DirectionShort,
		Confidence:      dec("0.8"),
		SuggestedStop:   dec("102"),
		SuggestedTarget: dec("97"),
	}
	d := Decide(sig, baseAccount(), baseConfig())
	assert.True(t, d.Act)
	// A short loses upward: stop above entry, target below.
	assert.True(t, d.Stop.GreaterThan(dec("100")), "stop %s", d.Stop)
	assert.True(t, d.Target.LessThan(dec("100")), "target %s", d.Target)
}

func TestMissingLevelsDefaultToMinBand(t *testing.T) {
	sig := longSignal("0.8")
	sig.SuggestedStop = decimal.Zero
	sig.SuggestedTarget = decimal.Zero
	d := Decide(sig, baseAccount(), baseConfig())
	assert.True(t, d.Act)
	assert.True(t, d.Stop.Equal(dec("99.5")), "stop %s", d.Stop)
	assert.True(t, d.Target.Equal(dec("101")), "target %s", d.Target)
}
