package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestStopAndTargetForLong(t *testing.T) {
	p := Position{Direction: DirectionLong, StopLoss: d("98"), TakeProfit: d("103")}

	assert.False(t, p.StopBreached(d("99")))
	assert.True(t, p.StopBreached(d("98")))
	assert.True(t, p.StopBreached(d("95")), "a gap through the stop still counts")

	assert.False(t, p.TargetReached(d("102.99")))
	assert.True(t, p.TargetReached(d("103")))
}

func TestStopAndTargetForShort(t *testing.T) {
	p := Position{Direction: DirectionShort, StopLoss: d("102"), TakeProfit: d("97")}

	assert.False(t, p.StopBreached(d("101")))
	assert.True(t, p.StopBreached(d("102")))

	assert.False(t, p.TargetReached(d("97.5")))
	assert.True(t, p.TargetReached(d("96")))
}

func TestZeroLevelsNeverBreach(t *testing.T) {
	p := Position{Direction: DirectionLong}
	assert.False(t, p.StopBreached(d("0.0001")))
	assert.False(t, p.TargetReached(d("1000000")))
}

func TestOrderSides(t *testing.T) {
	assert.Equal(t, SideBuy, SideForEntry(DirectionLong))
	assert.Equal(t, SideSell, SideForEntry(DirectionShort))
	assert.Equal(t, SideSell, SideForExit(DirectionLong))
	assert.Equal(t, SideBuy, SideForExit(DirectionShort))
}

func TestPositionLifecycleHelpers(t *testing.T) {
	p := Position{Status: PositionStatusOpen, EntryPrice: d("100"), Size: d("2")}
	assert.False(t, p.IsTerminal())
	assert.True(t, p.ExposureValue().Equal(d("200")))

	p.Status = PositionStatusClosed
	assert.True(t, p.IsTerminal())
}
