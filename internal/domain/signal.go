package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side a signal recommends.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// Signal is a point-in-time trade recommendation for one asset.
// Signals are immutable once written: a newer signal supersedes an
// older one, it never overwrites it.
type Signal struct {
	ID              int64
	Symbol          string
	Direction       Direction
	Confidence      decimal.Decimal // 0..1
	SuggestedStop   decimal.Decimal
	SuggestedTarget decimal.Decimal
	GeneratedAt     time.Time
}

// Actionable reports whether the signal recommends taking a position.
func (s *Signal) Actionable() bool {
	return s.Direction == DirectionLong || s.Direction == DirectionShort
}

// Decision is the risk manager's verdict on a signal.
type Decision struct {
	Act       bool
	Symbol    string
	Direction Direction
	Size      decimal.Decimal
	Stop      decimal.Decimal
	Target    decimal.Decimal
	Reason    string // populated when Act is false
}
