package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusPending   PositionStatus = "pending"
	PositionStatusOpen      PositionStatus = "open"
	PositionStatusClosing   PositionStatus = "closing"
	PositionStatusClosed    PositionStatus = "closed"
	PositionStatusCancelled PositionStatus = "cancelled"
)

// NonTerminalPositionStatuses are the states in which a position still
// represents (or may become) live exposure. At most one position per
// symbol may be in any of these states.
var NonTerminalPositionStatuses = []PositionStatus{
	PositionStatusPending,
	PositionStatusOpen,
	PositionStatusClosing,
}

// Position is the bot's exposure for one asset, tracked from entry
// decision to close.
type Position struct {
	ID             string // uuid
	Symbol         string
	Direction      Direction
	EntryPrice     decimal.Decimal
	Size           decimal.Decimal
	StopLoss       decimal.Decimal
	TakeProfit     decimal.Decimal
	Status         PositionStatus
	OpeningOrderID string
	ClosingOrderID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsTerminal reports whether the position can no longer change.
func (p *Position) IsTerminal() bool {
	return p.Status == PositionStatusClosed || p.Status == PositionStatusCancelled
}

// ExposureValue is the notional value of the position at entry.
func (p *Position) ExposureValue() decimal.Decimal {
	return p.EntryPrice.Mul(p.Size)
}

// StopBreached reports whether price has crossed the stop-loss level.
func (p *Position) StopBreached(price decimal.Decimal) bool {
	if p.StopLoss.IsZero() {
		return false
	}
	if p.Direction == DirectionShort {
		return price.GreaterThanOrEqual(p.StopLoss)
	}
	return price.LessThanOrEqual(p.StopLoss)
}

// TargetReached reports whether price has crossed the take-profit level.
func (p *Position) TargetReached(price decimal.Decimal) bool {
	if p.TakeProfit.IsZero() {
		return false
	}
	if p.Direction == DirectionShort {
		return price.LessThanOrEqual(p.TakeProfit)
	}
	return price.GreaterThanOrEqual(p.TakeProfit)
}
