package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the exchange-facing order lifecycle state.
type OrderStatus string

const (
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Order is the bot's record of one exchange order. Written only by the
// trade executor; reconcile keeps it aligned with the exchange's
// authoritative view.
type Order struct {
	ID             string // exchange order id; may be empty until reconciled
	ClientOrderID  string // idempotency token, derived from the position id
	PositionID     string
	Symbol         string
	Side           Side
	RequestedSize  decimal.Decimal
	RequestedPrice decimal.Decimal // zero for market orders
	FilledSize     decimal.Decimal
	AvgFillPrice   decimal.Decimal
	Status         OrderStatus
	LastReconciled time.Time
	CreatedAt      time.Time
}

// IsTerminal reports whether the order can no longer change on the
// exchange.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled ||
		o.Status == OrderStatusCancelled ||
		o.Status == OrderStatusRejected
}

// FillRatio returns filled/requested size, zero when nothing was
// requested.
func (o *Order) FillRatio() decimal.Decimal {
	if o.RequestedSize.IsZero() {
		return decimal.Zero
	}
	return o.FilledSize.Div(o.RequestedSize)
}

// SideForEntry returns the order side that opens a position in the
// given direction.
func SideForEntry(d Direction) Side {
	if d == DirectionShort {
		return SideSell
	}
	return SideBuy
}

// SideForExit returns the order side that closes a position in the
// given direction.
func SideForExit(d Direction) Side {
	if d == DirectionShort {
		return SideBuy
	}
	return SideSell
}
