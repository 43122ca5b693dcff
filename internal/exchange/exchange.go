package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/domain"
)

// Exchange is the single abstraction over the venue. Concrete adapters
// (BingX, paper) implement it; everything above this interface is
// venue-agnostic. All calls block on network I/O and must be given a
// context with a deadline.
type Exchange interface {
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	// PlaceOrder submits an order carrying a caller-generated client
	// order id. Venues deduplicate on it, so a retried submission after
	// a timeout must reuse the same id.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID, symbol string) error
	FetchOrder(ctx context.Context, orderID, symbol string) (OrderResult, error)
	FetchBalance(ctx context.Context) (decimal.Decimal, error)
}

// OrderRequest describes one order submission.
type OrderRequest struct {
	Symbol        string
	Side          domain.Side
	Size          decimal.Decimal
	Price         decimal.Decimal // zero means market order
	ClientOrderID string          // idempotency token
}

// OrderResult is the venue's authoritative view of an order.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Status        domain.OrderStatus
	FilledSize    decimal.Decimal
	AvgFillPrice  decimal.Decimal
}
