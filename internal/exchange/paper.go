package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/domain"
)

// Paper is an in-memory exchange for paper trading and tests. Market
// orders fill immediately at the last seeded ticker price. It honors
// client-order-id idempotency: resubmitting an id returns the existing
// order instead of creating a duplicate.
type Paper struct {
	mu       sync.Mutex
	markets  []domain.Market
	tickers  map[string]domain.Ticker
	candles  map[string][]domain.Candle
	orders   map[string]OrderResult // by exchange order id
	byClient map[string]string      // client order id -> exchange order id
	balance  decimal.Decimal
	nextID   int
	// FillStatus lets tests force the status assigned to new orders.
	FillStatus domain.OrderStatus
}

// NewPaper creates an empty paper exchange with the given balance.
func NewPaper(balance decimal.Decimal) *Paper {
	return &Paper{
		tickers:    make(map[string]domain.Ticker),
		candles:    make(map[string][]domain.Candle),
		orders:     make(map[string]OrderResult),
		byClient:   make(map[string]string),
		balance:    balance,
		FillStatus: domain.OrderStatusFilled,
	}
}

// SeedMarket registers a market and its ticker.
func (p *Paper) SeedMarket(m domain.Market, last decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markets = append(p.markets, m)
	p.tickers[m.Symbol] = domain.Ticker{Symbol: m.Symbol, Last: last, Volume24h: m.QuoteVolume24h}
}

// SeedCandles sets the OHLCV history returned for a symbol.
func (p *Paper) SeedCandles(symbol string, candles []domain.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles[symbol] = candles
}

// SetTicker updates the last price for a symbol.
func (p *Paper) SetTicker(symbol string, last decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.tickers[symbol]
	t.Symbol = symbol
	t.Last = last
	p.tickers[symbol] = t
}

// SetOrderStatus overrides one order's status (test hook for reconcile
// scenarios).
func (p *Paper) SetOrderStatus(orderID string, status domain.OrderStatus, filled, avg decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return
	}
	o.Status = status
	o.FilledSize = filled
	o.AvgFillPrice = avg
	p.orders[orderID] = o
}

func (p *Paper) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Market, len(p.markets))
	copy(out, p.markets)
	return out, nil
}

func (p *Paper) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tickers[symbol]
	if !ok {
		return domain.Ticker{}, &Error{Kind: KindNotFound, Op: "fetch_ticker", Message: symbol}
	}
	return t, nil
}

func (p *Paper) FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.candles[symbol]
	if !ok {
		return nil, &Error{Kind: KindNotFound, Op: "fetch_ohlcv", Message: symbol}
	}
	if limit > 0 && len(c) > limit {
		c = c[len(c)-limit:]
	}
	out := make([]domain.Candle, len(c))
	copy(out, c)
	return out, nil
}

func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.byClient[req.ClientOrderID]; ok {
		return p.orders[id], nil
	}
	t, ok := p.tickers[req.Symbol]
	if !ok {
		return OrderResult{}, rejected("place_order", "unknown symbol "+req.Symbol)
	}
	if req.Size.LessThanOrEqual(decimal.Zero) {
		return OrderResult{}, rejected("place_order", "size must be positive")
	}

	p.nextID++
	res := OrderResult{
		OrderID:       fmt.Sprintf("paper-%d", p.nextID),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Status:        p.FillStatus,
	}
	if res.Status == domain.OrderStatusFilled {
		res.FilledSize = req.Size
		res.AvgFillPrice = t.Last
	}
	p.orders[res.OrderID] = res
	p.byClient[req.ClientOrderID] = res.OrderID
	return res, nil
}

func (p *Paper) CancelOrder(ctx context.Context, orderID, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return &Error{Kind: KindNotFound, Op: "cancel_order", Message: orderID}
	}
	if o.Status == domain.OrderStatusSubmitted || o.Status == domain.OrderStatusPartiallyFilled {
		o.Status = domain.OrderStatusCancelled
		p.orders[orderID] = o
	}
	return nil
}

func (p *Paper) FetchOrder(ctx context.Context, orderID, symbol string) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o, ok := p.orders[orderID]; ok {
		return o, nil
	}
	return OrderResult{}, &Error{Kind: KindNotFound, Op: "fetch_order", Message: orderID}
}

func (p *Paper) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}
