package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/domain"
	"github.com/tradewatch/cryptobot/pkg/ratelimit"
)

// BingX is the perpetual-swap REST adapter. Responses arrive in a
// {code, msg, data} envelope; a non-zero code is a rejection except for
// the documented rate-limit codes.
type BingX struct {
	client    *resty.Client
	apiKey    string
	apiSecret string
	limiter   ratelimit.Limiter
}

// BingXOptions configures the adapter.
type BingXOptions struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	RateBudget int // requests per 10s
}

// NewBingX builds the adapter. Retrying is left to the callers (via
// pkg/retry) so idempotency-sensitive submissions control their own
// token reuse; the resty client itself never retries.
func NewBingX(opts BingXOptions) *BingX {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RateBudget <= 0 {
		opts.RateBudget = 85
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &BingX{
		client:    client,
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
		limiter:   ratelimit.NewTokenBucket(opts.RateBudget, opts.RateBudget/10),
	}
}

type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// bingx rate-limit error codes
const (
	codeRateLimited = 100410
	codeTooManyReqs = 80014
)

func (b *BingX) do(ctx context.Context, op, method, path string, params map[string]string, signed bool, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return netErr(op, err)
	}
	if params == nil {
		params = map[string]string{}
	}
	if signed {
		params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
		params["signature"] = b.sign(params)
	}

	req := b.client.R().SetContext(ctx).SetQueryParams(params)
	if signed {
		req.SetHeader("X-BX-APIKEY", b.apiKey)
	}
	var env envelope
	req.SetResult(out).SetError(&env)

	var resp *resty.Response
	var err error
	switch method {
	case "GET":
		resp, err = req.Get(path)
	case "POST":
		resp, err = req.Post(path)
	case "DELETE":
		resp, err = req.Delete(path)
	default:
		return errors.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return netErr(op, err)
	}
	if resp.StatusCode() == 429 {
		return &Error{Kind: KindRateLimited, Op: op, Message: "http 429"}
	}
	if resp.StatusCode() >= 500 {
		return &Error{Kind: KindNetwork, Op: op, Message: fmt.Sprintf("http %d", resp.StatusCode())}
	}
	if resp.IsError() {
		return rejected(op, fmt.Sprintf("http %d: %s", resp.StatusCode(), env.Msg))
	}
	return nil
}

func checkCode(op string, code int, msg string) error {
	switch {
	case code == 0:
		return nil
	case code == codeRateLimited || code == codeTooManyReqs:
		return &Error{Kind: KindRateLimited, Op: op, Message: msg}
	case code == 80016: // order not found
		return &Error{Kind: KindNotFound, Op: op, Message: msg}
	default:
		return rejected(op, fmt.Sprintf("code %d: %s", code, msg))
	}
}

// sign builds the HMAC-SHA256 signature over the sorted query string.
func (b *BingX) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

type contractsResp struct {
	envelope
	Data []struct {
		Symbol       string `json:"symbol"`
		QuoteVolume  string `json:"quoteVolume"`
		ContractType string `json:"contractType"`
		Status       int    `json:"status"`
	} `json:"data"`
}

// ListMarkets returns tradable contracts with 24h quote volume.
func (b *BingX) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	const op = "list_markets"
	var out contractsResp
	if err := b.do(ctx, op, "GET", "/openApi/swap/v2/quote/contracts", nil, false, &out); err != nil {
		return nil, err
	}
	if err := checkCode(op, out.Code, out.Msg); err != nil {
		return nil, err
	}
	markets := make([]domain.Market, 0, len(out.Data))
	for _, c := range out.Data {
		if c.Status != 1 {
			continue
		}
		vol, _ := decimal.NewFromString(c.QuoteVolume)
		markets = append(markets, domain.Market{
			Symbol:         c.Symbol,
			QuoteVolume24h: vol,
			InstrumentType: "perpetual",
		})
	}
	return markets, nil
}

type tickerResp struct {
	envelope
	Data struct {
		Symbol      string `json:"symbol"`
		LastPrice   string `json:"lastPrice"`
		QuoteVolume string `json:"quoteVolume"`
	} `json:"data"`
}

// FetchTicker returns the last trade price for a symbol.
func (b *BingX) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	const op = "fetch_ticker"
	var out tickerResp
	if err := b.do(ctx, op, "GET", "/openApi/swap/v2/quote/ticker",
		map[string]string{"symbol": symbol}, false, &out); err != nil {
		return domain.Ticker{}, err
	}
	if err := checkCode(op, out.Code, out.Msg); err != nil {
		return domain.Ticker{}, err
	}
	last, _ := decimal.NewFromString(out.Data.LastPrice)
	vol, _ := decimal.NewFromString(out.Data.QuoteVolume)
	return domain.Ticker{Symbol: symbol, Last: last, Volume24h: vol}, nil
}

type klinesResp struct {
	envelope
	Data []struct {
		Open   string `json:"open"`
		High   string `json:"high"`
		Low    string `json:"low"`
		Close  string `json:"close"`
		Volume string `json:"volume"`
		Time   int64  `json:"time"`
	} `json:"data"`
}

// FetchOHLCV returns recent candles, oldest first.
func (b *BingX) FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	const op = "fetch_ohlcv"
	var out klinesResp
	if err := b.do(ctx, op, "GET", "/openApi/swap/v3/quote/klines", map[string]string{
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	}, false, &out); err != nil {
		return nil, err
	}
	if err := checkCode(op, out.Code, out.Msg); err != nil {
		return nil, err
	}
	candles := make([]domain.Candle, 0, len(out.Data))
	for _, k := range out.Data {
		c := domain.Candle{OpenTime: time.UnixMilli(k.Time)}
		c.Open, _ = decimal.NewFromString(k.Open)
		c.High, _ = decimal.NewFromString(k.High)
		c.Low, _ = decimal.NewFromString(k.Low)
		c.Close, _ = decimal.NewFromString(k.Close)
		c.Volume, _ = decimal.NewFromString(k.Volume)
		candles = append(candles, c)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}

type orderResp struct {
	envelope
	Data struct {
		Order struct {
			OrderID       int64  `json:"orderId"`
			ClientOrderID string `json:"clientOrderId"`
			Symbol        string `json:"symbol"`
			Status        string `json:"status"`
			ExecutedQty   string `json:"executedQty"`
			AvgPrice      string `json:"avgPrice"`
		} `json:"order"`
	} `json:"data"`
}

// PlaceOrder submits a market or limit order. The client order id is
// passed through so the venue deduplicates retried submissions.
func (b *BingX) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	const op = "place_order"
	params := map[string]string{
		"symbol":        req.Symbol,
		"side":          strings.ToUpper(string(req.Side)),
		"quantity":      req.Size.String(),
		"clientOrderID": req.ClientOrderID,
		"type":          "MARKET",
	}
	if !req.Price.IsZero() {
		params["type"] = "LIMIT"
		params["price"] = req.Price.String()
	}
	var out orderResp
	if err := b.do(ctx, op, "POST", "/openApi/swap/v2/trade/order", params, true, &out); err != nil {
		return OrderResult{}, err
	}
	if err := checkCode(op, out.Code, out.Msg); err != nil {
		return OrderResult{}, err
	}
	return orderResultFrom(out), nil
}

// CancelOrder cancels an open order.
func (b *BingX) CancelOrder(ctx context.Context, orderID, symbol string) error {
	const op = "cancel_order"
	var out orderResp
	if err := b.do(ctx, op, "DELETE", "/openApi/swap/v2/trade/order", map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	}, true, &out); err != nil {
		return err
	}
	return checkCode(op, out.Code, out.Msg)
}

// FetchOrder queries the authoritative order status. When orderID is
// empty the lookup falls back to the client order id, which covers the
// submit-timeout case where no exchange id was ever observed.
func (b *BingX) FetchOrder(ctx context.Context, orderID, symbol string) (OrderResult, error) {
	const op = "fetch_order"
	params := map[string]string{"symbol": symbol}
	if orderID != "" {
		params["orderId"] = orderID
	}
	var out orderResp
	if err := b.do(ctx, op, "GET", "/openApi/swap/v2/trade/order", params, true, &out); err != nil {
		return OrderResult{}, err
	}
	if err := checkCode(op, out.Code, out.Msg); err != nil {
		return OrderResult{}, err
	}
	return orderResultFrom(out), nil
}

type balanceResp struct {
	envelope
	Data struct {
		Balance struct {
			AvailableMargin string `json:"availableMargin"`
		} `json:"balance"`
	} `json:"data"`
}

// FetchBalance returns available margin in the quote currency.
func (b *BingX) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	const op = "fetch_balance"
	var out balanceResp
	if err := b.do(ctx, op, "GET", "/openApi/swap/v2/user/balance", nil, true, &out); err != nil {
		return decimal.Zero, err
	}
	if err := checkCode(op, out.Code, out.Msg); err != nil {
		return decimal.Zero, err
	}
	bal, _ := decimal.NewFromString(out.Data.Balance.AvailableMargin)
	return bal, nil
}

func orderResultFrom(out orderResp) OrderResult {
	o := out.Data.Order
	filled, _ := decimal.NewFromString(o.ExecutedQty)
	avg, _ := decimal.NewFromString(o.AvgPrice)
	return OrderResult{
		OrderID:       strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Status:        mapOrderStatus(o.Status),
		FilledSize:    filled,
		AvgFillPrice:  avg,
	}
}

func mapOrderStatus(s string) domain.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW", "PENDING":
		return domain.OrderStatusSubmitted
	case "PARTIALLY_FILLED":
		return domain.OrderStatusPartiallyFilled
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED", "CANCELLED", "EXPIRED":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusRejected
	}
}
