package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is one tradable symbol in the registry. The scanner owns the
// writes; the analyzer only reads.
type Asset struct {
	Symbol      string
	Volume24h   decimal.Decimal
	LastScanned time.Time
	Active      bool
}

// Market is a tradable instrument as reported by the exchange.
type Market struct {
	Symbol         string
	QuoteVolume24h decimal.Decimal
	InstrumentType string // e.g. "perpetual", "spot"
}

// Ticker is the latest price snapshot for one symbol.
type Ticker struct {
	Symbol    string
	Last      decimal.Decimal
	Volume24h decimal.Decimal
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// ScanReport summarizes one scanner cycle.
type ScanReport struct {
	Discovered  int
	Filtered    int
	Upserted    int
	Deactivated int
	Errors      []string
}
