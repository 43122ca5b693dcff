package domain

import (
	"fmt"
	"time"
)

// Lease is a time-bounded advisory lock on a named resource. An expired
// lease is indistinguishable from no lease: any worker may re-acquire.
type Lease struct {
	Key       string        `json:"key"`
	Holder    string        `json:"holder"`
	ExpiresAt time.Time     `json:"expires_at"`
	TTL       time.Duration `json:"ttl"`
}

// Expired reports whether the lease has lapsed at the given instant.
func (l *Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Well-known lease key builders. All mutating operations on a position
// must hold the trade lease for its symbol.

// ScanLeaseKey serializes scanner cycles across instances.
const ScanLeaseKey = "scan:global"

// AnalyzeLeaseKey returns the analyze lease key for a symbol.
func AnalyzeLeaseKey(symbol string) string {
	return fmt.Sprintf("asset:%s:analyze", symbol)
}

// TradeLeaseKey returns the trade lease key for a symbol.
func TradeLeaseKey(symbol string) string {
	return fmt.Sprintf("asset:%s:trade", symbol)
}
