package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter gates outgoing requests.
type Limiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	Remaining() int
}

// TokenBucket is a simple token-bucket limiter. The exchange budget is
// expressed as capacity tokens refilled at refillRate per second.
type TokenBucket struct {
	capacity   int
	tokens     int
	refillRate int
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	add := int(now.Sub(tb.lastRefill).Seconds()) * tb.refillRate
	if add > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+add)
		tb.lastRefill = now
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}
		wait := time.Second
		if tb.refillRate > 0 {
			wait = time.Second / time.Duration(tb.refillRate)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Remaining returns the current token count.
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
