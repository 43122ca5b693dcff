package retry

import (
	"context"
	"time"
)

// Config bounds a retried operation. Zero values fall back to the
// defaults used for exchange calls: 3 attempts, 500ms base delay,
// capped at 5s.
type Config struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultConfig is the standard exchange-call retry policy.
var DefaultConfig = Config{
	Attempts:  3,
	BaseDelay: 500 * time.Millisecond,
	MaxDelay:  5 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = DefaultConfig.Attempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultConfig.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	return c
}

// Retryable classifies whether an error is worth another attempt.
type Retryable func(error) bool

// Do runs fn up to cfg.Attempts times with exponential backoff between
// attempts. Only errors the classifier reports as retryable are
// retried; everything else is returned immediately. The caller is
// responsible for making fn idempotent (e.g. reusing the same client
// order id across attempts).
func Do(ctx context.Context, cfg Config, retryable Retryable, fn func() error) error {
	cfg = cfg.withDefaults()

	var err error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
