package exchange

import (
	"errors"
	"fmt"
)

// Kind classifies an exchange failure. Transient kinds are retried with
// backoff; rejections are terminal for the attempt.
type Kind string

const (
	KindNetwork     Kind = "network"
	KindRateLimited Kind = "rate_limited"
	KindRejected    Kind = "rejected"
	KindNotFound    Kind = "not_found"
)

// Error is a typed exchange failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exchange %s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("exchange %s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether the failure is worth retrying.
func (e *Error) IsTransient() bool {
	return e.Kind == KindNetwork || e.Kind == KindRateLimited
}

// Retryable classifies any error for pkg/retry: only transient exchange
// failures are retried.
func Retryable(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.IsTransient()
	}
	return false
}

// IsKind reports whether err is an exchange error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}

func netErr(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: "request failed", Err: err}
}

func rejected(op, msg string) *Error {
	return &Error{Kind: KindRejected, Op: op, Message: msg}
}
