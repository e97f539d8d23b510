// Package resilience guards calls to unreliable downstreams with a circuit
// breaker and a retry policy, and classifies failures so callers can tell
// transient, permanent and fast-failed outcomes apart.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies an error for retry and breaker accounting.
type Kind int

const (
	// KindUnknown is never assigned; it is what KindOf reports for nil.
	KindUnknown Kind = iota
	// KindTransient covers connection failures, timeouts and 5xx-equivalents.
	KindTransient
	// KindPermanent covers validation failures, 4xx-equivalents and malformed responses.
	KindPermanent
	// KindCircuitOpen is raised by a breaker that is failing fast.
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is the sentinel wrapped by every fast-fail error.
var ErrCircuitOpen = errors.New("circuit open")

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as non-retryable.
func Permanent(op string, err error) error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

// CircuitOpen builds the fast-fail error for the named breaker.
func CircuitOpen(name string) error {
	return &Error{Kind: KindCircuitOpen, Op: name, Err: ErrCircuitOpen}
}

// KindOf reports how err should be treated. Unclassified network errors and
// deadline expiries are transient; anything else unclassified is permanent.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrCircuitOpen) {
		return KindCircuitOpen
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindPermanent
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsCircuitOpen reports whether err is a breaker fast-fail.
func IsCircuitOpen(err error) bool { return KindOf(err) == KindCircuitOpen }
