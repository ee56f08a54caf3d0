// Package retry wraps remote calls with the retry policy used throughout:
// transient network failures are retried indefinitely with a fixed backoff.
// This is a deliberate choice for a long-running, operator-supervised batch
// job; fatal errors pass through untouched.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

// DefaultInterval is the fixed sleep between attempts.
const DefaultInterval = 10 * time.Second

// Transienter is implemented by errors that know whether they are retriable.
// Remote clients mark server-side transient failures this way.
type Transienter interface {
	Transient() bool
}

// Policy retries an operation on transient failure. The zero value is not
// usable; construct with Default or set both fields.
type Policy struct {
	Interval    time.Duration
	IsTransient func(error) bool
}

// Default returns the observed production policy: fixed 10s backoff, no
// attempt cap, retrying the standard transient error classes.
func Default() Policy {
	return Policy{Interval: DefaultInterval, IsTransient: IsTransient}
}

// Do runs op, sleeping and retrying for as long as it keeps failing with a
// transient error. Non-transient errors and context cancellation end the
// loop immediately.
func (p Policy) Do(ctx context.Context, op func() error) error {
	for {
		err := op()
		if err == nil || !p.IsTransient(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Interval):
		}
	}
}

// IsTransient classifies timeouts, connection-level failures, truncated
// transfers and server-side transient responses as retriable.
func IsTransient(err error) bool {
	var t Transienter
	if errors.As(err, &t) {
		return t.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// A response body cut short mid chunk surfaces as an unexpected EOF.
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
