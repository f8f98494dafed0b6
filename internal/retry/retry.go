// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry wraps fallible remote calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = time.Minute
)

// jitterFn returns a random duration in [0, n). Tests override it to make
// delays deterministic.
var jitterFn = func(n time.Duration) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(n)))
}

// Policy controls how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	// MaxAttempts is the total number of calls including the first.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; it doubles every attempt.
	BaseDelay time.Duration

	// MaxDelay caps a single wait, jitter included.
	MaxDelay time.Duration

	// Jitter is the exclusive upper bound of the random delay added to each wait.
	Jitter time.Duration
}

// FromConfig builds a Policy from configuration, filling zero fields with defaults.
func FromConfig(cfg types.RetryConfig) Policy {
	p := Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
	}
	return p.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Delay returns the wait before retry number attempt (0 for the first retry):
// BaseDelay * 2^attempt plus jitter, capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	d += jitterFn(p.Jitter)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// DefaultClassifier retries transient remote errors and malformed replies.
// Everything else, including context cancellation, is final.
func DefaultClassifier(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, types.ErrTransient) || errors.Is(err, types.ErrMalformedResponse)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
// It unwraps to the last error so its kind stays matchable.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// policy's attempts run out. A nil classify means DefaultClassifier.
// Cancelling ctx during a backoff wait returns ctx.Err().
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error), classify Classifier) (T, error) {
	p = p.withDefaults()
	if classify == nil {
		classify = DefaultClassifier
	}

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !classify(err) {
			return zero, err
		}
		if attempt >= p.MaxAttempts {
			return zero, &ExhaustedError{Op: op, Attempts: attempt, Err: err}
		}

		wait := p.Delay(attempt - 1)
		slog.Warn("retrying", "op", op, "attempt", attempt, "max_attempts", p.MaxAttempts, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}
}
