// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every failure surfaced by a remote client or by validation
// wraps exactly one of these so callers can classify it with errors.Is.
var (
	// ErrTransient marks network failures, rate limits and server errors.
	// The retry policy absorbs them until attempts are exhausted.
	ErrTransient = errors.New("transient remote error")

	// ErrMalformedResponse marks a reply that arrived but does not have the
	// expected shape. It is retried a bounded number of times, then the
	// item is rejected.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrValidation marks a review that violates a range or required-field rule.
	// It is never retried.
	ErrValidation = errors.New("validation failed")

	// ErrFatalConfig marks missing credentials or input files. It aborts the run.
	ErrFatalConfig = errors.New("fatal configuration error")

	// ErrRequest marks a request the remote service refused as invalid.
	// It is not retried.
	ErrRequest = errors.New("invalid request")
)

// ValidationError lists every problem found in one review.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Problems, "; "))
}

// Is reports ErrValidation so callers can match the kind without a type assertion.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RemoteError records a failed call to a remote API.
type RemoteError struct {
	// Service names the API (e.g. "openai", "geocoding").
	Service string

	// StatusCode is the HTTP status, or 0 for transport failures.
	StatusCode int

	// Message is the response body excerpt or the remote status string.
	Message string

	// Kind is one of the sentinel error kinds.
	Kind error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v: %s", e.Service, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s returned %d (%v): %s", e.Service, e.StatusCode, e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Kind
}

// Malformed wraps a parse or shape failure as ErrMalformedResponse.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
