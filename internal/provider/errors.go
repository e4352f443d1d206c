// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider classifies external-call failures and retries the
// transient ones with exponential backoff. The generation and search
// clients share it so both follow the same retry discipline.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind partitions provider failures by retry policy.
type ErrorKind int

const (
	// KindRateLimited is an HTTP 429 or equivalent; retryable.
	KindRateLimited ErrorKind = iota

	// KindTimeout is a deadline or network timeout; retryable.
	KindTimeout

	// KindInvalidRequest is a malformed or unauthorized request; not retryable.
	KindInvalidRequest

	// KindProviderError is any other provider-side failure; not retryable.
	KindProviderError

	// KindEmptyResult means the call succeeded but returned nothing
	// usable. Retried once, then treated as permanent.
	KindEmptyResult
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindInvalidRequest:
		return "invalid_request"
	case KindEmptyResult:
		return "empty_result"
	default:
		return "provider_error"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified provider error.
func Errorf(kind ErrorKind, providerName, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: providerName, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// Retryable reports whether err is worth another attempt. Rate limits
// and timeouts qualify, as do plain network timeouts and per-call
// deadline expiries from unclassified providers. Empty results are
// handled separately by Retry.
func Retryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindRateLimited || pe.Kind == KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
