// Package types holds the shared error taxonomy and small cross-cutting
// types consumed by both the persistence router and the remote client.
package types

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failure for retry and fallback decisions.
type ErrorKind int8

const (
	// KindAuth is a missing or invalid credential. Terminal, never retried.
	KindAuth ErrorKind = iota
	// KindRateLimited is a client- or server-side rate limit. Retried after
	// the resume time.
	KindRateLimited
	// KindTransientNetwork is a timeout, connection reset or 5xx. Retried
	// with backoff.
	KindTransientNetwork
	// KindValidation is a malformed payload or a dependency-graph integrity
	// failure. Terminal and surfaced to the caller regardless of backend.
	KindValidation
	// KindNotFound is a missing task or remote record. Terminal.
	KindNotFound
	// KindConfiguration is missing required configuration. Terminal and
	// raised before any operation proceeds.
	KindConfiguration
)

// String returns the wire-stable name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindTransientNetwork:
		return "transient_network"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is a classified failure with optional HTTP status and resume hint.
type Error struct {
	Kind       ErrorKind
	Message    string
	Err        error     // wrapped underlying error
	StatusCode int       // HTTP status if the failure came off the wire
	ResumeAt   time.Time // earliest sensible retry time for rate limits
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", e.Kind, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the remote client may retry this failure.
func (e *Error) IsRetryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransientNetwork
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a classified error wrapping a cause.
func WrapError(kind ErrorKind, cause error, message string) *Error {
	return &Error{Kind: kind, Err: cause, Message: message}
}

// RateLimitedError creates a rate-limit error carrying a resume time.
func RateLimitedError(resumeAt time.Time, message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message, ResumeAt: resumeAt}
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the classified kind of err, defaulting unclassified errors
// to KindTransientNetwork so plain transport failures stay retryable.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransientNetwork
}

// Retryable reports whether err should be retried by the remote client.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	// Unclassified errors are treated as transient transport failures.
	return true
}
