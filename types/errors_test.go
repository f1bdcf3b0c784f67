package types

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindClassification(t *testing.T) {
	err := NewError(KindAuth, "no credential")
	assert.True(t, IsKind(err, KindAuth))
	assert.False(t, IsKind(err, KindValidation))
	assert.Equal(t, "auth: no credential", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsKind(wrapped, KindAuth), "classification survives wrapping")
	assert.Equal(t, KindAuth, KindOf(wrapped))
}

func TestRetryability(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(NewError(KindAuth, "x")))
	assert.False(t, Retryable(NewError(KindValidation, "x")))
	assert.False(t, Retryable(NewError(KindConfiguration, "x")))
	assert.False(t, Retryable(NewError(KindNotFound, "x")))
	assert.True(t, Retryable(NewError(KindTransientNetwork, "x")))
	assert.True(t, Retryable(RateLimitedError(time.Now(), "x")))

	// Caller cancellation is never retried, even unclassified.
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(fmt.Errorf("op: %w", context.DeadlineExceeded)))

	// Plain transport errors stay retryable by default.
	assert.True(t, Retryable(errors.New("connection reset")))
}

func TestKindOfDefaultsToTransient(t *testing.T) {
	assert.Equal(t, KindTransientNetwork, KindOf(errors.New("dial tcp: refused")))
}

func TestRateLimitedErrorCarriesResumeHint(t *testing.T) {
	at := time.Now().Add(30 * time.Second)
	err := RateLimitedError(at, "slow down")

	var typed *Error
	assert.True(t, errors.As(err, &typed))
	assert.Equal(t, at, typed.ResumeAt)
	assert.True(t, typed.IsRetryable())
}
