package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	perr "dayfill/internal/platform/errors"
)

// Retry defaults
const (
	DefaultMaxAttempts = 5
	DefaultRetryBase   = 500 * time.Millisecond
	DefaultRetryCap    = 30 * time.Second
)

// RetryPolicy bounds the attempts made to fetch one day
type RetryPolicy struct {
	// MaxAttempts counts the first try; <= 0 means DefaultMaxAttempts
	MaxAttempts int

	// Base is the first backoff; <= 0 means DefaultRetryBase
	Base time.Duration

	// Cap bounds any single backoff; <= 0 means DefaultRetryCap
	Cap time.Duration

	// NoJitter sleeps the exact exponential backoff
	NoJitter bool
}

// DefaultRetryPolicy is five attempts with 500ms..30s jittered backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Base: DefaultRetryBase, Cap: DefaultRetryCap}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Base <= 0 {
		p.Base = DefaultRetryBase
	}
	if p.Cap <= 0 {
		p.Cap = DefaultRetryCap
	}
	return p
}

// Backoff returns the pause after the failed attempt with zero-based index attempt.
// Jittered waits fall in [d/2, d) where d = min(Base<<attempt, Cap)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	d := p.Cap
	if attempt < 32 {
		if shifted := p.Base << attempt; shifted > 0 && shifted < p.Cap {
			d = shifted
		}
	}
	half := d / 2
	if p.NoJitter || half <= 0 {
		return d
	}
	return half + rand.N(half)
}

// ShouldRetry reports whether err is worth another attempt. Cancellation and
// caller mistakes stop at once; transient backend errors and unclassified
// failures are retried
func (p RetryPolicy) ShouldRetry(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case perr.Retryable(err):
		return true
	}
	switch perr.CodeOf(err) {
	case perr.ErrorCodeUnknown:
		return true
	default:
		return false
	}
}
