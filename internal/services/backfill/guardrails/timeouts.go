// Package guardrails holds cross cutting safety helpers for backfill
package guardrails

import (
	"context"
	"time"
)

// Timeouts is an optional budget bundle for a single day of work.
// Zero values mean no extra timeout at that level
type Timeouts struct {
	// Day is the overall budget for one day
	Day time.Duration

	// Fetch caps one fetch attempt against the source
	Fetch time.Duration

	// Write caps one partition create or bulk write
	Write time.Duration

	// DB caps one ledger transaction
	DB time.Duration
}

// WithDay returns a context limited by the day budget without extending any parent deadline
func WithDay(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Day)
}

// ForFetch returns a sub context for one fetch attempt
func ForFetch(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Fetch)
}

// ForWrite returns a sub context for one index write
func ForWrite(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Write)
}

// ForDB returns a sub context for one ledger transaction
func ForDB(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.DB)
}

// Remaining returns the time until the deadline on ctx, or zero when none is set or it passed
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout takes the tighter of d and the parent's remaining budget; d <= 0 only adds a cancel
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
