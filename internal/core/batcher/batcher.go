// Package batcher accumulates items and releases them once a size threshold is exceeded
package batcher

// Batcher holds pending items until more than threshold have accumulated.
// Not safe for concurrent use; the backfill builds one per day
type Batcher[T any] struct {
	threshold int
	pending   []T
}

// New returns a Batcher that releases once len(pending) > threshold. Negative thresholds act as zero
func New[T any](threshold int) *Batcher[T] {
	return &Batcher[T]{threshold: max(threshold, 0)}
}

// Len reports the number of pending items
func (b *Batcher[T]) Len() int { return len(b.pending) }

// Offer appends item and, when the threshold is exceeded, returns every pending item
func (b *Batcher[T]) Offer(item T) ([]T, bool) {
	b.pending = append(b.pending, item)
	if len(b.pending) <= b.threshold {
		return nil, false
	}
	return b.take(), true
}

// Flush returns the pending remainder, if any
func (b *Batcher[T]) Flush() ([]T, bool) {
	if len(b.pending) == 0 {
		return nil, false
	}
	return b.take(), true
}

// take hands ownership of the pending slice to the caller. The next batch
// grows through append so a huge threshold costs nothing up front
func (b *Batcher[T]) take() []T {
	out := b.pending
	b.pending = nil
	return out
}
