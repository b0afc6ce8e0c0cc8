package store

import (
	"context"
	"time"

	"dayfill/internal/platform/logger"
	"dayfill/internal/platform/store/search"
)

// Option mutates Store during Open
type Option func(*Store) error

// WithLogger sets the logger handed to the backends
func WithLogger(log logger.Logger) Option {
	return func(s *Store) error {
		s.Log = log
		return nil
	}
}

// WithSearchOptions appends options applied when the search index is opened,
// after the key field and logger from Config
func WithSearchOptions(opts ...search.Option) Option {
	return func(s *Store) error {
		s.searchOpts = append(s.searchOpts, opts...)
		return nil
	}
}

// withSleep replaces the pause between readiness pings
func withSleep(fn func(context.Context, time.Duration) error) Option {
	return func(s *Store) error {
		s.sleep = fn
		return nil
	}
}
