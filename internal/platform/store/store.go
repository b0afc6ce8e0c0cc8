// Package store provides a unified interface to the backfill's storage backends
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dayfill/internal/platform/logger"
	"dayfill/internal/platform/store/search"
)

// Store holds the backends a backfill run talks to.
// The zero value is safe and does nothing
type Store struct {
	// Log is handed to the backends
	Log logger.Logger

	// PG backs the day ledger, nil when disabled
	PG TxRunner

	// CH is the record source, nil when disabled
	CH Clickhouse

	// Search receives the indexed records, nil when disabled
	Search Search

	searchOpts []search.Option
	sleep      func(context.Context, time.Duration) error
}

// Row exposes the minimal scan contract a single row needs
type Row interface {
	Scan(dest ...any) error
}

// Rows exposes the minimal iteration and scan for a result set
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
	Columns() []string
}

// CommandTag is a tiny interface to inspect command results
type CommandTag interface {
	String() string
	RowsAffected() int64
}

// RowQuerier is the read and write surface repos use for sql
type RowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// TxRunner wraps transaction execution around a function
type TxRunner interface {
	RowQuerier
	Tx(ctx context.Context, fn func(q RowQuerier) error) error
}

// Clickhouse is a tiny seam for columnar reads and writes
type Clickhouse interface {
	Insert(ctx context.Context, table string, data any) error
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Close() error
}

// Search is the seam over the search index: named partitions receiving keyed documents
type Search interface {
	CreatePartition(ctx context.Context, name string) error
	BulkWrite(ctx context.Context, partition, docType string, docs []map[string]any, keyField string) error
	Close() error
}

// Pinger is any seam that can report readiness
type Pinger interface{ Ping(context.Context) error }

// backend is one step of Open
type backend struct {
	name    string
	enabled bool
	open    func(ctx context.Context) error
}

// Open connects the backends enabled in cfg in order: ledger, source, index.
// A failure closes whatever was already opened
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{Log: *logger.Named("store"), sleep: sleepCtx}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	steps := []backend{
		{"pg", cfg.PG.Enabled, func(ctx context.Context) (err error) {
			s.PG, err = openPG(ctx, cfg.PG, s)
			return err
		}},
		{"ch", cfg.CH.Enabled, func(ctx context.Context) (err error) {
			s.CH, err = openCH(ctx, cfg.CH, s)
			return err
		}},
		{"search", cfg.Search.Enabled, func(context.Context) (err error) {
			s.Search, err = openSearch(cfg.Search, s)
			return err
		}},
	}
	for _, b := range steps {
		if !b.enabled {
			continue
		}
		if err := b.open(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("store: open %s: %w", b.name, err)
		}
		s.Log.Debug().Str("backend", b.name).Msg("backend ready")
	}
	return s, nil
}

// Guard pings every configured backend that can be pinged
func (s *Store) Guard(ctx context.Context) error {
	if s == nil {
		return errors.New("nil store")
	}
	var errs []error
	for name, seam := range map[string]any{"pg": s.PG, "ch": s.CH} {
		p, ok := seam.(Pinger)
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the backends in reverse order of Open; nil backends are skipped
func (s *Store) Close(_ context.Context) error {
	var closers []func() error
	if c, ok := s.PG.(interface{ Close() error }); ok {
		closers = append(closers, c.Close)
	}
	if s.CH != nil {
		closers = append(closers, s.CH.Close)
	}
	if s.Search != nil {
		closers = append(closers, s.Search.Close)
	}

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
