// Package ingest holds the source and decoder adapters behind the backfill ports
package ingest

import (
	"context"
	"fmt"

	"dayfill/internal/modkit"
	perr "dayfill/internal/platform/errors"
	"dayfill/internal/platform/store"
	"dayfill/internal/platform/validate"
	"dayfill/internal/services/backfill/domain"
)

// SourceOptions names the clickhouse table and columns records are read from
type SourceOptions struct {
	Table         string `env:"SERVICE_CLICKHOUSE_TABLE" validate:"required,ident"`
	DayColumn     string `env:"SERVICE_CLICKHOUSE_DAY_COLUMN" validate:"required,ident"`
	PayloadColumn string `env:"SERVICE_CLICKHOUSE_PAYLOAD_COLUMN" validate:"required,ident"`
}

// SourceOptionsFromConfig reads SERVICE_CLICKHOUSE_* from deps.Cfg
func SourceOptionsFromConfig(deps modkit.Deps) SourceOptions {
	c := deps.Cfg.Prefix("SERVICE_CLICKHOUSE_")
	return SourceOptions{
		Table:         c.MayString("TABLE", "processed_records"),
		DayColumn:     c.MayString("DAY_COLUMN", "day_key"),
		PayloadColumn: c.MayString("PAYLOAD_COLUMN", "payload"),
	}
}

// Source implements domain.RecordSource over the clickhouse seam
type Source struct {
	ch    store.Clickhouse
	query string
}

var _ domain.RecordSource = (*Source)(nil)

// NewSource validates opts and builds the per-day query. Identifiers are checked,
// never quoted, so they must be plain names
func NewSource(ch store.Clickhouse, opts SourceOptions) (*Source, error) {
	if ch == nil {
		return nil, perr.Validationf("clickhouse is not configured (SERVICE_CLICKHOUSE_DBURL)")
	}
	if err := validate.Struct(opts); err != nil {
		return nil, err
	}
	return &Source{
		ch: ch,
		query: fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
			opts.PayloadColumn, opts.Table, opts.DayColumn),
	}, nil
}

// NewSourceFromDeps wires a Source from deps.CH and SERVICE_CLICKHOUSE_* config
func NewSourceFromDeps(deps modkit.Deps) (*Source, error) {
	return NewSource(deps.CH, SourceOptionsFromConfig(deps))
}

// FetchDay returns every payload stored under dayKey. Transient failures carry
// ErrorCodeUnavailable so the caller's retry policy can tell them apart
func (s *Source) FetchDay(ctx context.Context, dayKey string) (out [][]byte, err error) {
	if dayKey == "" {
		return nil, perr.InvalidArgf("empty day key")
	}
	rows, err := s.ch.Query(ctx, s.query, dayKey)
	if err != nil {
		return nil, perr.FromClickhouse(err, "query day "+dayKey)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, perr.FromClickhouse(err, "scan day "+dayKey)
		}
		out = append(out, []byte(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromClickhouse(err, "read day "+dayKey)
	}
	return out, nil
}
