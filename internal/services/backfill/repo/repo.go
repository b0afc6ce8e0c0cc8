// Package repo provides the postgres day ledger
package repo

import (
	"context"
	"time"

	"dayfill/internal/modkit/repokit"
	perr "dayfill/internal/platform/errors"
	"dayfill/internal/platform/store"
	"dayfill/internal/services/backfill/domain"

	"github.com/google/uuid"
)

type (
	// PG is a Postgres binder for domain.LedgerRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.LedgerRepo
func NewPG() repokit.Binder[domain.LedgerRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.LedgerRepo { return &queries{q: q} }

// StartDay opens the day entry; a rerun of the same run and day resets it
func (r *queries) StartDay(ctx context.Context, runID uuid.UUID, day time.Time, partition string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO backfill_days (run_id, day, partition, status, started_at)
		VALUES ($1::uuid, $2, $3, $4, now())
		ON CONFLICT (run_id, day) DO UPDATE
		SET partition = EXCLUDED.partition, status = EXCLUDED.status,
			started_at = now(), finished_at = NULL, error = NULL
	`, runID.String(), dayDate(day), partition, domain.StatusRunning)
	return perr.FromPostgres(err, "ledger start day")
}

// FinishDay closes the day entry with its counters
func (r *queries) FinishDay(ctx context.Context, runID uuid.UUID, day time.Time, fin domain.DayFinish) error {
	err := store.ExecOne(ctx, r.q, `
		UPDATE backfill_days SET
			finished_at = now(),
			status = $3,
			fetched = $4,
			discarded = $5,
			indexed = $6,
			batches = $7,
			attempts = $8,
			fetch_ms = $9,
			write_ms = $10,
			elapsed_ms = $11,
			error = NULLIF($12, '')
		WHERE run_id = $1::uuid AND day = $2
	`,
		runID.String(), dayDate(day), fin.Status,
		fin.Fetched, fin.Discarded, fin.Indexed, fin.Batches, fin.Attempts,
		fin.FetchMS, fin.WriteMS, fin.ElapsedMS, fin.ErrText,
	)
	if err != nil && !perr.IsCode(err, perr.ErrorCodeNotFound) {
		return perr.FromPostgres(err, "ledger finish day")
	}
	return err
}

// Days lists the entries of a run, newest day first
func (r *queries) Days(ctx context.Context, runID uuid.UUID) ([]domain.DayEntry, error) {
	out, err := store.Many(ctx, r.q, scanEntry, `
		SELECT run_id::text, day, partition, status,
			fetched, discarded, indexed, batches, attempts,
			elapsed_ms, COALESCE(error, ''), started_at, finished_at
		FROM backfill_days
		WHERE run_id = $1::uuid
		ORDER BY day DESC
	`, runID.String())
	return out, perr.FromPostgres(err, "ledger list days")
}

func scanEntry(row store.Row) (domain.DayEntry, error) {
	var (
		e     domain.DayEntry
		runID string
	)
	err := row.Scan(&runID, &e.Day, &e.Partition, &e.Status,
		&e.Stats.Fetched, &e.Stats.Discarded, &e.Stats.Indexed, &e.Stats.Batches, &e.Stats.Attempts,
		&e.ElapsedMS, &e.ErrText, &e.StartedAt, &e.FinishedAt)
	if err != nil {
		return e, err
	}
	e.RunID, err = uuid.Parse(runID)
	return e, err
}

// dayDate strips the clock so the date column sees the calendar day
func dayDate(day time.Time) time.Time {
	y, m, d := day.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
