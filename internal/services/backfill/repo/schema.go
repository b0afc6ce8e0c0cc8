package repo

import (
	"context"

	"dayfill/internal/modkit/repokit"
	perr "dayfill/internal/platform/errors"
)

// Schema is the ledger DDL; safe to apply repeatedly
const Schema = `
CREATE TABLE IF NOT EXISTS backfill_days (
	run_id      uuid        NOT NULL,
	day         date        NOT NULL,
	partition   text        NOT NULL DEFAULT '',
	status      text        NOT NULL,
	fetched     integer     NOT NULL DEFAULT 0,
	discarded   integer     NOT NULL DEFAULT 0,
	indexed     integer     NOT NULL DEFAULT 0,
	batches     integer     NOT NULL DEFAULT 0,
	attempts    integer     NOT NULL DEFAULT 0,
	fetch_ms    integer     NOT NULL DEFAULT 0,
	write_ms    integer     NOT NULL DEFAULT 0,
	elapsed_ms  integer     NOT NULL DEFAULT 0,
	error       text,
	started_at  timestamptz NOT NULL DEFAULT now(),
	finished_at timestamptz,
	PRIMARY KEY (run_id, day)
);
CREATE INDEX IF NOT EXISTS backfill_days_day_status_idx ON backfill_days (day, status);
`

// Migrate applies Schema inside one transaction
func Migrate(ctx context.Context, tx repokit.TxRunner) error {
	err := tx.Tx(ctx, func(q repokit.Queryer) error {
		_, err := q.Exec(ctx, Schema)
		return err
	})
	return perr.FromPostgres(err, "ledger migrate")
}
