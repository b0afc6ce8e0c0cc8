//go:build integration_pg

package repo

import (
	"context"
	"testing"
	"time"

	"dayfill/internal/platform/store"
	"dayfill/internal/services/backfill/domain"

	"github.com/google/uuid"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a throwaway postgres and returns a ready TxRunner
func startPostgres(t *testing.T) store.TxRunner {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ledger",
				"POSTGRES_PASSWORD": "ledger",
				"POSTGRES_DB":       "dayfill",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithDeadline(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatal(err)
	}

	st, err := store.Open(ctx, store.Config{PG: store.PGConfig{
		Enabled: true,
		URL:     "postgres://ledger:ledger@" + host + ":" + port.Port() + "/dayfill?sslmode=disable",
	}})
	if err != nil {
		t.Fatalf("store open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st.PG
}

func TestLedger_RoundTrip_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate twice: %v", err)
	}

	run := uuid.New()
	d1 := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, -1)
	ledger := NewPG()

	err := db.Tx(ctx, func(q store.RowQuerier) error {
		l := ledger.Bind(q)
		if err := l.StartDay(ctx, run, d1, "records_20240310"); err != nil {
			return err
		}
		if err := l.FinishDay(ctx, run, d1, domain.DayFinish{
			Status:   domain.StatusOK,
			DayStats: domain.DayStats{Fetched: 3, Indexed: 3, Batches: 2, Attempts: 1},
		}); err != nil {
			return err
		}
		if err := l.StartDay(ctx, run, d2, "records_20240309"); err != nil {
			return err
		}
		return l.FinishDay(ctx, run, d2, domain.DayFinish{Status: domain.StatusError, ErrText: "fetch: unavailable"})
	})
	if err != nil {
		t.Fatalf("ledger tx: %v", err)
	}

	var days []domain.DayEntry
	err = db.Tx(ctx, func(q store.RowQuerier) error {
		var lerr error
		days, lerr = ledger.Bind(q).Days(ctx, run)
		return lerr
	})
	if err != nil {
		t.Fatalf("Days: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("want 2 entries, got %d", len(days))
	}
	if !days[0].Day.Equal(d1) || days[0].Status != domain.StatusOK || days[0].Stats.Indexed != 3 || days[0].FinishedAt == nil {
		t.Fatalf("first entry = %+v", days[0])
	}
	if days[1].Status != domain.StatusError || days[1].ErrText != "fetch: unavailable" || days[1].RunID != run {
		t.Fatalf("second entry = %+v", days[1])
	}
}
