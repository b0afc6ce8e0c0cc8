package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dayfill/internal/modkit"
	"dayfill/internal/modkit/module"
	"dayfill/internal/modkit/repokit"
	"dayfill/internal/platform/config"
	"dayfill/internal/platform/logger"
	"dayfill/internal/platform/store"

	backfillmod "dayfill/internal/services/backfill/module"
	"dayfill/internal/services/backfill/service"
)

// flag name -> env var read by backfillmod.FromConfig
var flagEnv = map[string]string{
	"end":       "CORE_BACKFILL_END_DATE",
	"duration":  "CORE_BACKFILL_DURATION",
	"threshold": "CORE_BACKFILL_BATCH_THRESHOLD",
	"index":     "CORE_BACKFILL_INDEX_TEMPLATE",
	"type":      "CORE_BACKFILL_RECORD_TYPE",
	"key":       "CORE_BACKFILL_KEY_FIELD",
	"abort":     "CORE_BACKFILL_ABORT_ON_FAILURE",
}

func main() { os.Exit(run(os.Args[1:], os.Stdout)) }

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("dayfill", flag.ContinueOnError)
	fs.String("end", "", "last UTC day of the window, YYYY-MM-DD (default today)")
	fs.Int("duration", 7, "number of days to backfill, walking back from -end")
	fs.Int("threshold", 50, "records pending before a batch is written")
	fs.String("index", "", "partition template, strftime style (e.g. records_%Y%m%d)")
	fs.String("type", "record", "document type stored with each record")
	fs.String("key", "uuid", "record field used as document id")
	fs.Bool("abort", false, "stop the run at the first failed day")
	fPlanOnly := fs.Bool("plan-only", false, "print the days and partitions of the window and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// surface explicit flags to FromConfig; unset flags leave env in charge
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagEnv[f.Name]; ok {
			_ = os.Setenv(key, f.Value.String())
		}
	})

	root := config.New()
	l := logger.Named("dayfill")

	opts := backfillmod.FromConfig(root)
	if err := opts.Validate(); err != nil {
		l.Error().Err(err).Msg("invalid options")
		return 2
	}

	if *fPlanOnly {
		for _, p := range service.PlanDays(opts.EndDate, opts.Duration, opts.IndexTemplate) {
			partition := p.Partition
			if !p.HasIndex {
				partition = "(default)"
			}
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", p.Key, p.Day.Format(config.DateLayout), partition)
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	searchCfg := root.Prefix("SERVICE_SEARCH_")

	st, err := store.Open(ctx, store.Config{
		PG: store.PGConfig{
			Enabled:     opts.Ledger && pgCfg.Has("DBURL"),
			URL:         pgCfg.MayString("DBURL", ""),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 2)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
			AppName:     "dayfill",
			Ready:       store.ReadyPolicy{Attempts: pgCfg.MayInt("CONNECT_RETRIES", 20)},
		},
		CH: store.CHConfig{
			Enabled:     true,
			URL:         chCfg.MustString("DBURL"),
			DialTimeout: chCfg.MayDuration("DIAL_TIMEOUT", 0),
			ClientName:  "dayfill",
			ClientTag:   "backfill",
			Ready:       store.ReadyPolicy{Attempts: chCfg.MayInt("CONNECT_RETRIES", 0)},
		},
		Search: store.SearchConfig{
			Enabled:  true,
			Dir:      searchCfg.MayString("DIR", "data/index"),
			KeyField: opts.KeyField,
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Error().Err(err).Msg("store.Open failed")
		return 1
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()
	repokit.MustGuard(ctx, st)

	bf, err := backfillmod.NewWithOptions(modkit.FromStore(*l, root, st), opts)
	if err != nil {
		l.Error().Err(err).Msg("backfill module wiring failed")
		return 1
	}
	if err := bf.Prepare(ctx); err != nil {
		l.Error().Err(err).Msg("ledger migration failed")
		return 1
	}
	module.RegisterModule(bf)
	l.Debug().Strs("modules", module.Names()).Msg("modules registered")

	runner := module.MustPortsAs[backfillmod.Ports](backfillmod.Name).Runner
	sum, err := runner.RunWindow(ctx, opts.EndDate, opts.Duration)
	if err != nil {
		l.Error().Err(err).
			Str("run_id", sum.RunID.String()).
			Strs("failed_days", sum.Failed).
			Msg("backfill failed")
		return 1
	}
	l.Info().
		Str("run_id", sum.RunID.String()).
		Int("days", sum.DaysOK).
		Int("indexed", sum.Indexed).
		Bool("ledger", bf.LedgerEnabled()).
		Msg("backfill complete")
	return 0
}
