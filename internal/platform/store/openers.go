package store

import (
	"context"
	"fmt"
	"time"

	chx "dayfill/internal/platform/store/ch"
	"dayfill/internal/platform/store/pg"
	"dayfill/internal/platform/store/search"
)

// openPG opens the ledger pool and waits for it to answer
func openPG(ctx context.Context, cfg PGConfig, s *Store) (TxRunner, error) {
	var tracer pg.QueryTracer
	if cfg.LogSQL {
		tracer = pg.Tracer(s.Log)
	}
	p, err := pg.Open(ctx, pg.Config{
		URL:      cfg.URL,
		MaxConns: cfg.MaxConns,
		SlowMs:   cfg.SlowQueryMs,
		AppName:  cfg.AppName,
	}, tracer, nil)
	if err != nil {
		return nil, err
	}

	a := newPGAdapter(p)
	if err := s.waitReady(ctx, "postgres", a.Ping, cfg.Ready.withDefaults(20)); err != nil {
		p.Close()
		return nil, err
	}
	return a, nil
}

// openCH opens the source connection; it only pings when cfg.Ready asks for it
func openCH(ctx context.Context, cfg CHConfig, s *Store) (Clickhouse, error) {
	c, err := chx.Open(ctx, chx.Config{
		URL:         cfg.URL,
		DialTimeout: cfg.DialTimeout,
		ClientName:  cfg.ClientName,
		ClientTag:   cfg.ClientTag,
	})
	if err != nil {
		return nil, err
	}
	a := newCHAdapter(c)
	if cfg.Ready.Attempts > 0 {
		if err := s.waitReady(ctx, "clickhouse", a.Ping, cfg.Ready.withDefaults(0)); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return a, nil
}

func openSearch(cfg SearchConfig, s *Store) (Search, error) {
	opts := append([]search.Option{
		search.WithKeyField(cfg.KeyField),
		search.WithLogger(s.Log),
	}, s.searchOpts...)
	idx, err := search.Open(cfg.Dir, opts...)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// waitReady pings until success, doubling the pause up to the policy cap
func (s *Store) waitReady(ctx context.Context, name string, ping func(context.Context) error, p ReadyPolicy) error {
	sleep := s.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last error
	pause := p.BackoffStart
	for i := range p.Attempts {
		pctx, cancel := context.WithTimeout(ctx, p.PingTimeout)
		last = ping(pctx)
		cancel()
		if last == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i == p.Attempts-1 {
			break
		}
		s.Log.Warn().Err(last).Str("backend", name).Int("attempt", i+1).Dur("pause", pause).Msg("backend not ready")
		if err := sleep(ctx, pause); err != nil {
			return err
		}
		pause = min(pause*2, p.BackoffCap)
	}
	return fmt.Errorf("%s ping failed after %d attempts: %w", name, p.Attempts, last)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
