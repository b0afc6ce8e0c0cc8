// Package module provides the backfill module implementation
package module

import (
	"context"

	"dayfill/internal/core/normalize"
	"dayfill/internal/modkit"
	"dayfill/internal/modkit/repokit"
	perr "dayfill/internal/platform/errors"
	"dayfill/internal/services/backfill/domain"
	"dayfill/internal/services/backfill/ingest"
	"dayfill/internal/services/backfill/repo"
	"dayfill/internal/services/backfill/service"
)

// Name is the key the module registers its ports under
const Name = "backfill"

// Ports defines the backfill module ports
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements the backfill module
type Module struct {
	deps   modkit.Deps
	opts   Options
	ledger repokit.TxRunner
	ports  Ports
}

var _ modkit.Module = (*Module)(nil)

// New constructs the backfill module from CORE_BACKFILL_* and SERVICE_CLICKHOUSE_* config
func New(deps modkit.Deps) (*Module, error) {
	return NewWithOptions(deps, FromConfig(deps.Cfg))
}

// NewWithOptions wires the source, decoder, normalizer and index seams into the
// service. The ledger is attached when opts.Ledger is set and a postgres seam exists
func NewWithOptions(deps modkit.Deps, opts Options) (*Module, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Search == nil {
		return nil, perr.Validationf("search index is not configured (SERVICE_SEARCH_DIR)")
	}
	src, err := ingest.NewSourceFromDeps(deps)
	if err != nil {
		return nil, err
	}

	m := &Module{deps: deps, opts: opts}

	var svcOpts []service.Option
	if opts.Ledger && deps.HasLedger() {
		var hooks []repokit.BeginHook
		if opts.StatementTimeoutMs > 0 {
			hooks = append(hooks, repokit.StatementTimeout(opts.StatementTimeoutMs))
		}
		m.ledger = repokit.WithBeginHooks(deps.PG, hooks...)
		svcOpts = append(svcOpts, service.WithLedger(m.ledger, repo.NewPG()))
	}

	svc := service.New(
		src,
		ingest.NewJSONDecoder(opts.KeyField),
		normalize.New(opts.KeyField),
		deps.Search,
		opts.ServiceConfig(),
		svcOpts...,
	)
	m.ports = Ports{Runner: svc}
	return m, nil
}

// Prepare applies the ledger schema when the ledger is enabled
func (m *Module) Prepare(ctx context.Context) error {
	if m.ledger == nil {
		return nil
	}
	return repo.Migrate(ctx, m.ledger)
}

// LedgerEnabled reports whether days are recorded in postgres
func (m *Module) LedgerEnabled() bool { return m.ledger != nil }

// Options returns the validated options the module was built with
func (m *Module) Options() Options { return m.opts }

// Runner returns the runner port
func (m *Module) Runner() domain.RunnerPort { return m.ports.Runner }

// Name returns the module name
func (m *Module) Name() string { return Name }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
