// Package modkit provides module wiring and core deps
package modkit

import (
	"dayfill/internal/modkit/repokit"
	"dayfill/internal/platform/config"
	"dayfill/internal/platform/logger"
	"dayfill/internal/platform/store"
)

// Deps holds core dependencies passed to modules.
// Store seams are nil when the backend is not configured
type Deps struct {
	Log    logger.Logger
	Cfg    config.Conf
	PG     repokit.TxRunner
	CH     store.Clickhouse
	Search store.Search
}

// FromStore copies the opened seams of st into Deps
func FromStore(log logger.Logger, cfg config.Conf, st *store.Store) Deps {
	d := Deps{Log: log, Cfg: cfg}
	if st == nil {
		return d
	}
	d.PG, d.CH, d.Search = st.PG, st.CH, st.Search
	return d
}

// HasLedger reports whether a postgres seam is available
func (d Deps) HasLedger() bool { return d.PG != nil }
