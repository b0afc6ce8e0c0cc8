// Package repokit provides the shared types repositories are written against
package repokit

import (
	"context"

	"dayfill/internal/platform/store"
)

type (
	// Queryer is the statement surface a repo is bound to
	Queryer = store.RowQuerier

	// TxRunner opens transactions; outside one it is also a Queryer
	TxRunner = store.TxRunner

	Rows       = store.Rows
	Row        = store.Row
	CommandTag = store.CommandTag
)

// InTx opens a transaction on db, binds b to it and hands the repo to fn.
// fn's error rolls the transaction back
func InTx[R any](ctx context.Context, db TxRunner, b Binder[R], fn func(R) error) error {
	return db.Tx(ctx, func(q Queryer) error {
		return fn(MustBind(b, q))
	})
}
