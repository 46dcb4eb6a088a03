// Package store is the local durable store of the terminal.
//
// It owns every persisted row: domain entities (products, staff, sales
// transactions), the sync outbox and the single-row settings table that
// backs the tenant context and the cached license.
//
// # Atomicity
//
// Domain writes and their outbox records are committed together:
//
//	err := s.WithTx(ctx, func(tx *store.Tx) error {
//		if err := tx.Products().Insert(ctx, p); err != nil {
//			return err
//		}
//		return tx.Outbox().Insert(ctx, rec)
//	})
//
// # Concurrency
//
// SQLite allows one writer. The pool is capped at a single connection and
// runs in WAL mode, so callers must not issue statements on the Store while
// holding a Tx from the same Store.
package store
