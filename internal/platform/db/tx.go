package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerTxOptions is used for every transaction that locks stock rows. Under
// read committed a blocked SELECT ... FOR UPDATE re-reads the latest committed
// row instead of failing with a serialization error.
var LedgerTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// WithTx runs fn in a ledger transaction. fn's error is returned unwrapped so
// callers can match domain sentinels.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	var fnErr error
	err := pgx.BeginTxFunc(ctx, pool, LedgerTxOptions, func(tx pgx.Tx) error {
		fnErr = fn(tx)
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("platform/db: ledger tx: %w", err)
	}
	return nil
}

// Savepoint runs fn under a savepoint of tx. A failure inside fn rolls back to
// the savepoint only, leaving tx usable.
func Savepoint(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, tx, fn)
}
