package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
)

// RunInTx executes fn inside a read-committed transaction, committing on success.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, fn func(*dbgen.Queries) error) error {
	if pool == nil {
		return errors.New("db: pool not configured")
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(dbgen.New(pool).WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Transactor adapts RunInTx to services that depend on a narrower querier
// interface than *dbgen.Queries.
func Transactor[Q any](pool *pgxpool.Pool, narrow func(*dbgen.Queries) Q) func(context.Context, func(Q) error) error {
	return func(ctx context.Context, fn func(Q) error) error {
		return RunInTx(ctx, pool, func(q *dbgen.Queries) error {
			return fn(narrow(q))
		})
	}
}
