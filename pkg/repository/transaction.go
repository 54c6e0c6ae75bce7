package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stephenafamo/bob"
)

type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type bobTransaction struct {
	db bob.DB
}

var _ TransactionManager = (*bobTransaction)(nil)

func NewTransactionManager(db bob.DB) TransactionManager {
	return &bobTransaction{db: db}
}

// NewDBFromPool wraps a pgx pool for use with bob
func NewDBFromPool(pool *pgxpool.Pool) bob.DB {
	return bob.NewDB(stdlib.OpenDBFromPool(pool))
}

// the contract with the repositories is:
// we put the current executor into the context, the repository should first look
// in the context for an executor and then use it to execute queries
//
//nolint:whitespace //editor/linter issue
func (b *bobTransaction) RunInTx(
	ctx context.Context,
	fn func(ctx context.Context) error,
) error {
	if executor := FromContext(ctx); executor != nil {
		// already within a transaction
		return fn(ctx)
	}
	return b.db.RunInTx(ctx, nil, func(ctx context.Context, e bob.Executor) error {
		return fn(NewContext(ctx, e))
	})
}
