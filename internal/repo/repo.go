// Package repo holds the Postgres implementations of the engine's stores.
package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is satisfied by *pgxpool.Pool and by pgxmock pools.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const (
	defaultQueryTimeout = 2 * time.Second
	defaultTxTimeout    = 5 * time.Second
)

// base carries the pool and per-call timeouts shared by every store.
type base struct {
	Pool      DB
	qTimeout  time.Duration
	txTimeout time.Duration
}

func newBase(pool DB) base {
	return base{Pool: pool, qTimeout: defaultQueryTimeout, txTimeout: defaultTxTimeout}
}

func (b base) withQ(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.qTimeout)
}

func (b base) withTx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.txTimeout)
}
