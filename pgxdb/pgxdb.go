// Package pgxdb serves request handles from a pgx connection pool.
package pgxdb

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/golly-go/reqdb"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor is what handlers get from Current. It is satisfied by
// *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ Executor = (*pgxpool.Pool)(nil)
	_ Executor = (*pgxpool.Conn)(nil)
	_ Executor = (pgx.Tx)(nil)
)

var errFinalized = reqdb.NewError(reqdb.KindInvalidState, "pgxdb", reqdb.ErrUseAfterFinalize)

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// guarded rejects every call once its handle is finalized.
type guarded struct {
	exec Executor
	done atomic.Bool
}

func (g *guarded) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if g.done.Load() {
		return pgconn.CommandTag{}, errFinalized
	}
	return g.exec.Exec(ctx, sql, args...)
}

func (g *guarded) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if g.done.Load() {
		return nil, errFinalized
	}
	return g.exec.Query(ctx, sql, args...)
}

func (g *guarded) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if g.done.Load() {
		return errRow{errFinalized}
	}
	return g.exec.QueryRow(ctx, sql, args...)
}

// Pool adapts a *pgxpool.Pool to reqdb.Pool.
type Pool struct {
	pool      *pgxpool.Pool
	txOptions pgx.TxOptions
}

var _ reqdb.Pool[Executor] = (*Pool)(nil)

// New returns a Pool drawing from pool.
func New(pool *pgxpool.Pool) *Pool {
	return &Pool{pool: pool}
}

// Open creates a pgx pool from cfg and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// WithTxOptions sets the options transactional handles begin with.
func (p *Pool) WithTxOptions(opts pgx.TxOptions) *Pool {
	p.txOptions = opts
	return p
}

// Pool returns the underlying *pgxpool.Pool.
func (p *Pool) Pool() *pgxpool.Pool { return p.pool }

func (p *Pool) Acquire(ctx context.Context) (reqdb.Conn[Executor], error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{guarded: &guarded{exec: c}, conn: c}, nil
}

func (p *Pool) Begin(ctx context.Context) (reqdb.Tx[Executor], error) {
	t, err := p.pool.BeginTx(ctx, p.txOptions)
	if err != nil {
		return nil, err
	}
	return &tx{guarded: &guarded{exec: t}, tx: t}, nil
}

type conn struct {
	*guarded
	conn *pgxpool.Conn
}

func (c *conn) Executor() Executor { return c.guarded }

func (c *conn) Release() error {
	c.done.Store(true)
	c.conn.Release()
	return nil
}

type tx struct {
	*guarded
	tx pgx.Tx
}

func (t *tx) Executor() Executor { return t.guarded }

func (t *tx) Commit(ctx context.Context) error {
	t.done.Store(true)
	return t.tx.Commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	t.done.Store(true)
	return t.tx.Rollback(ctx)
}

// NewMiddleware returns a reqdb.Middleware serving handles from pool.
func NewMiddleware(pool *pgxpool.Pool, opts ...reqdb.Option) *reqdb.Middleware[Executor] {
	return reqdb.New[Executor](New(pool), opts...)
}

// Current returns the Executor of the request carried by ctx.
func Current(ctx context.Context) (Executor, error) {
	return reqdb.Current[Executor](ctx)
}

// MustCurrent is Current that panics on error.
func MustCurrent(ctx context.Context) Executor {
	return reqdb.MustCurrent[Executor](ctx)
}

// FromRequest returns the Executor of r.
func FromRequest(r *http.Request) (Executor, error) {
	return reqdb.FromRequest[Executor](r)
}
