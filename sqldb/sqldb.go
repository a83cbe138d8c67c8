// Package sqldb serves request handles from a database/sql pool through sqlx.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/golly-go/reqdb"
	"github.com/jmoiron/sqlx"
)

// Executor is what handlers get from Current. It is satisfied by *sqlx.DB,
// *sqlx.Conn and *sqlx.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

var (
	_ Executor = (*sqlx.DB)(nil)
	_ Executor = (*sqlx.Conn)(nil)
	_ Executor = (*sqlx.Tx)(nil)
)

var errFinalized = reqdb.NewError(reqdb.KindInvalidState, "sqldb", reqdb.ErrUseAfterFinalize)

// guarded rejects every call once its handle is finalized.
type guarded struct {
	exec Executor
	done atomic.Bool
}

func (g *guarded) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if g.done.Load() {
		return nil, errFinalized
	}
	return g.exec.ExecContext(ctx, query, args...)
}

func (g *guarded) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if g.done.Load() {
		return nil, errFinalized
	}
	return g.exec.QueryContext(ctx, query, args...)
}

func (g *guarded) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	if g.done.Load() {
		return nil, errFinalized
	}
	return g.exec.QueryxContext(ctx, query, args...)
}

func (g *guarded) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if g.done.Load() {
		return errFinalized
	}
	return g.exec.GetContext(ctx, dest, query, args...)
}

func (g *guarded) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if g.done.Load() {
		return errFinalized
	}
	return g.exec.SelectContext(ctx, dest, query, args...)
}

func (g *guarded) Rebind(query string) string { return g.exec.Rebind(query) }

// Pool adapts a *sqlx.DB to reqdb.Pool.
type Pool struct {
	db        *sqlx.DB
	txOptions *sql.TxOptions
}

var _ reqdb.Pool[Executor] = (*Pool)(nil)

// New returns a Pool drawing from db.
func New(db *sqlx.DB) *Pool {
	return &Pool{db: db}
}

// Open connects with driverName and verifies the connection.
func Open(driverName, dataSourceName string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("sqldb: open %s: %w", driverName, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqldb: ping %s: %w", driverName, err)
	}
	return db, nil
}

// WithTxOptions sets the options transactional handles begin with.
func (p *Pool) WithTxOptions(opts *sql.TxOptions) *Pool {
	p.txOptions = opts
	return p
}

// DB returns the underlying *sqlx.DB.
func (p *Pool) DB() *sqlx.DB { return p.db }

func (p *Pool) Acquire(ctx context.Context) (reqdb.Conn[Executor], error) {
	c, err := p.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{guarded: &guarded{exec: c}, conn: c}, nil
}

func (p *Pool) Begin(ctx context.Context) (reqdb.Tx[Executor], error) {
	c, err := p.db.Connx(ctx)
	if err != nil {
		return nil, err
	}

	// The transaction outlives a cancelled request; the middleware rolls
	// it back itself.
	t, err := c.BeginTxx(context.WithoutCancel(ctx), p.txOptions)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return &tx{guarded: &guarded{exec: t}, tx: t, conn: c}, nil
}

type conn struct {
	*guarded
	conn *sqlx.Conn
}

func (c *conn) Executor() Executor { return c.guarded }

func (c *conn) Release() error {
	c.done.Store(true)
	return c.conn.Close()
}

type tx struct {
	*guarded
	tx   *sqlx.Tx
	conn *sqlx.Conn
}

func (t *tx) Executor() Executor { return t.guarded }

func (t *tx) Commit(ctx context.Context) error {
	t.done.Store(true)
	return t.close(t.tx.Commit())
}

func (t *tx) Rollback(ctx context.Context) error {
	t.done.Store(true)
	return t.close(t.tx.Rollback())
}

func (t *tx) close(err error) error {
	if cerr := t.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewMiddleware returns a reqdb.Middleware serving handles from db.
func NewMiddleware(db *sqlx.DB, opts ...reqdb.Option) *reqdb.Middleware[Executor] {
	return reqdb.New[Executor](New(db), opts...)
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
