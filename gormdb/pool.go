// Package gormdb serves request handles backed by gorm.
//
// Every handle pins one connection of the underlying database/sql pool into
// a fresh session, so every statement of the request runs on the same
// connection. Transactional handles begin their transaction on that
// connection.
package gormdb

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/golly-go/reqdb"
	"gorm.io/gorm"
)

// errFinalized is returned by any statement issued through a session whose
// handle has been finalized.
var errFinalized = reqdb.NewError(reqdb.KindInvalidState, "gormdb", reqdb.ErrUseAfterFinalize)

// guardedPool is installed as the session's ConnPool. Sessions and chains
// derived from it share the pool, so they all fail once done is set.
type guardedPool struct {
	pool gorm.ConnPool
	done *atomic.Bool
}

func (g *guardedPool) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if g.done.Load() {
		return nil, errFinalized
	}
	return g.pool.PrepareContext(ctx, query)
}

func (g *guardedPool) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if g.done.Load() {
		return nil, errFinalized
	}
	return g.pool.ExecContext(ctx, query, args...)
}

func (g *guardedPool) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if g.done.Load() {
		return nil, errFinalized
	}
	return g.pool.QueryContext(ctx, query, args...)
}

// QueryRowContext cannot carry errFinalized in a *sql.Row. After finalize
// the row reports the closed connection or finished transaction instead.
func (g *guardedPool) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return g.pool.QueryRowContext(ctx, query, args...)
}

// connGuard wraps a pinned *sql.Conn. Transactions a handler begins on it
// are guarded by the same flag.
type connGuard struct {
	guardedPool
	conn *sql.Conn
}

var _ gorm.ConnPoolBeginner = (*connGuard)(nil)

func (g *connGuard) BeginTx(ctx context.Context, opts *sql.TxOptions) (gorm.ConnPool, error) {
	if g.done.Load() {
		return nil, errFinalized
	}

	tx, err := g.conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return newTxGuard(tx, g.done), nil
}

// txGuard wraps a *sql.Tx. It satisfies gorm.TxCommitter so gorm uses
// savepoints for nested transactions.
type txGuard struct {
	guardedPool
	tx *sql.Tx
}

var _ gorm.Tx = (*txGuard)(nil)

func newTxGuard(tx *sql.Tx, done *atomic.Bool) *txGuard {
	return &txGuard{guardedPool: guardedPool{pool: tx, done: done}, tx: tx}
}

func (g *txGuard) Commit() error {
	if g.done.Load() {
		return errFinalized
	}
	return g.tx.Commit()
}

func (g *txGuard) Rollback() error {
	if g.done.Load() {
		return errFinalized
	}
	return g.tx.Rollback()
}

func (g *txGuard) StmtContext(ctx context.Context, stmt *sql.Stmt) *sql.Stmt {
	return g.tx.StmtContext(ctx, stmt)
}

// Pool adapts a *gorm.DB to reqdb.Pool.
type Pool struct {
	db        *gorm.DB
	txOptions *sql.TxOptions
}

var _ reqdb.Pool[*gorm.DB] = (*Pool)(nil)

// New returns a Pool drawing from db.
func New(db *gorm.DB) *Pool {
	return &Pool{db: db}
}

// WithTxOptions sets the options transactional handles begin with.
func (p *Pool) WithTxOptions(opts *sql.TxOptions) *Pool {
	p.txOptions = opts
	return p
}

// DB returns the pool's root *gorm.DB.
func (p *Pool) DB() *gorm.DB { return p.db }

func (p *Pool) conn(ctx context.Context) (*sql.Conn, error) {
	sqlDB, err := p.db.DB()
	if err != nil {
		return nil, fmt.Errorf("gormdb: underlying pool: %w", err)
	}
	return sqlDB.Conn(ctx)
}

// session returns a fresh session bound to ctx that runs on pool.
func (p *Pool) session(ctx context.Context, pool gorm.ConnPool) *gorm.DB {
	// Session clones the statement when a context is given, so the
	// pool is only visible to this session and its descendants.
	session := p.db.Session(&gorm.Session{NewDB: true, Context: ctx})
	session.Statement.ConnPool = pool
	return session
}

func (p *Pool) Acquire(ctx context.Context) (reqdb.Conn[*gorm.DB], error) {
	conn, err := p.conn(ctx)
	if err != nil {
		return nil, err
	}

	guard := &connGuard{guardedPool: guardedPool{pool: conn, done: new(atomic.Bool)}, conn: conn}
	return &pinnedConn{db: p.session(ctx, guard), guard: guard, conn: conn}, nil
}

func (p *Pool) Begin(ctx context.Context) (reqdb.Tx[*gorm.DB], error) {
	conn, err := p.conn(ctx)
	if err != nil {
		return nil, err
	}

	// The transaction outlives a cancelled request; the middleware rolls
	// it back itself.
	tx, err := conn.BeginTx(context.WithoutCancel(ctx), p.txOptions)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	guard := newTxGuard(tx, new(atomic.Bool))
	return &transaction{db: p.session(ctx, guard), guard: guard, conn: conn}, nil
}

type pinnedConn struct {
	db    *gorm.DB
	guard *connGuard
	conn  *sql.Conn
}

func (c *pinnedConn) Executor() *gorm.DB { return c.db }

func (c *pinnedConn) Release() error {
	c.guard.done.Store(true)
	return c.conn.Close()
}

type transaction struct {
	db    *gorm.DB
	guard *txGuard
	conn  *sql.Conn
}

func (t *transaction) Executor() *gorm.DB { return t.db }

func (t *transaction) Commit(ctx context.Context) error {
	t.guard.done.Store(true)
	return t.close(t.guard.tx.Commit())
}

func (t *transaction) Rollback(ctx context.Context) error {
	t.guard.done.Store(true)
	return t.close(t.guard.tx.Rollback())
}

func (t *transaction) close(err error) error {
	if cerr := t.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewMiddleware returns a reqdb.Middleware serving handles from db.
func NewMiddleware(db *gorm.DB, opts ...reqdb.Option) *reqdb.Middleware[*gorm.DB] {
	return reqdb.New[*gorm.DB](New(db), opts...)
}

// Current returns the *gorm.DB of the request carried by ctx.
func Current(ctx context.Context) (*gorm.DB, error) {
	return reqdb.Current[*gorm.DB](ctx)
}

// MustCurrent is Current that panics on error.
func MustCurrent(ctx context.Context) *gorm.DB {
	return reqdb.MustCurrent[*gorm.DB](ctx)
}

// FromRequest returns the *gorm.DB of r.
func FromRequest(r *http.Request) (*gorm.DB, error) {
	return reqdb.FromRequest[*gorm.DB](r)
}
