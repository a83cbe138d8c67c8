package reqdb

import "context"

// Pool is the connection pool the middleware draws from. E is the executor
// type query code runs against, for example *gorm.DB or a pgx executor.
//
// Implementations must be safe for concurrent use; every request calls
// Acquire or Begin from its own goroutine.
type Pool[E any] interface {
	// Acquire checks a plain connection out of the pool.
	Acquire(ctx context.Context) (Conn[E], error)
	// Begin checks a connection out of the pool and opens a transaction on it.
	Begin(ctx context.Context) (Tx[E], error)
}

// Conn is a pooled connection held for one request.
type Conn[E any] interface {
	Executor() E
	// Release returns the connection to the pool. After Release the executor
	// must no longer reach the database.
	Release() error
}

// Tx is an open transaction held for one request. After Commit or Rollback
// the executor must no longer reach the database, and the underlying
// connection is back in the pool.
type Tx[E any] interface {
	Executor() E
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
