package reqdb

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const (
	actionCommit   = "commit"
	actionRollback = "rollback"
	actionRelease  = "release"
)

type handleState uint8

const (
	stateActive handleState = iota
	stateFinalized
)

// Handle is the database resource owned by one request. It holds either a
// transaction or a plain connection, never both, and moves from active to
// finalized exactly once.
//
// Handlers only read the executor. Commit, rollback and release are driven
// by the Middleware. A Handle is not safe to share with goroutines spawned
// by the handler.
type Handle[E any] struct {
	id   uuid.UUID
	mode Mode
	tx   Tx[E]
	conn Conn[E]

	mu    sync.Mutex
	state handleState
}

func newTxHandle[E any](tx Tx[E]) *Handle[E] {
	return &Handle[E]{id: uuid.New(), mode: Transactional, tx: tx}
}

func newConnHandle[E any](conn Conn[E]) *Handle[E] {
	return &Handle[E]{id: uuid.New(), mode: Direct, conn: conn}
}

func (h *Handle[E]) ID() string { return h.id.String() }
func (h *Handle[E]) Mode() Mode { return h.mode }

// Finalized reports whether the handle has been committed, rolled back or
// released.
func (h *Handle[E]) Finalized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateFinalized
}

// Executor returns the query executor while the handle is active.
func (h *Handle[E]) Executor() (E, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero E
	if h.state == stateFinalized {
		return zero, invalidState("executor", ErrUseAfterFinalize)
	}

	if h.mode == Transactional {
		return h.tx.Executor(), nil
	}
	return h.conn.Executor(), nil
}

// MustExecutor is Executor for callers that treat a finalized handle as a bug.
func (h *Handle[E]) MustExecutor() E {
	e, err := h.Executor()
	if err != nil {
		panic(err)
	}
	return e
}

// commit ends a transactional handle. A failed commit still finalizes it.
func (h *Handle[E]) commit(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateFinalized {
		return invalidState(actionCommit, ErrUseAfterFinalize)
	}
	if h.mode != Transactional {
		return invalidState(actionCommit, errNotTransactional)
	}

	h.state = stateFinalized
	if err := h.tx.Commit(ctx); err != nil {
		return NewError(KindFinalizationFailed, actionCommit, err)
	}
	return nil
}

// rollback ends a transactional handle. Rollback is attempted once; a
// failure is reported and the handle stays finalized.
func (h *Handle[E]) rollback(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateFinalized {
		return invalidState(actionRollback, ErrUseAfterFinalize)
	}
	if h.mode != Transactional {
		return invalidState(actionRollback, errNotTransactional)
	}

	h.state = stateFinalized
	if err := h.tx.Rollback(ctx); err != nil {
		return NewError(KindFinalizationFailed, actionRollback, err)
	}
	return nil
}

// release returns a direct handle's connection to the pool.
func (h *Handle[E]) release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateFinalized {
		return invalidState(actionRelease, ErrUseAfterFinalize)
	}
	if h.mode != Direct {
		return invalidState(actionRelease, errNotDirect)
	}

	h.state = stateFinalized
	if err := h.conn.Release(); err != nil {
		return NewError(KindFinalizationFailed, actionRelease, err)
	}
	return nil
}

// finish picks the transition for the handle's mode and the request outcome.
func (h *Handle[E]) finish(ctx context.Context, success bool) (string, error) {
	switch {
	case h.mode == Direct:
		return actionRelease, h.release()
	case success:
		return actionCommit, h.commit(ctx)
	default:
		return actionRollback, h.rollback(ctx)
	}
}
