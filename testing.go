package reqdb

import "context"

// WithHandle stores h in a fresh request scope derived from ctx. Requests
// carrying that context skip acquisition in the Middleware and use h, which
// lets tests run handlers inside a transaction they roll back themselves.
//
// The caller keeps ownership of h's transaction or connection.
func WithHandle[E any](ctx context.Context, h *Handle[E]) (context.Context, error) {
	if scopeFrom[E](ctx) != nil {
		return ctx, invalidState("put", errAlreadyStored)
	}

	ctx, s := withScope[E](ctx)
	if err := s.put(h); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// NewTxHandle wraps an open transaction in an active Handle.
func NewTxHandle[E any](tx Tx[E]) *Handle[E] { return newTxHandle(tx) }

// NewConnHandle wraps a pooled connection in an active Handle.
func NewConnHandle[E any](conn Conn[E]) *Handle[E] { return newConnHandle(conn) }
