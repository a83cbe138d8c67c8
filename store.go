package reqdb

import (
	"context"
	"net/http"
	"sync"
)

// storeKey is instantiated per executor type so handles for different
// databases never collide on one request.
type storeKey[E any] struct{}

// scope holds the single handle of one request.
type scope[E any] struct {
	mu     sync.Mutex
	handle *Handle[E]
}

func (s *scope[E]) put(h *Handle[E]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return invalidState("put", errAlreadyStored)
	}
	s.handle = h
	return nil
}

func (s *scope[E]) get() (*Handle[E], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return nil, invalidState("get", errNoScope)
	}
	return s.handle, nil
}

func withScope[E any](parent context.Context) (context.Context, *scope[E]) {
	s := &scope[E]{}
	return context.WithValue(parent, storeKey[E]{}, s), s
}

func scopeFrom[E any](ctx context.Context) *scope[E] {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(storeKey[E]{}).(*scope[E])
	return s
}

// CurrentHandle returns the handle stored for the request carried by ctx.
func CurrentHandle[E any](ctx context.Context) (*Handle[E], error) {
	s := scopeFrom[E](ctx)
	if s == nil {
		return nil, invalidState("current", errNoScope)
	}
	return s.get()
}

// Current returns the executor of the request carried by ctx. It fails with
// ErrInvalidState outside a request handled by the Middleware and once the
// handle has been finalized.
func Current[E any](ctx context.Context) (E, error) {
	h, err := CurrentHandle[E](ctx)
	if err != nil {
		var zero E
		return zero, err
	}
	return h.Executor()
}

// MustCurrent is Current that panics on error.
func MustCurrent[E any](ctx context.Context) E {
	e, err := Current[E](ctx)
	if err != nil {
		panic(err)
	}
	return e
}

// FromRequest is Current for the request's context.
func FromRequest[E any](r *http.Request) (E, error) {
	return Current[E](r.Context())
}
