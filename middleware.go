package reqdb

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultFinalizeTimeout bounds commit, rollback and release once the
// handler is done.
const DefaultFinalizeTimeout = 30 * time.Second

// DefaultErrorHeader is the response header carrying a finalization failure
// when the response was still held back.
const DefaultErrorHeader = "X-Reqdb-Finalize-Error"

// HandlerFunc is an http handler that reports failure by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

type options struct {
	policy          Policy
	classifier      Classifier
	logger          *logrus.Entry
	metrics         *Metrics
	respond         ErrorResponder
	deferResponse   bool
	finalizeTimeout time.Duration
	errorHeader     string
	onFinalizeError func(r *http.Request, err error)
}

// Option configures a Middleware.
type Option func(*options)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithClassifier replaces DefaultClassifier.
func WithClassifier(c Classifier) Option {
	return func(o *options) { o.classifier = c }
}

func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithErrorResponder sets how Handler answers requests that failed before
// the handler ran.
func WithErrorResponder(fn ErrorResponder) Option {
	return func(o *options) { o.respond = fn }
}

// WithDeferredResponse controls whether the response is held back until the
// handle is finalized. It is on by default.
func WithDeferredResponse(on bool) Option {
	return func(o *options) { o.deferResponse = on }
}

// WithFinalizeTimeout bounds finalization; zero disables the bound.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(o *options) { o.finalizeTimeout = d }
}

// WithErrorHeader renames the finalization failure header; an empty name
// disables it.
func WithErrorHeader(name string) Option {
	return func(o *options) { o.errorHeader = name }
}

// OnFinalizeError registers a hook called for every failed finalization.
func OnFinalizeError(fn func(r *http.Request, err error)) Option {
	return func(o *options) { o.onFinalizeError = fn }
}

// Middleware gives every request one handle from pool and finalizes it when
// the handler returns.
type Middleware[E any] struct {
	options
	pool Pool[E]
}

// New returns a Middleware drawing from pool.
func New[E any](pool Pool[E], opts ...Option) *Middleware[E] {
	m := &Middleware[E]{
		pool: pool,
		options: options{
			policy:          DefaultPolicy,
			classifier:      DefaultClassifier,
			respond:         DefaultErrorResponder,
			deferResponse:   true,
			finalizeTimeout: DefaultFinalizeTimeout,
			errorHeader:     DefaultErrorHeader,
		},
	}

	for _, opt := range opts {
		opt(&m.options)
	}

	if m.logger == nil {
		m.logger = NewLogger()
	}
	if m.classifier == nil {
		m.classifier = DefaultClassifier
	}
	if m.respond == nil {
		m.respond = DefaultErrorResponder
	}
	return m
}

// Handler adapts the middleware to net/http. The outcome is taken from the
// response status and from panics; acquisition failures are answered by the
// ErrorResponder.
func (m *Middleware[E]) Handler(next http.Handler) http.Handler {
	wrapped := m.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		next.ServeHTTP(w, r)
		return nil
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := wrapped(w, r)
		if err == nil || errors.Is(err, ErrFinalizationFailed) {
			return
		}
		m.respond(w, r, err)
	})
}

// Wrap runs next with a handle stored in its request context.
//
// The handler's error is returned unchanged. When the handler succeeded but
// finalization failed, the finalization error is returned instead. Requests
// whose context already carries a handle run next directly.
func (m *Middleware[E]) Wrap(next HandlerFunc) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) (err error) {
		if scopeFrom[E](r.Context()) != nil {
			return next(w, r)
		}

		h, err := m.acquire(r)
		if err != nil {
			m.logger.WithFields(requestLogFields(r)).WithError(err).Warn("could not acquire database handle")
			return err
		}

		ctx, s := withScope[E](r.Context())
		if err := s.put(h); err != nil {
			m.finalize(r, h, false)
			return err
		}

		rw := newResponseWriter(w, m.deferResponse)
		req := r.WithContext(ctx)

		panicked := true
		defer func() {
			success := !panicked && ctx.Err() == nil && m.classifier(rw.Status(), err)

			ferr := m.finalize(req, h, success)

			if panicked {
				rw.discard()
				freeResponseWriter(rw)
				return
			}

			if ferr != nil {
				if m.errorHeader != "" && !rw.headerSent() {
					rw.Header().Set(m.errorHeader, string(KindFinalizationFailed))
				}
				if err == nil {
					err = ferr
				}
			}

			if werr := rw.release(); werr != nil {
				m.logger.WithFields(requestLogFields(req)).WithError(werr).Debug("writing deferred response")
			}
			freeResponseWriter(rw)
		}()

		err = next(rw, req)
		panicked = false
		return err
	}
}

func (m *Middleware[E]) acquire(r *http.Request) (*Handle[E], error) {
	mode := Decide(m.policy, r)
	start := time.Now()

	var (
		h   *Handle[E]
		err error
	)

	switch mode {
	case Transactional:
		var tx Tx[E]
		if tx, err = m.pool.Begin(r.Context()); err == nil {
			h = newTxHandle(tx)
		}
	default:
		var conn Conn[E]
		if conn, err = m.pool.Acquire(r.Context()); err == nil {
			h = newConnHandle(conn)
		}
	}

	m.metrics.acquired(mode, err, time.Since(start))

	if err != nil {
		return nil, NewError(KindAcquisitionFailed, "acquire "+mode.String(), err)
	}
	return h, nil
}

// finalize ends h on a context that survives request cancellation, so a
// cancelled request still rolls back.
func (m *Middleware[E]) finalize(r *http.Request, h *Handle[E], success bool) error {
	ctx := context.WithoutCancel(r.Context())
	if m.finalizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.finalizeTimeout)
		defer cancel()
	}

	action, err := h.finish(ctx, success)
	m.metrics.finalized(h.Mode(), action, err)

	logger := m.logger.WithFields(requestLogFields(r)).WithFields(handleLogFields(h)).WithField("db.action", action)
	if err != nil {
		logger.WithError(err).Error("finalizing database handle failed")
		if m.onFinalizeError != nil {
			m.onFinalizeError(r, err)
		}
		return err
	}

	logger.Debug("finalized database handle")
	return nil
}
