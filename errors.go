package reqdb

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind classifies the failures this package produces.
type Kind string

const (
	KindAcquisitionFailed  Kind = "ACQUISITION_FAILED"
	KindInvalidState       Kind = "INVALID_STATE"
	KindFinalizationFailed Kind = "FINALIZATION_FAILED"
)

type HTTPError interface {
	Status() int
	Message() string
}

var (
	// ErrAcquisitionFailed is returned when the pool could not hand out a
	// connection or begin a transaction. The handler is never invoked.
	ErrAcquisitionFailed = &Error{kind: KindAcquisitionFailed, statusCode: http.StatusServiceUnavailable, message: "database connection unavailable"}

	// ErrInvalidState marks programming errors: no handle stored for the
	// request, a handle stored twice, or a handle used after finalization.
	ErrInvalidState = &Error{kind: KindInvalidState, statusCode: http.StatusInternalServerError, message: "invalid connection handle state"}

	// ErrFinalizationFailed wraps commit and rollback failures.
	ErrFinalizationFailed = &Error{kind: KindFinalizationFailed, statusCode: http.StatusInternalServerError, message: "finalizing connection handle failed"}

	// ErrUseAfterFinalize is the cause attached to executors used after their
	// handle was committed, rolled back or released.
	ErrUseAfterFinalize = errors.New("connection handle already finalized")

	errNoScope          = errors.New("no connection handle in request scope")
	errAlreadyStored    = errors.New("connection handle already stored for request")
	errNotTransactional = errors.New("handle is not transactional")
	errNotDirect        = errors.New("handle is transactional")
)

// Error carries a Kind, the operation that failed and an HTTP status.
// Errors compare equal under errors.Is when their kinds match, so callers
// test against the Err* sentinels.
type Error struct {
	kind       Kind
	op         string
	statusCode int
	message    string
	cause      error
}

// NewError returns an error of the given kind. Adapter packages use it to
// report use of an executor after its handle was finalized.
func NewError(kind Kind, op string, cause error) *Error {
	e := &Error{kind: kind, op: op, cause: cause}

	switch kind {
	case KindAcquisitionFailed:
		e.statusCode, e.message = ErrAcquisitionFailed.statusCode, ErrAcquisitionFailed.message
	case KindInvalidState:
		e.statusCode, e.message = ErrInvalidState.statusCode, ErrInvalidState.message
	case KindFinalizationFailed:
		e.statusCode, e.message = ErrFinalizationFailed.statusCode, ErrFinalizationFailed.message
	default:
		e.statusCode = http.StatusInternalServerError
	}
	return e
}

func (e *Error) Kind() Kind      { return e.kind }
func (e *Error) Op() string      { return e.op }
func (e *Error) Status() int     { return e.statusCode }
func (e *Error) Message() string { return e.message }
func (e *Error) Unwrap() error   { return e.cause }

func (e *Error) Error() string {
	msg := e.message
	if msg == "" {
		msg = string(e.kind)
	}
	if e.op != "" {
		msg = e.op + ": " + msg
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.kind == e.kind
}

// StatusOf maps err onto an HTTP status code. Errors implementing HTTPError
// keep their own status, everything else is a 500.
func StatusOf(err error) int {
	var he HTTPError
	if errors.As(err, &he) && he.Status() > 0 {
		return he.Status()
	}
	return http.StatusInternalServerError
}

// ErrorResponder writes err to the client. It is used for failures that
// happen before the handler runs.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// DefaultErrorResponder renders err as a small JSON document.
func DefaultErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	body := map[string]any{"error": err.Error()}

	var re *Error
	if errors.As(err, &re) {
		body["error"] = re.Message()
		body["kind"] = re.Kind()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusOf(err))
	_ = json.NewEncoder(w).Encode(body)
}

func invalidState(op string, cause error) *Error {
	return NewError(KindInvalidState, op, cause)
}
