package reqdb

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"sync"
)

// WrapResponseWriter proxies an http.ResponseWriter and records what the
// handler wrote.
type WrapResponseWriter interface {
	http.ResponseWriter
	Status() int
	BytesWritten() int
	Unwrap() http.ResponseWriter
}

// responseWriter records status and size, and optionally holds the whole
// response back until the connection handle is finalized.
type responseWriter struct {
	http.ResponseWriter

	wroteHeader bool
	code        int
	bytes       int

	// deferred is true while output is held in buf.
	deferred bool
	sent     bool
	buf      bytes.Buffer
}

var writerPool = sync.Pool{
	New: func() any {
		return &responseWriter{}
	},
}

// NewWrapResponseWriter wraps w without deferring output.
func NewWrapResponseWriter(w http.ResponseWriter) WrapResponseWriter {
	return newResponseWriter(w, false)
}

func newResponseWriter(w http.ResponseWriter, deferred bool) *responseWriter {
	rw := writerPool.Get().(*responseWriter)
	rw.reset(w, deferred)
	return rw
}

func freeResponseWriter(rw *responseWriter) {
	rw.reset(nil, false)
	writerPool.Put(rw)
}

func (rw *responseWriter) reset(w http.ResponseWriter, deferred bool) {
	rw.ResponseWriter = w
	rw.wroteHeader = false
	rw.code = 0
	rw.bytes = 0
	rw.deferred = deferred
	rw.sent = false
	rw.buf.Reset()
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader || (code >= 100 && code <= 199 && code != http.StatusSwitchingProtocols) {
		return
	}

	rw.code = code
	rw.wroteHeader = true

	if !rw.deferred {
		rw.sent = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	if rw.deferred {
		n, err := rw.buf.Write(p)
		rw.bytes += n
		return n, err
	}

	n, err := rw.ResponseWriter.Write(p)
	rw.bytes += n
	return n, err
}

func (rw *responseWriter) Status() int                 { return rw.code }
func (rw *responseWriter) BytesWritten() int           { return rw.bytes }
func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// headerSent reports whether the status line has reached the client.
func (rw *responseWriter) headerSent() bool { return rw.sent }

// release sends anything still held back and stops deferring.
func (rw *responseWriter) release() error {
	rw.deferred = false

	if rw.wroteHeader && !rw.sent {
		rw.sent = true
		rw.ResponseWriter.WriteHeader(rw.code)
	}

	if rw.buf.Len() == 0 {
		return nil
	}

	_, err := rw.ResponseWriter.Write(rw.buf.Bytes())
	rw.buf.Reset()
	return err
}

// discard drops held output, used when the handler panicked.
func (rw *responseWriter) discard() {
	rw.deferred = false
	rw.buf.Reset()
}

// Flush implements http.Flusher. Streaming handlers give up deferral: the
// client sees their output before the handle is finalized.
func (rw *responseWriter) Flush() {
	f, ok := rw.ResponseWriter.(http.Flusher)
	if !ok {
		return
	}

	// Flushing before any header sends an implicit 200.
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.deferred {
		_ = rw.release()
	}
	rw.sent = true
	f.Flush()
}

// Hijack implements http.Hijacker
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		rw.deferred = false
		rw.sent = true
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// ReadFrom implements io.ReaderFrom
func (rw *responseWriter) ReadFrom(r io.Reader) (int64, error) {
	if rf, ok := rw.ResponseWriter.(io.ReaderFrom); ok && !rw.deferred {
		if !rw.wroteHeader {
			rw.WriteHeader(http.StatusOK)
		}
		n, err := rf.ReadFrom(r)
		rw.bytes += int(n)
		return n, err
	}
	return io.Copy(writerOnly{rw}, r)
}

// writerOnly hides ReadFrom so io.Copy does not recurse.
type writerOnly struct{ io.Writer }

// Compile time checks
var (
	_ http.Flusher       = &responseWriter{}
	_ http.Hijacker      = &responseWriter{}
	_ io.ReaderFrom      = &responseWriter{}
	_ WrapResponseWriter = &responseWriter{}
)
