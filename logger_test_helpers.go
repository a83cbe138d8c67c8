package reqdb

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestingWriter is an io.Writer that routes log output through testing.TB.Log().
// Output is only displayed if the test fails or -v is used.
type TestingWriter struct {
	t testing.TB
}

// NewTestingWriter creates a new TestingWriter that routes to testing.TB.
func NewTestingWriter(t testing.TB) io.Writer {
	return &TestingWriter{t: t}
}

func (tw *TestingWriter) Write(p []byte) (n int, err error) {
	tw.t.Helper()
	tw.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// NewTestLogger returns a debug level logger writing through t. Pass it to
// WithLogger in handler tests.
func NewTestLogger(t testing.TB) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(NewTestingWriter(t))
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	return logrus.NewEntry(l)
}
