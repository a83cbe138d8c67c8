package reqdb

import (
	"net/http"
	"os"

	"github.com/golly-go/reqdb/env"
	"github.com/sirupsen/logrus"
)

// NewLogger returns the logger used when none is configured. Output is
// text in development and test, JSON elsewhere; LOG_LEVEL sets the level.
func NewLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	}

	if env.IsDevelopmentOrTest() {
		l.SetFormatter(&logrus.TextFormatter{})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	return logrus.NewEntry(l)
}

func requestLogFields(r *http.Request) logrus.Fields {
	return logrus.Fields{
		"http.method":            r.Method,
		"http.url_details.path":  r.URL.Path,
		"http.url_details.host":  r.Host,
		"http.request_id":        r.Header.Get("X-Request-Id"),
		"network.client.address": r.RemoteAddr,
	}
}

func handleLogFields[E any](h *Handle[E]) logrus.Fields {
	return logrus.Fields{
		"db.handle_id": h.ID(),
		"db.mode":      h.Mode().String(),
	}
}
