package middleware

import (
	"errors"
	"net/http"
	"runtime"

	"github.com/sirupsen/logrus"
)

// Recoverer middleware that adds panic recovering. Handlers below it that
// panic get a 500; the database handle has already been rolled back by the
// time the panic reaches here.
func Recoverer(logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				buf := make([]byte, 1<<16)
				buf = buf[:runtime.Stack(buf, false)]

				logger.WithFields(requestFields(r)).WithFields(logrus.Fields{
					"stack": string(buf),
				}).Errorf("recovered from panic: %v", rec)

				w.WriteHeader(http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
