package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golly-go/reqdb"
	"github.com/sirupsen/logrus"
)

// RequestLogger middleware that adds request logging
func RequestLogger(logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writer, ok := w.(reqdb.WrapResponseWriter)
			if !ok {
				writer = reqdb.NewWrapResponseWriter(w)
			}

			defer func(t time.Time) {
				elapsed := time.Since(t)

				status := writer.Status()
				if status == 0 {
					status = http.StatusOK
				}

				entry := logger.WithFields(requestFields(r)).WithFields(logrus.Fields{
					"http.status_code":      status,
					"network.bytes_written": writer.BytesWritten(),
					"duration":              elapsed.Nanoseconds(),
				})

				str := fmt.Sprintf("Completed request [%v] [%d %s]", elapsed, status, http.StatusText(status))

				if status < 400 {
					entry.Info(str)
				} else if status < 500 {
					entry.Warn(str)
				} else {
					entry.Error(str)
				}
			}(time.Now())

			next.ServeHTTP(writer, r)
		})
	}
}

func requestFields(r *http.Request) logrus.Fields {
	return logrus.Fields{
		"http.method":           r.Method,
		"http.url_details.path": r.URL.Path,
		"http.request_id":       r.Header.Get("X-Request-Id"),
	}
}
