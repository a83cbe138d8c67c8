package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		status    int
		body      string
		wantLevel logrus.Level
		wantCode  int
	}{
		{"ok read", http.MethodGet, 0, "hello", logrus.InfoLevel, http.StatusOK},
		{"created write", http.MethodPost, http.StatusCreated, "", logrus.InfoLevel, http.StatusCreated},
		{"client error", http.MethodPut, http.StatusNotFound, "", logrus.WarnLevel, http.StatusNotFound},
		{"server error", http.MethodHead, http.StatusBadGateway, "", logrus.ErrorLevel, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()

			handler := RequestLogger(logrus.NewEntry(logger))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte(tt.body))
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, "/notes", nil))

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, tt.wantCode, entry.Data["http.status_code"])
			assert.Equal(t, len(tt.body), entry.Data["network.bytes_written"])
			assert.NotContains(t, entry.Data, "db.mode")
			assert.Equal(t, "/notes", entry.Data["http.url_details.path"])
		})
	}
}
