package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, driver string) http.Handler {
	t.Helper()

	v := viper.New()
	setDefaults(v)
	v.Set("driver", driver)
	v.Set("dsn", filepath.Join(t.TempDir(), "notes.sqlite"))

	logger, _ := test.NewNullLogger()
	srv, err := newServer(context.Background(), v, logrus.NewEntry(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	return srv.Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestServer_Notes(t *testing.T) {
	for _, driver := range []string{driverGormSQLite, driverSQLxSQLite} {
		t.Run(driver, func(t *testing.T) {
			h := newTestServer(t, driver)

			rec := do(h, http.MethodPost, "/notes", `{"body":"first"}`)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			var created note
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
			assert.Equal(t, "first", created.Body)
			assert.NotZero(t, created.ID)

			rec = do(h, http.MethodPost, "/notes/fail", `{"body":"rolled back"}`)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Contains(t, rec.Body.String(), "failing after write")

			rec = do(h, http.MethodPost, "/notes", `{"body":"  "}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			rec = do(h, http.MethodGet, "/notes", "")
			require.Equal(t, http.StatusOK, rec.Code)

			var notes []note
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notes))
			require.Len(t, notes, 1)
			assert.Equal(t, "first", notes[0].Body)

			rec = do(h, http.MethodGet, "/metrics", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), `reqdb_db_handle_finalizations_total{action="commit",mode="transactional",result="ok"} 1`)
			assert.Contains(t, rec.Body.String(), `reqdb_db_handle_finalizations_total{action="rollback",mode="transactional",result="ok"} 2`)
			assert.Contains(t, rec.Body.String(), `reqdb_db_handle_finalizations_total{action="release",mode="direct",result="ok"} 1`)
		})
	}
}

func TestServer_UnsupportedDriver(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("driver", "oracle")

	logger, _ := test.NewNullLogger()
	_, err := newServer(context.Background(), v, logrus.NewEntry(logger))
	assert.ErrorContains(t, err, `"oracle" not supported`)
}

func TestRootCommand(t *testing.T) {
	root := newRootCommand()

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())

	for _, flag := range []string{"bind", "driver", "dsn"} {
		assert.NotNil(t, serve.Flags().Lookup(flag), flag)
	}
}

func TestDSN_PrefersDatabaseURL(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	assert.Equal(t, "reqdb.sqlite", dsn(v))

	v.Set("DATABASE_URL", "postgres://app@db/notes")
	assert.Equal(t, "postgres://app@db/notes", dsn(v))
}
