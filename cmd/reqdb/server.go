package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golly-go/reqdb"
	"github.com/golly-go/reqdb/gormdb"
	"github.com/golly-go/reqdb/middleware"
	"github.com/golly-go/reqdb/pgxdb"
	"github.com/golly-go/reqdb/sqldb"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	driverGormPostgres = "gorm-postgres"
	driverGormSQLite   = "gorm-sqlite"
	driverSQLxSQLite   = "sqlx-sqlite"
	driverSQLxPostgres = "sqlx-postgres"
	driverPGX          = "pgx"
)

type server struct {
	logger   *logrus.Entry
	registry *prometheus.Registry
	store    noteStore
}

func newServer(ctx context.Context, v *viper.Viper, logger *logrus.Entry) (*server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	metrics := reqdb.NewMetrics(appName)
	if err := metrics.Register(registry); err != nil {
		return nil, err
	}

	opts := []reqdb.Option{
		reqdb.WithPolicy(reqdb.MethodPolicy(v.GetStringSlice(appName + ".db.direct_methods")...)),
		reqdb.WithLogger(logger),
		reqdb.WithMetrics(metrics),
		reqdb.WithFinalizeTimeout(v.GetDuration(appName + ".db.finalize_timeout")),
	}
	if v.GetBool(appName + ".db.rollback_on_client_error") {
		opts = append(opts, reqdb.WithClassifier(reqdb.StrictClassifier))
	}

	store, err := openStore(ctx, v.GetString("driver"), dsn(v), logger, opts)
	if err != nil {
		return nil, err
	}

	if err := store.migrate(ctx); err != nil {
		_ = store.close()
		return nil, fmt.Errorf("migrating notes: %w", err)
	}

	return &server{logger: logger, registry: registry, store: store}, nil
}

func openStore(ctx context.Context, driver, dsn string, logger *logrus.Entry, opts []reqdb.Option) (noteStore, error) {
	switch driver {
	case driverGormPostgres, driverGormSQLite:
		if driver == driverGormSQLite && !strings.HasPrefix(dsn, "sqlite:") {
			dsn = "sqlite:" + dsn
		}
		db, err := gormdb.OpenURL(dsn, logger)
		if err != nil {
			return nil, err
		}
		return &gormStore{db: db, mw: gormdb.NewMiddleware(db, opts...)}, nil

	case driverSQLxSQLite:
		db, err := sqldb.Open("sqlite3", dsn)
		if err != nil {
			return nil, err
		}
		return &sqlxStore{db: db, mw: sqldb.NewMiddleware(db, opts...), schema: sqliteSchema}, nil

	case driverSQLxPostgres:
		db, err := sqldb.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		return &sqlxStore{db: db, mw: sqldb.NewMiddleware(db, opts...), schema: postgresSchema}, nil

	case driverPGX:
		pool, err := pgxdb.Open(ctx, pgxdb.Config{DSN: dsn})
		if err != nil {
			return nil, err
		}
		return &pgxStore{pool: pool, mw: pgxdb.NewMiddleware(pool, opts...)}, nil
	}

	return nil, fmt.Errorf("database driver %q not supported", driver)
}

// Handler returns the routes. Only /notes runs with a database handle.
func (s *server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recoverer(s.logger))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", s.handle(s.listNotes))
		r.Post("/", s.handle(s.createNote))
		r.Post("/fail", s.handle(s.createThenFail))
	})

	return r
}

func (s *server) Close() error {
	return s.store.close()
}

func (s *server) handle(fn reqdb.HandlerFunc) http.HandlerFunc {
	wrapped := s.store.wrap(fn)

	return func(w http.ResponseWriter, r *http.Request) {
		err := wrapped(w, r)
		if err == nil || errors.Is(err, reqdb.ErrFinalizationFailed) {
			return
		}
		reqdb.DefaultErrorResponder(w, r, err)
	}
}

type badRequest struct{ msg string }

func (e badRequest) Error() string   { return e.msg }
func (e badRequest) Status() int     { return http.StatusBadRequest }
func (e badRequest) Message() string { return e.msg }

func decodeBody(r *http.Request) (string, error) {
	var in struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return "", badRequest{"invalid JSON body"}
	}
	if strings.TrimSpace(in.Body) == "" {
		return "", badRequest{"body is required"}
	}
	return in.Body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (s *server) createNote(w http.ResponseWriter, r *http.Request) error {
	body, err := decodeBody(r)
	if err != nil {
		return err
	}

	n, err := s.store.create(r, body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, n)
}

func (s *server) listNotes(w http.ResponseWriter, r *http.Request) error {
	notes, err := s.store.list(r)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, notes)
}

// createThenFail writes a note and then fails, so the write is rolled back.
func (s *server) createThenFail(w http.ResponseWriter, r *http.Request) error {
	body, err := decodeBody(r)
	if err != nil {
		return err
	}

	if _, err := s.store.create(r, body); err != nil {
		return err
	}
	return errors.New("failing after write")
}
