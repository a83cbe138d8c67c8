package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golly-go/reqdb"
	"github.com/golly-go/reqdb/gormdb"
	"github.com/golly-go/reqdb/pgxdb"
	"github.com/golly-go/reqdb/sqldb"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

type note struct {
	ID   int64  `json:"id" db:"id" gorm:"primaryKey"`
	Body string `json:"body" db:"body"`
}

// noteStore hides which executor type a driver hands to the handlers.
type noteStore interface {
	migrate(ctx context.Context) error
	wrap(next reqdb.HandlerFunc) reqdb.HandlerFunc
	create(r *http.Request, body string) (note, error)
	list(r *http.Request) ([]note, error)
	close() error
}

type gormStore struct {
	db *gorm.DB
	mw *reqdb.Middleware[*gorm.DB]
}

func (s *gormStore) migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&note{})
}

func (s *gormStore) wrap(next reqdb.HandlerFunc) reqdb.HandlerFunc { return s.mw.Wrap(next) }

func (s *gormStore) create(r *http.Request, body string) (note, error) {
	db, err := gormdb.FromRequest(r)
	if err != nil {
		return note{}, err
	}

	n := note{Body: body}
	if err := db.Create(&n).Error; err != nil {
		return note{}, err
	}
	return n, nil
}

func (s *gormStore) list(r *http.Request) ([]note, error) {
	db, err := gormdb.FromRequest(r)
	if err != nil {
		return nil, err
	}

	notes := []note{}
	if err := db.Order("id").Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}

func (s *gormStore) close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqlxStore struct {
	db     *sqlx.DB
	mw     *reqdb.Middleware[sqldb.Executor]
	schema string
}

const (
	sqliteSchema   = `CREATE TABLE IF NOT EXISTS notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)`
	postgresSchema = `CREATE TABLE IF NOT EXISTS notes (id BIGSERIAL PRIMARY KEY, body TEXT NOT NULL)`
)

func (s *sqlxStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.schema)
	return err
}

func (s *sqlxStore) wrap(next reqdb.HandlerFunc) reqdb.HandlerFunc { return s.mw.Wrap(next) }

func (s *sqlxStore) create(r *http.Request, body string) (note, error) {
	exec, err := sqldb.FromRequest(r)
	if err != nil {
		return note{}, err
	}

	var n note
	if err := exec.GetContext(r.Context(), &n, exec.Rebind(`INSERT INTO notes (body) VALUES (?) RETURNING id, body`), body); err != nil {
		return note{}, err
	}
	return n, nil
}

func (s *sqlxStore) list(r *http.Request) ([]note, error) {
	exec, err := sqldb.FromRequest(r)
	if err != nil {
		return nil, err
	}

	notes := []note{}
	if err := exec.SelectContext(r.Context(), &notes, `SELECT id, body FROM notes ORDER BY id`); err != nil {
		return nil, err
	}
	return notes, nil
}

func (s *sqlxStore) close() error { return s.db.Close() }

type pgxStore struct {
	pool *pgxpool.Pool
	mw   *reqdb.Middleware[pgxdb.Executor]
}

func (s *pgxStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *pgxStore) wrap(next reqdb.HandlerFunc) reqdb.HandlerFunc { return s.mw.Wrap(next) }

func (s *pgxStore) create(r *http.Request, body string) (note, error) {
	exec, err := pgxdb.FromRequest(r)
	if err != nil {
		return note{}, err
	}

	var n note
	if err := exec.QueryRow(r.Context(), `INSERT INTO notes (body) VALUES ($1) RETURNING id, body`, body).Scan(&n.ID, &n.Body); err != nil {
		return note{}, err
	}
	return n, nil
}

func (s *pgxStore) list(r *http.Request) ([]note, error) {
	exec, err := pgxdb.FromRequest(r)
	if err != nil {
		return nil, err
	}

	rows, err := exec.Query(r.Context(), `SELECT id, body FROM notes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[note])
}

func (s *pgxStore) close() error {
	s.pool.Close()
	return nil
}
