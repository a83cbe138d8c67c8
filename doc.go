/*
Package reqdb hands every HTTP request exactly one database handle and
finalizes it when the request completes.

# Overview

Mutating requests get a transaction that commits when the handler succeeds
and rolls back when it fails. Read-only requests get a plain pooled
connection and skip the transaction overhead. Handlers use one accessor for
both.

By default GET and HEAD requests are direct; every other method is
transactional.

# Usage

	pool := gormdb.New(db)
	mw := reqdb.New[*gorm.DB](pool)

	r := chi.NewRouter()
	r.Use(mw.Handler)
	r.Post("/notes", func(w http.ResponseWriter, r *http.Request) {
		db := reqdb.MustCurrent[*gorm.DB](r.Context())
		db.Create(&Note{Body: "hello"})
	})

# Components

  - Policy: picks Direct or Transactional per request.
  - Classifier: decides whether the outcome commits or rolls back.
  - Handle: the transaction or connection owned by one request.
  - Middleware: acquires, stores and finalizes the handle.
  - Current: the accessor handlers call.

Adapters for gorm, database/sql (via sqlx) and pgx live in the gormdb,
sqldb and pgxdb packages.
*/
package reqdb
