// Package sqlite is the Store implementation backed by
// github.com/ncruces/go-sqlite3, a pure-Go SQLite driver requiring no
// cgo. Queries are raw database/sql (no ORM), matching the corpus's
// storage idiom: one file per entity, sentinel-error wrapping at the
// bottom of every query, explicit context.Context threading.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is the sqlite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (and, if necessary, creates) the SQLite database at path,
// retrying the initial open with exponential backoff since the file may
// momentarily be locked by a concurrent migration or another process
// starting up concurrently.
func Open(ctx context.Context, path string) (*Store, error) {
	var db *sql.DB
	op := func() error {
		var err error
		db, err = sql.Open("sqlite3", path)
		if err != nil {
			return err
		}
		return db.PingContext(ctx)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1) // single-writer SQLite; matches the single connection-pool resource model
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func nowUTC() time.Time { return time.Now().UTC() }
