// Package db opens the appliance database and applies the schema.
// SQLite in WAL mode; every store in the core shares one *DB.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// DB wraps the shared sql.DB handle.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies pragmas.
// Use ":memory:" for tests.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// modernc sqlite serializes access per connection; a single connection
	// keeps in-memory databases consistent across goroutines too.
	sdb.SetMaxOpenConns(1)
	if err := sdb.Ping(); err != nil {
		sdb.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return &DB{DB: sdb}, nil
}

// Migrate applies the schema. Idempotent.
func (d *DB) Migrate() error {
	_, err := d.Exec(schema)
	return errors.Wrap(err, "migrate schema")
}

// InTx runs fn inside a transaction, committing on nil error.
func (d *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// NullTime converts a nullable unix-seconds column to *time.Time.
func NullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

// TimeValue converts *time.Time to a nullable unix-seconds column value.
func TimeValue(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
