// Package sqlite provides SQLite backed implementations of the client and
// scope stores. Clients and scopes are configuration aggregates, so they are
// persisted as JSON documents keyed by their identifier.
package sqlite

import (
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	id       TEXT PRIMARY KEY,
	document TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scopes (
	name     TEXT PRIMARY KEY,
	document TEXT NOT NULL
);
`

// DB wraps the SQLite connection shared by the stores.
type DB struct {
	db *sql.DB
}

// Open opens (and creates, if needed) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlite.Open] opening database")
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent store access.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		return nil, errors.Wrap(err, "[sqlite.Open] setting pragmas")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "[sqlite.Open] creating schema")
	}

	return &DB{db: db}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}
