// Package sqlstore is an object backend keeping every object in a single
// SQLite database file. It is interchangeable with the loose-file backend:
// ids are the same content hashes.
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/odvcencio/jig/pkg/object"
)

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	hash TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	data BLOB NOT NULL
) WITHOUT ROWID;
`

// Backend stores objects in a SQLite table.
type Backend struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlstore: mkdir: %w", err)
	}
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		schema,
	} {
		if _, err := conn.Exec(stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("sqlstore: init: %w", err)
		}
	}
	return &Backend{conn: conn, path: path}, nil
}

// Path returns the database file.
func (b *Backend) Path() string { return b.path }

// Has reports whether an object is stored.
func (b *Backend) Has(h object.Hash) bool {
	var one int
	err := b.conn.QueryRow(`SELECT 1 FROM objects WHERE hash = ?`, string(h)).Scan(&one)
	return err == nil
}

// Write stores an object. Writing an existing object is a no-op.
func (b *Backend) Write(objType object.ObjectType, data []byte) (object.Hash, error) {
	h := object.HashObject(objType, data)
	if data == nil {
		data = []byte{}
	}
	_, err := b.conn.Exec(
		`INSERT OR IGNORE INTO objects (hash, type, data) VALUES (?, ?, ?)`,
		string(h), string(objType), data,
	)
	if err != nil {
		return "", fmt.Errorf("sqlstore: write %s: %w", h, err)
	}
	return h, nil
}

// Read returns the type and content of an object.
func (b *Backend) Read(h object.Hash) (object.ObjectType, []byte, error) {
	var objType string
	var data []byte
	err := b.conn.QueryRow(`SELECT type, data FROM objects WHERE hash = ?`, string(h)).Scan(&objType, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, fmt.Errorf("object read %s: %w", h, object.ErrNotFound)
		}
		return "", nil, fmt.Errorf("sqlstore: read %s: %w", h, err)
	}
	if got := object.HashObject(object.ObjectType(objType), data); got != h {
		return "", nil, fmt.Errorf("sqlstore: read %s: content hashes to %s", h, got)
	}
	return object.ObjectType(objType), data, nil
}

// Count returns the number of stored objects.
func (b *Backend) Count() (int, error) {
	var n int
	if err := b.conn.QueryRow(`SELECT COUNT(*) FROM objects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: count: %w", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database.
func (b *Backend) Close() error {
	if b.conn == nil {
		return nil
	}
	_, _ = b.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := b.conn.Close()
	b.conn = nil
	if err != nil {
		return fmt.Errorf("sqlstore: close: %w", err)
	}
	return nil
}
