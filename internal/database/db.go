// Package database owns the local SQLite file where store call metrics
// are kept. The schema is embedded in the binary and brought up to date
// every time the file is opened.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var schema embed.FS

// busyTimeout bounds how long a writer waits on a lock held by another
// dapur-kita process sharing the same file.
const busyTimeout = 5 * time.Second

// ErrDirtySchema is returned when a previous migration stopped halfway.
var ErrDirtySchema = errors.New("metrics schema is dirty")

// DB is an open metrics database.
type DB struct {
	SQL *sql.DB

	path    string
	version uint
}

// Open migrates and opens the metrics database at path. Missing parent
// directories are created.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metrics directory: %w", err)
	}

	version, err := migrateUp(path)
	if err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection serialises writes from the web and CLI paths.
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), busyTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}

	return &DB{SQL: conn, path: path, version: version}, nil
}

// Path is the file the database was opened from.
func (d *DB) Path() string { return d.path }

// Version is the schema version in effect after Open.
func (d *DB) Version() uint { return d.version }

func (d *DB) Close() error {
	return d.SQL.Close()
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

// migrateUp applies the embedded schema and reports the resulting version.
func migrateUp(path string) (uint, error) {
	src, err := iofs.New(schema, "migrations")
	if err != nil {
		return 0, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+path)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	before, _, _ := m.Version()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, err
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, err
	case dirty:
		return version, fmt.Errorf("%w at version %d", ErrDirtySchema, version)
	}
	if version != before {
		log.Printf("Metrics schema %d -> %d", before, version)
	}
	return version, nil
}
