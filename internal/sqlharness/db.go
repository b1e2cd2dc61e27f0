// Package sqlharness bootstraps SQL databases for tests.
//
// The default backend is SQLite (in-memory or file), giving each test an
// isolated relational database with no external process. The same harness
// runs against any registered database/sql driver via OpenDriver, so suites
// that must hit a real server (Postgres, SQL Server) reuse the schema and
// seed machinery unchanged.
//
// Schema files and seed fixtures are applied idempotently: the harness
// records what it applied in a qakit_meta table and refuses to re-apply a
// file whose content changed under the same name.
package sqlharness

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const metaSchema = `
CREATE TABLE IF NOT EXISTS qakit_meta (
	name       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL,
	kind       TEXT NOT NULL
)`

// DB wraps a database/sql handle with harness bookkeeping.
type DB struct {
	db     *sql.DB
	driver string
}

// Open creates or opens a SQLite database at the given path.
// Use ":memory:" for a throwaway in-memory database.
//
// The connection is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout
//   - foreign key enforcement
//
// SQLite supports a single writer, so the pool is capped at one connection.
// That also keeps ":memory:" working: each new connection would otherwise
// see a fresh empty database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	h := &DB{db: db, driver: "sqlite3"}
	if err := h.ensureMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// OpenDriver opens the harness over an arbitrary database/sql driver.
// No SQLite pragmas are applied; pool sizing is left at driver defaults.
// The caller's schema files must be valid for the target dialect.
func OpenDriver(driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	h := &DB{db: db, driver: driver}
	if err := h.ensureMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// ForT returns a fresh in-memory database scoped to the test.
// The database is closed automatically when the test finishes.
func ForT(t *testing.T) *DB {
	t.Helper()
	h, err := Open(":memory:")
	if err != nil {
		t.Fatalf("sqlharness: open in-memory database: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// SQL returns the underlying *sql.DB for direct access.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Driver returns the database/sql driver name the harness was opened with.
func (d *DB) Driver() string {
	return d.driver
}

// Exec executes a statement with parameterized arguments.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return nil
}

// Query executes a query and returns the resulting rows.
// Callers are responsible for closing the returned rows.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

// ApplySchema executes the SQL file at path, once.
//
// The file is recorded in qakit_meta under its base name. Re-applying the
// identical file is a no-op; applying a different file under the same name
// is an error, since the database no longer matches what the fixture says.
func (d *DB) ApplySchema(ctx context.Context, path string) error {
	return d.applyFile(ctx, path, "schema", func(content string) error {
		if _, err := d.db.ExecContext(ctx, content); err != nil {
			return fmt.Errorf("failed to execute schema %s: %w", path, err)
		}
		return nil
	})
}

// applyFile runs apply for the file content unless the identical file was
// already applied.
func (d *DB) applyFile(ctx context.Context, path, kind string, apply func(content string) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s file: %w", kind, err)
	}

	name := filepath.Base(path)
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	var existing string
	err = d.db.QueryRowContext(ctx,
		"SELECT checksum FROM qakit_meta WHERE name = ?", name).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		// Not yet applied.
	case err != nil:
		return fmt.Errorf("failed to query qakit_meta: %w", err)
	case existing == checksum:
		return nil // Identical file already applied.
	default:
		return fmt.Errorf("%s %q already applied with different content", kind, name)
	}

	if err := apply(string(data)); err != nil {
		return err
	}

	if _, err := d.db.ExecContext(ctx,
		"INSERT INTO qakit_meta (name, checksum, kind) VALUES (?, ?, ?)",
		name, checksum, kind); err != nil {
		return fmt.Errorf("failed to record %s in qakit_meta: %w", kind, err)
	}
	return nil
}

func (d *DB) ensureMeta() error {
	if _, err := d.db.Exec(metaSchema); err != nil {
		return fmt.Errorf("failed to create qakit_meta table: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}
