// Package ledger keeps an append-only SQLite record of published releases.
// A release, once recorded, is never modified or removed; publishing a
// newer version only marks the previous one as superseded.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotInitialized is returned when the ledger schema has not been created.
	ErrNotInitialized = errors.New("ledger not initialized: run 'tapkeeper publish' first")

	// ErrImmutable is returned when a published version would change content.
	ErrImmutable = errors.New("published release is immutable")

	// ErrNotNewer is returned when a version does not advance the package.
	ErrNotNewer = errors.New("version is not newer than the latest release")

	// ErrNotFound is returned when a package has no releases.
	ErrNotFound = errors.New("no releases recorded")
)

// Ledger provides SQLite operations for the release record.
type Ledger struct {
	db *sql.DB
}

// New opens the ledger at dbPath.
// Use ":memory:" for in-memory databases (useful for testing).
func New(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // one writer at a time
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// CreateSchema creates the tables and indexes if they do not exist.
func (l *Ledger) CreateSchema() error {
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// wrap maps a missing-table failure to ErrNotInitialized.
func wrap(err error, format string, args ...any) error {
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return ErrNotInitialized
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
