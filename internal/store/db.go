package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	// ErrClientNotFound is returned when a client doesn't exist
	ErrClientNotFound = errors.New("client not found")

	// ErrUserNotFound is returned when a user doesn't exist
	ErrUserNotFound = errors.New("user not found")

	// ErrActivityNotFound is returned when an activity doesn't exist
	ErrActivityNotFound = errors.New("activity not found")

	// ErrEmailTaken is returned when another user already owns the email
	ErrEmailTaken = errors.New("email already registered")

	// ErrAthleteIDTaken is returned when a generated athlete id collides
	ErrAthleteIDTaken = errors.New("athlete id already in use")

	// ErrSlugTaken is returned when another client already owns the slug
	ErrSlugTaken = errors.New("client slug already in use")

	// ErrTokenConflict is returned when the stored credential envelope changed
	// between read and write
	ErrTokenConflict = errors.New("credential envelope changed concurrently")

	// ErrAthleteLinked is returned when a provider athlete is already linked
	// to a different user
	ErrAthleteLinked = errors.New("provider athlete linked to another user")
)

// DB wraps the SQLite connection pool
type DB struct {
	*sql.DB
}

// Open opens the SQLite database at path, creating it if necessary,
// and applies migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &DB{sqlDB}, nil
}

// OpenInMemory opens a private in-memory database with migrations applied.
// The pool is pinned to a single connection so every query sees the same
// database.
func OpenInMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &DB{sqlDB}, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure on
// the given table column, e.g. "users.email".
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
