package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// BuildSQLiteDSN turns a file path into a modernc DSN with a busy timeout so
// concurrent writers wait instead of failing with SQLITE_BUSY.
func BuildSQLiteDSN(path string) string {
	if path == MemoryDSN {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// NewSQLite opens (creating when needed) a SQLite database through the pure Go
// modernc driver. The parent directory is created first.
func NewSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	// Each connection to :memory: is its own database; a file has one writer anyway.
	return open(ctx, "sqlite", BuildSQLiteDSN(path), pool{maxOpen: 1}, system("sqlite"))
}
