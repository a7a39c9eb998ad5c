package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLite opens (creating if needed) a SQLite database at path and
// migrates it. Timestamps are stored as fixed-width UTC TEXT.
func NewSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." && !isMemoryDSN(path) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent ingestion jobs.
	db.SetMaxOpenConns(1)

	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return newSQLStore(db, sqliteDialect, db.Close), nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS historical_events (
			event_id         TEXT PRIMARY KEY,
			event_name       TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			start_date       TEXT NOT NULL,
			end_date         TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			parent_event_id  TEXT,
			research_value   TEXT NOT NULL DEFAULT '',
			metadata         TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_historical_events_parent ON historical_events(parent_event_id);`,
		`CREATE INDEX IF NOT EXISTS idx_historical_events_start ON historical_events(start_date, event_id);`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func isMemoryDSN(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file:")
}
