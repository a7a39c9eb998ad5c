package store

import (
	"context"
	"fmt"

	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/postgres"
)

// postgresSchema creates the events table when it is missing:
//
//	historical_events
//	    event_id         TEXT PRIMARY KEY
//	    start_date       TIMESTAMPTZ
//	    parent_event_id  TEXT (not a foreign key; parents may arrive later)
//	    metadata         JSONB
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS historical_events (
		event_id         TEXT PRIMARY KEY,
		event_name       TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		start_date       TIMESTAMPTZ NOT NULL,
		end_date         TIMESTAMPTZ NOT NULL,
		duration_minutes BIGINT NOT NULL,
		parent_event_id  TEXT,
		research_value   TEXT NOT NULL DEFAULT '',
		metadata         JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS idx_historical_events_parent ON historical_events (parent_event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_historical_events_start ON historical_events (start_date, event_id)`,
}

// NewPostgres returns a Store backed by an open PostgreSQL client. The
// store takes ownership of the client and closes it on Close.
func NewPostgres(ctx context.Context, client *postgres.Client) (*SQLStore, error) {
	for _, stmt := range postgresSchema {
		if _, err := client.DB.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensuring postgres schema: %w", err)
		}
	}
	return newSQLStore(client.DB, postgresDialect, client.Close), nil
}
