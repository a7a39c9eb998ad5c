// Package store provides the PostgreSQL, SQLite and in-memory
// implementations of events.Store.
package store

import (
	"context"
	"fmt"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/config"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/postgres"
)

var (
	_ events.Store = (*SQLStore)(nil)
	_ events.Store = (*Memory)(nil)
)

// Open builds the Store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (events.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s, err := NewPostgres(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return s, nil
	case "sqlite":
		return NewSQLite(ctx, cfg.SQLite.Path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
