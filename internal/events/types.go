// Package events defines the historical event record and the storage
// contract every persistence backend implements.
package events

import (
	"context"
	"time"
)

// Event is one historical event as ingested from a source line.
type Event struct {
	EventID         string    `json:"event_id"`
	EventName       string    `json:"event_name"`
	Description     string    `json:"description"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	DurationMinutes int64     `json:"duration_minutes"`
	ParentEventID   *string   `json:"parent_event_id"`
	ResearchValue   string    `json:"research_value"`
	Metadata        Metadata  `json:"metadata"`
}

// Metadata records where an event came from.
type Metadata struct {
	Line int `json:"line"`
}

// HasParent reports whether the event names a parent.
func (e *Event) HasParent() bool {
	return e.ParentEventID != nil
}

// DurationMinutes returns floor((end - start) / 1 minute). Spans running
// backwards floor toward negative infinity.
func DurationMinutes(start, end time.Time) int64 {
	ms := end.Sub(start).Milliseconds()
	minutes := ms / 60000
	if ms%60000 != 0 && ms < 0 {
		minutes--
	}
	return minutes
}

// Store is the persistence contract the ingestion pipeline and the insight
// queries depend on. Implementations must make InsertIfAbsent atomic per
// event id so concurrent jobs can share a store.
type Store interface {
	// InsertIfAbsent persists e unless an event with the same id exists.
	// It reports whether a row was written.
	InsertIfAbsent(ctx context.Context, e *Event) (bool, error)
	// Get returns the event or an error wrapping ErrEventNotFound.
	Get(ctx context.Context, id string) (*Event, error)
	// Children returns events whose parent is id, ordered by start date
	// then event id. Every backend must honour this order; timelines list
	// children in it.
	Children(ctx context.Context, id string) ([]Event, error)
	// All returns every event ordered by start date then event id.
	All(ctx context.Context) ([]Event, error)
	// InRange returns events with start >= start and end <= end, ordered
	// by start date then event id.
	InRange(ctx context.Context, start, end time.Time) ([]Event, error)
	Search(ctx context.Context, q SearchQuery) ([]Event, error)
	Ping(ctx context.Context) error
	Close() error
}
