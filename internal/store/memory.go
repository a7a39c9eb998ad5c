package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

// Memory is an in-process Store. It keeps no data across restarts and is
// used for local runs and tests.
type Memory struct {
	mu     sync.RWMutex
	byID   map[string]events.Event
	closed bool
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]events.Event)}
}

func (m *Memory) InsertIfAbsent(ctx context.Context, e *events.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, fmt.Errorf("%w: store closed", apperrors.ErrPersistence)
	}
	if _, ok := m.byID[e.EventID]; ok {
		return false, nil
	}
	m.byID[e.EventID] = cloneEvent(*e)
	return true, nil
}

func (m *Memory) Get(_ context.Context, id string) (*events.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, apperrors.ErrEventNotFound)
	}
	out := cloneEvent(e)
	return &out, nil
}

func (m *Memory) Children(_ context.Context, id string) ([]events.Event, error) {
	return m.filter(func(e *events.Event) bool {
		return e.ParentEventID != nil && *e.ParentEventID == id
	}), nil
}

func (m *Memory) All(_ context.Context) ([]events.Event, error) {
	return m.filter(func(*events.Event) bool { return true }), nil
}

func (m *Memory) InRange(_ context.Context, start, end time.Time) ([]events.Event, error) {
	return m.filter(func(e *events.Event) bool {
		return !e.StartDate.Before(start) && !e.EndDate.After(end)
	}), nil
}

func (m *Memory) Search(_ context.Context, q events.SearchQuery) ([]events.Event, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	matched := m.filter(func(e *events.Event) bool { return q.Matches(e) })
	slices.SortStableFunc(matched, func(a, b events.Event) int {
		switch {
		case q.Less(&a, &b):
			return -1
		case q.Less(&b, &a):
			return 1
		}
		return 0
	})
	off := q.Offset()
	if off >= len(matched) {
		return []events.Event{}, nil
	}
	return matched[off:min(off+q.Limit, len(matched))], nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("memory store closed")
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// filter returns matching events in start date, event id order.
func (m *Memory) filter(keep func(*events.Event) bool) []events.Event {
	m.mu.RLock()
	out := make([]events.Event, 0, len(m.byID))
	for _, e := range m.byID {
		if keep(&e) {
			out = append(out, cloneEvent(e))
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b events.Event) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		switch {
		case a.EventID < b.EventID:
			return -1
		case a.EventID > b.EventID:
			return 1
		}
		return 0
	})
	return out
}

func cloneEvent(e events.Event) events.Event {
	if e.ParentEventID != nil {
		p := *e.ParentEventID
		e.ParentEventID = &p
	}
	return e
}
