package events

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// sortColumns whitelists the columns a search may order by.
var sortColumns = map[string]bool{
	"event_id":         true,
	"event_name":       true,
	"start_date":       true,
	"end_date":         true,
	"duration_minutes": true,
}

// SearchQuery filters, orders and pages events.
type SearchQuery struct {
	// Name matches event names case-insensitively as a substring.
	Name string
	// StartAfter keeps events whose start date is strictly after it.
	StartAfter *time.Time
	// EndBefore keeps events whose end date is strictly before it.
	EndBefore *time.Time
	SortBy    string
	SortDesc  bool
	Page      int
	Limit     int
}

// Normalize fills defaults and rejects out-of-range values.
func (q *SearchQuery) Normalize() error {
	if q.SortBy == "" {
		q.SortBy = "start_date"
	}
	if !sortColumns[q.SortBy] {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unsupported sortBy %q", q.SortBy)
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "page must be >= 1")
	}
	if q.Limit == 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit < 1 || q.Limit > MaxSearchLimit {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be between 1 and %d", MaxSearchLimit)
	}
	return nil
}

// Offset is the number of rows skipped before the requested page.
func (q SearchQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// OrderClause renders the ORDER BY clause for SQL backends. SortBy must have
// passed Normalize.
func (q SearchQuery) OrderClause() string {
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, event_id %s", q.SortBy, dir, dir)
}

// Matches applies the filters to a single event. Backends without a query
// engine use it directly.
func (q SearchQuery) Matches(e *Event) bool {
	if q.Name != "" && !strings.Contains(strings.ToLower(e.EventName), strings.ToLower(q.Name)) {
		return false
	}
	if q.StartAfter != nil && !e.StartDate.After(*q.StartAfter) {
		return false
	}
	if q.EndBefore != nil && !e.EndDate.Before(*q.EndBefore) {
		return false
	}
	return true
}

// Less orders a before b by the query's sort column, breaking ties by id.
func (q SearchQuery) Less(a, b *Event) bool {
	c := compareBy(q.SortBy, a, b)
	if c == 0 {
		c = strings.Compare(a.EventID, b.EventID)
	}
	if q.SortDesc {
		return c > 0
	}
	return c < 0
}

func compareBy(column string, a, b *Event) int {
	switch column {
	case "event_id":
		return strings.Compare(a.EventID, b.EventID)
	case "event_name":
		return strings.Compare(a.EventName, b.EventName)
	case "end_date":
		return a.EndDate.Compare(b.EndDate)
	case "duration_minutes":
		switch {
		case a.DurationMinutes < b.DurationMinutes:
			return -1
		case a.DurationMinutes > b.DurationMinutes:
			return 1
		}
		return 0
	default:
		return a.StartDate.Compare(b.StartDate)
	}
}

// ChronologicalLess is the canonical store ordering: start date, then id.
func ChronologicalLess(a, b *Event) bool {
	if c := a.StartDate.Compare(b.StartDate); c != 0 {
		return c < 0
	}
	return a.EventID < b.EventID
}
