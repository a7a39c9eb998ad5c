// Package insights answers the analytical queries over stored events:
// hierarchical timelines, pairwise overlaps, the largest idle gap inside a
// window and the shortest descendant path between two events.
//
// Every query reads through events.Store and never writes.
package insights

import (
	"context"
	"log/slog"
	"time"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
)

const DefaultMaxTimelineDepth = 10000

// TimelineNode is an event together with its descendants.
type TimelineNode struct {
	events.Event
	Children []*TimelineNode `json:"children"`
}

// Overlap is a pair of events whose spans intersect.
type Overlap struct {
	Pair                   [2]events.Event `json:"overlappingEventPairs"`
	OverlapDurationMinutes int64           `json:"overlap_duration_minutes"`
}

// Gap is the idle interval between two consecutive events.
type Gap struct {
	StartOfGap      time.Time    `json:"startOfGap"`
	EndOfGap        time.Time    `json:"endOfGap"`
	DurationMinutes int64        `json:"durationMinutes"`
	PrecedingEvent  events.Event `json:"precedingEvent"`
	SucceedingEvent events.Event `json:"succeedingEvent"`
}

// InfluencePath is the shortest chain of parent-to-child links from one
// event to another.
type InfluencePath struct {
	From string `json:"from"`
	To   string `json:"to"`
	// TotalDuration sums duration_minutes over every event on the path,
	// including the starting event.
	TotalDuration int64          `json:"total_duration"`
	Path          []events.Event `json:"path"`
}

// Service runs the insight queries against a store.
type Service struct {
	store    events.Store
	maxDepth int
	logger   *slog.Logger
}

// New returns a Service. A non-positive maxDepth uses
// DefaultMaxTimelineDepth.
func New(store events.Store, maxDepth int) *Service {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTimelineDepth
	}
	return &Service{
		store:    store,
		maxDepth: maxDepth,
		logger:   slog.Default().With("component", "insights"),
	}
}

// Querier is the read API shared by Service and its cached decorator.
type Querier interface {
	BuildTimeline(ctx context.Context, id string) (*TimelineNode, error)
	FindOverlaps(ctx context.Context) ([]Overlap, error)
	LargestGap(ctx context.Context, start, end time.Time) (*Gap, error)
	InfluencePath(ctx context.Context, from, to string) (*InfluencePath, error)
}

var _ Querier = (*Service)(nil)
