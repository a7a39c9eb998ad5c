package insights

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
)

// LargestGap finds the longest idle stretch between consecutive events that
// lie entirely inside [start, end]. Events are walked in start order and
// each gap is measured from an event's end to the next event's start.
//
// Only a strictly positive gap can be reported and ties keep the earliest
// one. It returns nil when fewer than two events qualify or no positive gap
// exists.
func (s *Service) LargestGap(ctx context.Context, start, end time.Time) (*Gap, error) {
	inRange, err := s.store.InRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("loading events in range: %w", err)
	}
	if len(inRange) < 2 {
		return nil, nil
	}
	slices.SortStableFunc(inRange, func(a, b events.Event) int {
		return a.StartDate.Compare(b.StartDate)
	})

	var (
		best    *Gap
		maxSpan time.Duration
	)
	for i := 0; i+1 < len(inRange); i++ {
		cur, next := inRange[i], inRange[i+1]
		span := next.StartDate.Sub(cur.EndDate)
		if span <= maxSpan {
			continue
		}
		maxSpan = span
		best = &Gap{
			StartOfGap:      cur.EndDate,
			EndOfGap:        next.StartDate,
			DurationMinutes: events.DurationMinutes(cur.EndDate, next.StartDate),
			PrecedingEvent:  cur,
			SucceedingEvent: next,
		}
	}
	return best, nil
}
