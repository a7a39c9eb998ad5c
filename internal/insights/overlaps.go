package insights

import (
	"context"
	"fmt"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
)

// FindOverlaps compares every pair of stored events once and reports the
// pairs whose spans intersect. Touching spans (one ends exactly when the
// other starts) do not overlap. Pairs keep the store's ordering: for i < j
// the pair is (all[i], all[j]).
func (s *Service) FindOverlaps(ctx context.Context) ([]Overlap, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}

	overlaps := make([]Overlap, 0)
	for i := 0; i < len(all); i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		a := all[i]
		for j := i + 1; j < len(all); j++ {
			b := all[j]
			if !(a.StartDate.Before(b.EndDate) && b.StartDate.Before(a.EndDate)) {
				continue
			}
			start := a.StartDate
			if b.StartDate.After(start) {
				start = b.StartDate
			}
			end := a.EndDate
			if b.EndDate.Before(end) {
				end = b.EndDate
			}
			overlaps = append(overlaps, Overlap{
				Pair:                   [2]events.Event{a, b},
				OverlapDurationMinutes: events.DurationMinutes(start, end),
			})
		}
	}
	s.logger.Debug("overlap scan finished", "events", len(all), "overlaps", len(overlaps))
	return overlaps, nil
}
