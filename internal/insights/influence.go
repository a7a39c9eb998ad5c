package insights

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
)

// maxPathFetches bounds concurrent Get calls when materialising a path.
const maxPathFetches = 8

type frontier struct {
	node string
	// path holds the ancestors of node on the way from the start.
	path []string
}

// InfluencePath finds the shortest chain of parent-to-child links leading
// from the event "from" down to the event "to", breadth first over the
// parent adjacency built from the store. It returns nil when "to" is not
// reachable from "from". Every event on a found path is read back from the
// store; one that is missing (from == to naming an unknown id, or a node
// deleted meanwhile) fails with ErrEventNotFound.
func (s *Service) InfluencePath(ctx context.Context, from, to string) (*InfluencePath, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	childrenOf := make(map[string][]string)
	for _, e := range all {
		if e.ParentEventID == nil {
			continue
		}
		childrenOf[*e.ParentEventID] = append(childrenOf[*e.ParentEventID], e.EventID)
	}

	ids := shortestPath(childrenOf, from, to)
	if ids == nil {
		return nil, nil
	}

	path, err := s.fetchPath(ctx, ids)
	if err != nil {
		return nil, err
	}
	result := &InfluencePath{From: from, To: to, Path: path}
	for _, e := range path {
		result.TotalDuration += e.DurationMinutes
	}
	return result, nil
}

// shortestPath runs the breadth-first search. Nodes are marked visited when
// dequeued; a node may be queued more than once before that happens.
func shortestPath(childrenOf map[string][]string, from, to string) []string {
	queue := []frontier{{node: from}}
	visited := make(map[string]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.node == to {
			return append(slices.Clip(cur.path), cur.node)
		}
		visited[cur.node] = true
		for _, child := range childrenOf[cur.node] {
			if visited[child] {
				continue
			}
			queue = append(queue, frontier{
				node: child,
				path: append(slices.Clip(cur.path), cur.node),
			})
		}
	}
	return nil
}

func (s *Service) fetchPath(ctx context.Context, ids []string) ([]events.Event, error) {
	path := make([]events.Event, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPathFetches)
	for i, id := range ids {
		g.Go(func() error {
			e, err := s.store.Get(gctx, id)
			if err != nil {
				return fmt.Errorf("loading path node %s: %w", id, err)
			}
			path[i] = *e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return path, nil
}
