package insights

import (
	"context"
	"fmt"

	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

// BuildTimeline returns the event with id and all its descendants, depth
// first. Children keep the start-date-then-id order that
// events.Store.Children guarantees. It fails with ErrEventNotFound for an
// unknown root, ErrCycleDetected when a descendant is its own ancestor and
// ErrTimelineTooDeep past the configured depth.
func (s *Service) BuildTimeline(ctx context.Context, id string) (*TimelineNode, error) {
	onPath := make(map[string]bool)
	return s.buildNode(ctx, id, onPath, 0)
}

func (s *Service) buildNode(ctx context.Context, id string, onPath map[string]bool, depth int) (*TimelineNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if depth >= s.maxDepth {
		return nil, fmt.Errorf("%w: %d levels below root at %s", apperrors.ErrTimelineTooDeep, depth, id)
	}
	if onPath[id] {
		return nil, fmt.Errorf("%w: %s is its own ancestor", apperrors.ErrCycleDetected, id)
	}

	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := s.store.Children(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading children of %s: %w", id, err)
	}

	onPath[id] = true
	defer delete(onPath, id)

	node := &TimelineNode{Event: *e, Children: make([]*TimelineNode, 0, len(children))}
	for _, child := range children {
		sub, err := s.buildNode(ctx, child.EventID, onPath, depth+1)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, sub)
	}
	return node, nil
}
