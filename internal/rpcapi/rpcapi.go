// Package rpcapi exposes event lookups, insight queries and path ingestion
// over the JSON-over-TCP RPC server for chronoctl.
package rpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/validator"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/insights"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/proto"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/rpc"
)

type service struct {
	store    events.Store
	insights insights.Querier
	tracker  *tracker.Tracker
}

// Register installs every method on s.
func Register(s *rpc.Server, store events.Store, q insights.Querier, t *tracker.Tracker) {
	svc := &service{store: store, insights: q, tracker: t}
	s.Register(proto.MethodEventsGet, handle(svc.getEvent))
	s.Register(proto.MethodEventsTimeline, handle(svc.timeline))
	s.Register(proto.MethodInsightsOverlaps, handle(svc.overlaps))
	s.Register(proto.MethodInsightsGaps, handle(svc.gaps))
	s.Register(proto.MethodInsightsInfluence, handle(svc.influence))
	s.Register(proto.MethodIngestionIngestPath, handle(svc.ingestPath))
	s.Register(proto.MethodIngestionStatus, handle(svc.status))
}

// handle decodes the request into Req before calling fn.
func handle[Req any](fn func(context.Context, Req) (any, error)) rpc.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req Req
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding params: %v", err)
			}
		}
		return fn(ctx, req)
	}
}

func required(name, value string) error {
	if value == "" {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s is required", name)
	}
	return nil
}

func (s *service) getEvent(ctx context.Context, req proto.GetEventRequest) (any, error) {
	if err := required("id", req.ID); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, req.ID)
}

func (s *service) timeline(ctx context.Context, req proto.TimelineRequest) (any, error) {
	if err := required("id", req.ID); err != nil {
		return nil, err
	}
	return s.insights.BuildTimeline(ctx, req.ID)
}

func (s *service) overlaps(ctx context.Context, _ proto.OverlapsRequest) (any, error) {
	overlaps, err := s.insights.FindOverlaps(ctx)
	if err != nil {
		return nil, err
	}
	if overlaps == nil {
		overlaps = []insights.Overlap{}
	}
	return overlaps, nil
}

func (s *service) gaps(ctx context.Context, req proto.GapsRequest) (any, error) {
	if req.Start.IsZero() || req.End.IsZero() {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "start and end are required")
	}
	gap, err := s.insights.LargestGap(ctx, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	resp := struct {
		LargestGap *insights.Gap `json:"largestGap"`
		Message    string        `json:"message"`
	}{LargestGap: gap, Message: "No significant temporal gaps found."}
	if gap != nil {
		resp.Message = "Largest temporal gap identified."
	}
	return resp, nil
}

func (s *service) influence(ctx context.Context, req proto.InfluenceRequest) (any, error) {
	if err := required("from", req.From); err != nil {
		return nil, err
	}
	if err := required("to", req.To); err != nil {
		return nil, err
	}
	path, err := s.insights.InfluencePath(ctx, req.From, req.To)
	if err != nil && !errors.Is(err, apperrors.ErrEventNotFound) {
		return nil, err
	}
	if path == nil {
		return nil, apperrors.New(apperrors.ErrEventNotFound, http.StatusNotFound, "No influence path found.")
	}
	return path, nil
}

func (s *service) ingestPath(ctx context.Context, req proto.IngestPathRequest) (any, error) {
	path, err := validator.IngestPath(req.FilePath)
	if err != nil {
		return nil, err
	}
	id, err := s.tracker.Start(ctx, tracker.FileSource{Path: path})
	if errors.Is(err, tracker.ErrClosed) {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return proto.IngestResponse{
		Status:  "Ingestion initiated",
		JobID:   id,
		Message: fmt.Sprintf("Check /api/events/ingestion-status/%s for updates.", id),
	}, nil
}

func (s *service) status(ctx context.Context, req proto.JobStatusRequest) (any, error) {
	if err := required("jobId", req.JobID); err != nil {
		return nil, err
	}
	if !req.Wait {
		return s.tracker.Status(req.JobID)
	}
	job, err := s.tracker.Wait(ctx, req.JobID)
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	// The call deadline passed first; report progress so far.
	return job, nil
}
