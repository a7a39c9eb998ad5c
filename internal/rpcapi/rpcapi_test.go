package rpcapi

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/insights"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/store"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/proto"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/rpc"
)

const sample = `eventId|eventName|startDate|endDate|parentId|researchValue|description
root|Founding|2023-01-01T10:00:00Z|2023-01-01T11:00:00Z|NULL|High|root event
child|First Expedition|2023-01-01T10:30:00Z|2023-01-01T12:00:00Z|root|Medium|child event
late|Late Review|2023-01-01T15:00:00Z|2023-01-01T16:00:00Z|NULL|Low|after a gap
`

func setup(t *testing.T) *rpc.Client {
	t.Helper()
	s := store.NewMemory()
	tr := tracker.New(s, tracker.Config{})
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })

	srv := rpc.NewServer(2 * time.Second)
	Register(srv, s, insights.New(s, 0), tr)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.ServeListener(ln) }()
	t.Cleanup(srv.Stop)

	c, err := rpc.Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func call[T any](t *testing.T, c *rpc.Client, method string, req any) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out T
	if err := c.Call(ctx, method, req, &out); err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return out
}

func TestIngestAndQueryOverRPC(t *testing.T) {
	c := setup(t)
	path := filepath.Join(t.TempDir(), "events.txt")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	started := call[proto.IngestResponse](t, c, proto.MethodIngestionIngestPath, proto.IngestPathRequest{FilePath: path})
	if started.JobID == "" || started.Status != "Ingestion initiated" {
		t.Fatalf("unexpected ingest response %+v", started)
	}

	job := call[proto.Job](t, c, proto.MethodIngestionStatus, proto.JobStatusRequest{JobID: started.JobID, Wait: true})
	if !job.Terminal() || job.Status != "COMPLETED" || job.ProcessedLines != 3 {
		t.Fatalf("unexpected job %+v", job)
	}

	ev := call[proto.Event](t, c, proto.MethodEventsGet, proto.GetEventRequest{ID: "child"})
	if ev.DurationMinutes != 90 || ev.ParentEventID == nil || *ev.ParentEventID != "root" {
		t.Errorf("unexpected event %+v", ev)
	}

	tree := call[proto.TimelineNode](t, c, proto.MethodEventsTimeline, proto.TimelineRequest{ID: "root"})
	if len(tree.Children) != 1 || tree.Children[0].EventID != "child" {
		t.Errorf("unexpected timeline %+v", tree)
	}

	overlaps := call[[]proto.Overlap](t, c, proto.MethodInsightsOverlaps, proto.OverlapsRequest{})
	if len(overlaps) != 1 || overlaps[0].OverlapDurationMinutes != 30 {
		t.Errorf("unexpected overlaps %+v", overlaps)
	}

	day := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	gaps := call[proto.GapsResponse](t, c, proto.MethodInsightsGaps, proto.GapsRequest{Start: day, End: day.Add(24 * time.Hour)})
	if gaps.LargestGap == nil || gaps.LargestGap.DurationMinutes != 180 {
		t.Errorf("unexpected gaps %+v", gaps)
	}

	path2 := call[proto.InfluencePath](t, c, proto.MethodInsightsInfluence, proto.InfluenceRequest{From: "root", To: "child"})
	if path2.TotalDuration != 150 || len(path2.Path) != 2 {
		t.Errorf("unexpected influence path %+v", path2)
	}
}

func TestRPCErrors(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		method   string
		req      any
		code     int
		notFound bool
	}{
		{"missing event", proto.MethodEventsGet, proto.GetEventRequest{ID: "ghost"}, 404, true},
		{"missing id", proto.MethodEventsGet, proto.GetEventRequest{}, 400, false},
		{"missing timeline", proto.MethodEventsTimeline, proto.TimelineRequest{ID: "ghost"}, 404, true},
		{"no influence path", proto.MethodInsightsInfluence, proto.InfluenceRequest{From: "a", To: "b"}, 404, true},
		{"gaps without window", proto.MethodInsightsGaps, proto.GapsRequest{}, 400, false},
		{"unknown job", proto.MethodIngestionStatus, proto.JobStatusRequest{JobID: "ingest-job-x"}, 404, true},
		{"missing file", proto.MethodIngestionIngestPath, proto.IngestPathRequest{FilePath: "/no/such/file"}, 400, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Call(ctx, tt.method, tt.req, nil)
			var remote *rpc.RemoteError
			if !errors.As(err, &remote) {
				t.Fatalf("expected remote error, got %v", err)
			}
			if remote.Code != tt.code {
				t.Errorf("code = %d, want %d (%s)", remote.Code, tt.code, remote.Message)
			}
			notFound := errors.Is(err, apperrors.ErrEventNotFound) || errors.Is(err, apperrors.ErrJobNotFound)
			if notFound != tt.notFound {
				t.Errorf("not-found match = %v, want %v", notFound, tt.notFound)
			}
		})
	}
}
