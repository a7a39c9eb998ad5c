package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/kafka"
)

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return c.err
}

type recordingPublisher struct {
	events []kafka.Event
}

func (r *recordingPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	r.events = append(r.events, events...)
	return nil
}

func TestJobFinishedInvalidatesAndPublishes(t *testing.T) {
	inv := &countingInvalidator{}
	pub := &recordingPublisher{}
	n := New(inv, pub)

	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n.JobFinished(context.Background(), tracker.Job{
		JobID:          "ingest-job-1",
		Status:         tracker.StatusCompleted,
		InsertedEvents: 4,
		EndTime:        &end,
	})

	if inv.calls != 1 {
		t.Errorf("expected one invalidation, got %d", inv.calls)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one notification, got %d", len(pub.events))
	}
	msg := pub.events[0].Value.(JobFinished)
	if pub.events[0].Key != "ingest-job-1" || msg.Origin != n.Instance() || !msg.FinishedAt.Equal(end) {
		t.Errorf("unexpected notification: %+v", msg)
	}
	if pub.events[0].Headers["origin"] != n.Instance() {
		t.Errorf("origin header missing: %v", pub.events[0].Headers)
	}
}

func TestJobWithoutInsertsSkipsInvalidation(t *testing.T) {
	inv := &countingInvalidator{}
	n := New(inv, nil)
	n.JobFinished(context.Background(), tracker.Job{JobID: "j", Status: tracker.StatusFailed})
	if inv.calls != 0 {
		t.Errorf("expected no invalidation, got %d", inv.calls)
	}
}

func TestHandleMessage(t *testing.T) {
	inv := &countingInvalidator{}
	n := New(inv, nil)

	encode := func(m JobFinished) []byte {
		b, _ := json.Marshal(m)
		return b
	}

	tests := []struct {
		name    string
		value   []byte
		calls   int
		wantErr bool
	}{
		{"remote job with inserts", encode(JobFinished{Origin: "other", JobID: "a", InsertedEvents: 2}), 1, false},
		{"own job", encode(JobFinished{Origin: n.Instance(), JobID: "b", InsertedEvents: 2}), 0, false},
		{"nothing inserted", encode(JobFinished{Origin: "other", JobID: "c"}), 0, false},
		{"garbage", []byte("{"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv.calls = 0
			err := n.HandleMessage(context.Background(), nil, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if inv.calls != tt.calls {
				t.Errorf("calls = %d, want %d", inv.calls, tt.calls)
			}
		})
	}
}

func TestHandleMessageSurfacesInvalidationFailure(t *testing.T) {
	sentinel := errors.New("redis down")
	n := New(&countingInvalidator{err: sentinel}, nil)
	b, _ := json.Marshal(JobFinished{Origin: "other", JobID: "x", InsertedEvents: 1})
	if err := n.HandleMessage(context.Background(), nil, b); !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

type sliceRecorder struct {
	msgs []JobFinished
}

func (r *sliceRecorder) Record(m JobFinished) { r.msgs = append(r.msgs, m) }

func TestRecorderSeesLocalAndRemoteJobs(t *testing.T) {
	rec := &sliceRecorder{}
	n := New(nil, nil, WithRecorder(rec))

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	n.JobFinished(context.Background(), tracker.Job{
		JobID:          "local",
		Status:         tracker.StatusCompleted,
		TotalLines:     3,
		ProcessedLines: 2,
		ErrorLines:     1,
		StartTime:      start,
		EndTime:        &end,
	})

	own, _ := json.Marshal(JobFinished{Origin: n.Instance(), JobID: "local"})
	remote, _ := json.Marshal(JobFinished{Origin: "other", JobID: "remote", Status: tracker.StatusFailed})
	for _, v := range [][]byte{own, remote} {
		if err := n.HandleMessage(context.Background(), nil, v); err != nil {
			t.Fatal(err)
		}
	}

	if len(rec.msgs) != 2 {
		t.Fatalf("expected local and remote records, got %+v", rec.msgs)
	}
	if got := rec.msgs[0]; got.JobID != "local" || got.DurationMs != 1500 || got.ErrorLines != 1 {
		t.Errorf("local record %+v", got)
	}
	if rec.msgs[1].JobID != "remote" {
		t.Errorf("remote record %+v", rec.msgs[1])
	}
}
