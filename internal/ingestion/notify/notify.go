// Package notify fans finished ingestion jobs out to the rest of the
// system. Locally it drops the insight cache; with Kafka enabled it also
// publishes a job notification so other replicas sharing the store do the
// same.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/kafka"
)

// Invalidator drops derived data after the event set changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Publisher is the producer surface used for job notifications.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Recorder observes every finished job, local or remote.
type Recorder interface {
	Record(msg JobFinished)
}

// JobFinished is the payload written to the ingestion jobs topic.
type JobFinished struct {
	Origin         string         `json:"origin"`
	JobID          string         `json:"jobId"`
	Status         tracker.Status `json:"status"`
	TotalLines     int            `json:"totalLines"`
	ProcessedLines int            `json:"processedLines"`
	ErrorLines     int            `json:"errorLines"`
	InsertedEvents int            `json:"insertedEvents"`
	FailureReason  string         `json:"failureReason,omitempty"`
	DurationMs     int64          `json:"durationMs"`
	FinishedAt     time.Time      `json:"finishedAt"`
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithRecorder feeds every finished job to r.
func WithRecorder(r Recorder) Option {
	return func(n *Notifier) { n.recorder = r }
}

// Notifier connects a tracker to the cache and to Kafka. Either side may be
// nil.
type Notifier struct {
	instance    string
	invalidator Invalidator
	publisher   Publisher
	recorder    Recorder
	logger      *slog.Logger
}

func New(inv Invalidator, pub Publisher, opts ...Option) *Notifier {
	n := &Notifier{
		instance:    uuid.NewString(),
		invalidator: inv,
		publisher:   pub,
		logger:      slog.Default().With("component", "ingest-notify"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Instance identifies this process in published notifications.
func (n *Notifier) Instance() string { return n.instance }

// JobFinished is a tracker.FinishFunc.
func (n *Notifier) JobFinished(ctx context.Context, job tracker.Job) {
	if job.InsertedEvents > 0 && n.invalidator != nil {
		if err := n.invalidator.Invalidate(ctx); err != nil {
			n.logger.Warn("local invalidation failed", "job_id", job.JobID, "error", err)
		}
	}
	msg := n.message(job)
	if n.recorder != nil {
		n.recorder.Record(msg)
	}
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, kafka.Event{
		Key:     job.JobID,
		Value:   msg,
		Headers: map[string]string{"origin": n.instance, "status": string(job.Status)},
	}); err != nil {
		n.logger.Warn("job notification not published", "job_id", job.JobID, "error", err)
	}
}

func (n *Notifier) message(job tracker.Job) JobFinished {
	finished := time.Now().UTC()
	if job.EndTime != nil {
		finished = *job.EndTime
	}
	return JobFinished{
		Origin:         n.instance,
		JobID:          job.JobID,
		Status:         job.Status,
		TotalLines:     job.TotalLines,
		ProcessedLines: job.ProcessedLines,
		ErrorLines:     job.ErrorLines,
		InsertedEvents: job.InsertedEvents,
		FailureReason:  job.FailureReason,
		DurationMs:     finished.Sub(job.StartTime).Milliseconds(),
		FinishedAt:     finished,
	}
}

// HandleMessage is a kafka.MessageHandler for the jobs topic. Notifications
// from this instance are skipped because JobFinished already handled them.
func (n *Notifier) HandleMessage(ctx context.Context, _ []byte, value []byte) error {
	msg, err := kafka.DecodeJSON[JobFinished](value)
	if err != nil {
		// Poison messages are dropped so the partition keeps moving.
		n.logger.Error("discarding undecodable job notification", "error", err)
		return nil
	}
	if msg.Origin == n.instance {
		return nil
	}
	if n.recorder != nil {
		n.recorder.Record(msg)
	}
	if msg.InsertedEvents == 0 || n.invalidator == nil {
		return nil
	}
	if err := n.invalidator.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidating after job %s: %w", msg.JobID, err)
	}
	n.logger.Info("cache invalidated by remote job", "job_id", msg.JobID, "origin", msg.Origin)
	return nil
}
