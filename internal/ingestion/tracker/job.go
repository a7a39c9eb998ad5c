package tracker

import (
	"slices"
	"sync"
	"time"
)

// Status is the lifecycle state of an ingestion job.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is a point-in-time snapshot of an ingestion job. Callers never see
// the live record.
type Job struct {
	JobID          string     `json:"jobId"`
	Status         Status     `json:"status"`
	Source         string     `json:"source,omitempty"`
	TotalLines     int        `json:"totalLines"`
	ProcessedLines int        `json:"processedLines"`
	ErrorLines     int        `json:"errorLines"`
	Errors         []string   `json:"errors"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	FailureReason  string     `json:"failureReason,omitempty"`
	// InsertedEvents counts processed lines that wrote a new event, as
	// opposed to lines whose event id was already stored.
	InsertedEvents int `json:"insertedEvents"`
}

// job is the live record owned by the tracker.
type job struct {
	mu    sync.RWMutex
	state Job
	done  chan struct{}
}

func newJob(id, source string, now time.Time) *job {
	return &job{
		state: Job{
			JobID:     id,
			Status:    StatusProcessing,
			Source:    source,
			Errors:    make([]string, 0),
			StartTime: now,
		},
		done: make(chan struct{}),
	}
}

func (j *job) snapshot() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := j.state
	s.Errors = slices.Clone(j.state.Errors)
	if j.state.EndTime != nil {
		end := *j.state.EndTime
		s.EndTime = &end
	}
	return s
}

func (j *job) update(fn func(s *Job)) {
	j.mu.Lock()
	fn(&j.state)
	j.mu.Unlock()
}

// finish moves the job to a terminal status. It reports false when the job
// had already finished.
func (j *job) finish(status Status, reason string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Status.Terminal() {
		return false
	}
	j.state.Status = status
	j.state.FailureReason = reason
	j.state.EndTime = &now
	return true
}
