// Package analytics aggregates finished ingestion jobs into running
// statistics. Jobs from other replicas arrive through the job notification
// topic, so with Kafka enabled the figures cover the whole deployment.
package analytics

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/notify"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
)

const maxSamples = 10000

type AggregatedStats struct {
	TotalJobs      int64          `json:"total_jobs"`
	CompletedJobs  int64          `json:"completed_jobs"`
	FailedJobs     int64          `json:"failed_jobs"`
	TotalLines     int64          `json:"total_lines"`
	ProcessedLines int64          `json:"processed_lines"`
	ErrorLines     int64          `json:"error_lines"`
	InsertedEvents int64          `json:"inserted_events"`
	AvgDurationMs  float64        `json:"avg_duration_ms"`
	P50DurationMs  int64          `json:"p50_duration_ms"`
	P95DurationMs  int64          `json:"p95_duration_ms"`
	P99DurationMs  int64          `json:"p99_duration_ms"`
	JobsPerHour    float64        `json:"jobs_per_hour"`
	TopFailures    []ReasonCount  `json:"top_failures"`
	ByInstance     map[string]int `json:"jobs_by_instance"`
	LastJobAt      *time.Time     `json:"last_job_at,omitempty"`
}

type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// Aggregator implements notify.Recorder.
type Aggregator struct {
	mu         sync.RWMutex
	stats      AggregatedStats
	durations  []int64
	failures   map[string]int64
	byInstance map[string]int
	seen       map[string]struct{}
	startTime  time.Time
	now        func() time.Time
}

var _ notify.Recorder = (*Aggregator)(nil)

func NewAggregator() *Aggregator {
	return &Aggregator{
		durations:  make([]int64, 0, 1024),
		failures:   make(map[string]int64),
		byInstance: make(map[string]int),
		seen:       make(map[string]struct{}),
		startTime:  time.Now(),
		now:        time.Now,
	}
}

// Record adds one finished job. A job id already recorded is ignored, so
// redelivered notifications do not double count.
func (a *Aggregator) Record(msg notify.JobFinished) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.seen[msg.JobID]; dup {
		return
	}
	a.seen[msg.JobID] = struct{}{}

	s := &a.stats
	s.TotalJobs++
	switch msg.Status {
	case tracker.StatusCompleted:
		s.CompletedJobs++
	case tracker.StatusFailed:
		s.FailedJobs++
		if msg.FailureReason != "" {
			a.failures[msg.FailureReason]++
		}
	}
	s.TotalLines += int64(msg.TotalLines)
	s.ProcessedLines += int64(msg.ProcessedLines)
	s.ErrorLines += int64(msg.ErrorLines)
	s.InsertedEvents += int64(msg.InsertedEvents)
	a.byInstance[msg.Origin]++

	// Keep a bounded window of the most recent durations for percentiles.
	if len(a.durations) == maxSamples {
		a.durations = slices.Delete(a.durations, 0, 1)
	}
	a.durations = append(a.durations, msg.DurationMs)

	if s.LastJobAt == nil || msg.FinishedAt.After(*s.LastJobAt) {
		t := msg.FinishedAt
		s.LastJobAt = &t
	}
}

// Stats returns a snapshot of the running figures.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	if stats.LastJobAt != nil {
		t := *stats.LastJobAt
		stats.LastJobAt = &t
	}
	stats.ByInstance = make(map[string]int, len(a.byInstance))
	for k, v := range a.byInstance {
		stats.ByInstance[k] = v
	}

	if len(a.durations) > 0 {
		sorted := slices.Clone(a.durations)
		slices.Sort(sorted)
		var sum int64
		for _, d := range sorted {
			sum += d
		}
		stats.AvgDurationMs = float64(sum) / float64(len(sorted))
		stats.P50DurationMs = percentile(sorted, 50)
		stats.P95DurationMs = percentile(sorted, 95)
		stats.P99DurationMs = percentile(sorted, 99)
	}
	stats.TopFailures = topN(a.failures, 10)
	if elapsed := a.now().Sub(a.startTime).Hours(); elapsed > 0 {
		stats.JobsPerHour = float64(stats.TotalJobs) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []ReasonCount {
	result := make([]ReasonCount, 0, len(counts))
	for reason, count := range counts {
		result = append(result, ReasonCount{Reason: reason, Count: count})
	}
	slices.SortFunc(result, func(x, y ReasonCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Reason, y.Reason)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
