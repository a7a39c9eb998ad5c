package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper periodically drops finished jobs older than the retention window
// so the job table does not grow without bound.
type Reaper struct {
	tracker   *Tracker
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewReaper schedules tracker cleanup using a cron spec such as
// "@every 10m" or "0 * * * *".
func NewReaper(t *Tracker, schedule string, retention time.Duration) (*Reaper, error) {
	r := &Reaper{
		tracker:   t,
		retention: retention,
		cron:      cron.New(cron.WithLocation(time.UTC)),
		logger:    slog.Default().With("component", "job-reaper"),
	}
	if _, err := r.cron.AddFunc(schedule, r.RunOnce); err != nil {
		return nil, fmt.Errorf("scheduling job reaper %q: %w", schedule, err)
	}
	return r, nil
}

// RunOnce removes expired jobs immediately.
func (r *Reaper) RunOnce() {
	cutoff := r.tracker.now().Add(-r.retention)
	if removed := r.tracker.Reap(cutoff); removed > 0 {
		r.logger.Info("reaped finished ingestion jobs", "removed", removed, "cutoff", cutoff)
	}
}

func (r *Reaper) Start() {
	r.cron.Start()
	r.logger.Info("job reaper started", "retention", r.retention)
}

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to end.
func (r *Reaper) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
