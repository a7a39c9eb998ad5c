// Package tracker runs ingestion jobs in the background and keeps their
// progress in an in-process job table.
//
// Each job reads its source line by line on its own goroutine. The first
// non-blank line is the header; every later non-blank line is parsed and
// stored independently, so one bad line never stops a job. Only failures
// of the source itself (open or read errors) and shutdown end a job FAILED.
package tracker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/parser"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/logger"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/metrics"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/tracing"
)

const (
	JobIDPrefix = "ingest-job-"
	// ReasonCancelled is the failure reason of jobs interrupted by shutdown.
	ReasonCancelled = "cancelled"

	defaultMaxLineBytes = 1 << 20
)

// ErrClosed is returned by Start after Shutdown.
var ErrClosed = errors.New("tracker is shut down")

// FinishFunc observes a job once it reaches a terminal status.
type FinishFunc func(ctx context.Context, job Job)

// Config tunes line handling.
type Config struct {
	MaxLineBytes   int
	StrictEventIDs bool
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithMetrics records line and job counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// OnFinish registers fn to run on the job goroutine after a job finishes
// and before waiters are released.
func OnFinish(fn FinishFunc) Option {
	return func(t *Tracker) { t.onFinish = append(t.onFinish, fn) }
}

// Tracker owns the job table and the goroutines processing jobs.
type Tracker struct {
	store        events.Store
	parser       *parser.Parser
	maxLineBytes int
	metrics      *metrics.Metrics
	onFinish     []FinishFunc
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.RWMutex
	jobs   map[string]*job
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store events.Store, cfg Config, opts ...Option) *Tracker {
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = defaultMaxLineBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		store:        store,
		parser:       parser.New(parser.Options{StrictEventIDs: cfg.StrictEventIDs}),
		maxLineBytes: cfg.MaxLineBytes,
		logger:       slog.Default().With("component", "ingestion-tracker"),
		now:          func() time.Time { return time.Now().UTC() },
		jobs:         make(map[string]*job),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start registers a PROCESSING job for src and processes it in the
// background. The job outlives ctx; it stops early only on Shutdown.
func (t *Tracker) Start(ctx context.Context, src Source) (string, error) {
	id := JobIDPrefix + uuid.New().String()
	j := newJob(id, src.Name(), t.now())

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", ErrClosed
	}
	t.jobs[id] = j
	t.wg.Add(1)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.ActiveIngestionJobs.Inc()
	}
	logger.FromContext(ctx).Info("ingestion job started", "job_id", id, "source", src.Name())

	go t.run(j, src)
	return id, nil
}

// Status returns a snapshot of the job or an error wrapping ErrJobNotFound.
func (t *Tracker) Status(id string) (Job, error) {
	j, ok := t.lookup(id)
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, apperrors.ErrJobNotFound)
	}
	return j.snapshot(), nil
}

// List returns snapshots of every tracked job, newest first.
func (t *Tracker) List() []Job {
	t.mu.RLock()
	live := make([]*job, 0, len(t.jobs))
	for _, j := range t.jobs {
		live = append(live, j)
	}
	t.mu.RUnlock()

	out := make([]Job, 0, len(live))
	for _, j := range live {
		out = append(out, j.snapshot())
	}
	slices.SortFunc(out, func(a, b Job) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.JobID, b.JobID)
	})
	return out
}

// Wait blocks until the job is terminal or ctx ends, then returns its
// latest snapshot.
func (t *Tracker) Wait(ctx context.Context, id string) (Job, error) {
	j, ok := t.lookup(id)
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, apperrors.ErrJobNotFound)
	}
	select {
	case <-j.done:
		return j.snapshot(), nil
	case <-ctx.Done():
		return j.snapshot(), ctx.Err()
	}
}

// Reap forgets terminal jobs that ended before cutoff and returns how many
// were removed.
func (t *Tracker) Reap(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, j := range t.jobs {
		s := j.snapshot()
		if s.Status.Terminal() && s.EndTime != nil && s.EndTime.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}

// Shutdown stops accepting jobs, cancels running ones and waits for their
// goroutines to exit or ctx to end.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ingestion jobs: %w", ctx.Err())
	}
}

func (t *Tracker) lookup(id string) (*job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	return j, ok
}

func (t *Tracker) run(j *job, src Source) {
	defer t.wg.Done()
	id := j.state.JobID
	log := t.logger.With("job_id", id)

	ctx, span := tracing.StartSpan(t.ctx, "ingestion.job", id)
	span.SetAttr("source", src.Name())

	openCtx, openSpan := tracing.StartChildSpan(ctx, "open")
	rc, err := src.Open(openCtx)
	openSpan.End()
	if err != nil {
		openSpan.RecordError(err)
		t.finish(j, span, log, StatusFailed, fmt.Sprintf("opening source: %v", err))
		return
	}

	scanCtx, scanSpan := tracing.StartChildSpan(ctx, "scan")
	status, reason := t.scan(scanCtx, j, rc)
	snap := j.snapshot()
	scanSpan.SetAttr("total_lines", snap.TotalLines)
	scanSpan.SetAttr("error_lines", snap.ErrorLines)
	scanSpan.End()

	// Closed before finish so waiters never observe a half-released source.
	if err := rc.Close(); err != nil {
		log.Warn("closing source failed", "error", err)
	}

	t.finish(j, span, log, status, reason)
}

// scan feeds every non-blank line through the pipeline and decides the
// terminal status.
func (t *Tracker) scan(ctx context.Context, j *job, r io.Reader) (Status, string) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64*1024, t.maxLineBytes)), t.maxLineBytes)

	var (
		header     []string
		lineNumber int
	)
	for sc.Scan() {
		if ctx.Err() != nil {
			return StatusFailed, ReasonCancelled
		}
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lineNumber++
		if header == nil {
			header = parser.ParseHeader(line)
			continue
		}
		t.processLine(ctx, j, header, line, lineNumber)
	}
	if err := sc.Err(); err != nil {
		return StatusFailed, fmt.Sprintf("reading source: %v", err)
	}
	if ctx.Err() != nil {
		return StatusFailed, ReasonCancelled
	}
	return StatusCompleted, ""
}

func (t *Tracker) processLine(ctx context.Context, j *job, header []string, line string, lineNumber int) {
	j.update(func(s *Job) { s.TotalLines++ })

	inserted, err := t.storeLine(ctx, header, line, lineNumber)
	if err != nil {
		msg := fmt.Sprintf("Line %d: %v", lineNumber, err)
		j.update(func(s *Job) {
			s.ErrorLines++
			s.Errors = append(s.Errors, msg)
		})
		t.countLine("error")
		return
	}
	j.update(func(s *Job) {
		s.ProcessedLines++
		if inserted {
			s.InsertedEvents++
		}
	})
	t.countLine("processed")
}

func (t *Tracker) storeLine(ctx context.Context, header []string, line string, lineNumber int) (bool, error) {
	e, err := t.parser.Parse(header, line, lineNumber)
	if err != nil {
		return false, err
	}
	inserted, err := t.store.InsertIfAbsent(ctx, e)
	if err != nil {
		if !errors.Is(err, apperrors.ErrPersistence) {
			err = fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
		}
		return false, err
	}
	return inserted, nil
}

func (t *Tracker) finish(j *job, span *tracing.Span, log *slog.Logger, status Status, reason string) {
	if !j.finish(status, reason, t.now()) {
		return
	}
	snap := j.snapshot()

	span.SetAttr("status", string(status))
	span.SetAttr("processed_lines", snap.ProcessedLines)
	if reason != "" {
		span.RecordError(errors.New(reason))
	}
	span.End()
	span.Log(log)

	if t.metrics != nil {
		t.metrics.ActiveIngestionJobs.Dec()
		t.metrics.IngestionJobsTotal.WithLabelValues(string(status)).Inc()
	}

	if status == StatusFailed {
		log.Warn("ingestion job failed", "reason", reason,
			"total_lines", snap.TotalLines, "processed_lines", snap.ProcessedLines)
	} else {
		log.Info("ingestion job completed", "total_lines", snap.TotalLines,
			"processed_lines", snap.ProcessedLines, "error_lines", snap.ErrorLines,
			"inserted_events", snap.InsertedEvents)
	}

	// Hooks run on a context that survives shutdown so notifications for
	// cancelled jobs still go out.
	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), 10*time.Second)
	defer cancel()
	for _, fn := range t.onFinish {
		fn(hookCtx, snap)
	}
	close(j.done)
}

func (t *Tracker) countLine(result string) {
	if t.metrics != nil {
		t.metrics.IngestedLinesTotal.WithLabelValues(result).Inc()
	}
}
