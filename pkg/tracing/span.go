// Package tracing keeps a small in-process span tree in the context.
// Ingestion jobs open a root span per job and a child per phase; the tree
// is written to slog when the job ends, one record per span.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

// Span is one timed operation. Its methods are safe for concurrent use.
type Span struct {
	name    string
	traceID string
	parent  *Span
	start   time.Time

	mu       sync.Mutex
	end      time.Time
	attrs    []slog.Attr
	err      error
	children []*Span
}

// StartSpan opens a root span for traceID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, start: time.Now()}
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan opens a span under the one in ctx. Without one in ctx the
// new span is a root with an empty trace ID.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return StartSpan(ctx, name, "")
	}
	s := &Span{name: name, traceID: parent.traceID, parent: parent, start: time.Now()}
	parent.mu.Lock()
	parent.children = append(parent.children, s)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, s), s
}

func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

func (s *Span) TraceID() string { return s.traceID }

// Path is the slash-joined chain of span names from the root.
func (s *Span) Path() string {
	if s.parent == nil {
		return s.name
	}
	return s.parent.Path() + "/" + s.name
}

// End stamps the end time. Later calls are no-ops.
func (s *Span) End() {
	s.mu.Lock()
	if s.end.IsZero() {
		s.end = time.Now()
	}
	s.mu.Unlock()
}

// Duration is the time between start and End, or until now while the span
// is still open.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return time.Since(s.start)
	}
	return s.end.Sub(s.start)
}

// SetAttr sets key, replacing an earlier value for the same key.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attrs {
		if s.attrs[i].Key == key {
			s.attrs[i].Value = slog.AnyValue(value)
			return
		}
	}
	s.attrs = append(s.attrs, slog.Any(key, value))
}

func (s *Span) RecordError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Span) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Log writes the tree depth-first: the root at info and descendants at
// debug, or at warn when they recorded an error.
func (s *Span) Log(logger *slog.Logger) {
	s.walk(func(span *Span, depth int) {
		span.mu.Lock()
		attrs := make([]slog.Attr, 0, len(span.attrs)+4)
		attrs = append(attrs,
			slog.String("trace_id", span.traceID),
			slog.String("span", span.Path()),
			slog.Int64("duration_ms", span.end.Sub(span.start).Milliseconds()),
		)
		attrs = append(attrs, span.attrs...)
		level := slog.LevelDebug
		if depth == 0 {
			level = slog.LevelInfo
		}
		if span.err != nil {
			attrs = append(attrs, slog.String("error", span.err.Error()))
			level = max(level, slog.LevelWarn)
		}
		span.mu.Unlock()
		logger.LogAttrs(context.Background(), level, "span", attrs...)
	}, 0)
}

func (s *Span) walk(visit func(*Span, int), depth int) {
	visit(s, depth)
	s.mu.Lock()
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()
	for _, c := range children {
		c.walk(visit, depth+1)
	}
}
