package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "ingestion.job", "job-1")
	_, open := StartChildSpan(ctx, "open")
	open.RecordError(errors.New("no such file"))
	open.End()
	scanCtx, scan := StartChildSpan(ctx, "scan")
	scan.SetAttr("total_lines", 3)
	scan.SetAttr("total_lines", 4)
	scan.End()
	root.End()

	if got := SpanFromContext(scanCtx); got != scan {
		t.Fatal("context should carry the child span")
	}
	if scan.TraceID() != "job-1" || scan.Path() != "ingestion.job/scan" {
		t.Errorf("child inherits trace and path, got %q %q", scan.TraceID(), scan.Path())
	}

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected one record per span, got %d:\n%s", len(lines), buf.String())
	}
	var records []map[string]any
	for _, l := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(l), &rec); err != nil {
			t.Fatalf("decode %q: %v", l, err)
		}
		records = append(records, rec)
	}
	if records[0]["span"] != "ingestion.job" || records[0]["level"] != "INFO" {
		t.Errorf("root record: %v", records[0])
	}
	if records[1]["level"] != "WARN" || records[1]["error"] != "no such file" {
		t.Errorf("failed child should log at warn: %v", records[1])
	}
	if records[2]["total_lines"] != float64(4) || records[2]["level"] != "DEBUG" {
		t.Errorf("SetAttr should replace: %v", records[2])
	}
}

func TestChildWithoutParentIsRoot(t *testing.T) {
	_, s := StartChildSpan(context.Background(), "orphan")
	if s.Path() != "orphan" || s.TraceID() != "" {
		t.Errorf("unexpected orphan %q %q", s.Path(), s.TraceID())
	}
	s.End()
	d := s.Duration()
	s.End()
	if s.Duration() != d {
		t.Error("End must only count once")
	}
}
