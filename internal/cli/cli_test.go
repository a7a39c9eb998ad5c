package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/insights"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/rpcapi"
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

func startServer(t *testing.T) string {
	t.Helper()
	s := store.NewMemory()
	tr := tracker.New(s, tracker.Config{})
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })

	srv := rpc.NewServer(time.Second)
	rpcapi.Register(srv, s, insights.New(s, 0), tr)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.ServeListener(ln) }()
	t.Cleanup(srv.Stop)
	return ln.Addr().String()
}

func run(t *testing.T, addr string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(nil)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--addr", addr, "--timeout", "5s"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decodeOut[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestIngestAndQuery(t *testing.T) {
	addr := startServer(t)
	path := filepath.Join(t.TempDir(), "events.txt")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	out, err := run(t, addr, "ingest", path, "--wait")
	require.NoError(t, err)
	job := decodeOut[proto.Job](t, out)
	assert.Equal(t, "COMPLETED", job.Status)
	assert.Equal(t, 3, job.ProcessedLines)

	out, err = run(t, addr, "status", job.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, decodeOut[proto.Job](t, out).JobID)

	out, err = run(t, addr, "event", "child")
	require.NoError(t, err)
	assert.Equal(t, "First Expedition", decodeOut[proto.Event](t, out).EventName)

	out, err = run(t, addr, "timeline", "root")
	require.NoError(t, err)
	node := decodeOut[proto.TimelineNode](t, out)
	require.Len(t, node.Children, 1)
	assert.Equal(t, "child", node.Children[0].EventID)

	out, err = run(t, addr, "overlaps")
	require.NoError(t, err)
	overlaps := decodeOut[[]proto.Overlap](t, out)
	require.Len(t, overlaps, 1)
	assert.EqualValues(t, 30, overlaps[0].OverlapDurationMinutes)

	out, err = run(t, addr, "gaps", "--start", "2023-01-01T00:00:00Z", "--end", "2023-01-02T00:00:00Z")
	require.NoError(t, err)
	gaps := decodeOut[proto.GapsResponse](t, out)
	require.NotNil(t, gaps.LargestGap)
	assert.EqualValues(t, 180, gaps.LargestGap.DurationMinutes)

	out, err = run(t, addr, "influence", "--from", "root", "--to", "child")
	require.NoError(t, err)
	assert.EqualValues(t, 150, decodeOut[proto.InfluencePath](t, out).TotalDuration)
}

func TestErrors(t *testing.T) {
	addr := startServer(t)

	_, err := run(t, addr, "event", "missing")
	assert.True(t, errors.Is(err, apperrors.ErrEventNotFound), "got %v", err)

	_, err = run(t, addr, "status", "ingest-job-nope")
	assert.True(t, errors.Is(err, apperrors.ErrJobNotFound), "got %v", err)

	_, err = run(t, addr, "gaps", "--start", "yesterday", "--end", "2023-01-02T00:00:00Z")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--start")

	_, err = run(t, addr, "influence", "--from", "root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"to"`)
}

func TestUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = run(t, addr, "overlaps")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "connect to "+addr), err.Error())
}

func TestHelpDoesNotDial(t *testing.T) {
	dialed := false
	cmd := NewRootCmd(func(context.Context, string) (Caller, error) {
		dialed = true
		return nil, errors.New("should not dial")
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"help", "gaps"})
	require.NoError(t, cmd.Execute())
	assert.False(t, dialed)
	assert.Contains(t, out.String(), "--start")
}
