package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = s.ServeListener(ln) }()
	t.Cleanup(s.Stop)
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallRoundTrip(t *testing.T) {
	s := NewServer(time.Second)
	s.Register("Math.Double", func(_ context.Context, raw json.RawMessage) (any, error) {
		var in struct{ N int }
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		return map[string]int{"n": in.N * 2}, nil
	})
	s.Register("Events.Get", func(context.Context, json.RawMessage) (any, error) {
		return nil, apperrors.ErrEventNotFound
	})
	if s.MethodCount() != 2 {
		t.Fatalf("expected 2 methods, got %d", s.MethodCount())
	}
	c := dial(t, startServer(t, s))

	for i := 1; i <= 3; i++ {
		var out struct{ N int }
		if err := c.Call(context.Background(), "Math.Double", map[string]int{"N": i}, &out); err != nil {
			t.Fatalf("Call: %v", err)
		}
		if out.N != i*2 {
			t.Errorf("got %d, want %d", out.N, i*2)
		}
	}

	err := c.Call(context.Background(), "Events.Get", nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Code != 404 {
		t.Fatalf("expected 404 remote error, got %v", err)
	}
	if !errors.Is(err, apperrors.ErrEventNotFound) {
		t.Error("remote not-found should match the sentinel")
	}

	if err := c.Call(context.Background(), "Nope.Nothing", nil, nil); !errors.As(err, &remote) {
		t.Errorf("expected unknown method error, got %v", err)
	}
}

func TestCallTimeoutBreaksConnection(t *testing.T) {
	s := NewServer(0)
	release := make(chan struct{})
	s.Register("Slow.Call", func(ctx context.Context, _ json.RawMessage) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "late", nil
	})
	c := dial(t, startServer(t, s))
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Call(ctx, "Slow.Call", nil, nil); !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if err := c.Call(context.Background(), "Slow.Call", nil, nil); err == nil {
		t.Error("a timed out connection must not be reused")
	}
}

func TestServerCallTimeout(t *testing.T) {
	s := NewServer(30 * time.Millisecond)
	s.Register("Slow.Call", func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := dial(t, startServer(t, s))

	err := c.Call(context.Background(), "Slow.Call", nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestStopClosesIdleConnections(t *testing.T) {
	s := NewServer(0)
	addr := startServer(t, s)
	c := dial(t, addr)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on an idle connection")
	}
	if err := c.Call(context.Background(), "Any.Thing", nil, nil); err == nil {
		t.Error("calls after Stop should fail")
	}
}
