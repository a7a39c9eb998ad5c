package ratelimit

import (
	"testing"
	"time"
)

func TestAllowExhaustsAndRefills(t *testing.T) {
	l := New(3, time.Minute)
	defer l.Stop()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("fourth request should be limited")
	}
	if got := l.RetryAfter("10.0.0.1"); got <= 0 || got > 21*time.Second {
		t.Errorf("unexpected retry-after %v", got)
	}
	if !l.Allow("10.0.0.2") {
		t.Error("other keys must have their own bucket")
	}

	clock = clock.Add(20 * time.Second)
	if !l.Allow("10.0.0.1") {
		t.Error("one token should have refilled after a third of the window")
	}
	if l.Allow("10.0.0.1") {
		t.Error("only one token should have refilled")
	}
}

func TestReset(t *testing.T) {
	l := New(1, time.Hour)
	defer l.Stop()
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("expected limit")
	}
	l.Reset("k")
	if !l.Allow("k") {
		t.Error("reset should restore capacity")
	}
}
