package insights

import (
	"context"
	"fmt"
	"testing"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/store"
)

// benchService loads n events: staggered one-hour spans, each event the
// child of the one before it so the hierarchy is a single chain.
func benchService(b *testing.B, n int) *Service {
	b.Helper()
	s := store.NewMemory()
	for i := 0; i < n; i++ {
		parent := ""
		if i > 0 {
			parent = fmt.Sprintf("e%d", i-1)
		}
		e := ev(fmt.Sprintf("e%d", i), i*45, i*45+60, parent)
		if _, err := s.InsertIfAbsent(context.Background(), &e); err != nil {
			b.Fatal(err)
		}
	}
	return New(s, n+1)
}

// BenchmarkFindOverlaps measures the pairwise overlap scan for growing
// event counts.
func BenchmarkFindOverlaps(b *testing.B) {
	for _, n := range []int{100, 1000, 3000} {
		b.Run(fmt.Sprintf("events_%d", n), func(b *testing.B) {
			svc := benchService(b, n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := svc.FindOverlaps(context.Background()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkLargestGap(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("events_%d", n), func(b *testing.B) {
			svc := benchService(b, n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := svc.LargestGap(context.Background(), at(0), at(n*45+60)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkInfluencePath walks the full chain from the first event to the
// last.
func BenchmarkInfluencePath(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("depth_%d", n), func(b *testing.B) {
			svc := benchService(b, n)
			to := fmt.Sprintf("e%d", n-1)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				p, err := svc.InfluencePath(context.Background(), "e0", to)
				if err != nil || p == nil {
					b.Fatalf("path: %v %v", p, err)
				}
			}
		})
	}
}

func BenchmarkBuildTimeline(b *testing.B) {
	svc := benchService(b, 500)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.BuildTimeline(context.Background(), "e0"); err != nil {
			b.Fatal(err)
		}
	}
}
