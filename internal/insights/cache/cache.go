// Package cache memoises insight query results in Redis. Concurrent misses
// for the same key are collapsed with singleflight, and a circuit breaker
// stops calling Redis while it is failing so queries fall back to the
// store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/insights"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/metrics"
	pkgredis "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/redis"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/resilience"
)

const (
	keyPrefix = "insights:"
	// computeTimeout bounds a shared computation once it no longer follows
	// any single caller's context.
	computeTimeout = 30 * time.Second
)

// Backend is the key-value surface the cache needs. *pkgredis.Client
// implements it; Get must return an error satisfying pkgredis.IsNilError on
// a miss.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Service decorates an insights.Querier with result caching. Timelines
// are not cached; they are cheap per request and can be very large.
type Service struct {
	next    insights.Querier
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64

	// generation is bumped by Invalidate. A result computed under an older
	// generation is returned to its callers but never written back.
	genMu      sync.RWMutex
	generation uint64
}

var _ insights.Querier = (*Service)(nil)

// New wraps next. m may be nil.
func New(next insights.Querier, backend Backend, ttl time.Duration, m *metrics.Metrics) *Service {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Service{
		next:    next,
		backend: backend,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("insight-cache", cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "insight-cache"),
	}
}

func (c *Service) BuildTimeline(ctx context.Context, id string) (*insights.TimelineNode, error) {
	return c.next.BuildTimeline(ctx, id)
}

func (c *Service) FindOverlaps(ctx context.Context) ([]insights.Overlap, error) {
	return getOrCompute(ctx, c, "overlaps", keyPrefix+"overlaps", func(ctx context.Context) ([]insights.Overlap, error) {
		return c.next.FindOverlaps(ctx)
	})
}

func (c *Service) LargestGap(ctx context.Context, start, end time.Time) (*insights.Gap, error) {
	key := fmt.Sprintf("%sgaps:%s:%s", keyPrefix,
		start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	return getOrCompute(ctx, c, "gaps", key, func(ctx context.Context) (*insights.Gap, error) {
		return c.next.LargestGap(ctx, start, end)
	})
}

func (c *Service) InfluencePath(ctx context.Context, from, to string) (*insights.InfluencePath, error) {
	return getOrCompute(ctx, c, "influence", influenceKey(from, to), func(ctx context.Context) (*insights.InfluencePath, error) {
		return c.next.InfluencePath(ctx, from, to)
	})
}

// Invalidate drops every cached insight. Computations already in flight
// finish for their callers but their results are not cached.
func (c *Service) Invalidate(ctx context.Context) error {
	c.genMu.Lock()
	c.generation++
	c.genMu.Unlock()

	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.backend.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating insight cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counts since start.
func (c *Service) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func getOrCompute[T any](ctx context.Context, c *Service, kind, key string, compute func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	if v, ok := lookup[T](ctx, c, key); ok {
		c.observe(kind, "hit", start)
		return v, nil
	}

	// Callers arriving after an invalidation must not join a flight that
	// started before it, so the generation is part of the flight key.
	gen := c.currentGeneration()
	flight := c.group.DoChan(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		// The computation is shared, so one caller going away must not
		// cancel it for the others.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		if v, ok := lookup[T](ctx, c, key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return v, err
		}
		c.store(ctx, key, v, gen)
		return v, nil
	})

	var zero T
	select {
	case res := <-flight:
		c.observe(kind, "miss", start)
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Service) currentGeneration() uint64 {
	c.genMu.RLock()
	defer c.genMu.RUnlock()
	return c.generation
}

func lookup[T any](ctx context.Context, c *Service, key string) (T, bool) {
	var (
		zero T
		data []byte
		miss bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			miss = true
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.recordMiss()
		return zero, false
	}
	if miss {
		c.recordMiss()
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return zero, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return v, true
}

// store writes v unless the cache was invalidated since gen. The read lock
// is held through the write so an Invalidate either precedes the check or
// flushes the key afterwards.
func (c *Service) store(ctx context.Context, key string, v any, gen uint64) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	c.genMu.RLock()
	defer c.genMu.RUnlock()
	if c.generation != gen {
		c.logger.Debug("cache set skipped, invalidated during compute", "key", key)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *Service) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *Service) observe(kind, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.InsightQueryDuration.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
	}
}

func influenceKey(from, to string) string {
	hash := sha256.Sum256([]byte(from + "\x00" + to))
	return fmt.Sprintf("%sinfluence:%x", keyPrefix, hash[:16])
}
