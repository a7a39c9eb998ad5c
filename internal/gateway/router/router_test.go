package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/analytics"
	gwhandler "github.com/Pale-blu/Chronologicon-Engine-Development/internal/gateway/handler"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/insights"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/store"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/health"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/metrics"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/middleware"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/ratelimit"
)

func TestRouterWiring(t *testing.T) {
	s := store.NewMemory()
	tr := tracker.New(s, tracker.Config{})
	defer tr.Shutdown(context.Background())

	checker := health.NewChecker()
	checker.Register("store", health.PingCheck("store", s, time.Second, false))
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	limiter := ratelimit.New(1, time.Minute)
	defer limiter.Stop()

	h := gwhandler.New(s, insights.New(s, 0), tr, gwhandler.Config{UploadDir: t.TempDir(), MaxUploadBytes: 1 << 20})
	srv := New(h, Options{
		Health:         checker,
		Analytics:      analytics.NewHandler(analytics.NewAggregator()),
		Metrics:        m,
		Limiter:        limiter,
		RequestTimeout: 5 * time.Second,
	})

	tests := []struct {
		method, target string
		want           int
	}{
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/api/events", http.StatusOK},
		{http.MethodGet, "/api/events/search?limit=5", http.StatusOK},
		{http.MethodGet, "/api/events/missing", http.StatusNotFound},
		{http.MethodGet, "/api/events/ingestion-jobs", http.StatusOK},
		{http.MethodGet, "/api/events/ingestion-stats", http.StatusOK},
		{http.MethodGet, "/api/insights/cache/stats", http.StatusOK},
		{http.MethodGet, "/api/timeline/missing", http.StatusNotFound},
		{http.MethodGet, "/api/insights/overlapping-events", http.StatusOK},
		{http.MethodDelete, "/api/events", http.StatusMethodNotAllowed},
		// The first ingest_path call consumes the only token.
		{http.MethodPost, "/api/events/ingest_path", http.StatusBadRequest},
		{http.MethodPost, "/api/events/ingest_path", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.target, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.target, rec.Code, tt.want)
		}
		if rec.Header().Get(middleware.RequestIDHeader) == "" {
			t.Errorf("%s %s: missing request id header", tt.method, tt.target)
		}
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "GET /api/events/{id}", "404"))
	if got != 1 {
		t.Errorf("expected the event lookup to be counted under its pattern, got %v", got)
	}
}
