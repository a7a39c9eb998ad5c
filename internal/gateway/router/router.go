// Package router wires the API routes and applies the middleware chain
// (RequestID → CORS → Timeout → Metrics).
package router

import (
	"net/http"
	"time"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/analytics"
	gwhandler "github.com/Pale-blu/Chronologicon-Engine-Development/internal/gateway/handler"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/health"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/metrics"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/middleware"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/ratelimit"
)

// Options carries the optional collaborators. A nil Metrics or Limiter
// skips that middleware.
type Options struct {
	Health         *health.Checker
	Analytics      *analytics.Handler
	Metrics        *metrics.Metrics
	Limiter        *ratelimit.Limiter
	RequestTimeout time.Duration
}

// New builds the HTTP handler.
//
// Route table:
//
//	GET    /api/events                                    → all events
//	GET    /api/events/search                             → filtered, paged events
//	GET    /api/events/{id}                               → one event
//	POST   /api/events/ingest                             → multipart upload   (rate limited)
//	POST   /api/events/ingest_path                        → server-side file   (rate limited)
//	GET    /api/events/ingestion-jobs                     → every tracked job
//	GET    /api/events/ingestion-stats                    → aggregated job statistics
//	GET    /api/events/ingestion-status/{jobId}           → one job
//	GET    /api/events/ingestion-status/{jobId}/stream    → WebSocket job updates
//	GET    /api/timeline/{id}                             → event hierarchy
//	GET    /api/insights/overlapping-events
//	GET    /api/insights/temporal-gaps?startDate=&endDate=
//	GET    /api/insights/event-influence?from=&to=
//	GET    /api/insights/cache/stats
//	POST   /api/insights/cache/invalidate
//	GET    /health/live, /health/ready
func New(h *gwhandler.Handler, opts Options) http.Handler {
	mux := http.NewServeMux()

	if opts.Health != nil {
		mux.HandleFunc("GET /health/live", opts.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Health.ReadyHandler())
	}

	limited := middleware.RateLimit(opts.Limiter)

	mux.HandleFunc("GET /api/events", h.ListEvents)
	mux.HandleFunc("GET /api/events/search", h.SearchEvents)
	mux.HandleFunc("GET /api/events/{id}", h.GetEvent)
	mux.Handle("POST /api/events/ingest", limited(http.HandlerFunc(h.IngestUpload)))
	mux.Handle("POST /api/events/ingest_path", limited(http.HandlerFunc(h.IngestPath)))
	mux.HandleFunc("GET /api/events/ingestion-jobs", h.IngestionJobs)
	if opts.Analytics != nil {
		mux.HandleFunc("GET /api/events/ingestion-stats", opts.Analytics.Stats)
	}
	mux.HandleFunc("GET /api/events/ingestion-status/{jobId}", h.IngestionStatus)
	mux.HandleFunc("GET /api/events/ingestion-status/{jobId}/stream", h.StreamIngestionStatus)

	mux.HandleFunc("GET /api/timeline/{id}", h.Timeline)

	mux.HandleFunc("GET /api/insights/overlapping-events", h.OverlappingEvents)
	mux.HandleFunc("GET /api/insights/temporal-gaps", h.TemporalGaps)
	mux.HandleFunc("GET /api/insights/event-influence", h.EventInfluence)
	mux.HandleFunc("GET /api/insights/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/insights/cache/invalidate", h.CacheInvalidate)

	// Applied inside-out; Metrics must wrap the mux directly to see the
	// matched pattern.
	var chain http.Handler = mux
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	chain = middleware.Timeout(opts.RequestTimeout)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)
	return chain
}
