package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandlerServesOwnRegistry(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.IngestionJobsTotal.WithLabelValues("COMPLETED").Add(2)
	m.CacheHitsTotal.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`chronologicon_ingestion_jobs_total{status="COMPLETED"} 2`,
		`chronologicon_insights_cache_hits_total 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape missing %q", want)
		}
	}
	if strings.Contains(string(body), "go_goroutines") {
		t.Error("a private registry should not expose the default Go collectors")
	}
}
