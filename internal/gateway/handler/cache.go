package handler

import (
	"context"
	"net/http"
)

// CacheControl is implemented by the insight cache.
type CacheControl interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) error
}

// WithCache enables the cache endpoints.
func (h *Handler) WithCache(c CacheControl) *Handler {
	h.cache = c
	return h
}

// CacheStats reports insight cache hit and miss counts.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	hits, misses := h.cache.Stats()
	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":   true,
		"hits":      hits,
		"misses":    misses,
		"hit_ratio": ratio,
	})
}

// CacheInvalidate drops every cached insight.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusNotFound, "insight cache is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}
