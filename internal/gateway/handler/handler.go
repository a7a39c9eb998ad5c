// Package handler implements the public HTTP API: event browsing and
// search, file ingestion with job status, and the insight queries.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/insights"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/logger"
)

// Config holds the ingestion settings the handlers need.
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	StreamInterval time.Duration
}

// Handler serves every API route. It owns no state of its own; jobs live
// in the tracker and events in the store.
type Handler struct {
	store    events.Store
	insights insights.Querier
	tracker  *tracker.Tracker
	cache    CacheControl
	cfg      Config
	logger   *slog.Logger
}

func New(store events.Store, q insights.Querier, t *tracker.Tracker, cfg Config) *Handler {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 500 * time.Millisecond
	}
	return &Handler{
		store:    store,
		insights: q,
		tracker:  t,
		cfg:      cfg,
		logger:   slog.Default().With("component", "api-handler"),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err to its HTTP status. Server-side failures are
// logged and reported without detail.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(action+" failed", "error", err)
		h.writeError(w, status, action+" failed")
		return
	}
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		h.writeError(w, status, appErr.Message)
		return
	}
	h.writeError(w, status, err.Error())
}
