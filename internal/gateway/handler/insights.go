package handler

import (
	"net/http"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/parser"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/insights"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

const (
	gapFoundMessage    = "Largest temporal gap identified."
	noGapMessage       = "No significant temporal gaps found."
	noInfluenceMessage = "No influence path found."
)

// Timeline returns the event with its descendants nested under children.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	tree, err := h.insights.BuildTimeline(r.Context(), r.PathValue("id"))
	if apperrors.Is(err, apperrors.ErrEventNotFound) {
		h.writeError(w, http.StatusNotFound, "Timeline not found")
		return
	}
	if err != nil {
		h.writeAppError(w, r, err, "building timeline")
		return
	}
	h.writeJSON(w, http.StatusOK, tree)
}

// OverlappingEvents lists every pair of events whose spans intersect.
func (h *Handler) OverlappingEvents(w http.ResponseWriter, r *http.Request) {
	overlaps, err := h.insights.FindOverlaps(r.Context())
	if err != nil {
		h.writeAppError(w, r, err, "finding overlaps")
		return
	}
	if overlaps == nil {
		overlaps = []insights.Overlap{}
	}
	h.writeJSON(w, http.StatusOK, overlaps)
}

type gapResponse struct {
	LargestGap *insights.Gap `json:"largestGap"`
	Message    string        `json:"message"`
}

// TemporalGaps reports the largest idle interval between consecutive
// events that lie entirely within [startDate, endDate].
func (h *Handler) TemporalGaps(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	rawStart, rawEnd := params.Get("startDate"), params.Get("endDate")
	if rawStart == "" || rawEnd == "" {
		h.writeError(w, http.StatusBadRequest, "startDate and endDate are required")
		return
	}
	start, err := parser.ParseDate(rawStart)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "startDate is not a valid date")
		return
	}
	end, err := parser.ParseDate(rawEnd)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "endDate is not a valid date")
		return
	}

	gap, err := h.insights.LargestGap(r.Context(), start, end)
	if err != nil {
		h.writeAppError(w, r, err, "finding temporal gaps")
		return
	}
	resp := gapResponse{LargestGap: gap, Message: noGapMessage}
	if gap != nil {
		resp.Message = gapFoundMessage
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// EventInfluence returns the shortest parent-to-child chain from one
// event to another.
func (h *Handler) EventInfluence(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	from, to := params.Get("from"), params.Get("to")
	if from == "" || to == "" {
		h.writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	path, err := h.insights.InfluencePath(r.Context(), from, to)
	if apperrors.Is(err, apperrors.ErrEventNotFound) || (err == nil && path == nil) {
		h.writeError(w, http.StatusNotFound, noInfluenceMessage)
		return
	}
	if err != nil {
		h.writeAppError(w, r, err, "finding influence path")
		return
	}
	h.writeJSON(w, http.StatusOK, path)
}
