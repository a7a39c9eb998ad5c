package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/parser"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

// ListEvents returns every stored event ordered by start date.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.All(r.Context())
	if err != nil {
		h.writeAppError(w, r, err, "listing events")
		return
	}
	if all == nil {
		all = []events.Event{}
	}
	h.writeJSON(w, http.StatusOK, all)
}

// GetEvent returns a single event.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.Get(r.Context(), r.PathValue("id"))
	if apperrors.Is(err, apperrors.ErrEventNotFound) {
		h.writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		h.writeAppError(w, r, err, "fetching event")
		return
	}
	h.writeJSON(w, http.StatusOK, e)
}

type searchResponse struct {
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Events []events.Event `json:"events"`
}

// SearchEvents filters events by name and date bounds with sorting and
// pagination.
func (h *Handler) SearchEvents(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r)
	if err == nil {
		err = q.Normalize()
	}
	if err != nil {
		h.writeAppError(w, r, err, "searching events")
		return
	}

	found, err := h.store.Search(r.Context(), q)
	if err != nil {
		h.writeAppError(w, r, err, "searching events")
		return
	}
	if found == nil {
		found = []events.Event{}
	}
	h.writeJSON(w, http.StatusOK, searchResponse{Page: q.Page, Limit: q.Limit, Events: found})
}

func parseSearchQuery(r *http.Request) (events.SearchQuery, error) {
	params := r.URL.Query()
	q := events.SearchQuery{
		Name:   strings.TrimSpace(params.Get("name")),
		SortBy: params.Get("sortBy"),
	}

	switch strings.ToLower(params.Get("sortOrder")) {
	case "", "asc":
	case "desc":
		q.SortDesc = true
	default:
		return q, badRequest("sortOrder must be asc or desc")
	}

	for name, dst := range map[string]*int{"page": &q.Page, "limit": &q.Limit} {
		v := params.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, badRequest(name + " must be an integer")
		}
		*dst = n
	}

	if v := params.Get("start_date_after"); v != "" {
		t, err := parser.ParseDate(v)
		if err != nil {
			return q, badRequest("start_date_after is not a valid date")
		}
		q.StartAfter = &t
	}
	if v := params.Get("end_date_before"); v != "" {
		t, err := parser.ParseDate(v)
		if err != nil {
			return q, badRequest("end_date_before is not a valid date")
		}
		q.EndBefore = &t
	}
	return q, nil
}

func badRequest(message string) error {
	return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, message)
}
