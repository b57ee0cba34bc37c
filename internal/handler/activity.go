package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/rentledger/internal/activity"
	"github.com/matthewbaird/rentledger/internal/types"
)

// ActivityHandler serves the per-entity activity feed built from ledger events.
type ActivityHandler struct {
	store activity.Store
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store activity.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// HandleGetEntityActivity returns a chronological activity feed for an entity.
// GET /v1/activity/entity/{entity_type}/{entity_id}
func (h *ActivityHandler) HandleGetEntityActivity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	if entityType == "" || entityID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "entity_type and entity_id are required")
		return
	}

	q := r.URL.Query()
	opts := activity.DefaultQueryOptions()
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC 3339")
			return
		}
		opts.Since = &t
	}
	if u := q.Get("until"); u != "" {
		t, err := time.Parse(time.RFC3339, u)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_UNTIL", "until must be RFC 3339")
			return
		}
		opts.Until = &t
	}
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if mw := q.Get("min_weight"); mw != "" {
		opts.MinWeight = mw
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = min(n, 500)
		}
	}
	opts.Cursor = q.Get("cursor")

	entries, nextCursor, totalCount, err := h.store.QueryByEntity(r.Context(), entityType, entityID, opts)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.ActivityEntry{}
	}

	resp := struct {
		Activities []types.ActivityEntry `json:"activities"`
		NextCursor string                `json:"next_cursor,omitempty"`
		TotalCount int                   `json:"total_count"`
	}{
		Activities: entries,
		NextCursor: nextCursor,
		TotalCount: totalCount,
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSearchActivity performs a substring search across activity summaries.
// POST /v1/activity/search
func (h *ActivityHandler) HandleSearchActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string   `json:"query"`
		EntityType string   `json:"entity_type,omitempty"`
		Since      string   `json:"since,omitempty"`
		Categories []string `json:"categories,omitempty"`
		Limit      int      `json:"limit,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "query is required")
		return
	}

	opts := activity.DefaultSearchOptions()
	opts.EntityType = req.EntityType
	opts.Categories = req.Categories
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.Since != "" {
		t, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC 3339")
			return
		}
		opts.Since = &t
	}

	entries, totalCount, err := h.store.Search(r.Context(), req.Query, opts)
	if err != nil {
		ledgerErrorToHTTP(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": entries, "total_count": totalCount})
}
