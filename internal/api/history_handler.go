package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alecgard/cloudtally/internal/history"
)

const defaultHistoryLimit = 50

type historyHandler struct {
	reader HistoryLister
	max    int
}

func newHistoryHandler(reader HistoryLister, max int) *historyHandler {
	if max <= 0 {
		max = defaultHistoryLimit
	}
	return &historyHandler{reader: reader, max: max}
}

// ListHistory handles GET /api/history. Supported query parameters are
// limit, principal and since (RFC 3339).
func (h *historyHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	q := history.Query{
		Principal: r.URL.Query().Get("principal"),
		Limit:     min(defaultHistoryLimit, h.max),
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "limit must be a positive integer")
			return
		}
		q.Limit = min(n, h.max)
	}

	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "since must be an RFC 3339 timestamp")
			return
		}
		q.Since = t
	}

	if h.reader == nil {
		writeJSON(w, http.StatusOK, []history.Record{})
		return
	}

	records, err := h.reader.List(r.Context(), q)
	if err != nil {
		writeInternalError(w, r, "listing cost history", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
