package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alecgard/cloudtally/internal/auth"
	"github.com/alecgard/cloudtally/internal/cloud"
	"github.com/alecgard/cloudtally/internal/history"
)

type resourcesHandler struct {
	provider   cloud.Provider
	aggregator Aggregator
	service    cloud.Credential
	history    HistoryRecorder
}

func newResourcesHandler(provider cloud.Provider, aggregator Aggregator, service cloud.Credential, rec HistoryRecorder) *resourcesHandler {
	return &resourcesHandler{
		provider:   provider,
		aggregator: aggregator,
		service:    service,
		history:    rec,
	}
}

// GetResources handles GET /api/resources. Listings run as the service
// account; the caller's principal is only used for attribution.
func (h *resourcesHandler) GetResources(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())

	sess, err := h.provider.Authenticate(r.Context(), h.service)
	if err != nil {
		attrs := []any{"request_id", requestID}
		var authErr *cloud.AuthError
		if errors.As(err, &authErr) {
			attrs = append(attrs, "cause", authErr.Diagnostic())
		} else {
			attrs = append(attrs, "error", err)
		}
		slog.Error("service account authentication failed", attrs...)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "inventory backend is unavailable")
		return
	}

	snap, err := h.aggregator.Aggregate(r.Context(), sess)
	if err != nil {
		writeInternalError(w, r, "aggregation failed", err)
		return
	}

	principal := h.service.Principal
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		principal = p.Name
	}
	if h.history != nil {
		h.history.Record(history.NewRecord(principal, snap))
	}

	writeJSON(w, http.StatusOK, snap)
}
