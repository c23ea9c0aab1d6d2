package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pulsewatch/backend/internal/logging"
	"github.com/pulsewatch/backend/internal/models"
	"github.com/pulsewatch/backend/internal/presence"
	"github.com/pulsewatch/backend/internal/services"
)

// PresenceHandler serves the event ingestion endpoint and the pageview stats.
type PresenceHandler struct {
	ingestor *services.Ingestor
	views    presence.ViewCounter
}

// NewPresenceHandler creates a PresenceHandler.
func NewPresenceHandler(ingestor *services.Ingestor, views presence.ViewCounter) *PresenceHandler {
	return &PresenceHandler{ingestor: ingestor, views: views}
}

// Hit accepts one presence event. Validation failures return 400 with a
// stable code; a dead backing store returns 503. Preflight OPTIONS is
// answered by the CORS middleware before routing.
func (h *PresenceHandler) Hit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.HitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// A malformed body is handled like an empty one: the subject check
		// below produces the stable code clients already handle.
		logging.LogSecurityEvent(ctx, logging.SecurityEventBadPayload, "undecodable hit payload")
		req = models.HitRequest{}
	}

	err := h.ingestor.Apply(ctx, req)
	if err == nil {
		writeJSON(w, http.StatusOK, models.HitResponse{OK: true})
		return
	}

	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeHitError(w, http.StatusBadRequest, verr.Code)
	case errors.Is(err, presence.ErrUnavailable):
		logging.LogErrorWithStatus(ctx, http.StatusServiceUnavailable, "presence store unavailable", err)
		writeHitError(w, http.StatusServiceUnavailable, "store_unavailable")
	default:
		logging.LogErrorWithStatus(ctx, http.StatusInternalServerError, "hit ingestion failed", err)
		writeHitError(w, http.StatusInternalServerError, "internal_error")
	}
}

// Stats reports cumulative pageview counts from the ledger.
func (h *PresenceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.views.TotalViews(ctx)
	if err != nil {
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "stats unavailable", err)
		return
	}
	byScope, err := h.views.ViewsByScope(ctx)
	if err != nil {
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "stats unavailable", err)
		return
	}

	writeJSON(w, http.StatusOK, models.StatsResponse{
		TotalViews:   total,
		ViewsByScope: byScope,
	})
}
