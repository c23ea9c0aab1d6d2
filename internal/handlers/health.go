package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pulsewatch/backend/internal/models"
	"github.com/pulsewatch/backend/internal/presence"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	store presence.Store
}

// NewHealthHandler creates a HealthHandler backed by the given store.
func NewHealthHandler(store presence.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Livez always reports healthy while the process runs.
func (h *HealthHandler) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{OK: true})
}

// Readyz reports unhealthy when the backing store does not answer a ping.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "readiness ping failed", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, models.HealthResponse{OK: false})
		return
	}
	writeJSON(w, http.StatusOK, models.HealthResponse{OK: true})
}
