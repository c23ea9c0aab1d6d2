package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pulsewatch/backend/internal/logging"
	"github.com/pulsewatch/backend/internal/models"
)

// writeJSON serializes data as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeHitError writes the ingestion endpoint's {ok:false} error shape.
func writeHitError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, models.HitResponse{OK: false, Error: code})
}

// writeError writes the generic error body used by non-ingestion endpoints.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}

// writeErrorWithCause writes an error response and logs the underlying error
// with a stack trace. Use for server errors where a cause exists.
func writeErrorWithCause(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	writeError(w, status, message)

	if status >= 400 && err != nil {
		wrappedErr := logging.WrapError(err, message)
		logging.LogErrorWithStatus(ctx, status, "error response", wrappedErr)
	}
}
