package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pulsewatch/backend/internal/clock"
	"github.com/pulsewatch/backend/internal/config"
	"github.com/pulsewatch/backend/internal/logging"
	"github.com/pulsewatch/backend/internal/models"
	"github.com/pulsewatch/backend/internal/presence"
	"github.com/pulsewatch/backend/internal/registry"
)

// StreamHandler serves the Server-Sent Events live view. Each connection gets
// its own goroutine and ticker; slow or stalled subscribers never hold the
// store lock and never delay each other.
type StreamHandler struct {
	store    presence.Store
	agg      presence.Aggregator
	registry *registry.Registry
	clock    clock.Clock

	interval        time.Duration
	connectionsMode bool
}

// NewStreamHandler creates a StreamHandler from the service configuration.
func NewStreamHandler(store presence.Store, reg *registry.Registry, clk clock.Clock, cfg *config.Config) *StreamHandler {
	return &StreamHandler{
		store: store,
		agg: presence.Aggregator{
			ActiveThreshold: cfg.ActiveThresholdSeconds,
			TopLimit:        cfg.TopScopesLimit,
			ScopeBreakdown:  cfg.ScopeBreakdown,
		},
		registry:        reg,
		clock:           clk,
		interval:        cfg.BroadcastInterval,
		connectionsMode: cfg.OnlineMode == config.OnlineModeConnections,
	}
}

// Stream opens an SSE connection and pushes one aggregate frame per interval
// until the client disconnects. The registry registration is released on
// every exit path by the deferred detach.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.registry.Attach()
	defer sub.Detach()

	slog.DebugContext(r.Context(), "stream attached", slog.String("subscriber", sub.ID()))
	defer slog.DebugContext(r.Context(), "stream detached", slog.String("subscriber", sub.ID()))

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		if !h.deliver(ctx, w, flusher) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// deliver runs one broadcast iteration: prune, snapshot, aggregate, write one
// frame. It returns false when the loop must terminate, either because the
// subscriber is gone or because a degraded error frame was just sent.
func (h *StreamHandler) deliver(ctx context.Context, w http.ResponseWriter, flusher http.Flusher) bool {
	now := h.clock.Now()

	view, healthy := h.buildView(ctx, now)

	data, err := json.Marshal(view)
	if err != nil {
		// Can only happen on an internal fault; send one explicit error
		// frame so the subscriber is not left hanging, then stop.
		fmt.Fprintf(w, "data: {\"ts\":%d,\"error\":\"internal_error\"}\n\n", now)
		flusher.Flush()
		logging.LogErrorWithStatus(ctx, http.StatusInternalServerError, "frame serialization failed", err)
		return false
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return false
	}
	flusher.Flush()
	return healthy
}

// buildView computes the frame for `now`. On a store failure it returns a
// zeroed view carrying an error indicator and healthy=false, so the caller
// delivers it once and terminates.
func (h *StreamHandler) buildView(ctx context.Context, now int64) (models.View, bool) {
	if _, err := h.store.PruneExpired(ctx, now); err != nil {
		return h.degradedView(ctx, now, err)
	}
	records, err := h.store.Snapshot(ctx, now)
	if err != nil {
		return h.degradedView(ctx, now, err)
	}

	view := h.agg.Compute(records, now)
	view.Watching = h.registry.Count()
	if h.connectionsMode {
		view.OnlineTotal = view.Watching
	}
	return view, true
}

func (h *StreamHandler) degradedView(ctx context.Context, now int64, err error) (models.View, bool) {
	logging.LogErrorWithStatus(ctx, http.StatusServiceUnavailable, "broadcast store failure", err)
	return models.View{
		TS:         now,
		ActiveUIDs: []string{},
		IdleUIDs:   []string{},
		Error:      "store_unavailable",
	}, false
}
