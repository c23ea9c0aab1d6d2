package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pulsewatch/backend/internal/clock"
	"github.com/pulsewatch/backend/internal/config"
	"github.com/pulsewatch/backend/internal/models"
	"github.com/pulsewatch/backend/internal/presence"
	"github.com/pulsewatch/backend/internal/registry"
)

func streamConfig() *config.Config {
	return &config.Config{
		ActiveThresholdSeconds: 300,
		TopScopesLimit:         10,
		ScopeBreakdown:         true,
		// One immediate frame only; the test context expires long before
		// the next tick.
		BroadcastInterval: time.Hour,
		OnlineMode:        config.OnlineModePresence,
	}
}

// runStream serves one short-lived stream request and returns the parsed frames.
func runStream(t *testing.T, h *StreamHandler) []models.View {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/sse/online", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 100*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()

	h.Stream(rec, req.WithContext(ctx))

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}

	var frames []models.View
	for _, chunk := range strings.Split(rec.Body.String(), "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if !strings.HasPrefix(chunk, "data: ") {
			continue
		}
		var view models.View
		if err := json.Unmarshal([]byte(strings.TrimPrefix(chunk, "data: ")), &view); err != nil {
			t.Fatalf("bad frame %q: %v", chunk, err)
		}
		frames = append(frames, view)
	}
	if len(frames) == 0 {
		t.Fatalf("no frames delivered, body = %q", rec.Body.String())
	}
	return frames
}

func TestStreamEmitsAggregateFrame(t *testing.T) {
	store := presence.NewMemoryStore(90)
	ctx := context.Background()

	// Two heartbeats on the same scope at t=0, then the first subject leaves.
	store.Upsert(ctx, presence.Key{Subject: "u1", Scope: "/home"}, 0, 0)
	store.Upsert(ctx, presence.Key{Subject: "u2", Scope: "/home"}, 0, 0)
	store.Remove(ctx, presence.Key{Subject: "u1", Scope: "/home"})

	reg := registry.New()
	h := NewStreamHandler(store, reg, clock.Func(func() int64 { return 2 }), streamConfig())

	frames := runStream(t, h)
	view := frames[0]

	if view.TS != 2 || view.OnlineTotal != 1 {
		t.Fatalf("view = %+v, want ts=2 online_total=1", view)
	}
	if len(view.TopScopes) != 1 || view.TopScopes[0] != (models.ScopeCount{Scope: "/home", Count: 1}) {
		t.Fatalf("topScopes = %v, want [{/home 1}]", view.TopScopes)
	}
	if len(view.ActiveUIDs) != 1 || view.ActiveUIDs[0] != "u2" {
		t.Fatalf("active = %v, want [u2]", view.ActiveUIDs)
	}
	if view.Watching != 1 {
		t.Fatalf("watching = %d, want 1", view.Watching)
	}
	if view.Error != "" {
		t.Fatalf("unexpected error field %q", view.Error)
	}
}

func TestStreamExcludesExpiredRecords(t *testing.T) {
	store := presence.NewMemoryStore(90)
	store.Upsert(context.Background(), presence.Key{Subject: "u1", Scope: "/home"}, 0, 0)

	reg := registry.New()
	now := int64(89)
	h := NewStreamHandler(store, reg, clock.Func(func() int64 { return now }), streamConfig())

	if frames := runStream(t, h); frames[0].OnlineTotal != 1 {
		t.Fatalf("at t=89 online_total = %d, want 1", frames[0].OnlineTotal)
	}

	now = 91
	if frames := runStream(t, h); frames[0].OnlineTotal != 0 {
		t.Fatalf("at t=91 online_total = %d, want 0", frames[0].OnlineTotal)
	}
}

func TestStreamDegradedFrameOnStoreFailure(t *testing.T) {
	reg := registry.New()
	h := NewStreamHandler(unavailableStore{}, reg, clock.Func(func() int64 { return 42 }), streamConfig())

	// The handler must return on its own after one degraded frame, well
	// before the context deadline.
	frames := runStream(t, h)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want exactly 1 degraded frame", len(frames))
	}
	view := frames[0]
	if view.Error != "store_unavailable" {
		t.Fatalf("error = %q, want store_unavailable", view.Error)
	}
	if view.TS != 42 || view.OnlineTotal != 0 {
		t.Fatalf("degraded view = %+v, want zeroed totals at ts=42", view)
	}
}

func TestStreamDetachesOnExit(t *testing.T) {
	store := presence.NewMemoryStore(90)
	reg := registry.New()
	h := NewStreamHandler(store, reg, clock.Func(func() int64 { return 0 }), streamConfig())

	runStream(t, h)

	if reg.Count() != 0 {
		t.Fatalf("registry count = %d after disconnect, want 0", reg.Count())
	}
}

func TestStreamConnectionsMode(t *testing.T) {
	cfg := streamConfig()
	cfg.OnlineMode = config.OnlineModeConnections

	store := presence.NewMemoryStore(90)
	reg := registry.New()
	h := NewStreamHandler(store, reg, clock.Func(func() int64 { return 0 }), cfg)

	frames := runStream(t, h)

	// Nobody has sent a heartbeat, but one subscriber is attached.
	if frames[0].OnlineTotal != 1 || frames[0].Watching != 1 {
		t.Fatalf("view = %+v, want online_total=watching=1", frames[0])
	}
}
