// Package services contains the application services that sit between the
// HTTP adapters and the presence store.
package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pulsewatch/backend/internal/clock"
	"github.com/pulsewatch/backend/internal/models"
	"github.com/pulsewatch/backend/internal/presence"
)

// Stable validation error codes returned to clients.
const (
	CodeSubjectRequired = "sid_required"
	CodeInvalidKind     = "invalid_kind"
	CodeInvalidActivity = "invalid_last_activity"
)

// ValidationError marks a caller mistake: never retried, mapped to a 4xx
// response with a stable code.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string {
	return e.Code
}

// Ingestor is the sole mutation path into the presence store. It validates an
// inbound event and applies it as exactly one store call, plus a best-effort
// view-counter bump on first sight of a key.
type Ingestor struct {
	store presence.Store
	views presence.ViewCounter
	clock clock.Clock
}

// NewIngestor wires the ingest service. views may be nil to disable pageview
// counting.
func NewIngestor(store presence.Store, views presence.ViewCounter, clk clock.Clock) *Ingestor {
	return &Ingestor{store: store, views: views, clock: clk}
}

// Apply validates req and mutates the store. Validation runs in a fixed
// order: subject, kind, activity timestamp; the first failure wins and
// nothing is written.
func (s *Ingestor) Apply(ctx context.Context, req models.HitRequest) error {
	subject := firstNonBlank(req.UID, req.SID, req.SubjectID)
	if subject == "" {
		return &ValidationError{Code: CodeSubjectRequired}
	}

	kind, ok := normalizeKind(req.Kind)
	if !ok {
		return &ValidationError{Code: CodeInvalidKind}
	}

	now := s.clock.Now()

	activity, err := coerceActivity(req.LastActivity, now)
	if err != nil {
		return err
	}

	scope := firstNonBlank(req.Path, req.Scope)
	if scope == "" {
		scope = presence.GlobalScope
	}
	key := presence.Key{Subject: subject, Scope: scope}

	if kind == models.KindLeave {
		return s.store.Remove(ctx, key)
	}

	created, err := s.store.Upsert(ctx, key, now, activity)
	if err != nil {
		return err
	}
	if created && s.views != nil {
		// Views are a separate, best-effort concern; a counter failure
		// must not fail the heartbeat.
		if err := s.views.IncrementViews(ctx, scope); err != nil {
			slog.WarnContext(ctx, "view counter increment failed",
				slog.String("scope", scope), slog.Any("error", err))
		}
	}
	return nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// normalizeKind maps the wire kind to a canonical one. Legacy clients send
// "load"/"beat"/"unload"; an absent kind means heartbeat.
func normalizeKind(kind string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "heartbeat", "load", "beat":
		return models.KindHeartbeat, true
	case "leave", "unload":
		return models.KindLeave, true
	default:
		return "", false
	}
}

// coerceActivity accepts the loosely-typed last_activity field: absent means
// "now", numbers and numeric strings are taken as epoch seconds, anything
// else is a validation error.
func coerceActivity(raw any, now int64) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return now, nil
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, &ValidationError{Code: CodeInvalidActivity}
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, &ValidationError{Code: CodeInvalidActivity}
		}
		return n, nil
	default:
		return 0, &ValidationError{Code: CodeInvalidActivity}
	}
}
