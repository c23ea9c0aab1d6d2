package models

// Event kinds accepted by the ingestion endpoint. Legacy client labels
// ("load", "beat", "unload") are normalized to these by the ingest service.
const (
	KindHeartbeat = "heartbeat"
	KindLeave     = "leave"
)

// HitRequest is the body of POST /v1/hit. Field aliases exist because
// deployed clients disagree on naming; the first non-empty one wins.
type HitRequest struct {
	UID       string `json:"uid,omitempty"`
	SID       string `json:"sid,omitempty"`
	SubjectID string `json:"subjectId,omitempty"`

	Path  string `json:"path,omitempty"`
	Scope string `json:"scope,omitempty"`

	Kind string `json:"kind,omitempty"`

	// LastActivity is client-reported and loosely typed on the wire:
	// a JSON number or a numeric string are both accepted.
	LastActivity any `json:"last_activity,omitempty"`
}

// HitResponse is returned by POST /v1/hit.
type HitResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ScopeCount is one entry of the top-scopes breakdown.
type ScopeCount struct {
	Scope string `json:"scope"`
	Count int    `json:"count"`
}

// View is one broadcast frame: the aggregate presence picture at one instant.
type View struct {
	TS          int64  `json:"ts"`
	OnlineTotal int    `json:"online_total"`
	ActiveTotal int    `json:"active_total"`
	IdleTotal   int    `json:"idle_total"`

	ActiveUIDs []string `json:"active_uids"`
	IdleUIDs   []string `json:"idle_uids"`

	TopScopes []ScopeCount `json:"top_scopes,omitempty"`

	// Watching is the number of currently attached stream subscribers.
	Watching int `json:"watching,omitempty"`

	Error string `json:"error,omitempty"`
}

// StatsResponse is returned by GET /v1/stats from the pageview ledger.
type StatsResponse struct {
	TotalViews   int64            `json:"total_views"`
	ViewsByScope map[string]int64 `json:"views_by_scope"`
}

// HealthResponse is returned by the liveness and readiness probes.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the generic error body for non-hit endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
