// Package presence holds the live-presence engine: the store of who was seen
// when, TTL-based expiry, and the aggregation that turns a store snapshot into
// a broadcast frame.
package presence

import (
	"context"
	"errors"
)

// GlobalScope is where events without an explicit scope land.
const GlobalScope = "_global"

// ErrUnavailable wraps any backing-store failure (connection refused, timeout).
// Callers match it with errors.Is to distinguish infrastructure faults from
// caller mistakes.
var ErrUnavailable = errors.New("presence store unavailable")

// Key identifies one presence record: one reporting subject on one scope.
type Key struct {
	Subject string
	Scope   string
}

// Record is the latest known liveness entry for a key. Timestamps are Unix
// epoch seconds. LastActivity is client-reported and may lag or lead LastSeen.
type Record struct {
	Key          Key
	LastSeen     int64
	LastActivity int64
}

// Expired reports whether the record is past its TTL at the given instant.
func (r Record) Expired(now, ttl int64) bool {
	return r.LastSeen < now-ttl
}

// Store is the single shared-mutable-state boundary of the service. All
// methods are safe for concurrent use. Implementations carry a fixed TTL;
// `now` is passed explicitly so callers control the clock.
type Store interface {
	// Upsert records a heartbeat. An event whose lastSeen is strictly older
	// than the stored one is ignored, so records never move backward in time.
	// The returned bool reports whether the key was newly created.
	Upsert(ctx context.Context, key Key, lastSeen, lastActivity int64) (bool, error)

	// Remove deletes the record for key. Removing an absent key is a no-op.
	Remove(ctx context.Context, key Key) error

	// PruneExpired physically removes every record with lastSeen < now-TTL
	// and returns the removed keys. Safe to run concurrently with Upsert:
	// a fresh concurrent upsert always survives the sweep.
	PruneExpired(ctx context.Context, now int64) ([]Key, error)

	// Snapshot returns a consistent copy of all records live at `now`,
	// ordered by scope then subject. Expired records are filtered out even
	// if PruneExpired has not swept them yet.
	Snapshot(ctx context.Context, now int64) ([]Record, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// ViewCounter tracks cumulative pageviews: a monotonic counter per scope,
// incremented on first sight of a subject and never pruned. It is a separate
// concern from live presence and may be backed by different storage.
type ViewCounter interface {
	IncrementViews(ctx context.Context, scope string) error
	TotalViews(ctx context.Context) (int64, error)
	ViewsByScope(ctx context.Context) (map[string]int64, error)
}
