package presence

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the in-process store variant: a mutex-guarded map. State is
// lost on restart, which is fine because every entry is TTL-bounded anyway.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Key]Record
	ttl     int64
}

// NewMemoryStore creates an empty in-process store with the given TTL in seconds.
func NewMemoryStore(ttlSeconds int64) *MemoryStore {
	return &MemoryStore{
		records: make(map[Key]Record),
		ttl:     ttlSeconds,
	}
}

// Upsert records a heartbeat, ignoring events older than the stored lastSeen.
func (s *MemoryStore) Upsert(_ context.Context, key Key, lastSeen, lastActivity int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[key]
	if ok && existing.LastSeen > lastSeen {
		// Stale event; keep the record where it is.
		return false, nil
	}
	if ok && lastActivity < existing.LastActivity {
		lastActivity = existing.LastActivity
	}
	s.records[key] = Record{Key: key, LastSeen: lastSeen, LastActivity: lastActivity}
	return !ok, nil
}

// Remove deletes the record for key.
func (s *MemoryStore) Remove(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// PruneExpired sweeps out every record past its TTL at `now`.
func (s *MemoryStore) PruneExpired(_ context.Context, now int64) ([]Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []Key
	for key, rec := range s.records {
		if rec.Expired(now, s.ttl) {
			removed = append(removed, key)
			delete(s.records, key)
		}
	}
	return removed, nil
}

// Snapshot copies out the surviving records under the lock; sorting and all
// downstream aggregation happen outside it.
func (s *MemoryStore) Snapshot(_ context.Context, now int64) ([]Record, error) {
	s.mu.Lock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.Expired(now, s.ttl) {
			out = append(out, rec)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Scope != out[j].Key.Scope {
			return out[i].Key.Scope < out[j].Key.Scope
		}
		return out[i].Key.Subject < out[j].Key.Subject
	})
	return out, nil
}

// Ping always succeeds: the store lives in this process.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// views is the in-process ViewCounter used when no ledger is configured.
type views struct {
	mu      sync.Mutex
	byScope map[string]int64
}

// NewMemoryViews creates an in-process ViewCounter. Counts do not survive a
// restart; deployments that care configure the sqlite ledger instead.
func NewMemoryViews() ViewCounter {
	return &views{byScope: make(map[string]int64)}
}

func (v *views) IncrementViews(_ context.Context, scope string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.byScope[scope]++
	return nil
}

func (v *views) TotalViews(_ context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var total int64
	for _, n := range v.byScope {
		total += n
	}
	return total, nil
}

func (v *views) ViewsByScope(_ context.Context) (map[string]int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]int64, len(v.byScope))
	for scope, n := range v.byScope {
		out[scope] = n
	}
	return out, nil
}
