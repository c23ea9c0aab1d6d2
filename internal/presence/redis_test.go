package presence

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, testTTL)
}

func TestRedisUpsertAndSnapshot(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	created, err := s.Upsert(ctx, key("u1", "/home"), 100, 90)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created {
		t.Errorf("first upsert should report created")
	}

	created, err = s.Upsert(ctx, key("u1", "/home"), 120, 110)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if created {
		t.Errorf("refresh should not report created")
	}

	recs, err := s.Snapshot(ctx, 120)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].LastSeen != 120 || recs[0].LastActivity != 110 {
		t.Errorf("record = %+v", recs[0])
	}
}

func TestRedisUpsertIgnoresOlderLastSeen(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	s.Upsert(ctx, key("u1", "/home"), 200, 200)
	if _, err := s.Upsert(ctx, key("u1", "/home"), 150, 150); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	recs, _ := s.Snapshot(ctx, 200)
	if len(recs) != 1 || recs[0].LastSeen != 200 {
		t.Fatalf("stale event moved the record: %+v", recs)
	}
}

func TestRedisSnapshotFiltersExpired(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	s.Upsert(ctx, key("old", "/a"), 0, 0)
	s.Upsert(ctx, key("fresh", "/a"), 100, 100)

	// No prune has run; the snapshot's score range must exclude "old".
	recs, err := s.Snapshot(ctx, 100)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(recs) != 1 || recs[0].Key.Subject != "fresh" {
		t.Fatalf("snapshot = %v, want only fresh", recs)
	}
}

func TestRedisPruneRemovesStaleAndEmptyScopes(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	s.Upsert(ctx, key("u1", "/dead"), 0, 0)
	s.Upsert(ctx, key("u2", "/live"), 0, 0)
	s.Upsert(ctx, key("u2", "/live"), 200, 200)

	removed, err := s.PruneExpired(ctx, 200)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if len(removed) != 1 || removed[0] != (Key{Subject: "u1", Scope: "/dead"}) {
		t.Fatalf("removed = %v, want [{u1 /dead}]", removed)
	}

	recs, _ := s.Snapshot(ctx, 200)
	if len(recs) != 1 || recs[0].Key.Scope != "/live" {
		t.Fatalf("snapshot = %v, want only /live", recs)
	}
}

func TestRedisRemove(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	s.Upsert(ctx, key("u1", "/home"), 10, 10)
	s.Upsert(ctx, key("u2", "/home"), 10, 10)

	if err := s.Remove(ctx, key("u1", "/home")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, key("ghost", "/home")); err != nil {
		t.Fatalf("Remove absent key: %v", err)
	}

	recs, _ := s.Snapshot(ctx, 10)
	if len(recs) != 1 || recs[0].Key.Subject != "u2" {
		t.Fatalf("snapshot = %v, want only u2", recs)
	}
}

func TestRedisViewCounters(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	s.IncrementViews(ctx, "/home")
	s.IncrementViews(ctx, "/home")
	s.IncrementViews(ctx, "/about")

	total, err := s.TotalViews(ctx)
	if err != nil {
		t.Fatalf("TotalViews: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	byScope, err := s.ViewsByScope(ctx)
	if err != nil {
		t.Fatalf("ViewsByScope: %v", err)
	}
	if byScope["/home"] != 2 || byScope["/about"] != 1 {
		t.Errorf("byScope = %v", byScope)
	}
}

func TestRedisNoLostUpdatesUnderConcurrentPrune(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	// A fresh upsert racing the sweep of an expired neighbor must always
	// survive, including when the sweep finds the scope momentarily empty.
	for i := 0; i < 50; i++ {
		scope := "/p" + strconv.Itoa(i)
		if _, err := s.Upsert(ctx, key("expired", scope), 0, 0); err != nil {
			t.Fatalf("seed Upsert: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Upsert(ctx, key("fresh", scope), 200, 200)
		}()
		go func() {
			defer wg.Done()
			s.PruneExpired(ctx, 200)
		}()
		wg.Wait()

		recs, err := s.Snapshot(ctx, 200)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		found := false
		for _, r := range recs {
			if r.Key == (Key{Subject: "fresh", Scope: scope}) {
				found = true
				if r.LastActivity != 200 {
					t.Fatalf("iteration %d: fresh record lost its activity: %+v", i, r)
				}
			}
			if r.Key.Subject == "expired" && r.Key.Scope == scope {
				t.Fatalf("iteration %d: expired record survived the sweep", i)
			}
		}
		if !found {
			t.Fatalf("iteration %d: fresh upsert lost by concurrent prune", i)
		}
	}
}

func TestRedisUnavailableWrapsSentinel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	s := NewRedisStore(rdb, testTTL)
	ctx := context.Background()

	mr.Close()

	if _, err := s.Upsert(ctx, key("u1", "/home"), 10, 10); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Upsert err = %v, want ErrUnavailable", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Ping err = %v, want ErrUnavailable", err)
	}
}
