package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

func secondsDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

// Redis key layout:
//
//	presence:scopes          SET of scope names seen recently
//	presence:seen:{scope}    ZSET subject -> lastSeen
//	presence:act:{scope}     HASH subject -> lastActivity
//	presence:views           HASH scope -> cumulative view count
//	presence:views_total     cumulative view count across all scopes
//
// The views keys are monotonic counters and are never pruned or expired.
const (
	scopesKey     = "presence:scopes"
	viewsKey      = "presence:views"
	viewsTotalKey = "presence:views_total"
)

func seenKey(scope string) string { return "presence:seen:" + scope }
func actKey(scope string) string  { return "presence:act:" + scope }

// RedisStore is the shared-store variant, safe for concurrent multi-writer
// use across server instances. Redis expires whole keys but not set members,
// so member-level expiry is a score-range trim re-applied on every prune.
//
// lastSeen is guarded against moving backward via ZADD GT; the activity hash
// is last-arrival-wins, which is the documented simplification for this
// variant (a stale arrival can only lower the activity field, never resurrect
// or age a record).
type RedisStore struct {
	rdb *redis.Client
	ttl int64
}

// NewRedisStore wraps an existing client. ttlSeconds bounds record liveness;
// whole per-scope keys carry a 2*TTL safety expiry so abandoned scopes vanish
// even if no pruner ever runs again.
func NewRedisStore(rdb *redis.Client, ttlSeconds int64) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttlSeconds}
}

func (s *RedisStore) wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (s *RedisStore) keyTTL() int64 {
	return 2 * s.ttl
}

// Upsert applies one heartbeat as a single pipelined batch: register the
// scope, advance the member score (GT keeps time monotonic), record activity,
// trim the expired score range, and refresh the scope keys' own expiry. The
// batch runs as one unit so a partial failure cannot leave the scope's set
// without its expiry safeguard.
func (s *RedisStore) Upsert(ctx context.Context, key Key, lastSeen, lastActivity int64) (bool, error) {
	cutoff := lastSeen - s.ttl

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, scopesKey, key.Scope)
	added := pipe.ZAddGT(ctx, seenKey(key.Scope), redis.Z{Score: float64(lastSeen), Member: key.Subject})
	pipe.HSet(ctx, actKey(key.Scope), key.Subject, lastActivity)
	pipe.ZRemRangeByScore(ctx, seenKey(key.Scope), "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, seenKey(key.Scope), secondsDuration(s.keyTTL()))
	pipe.Expire(ctx, actKey(key.Scope), secondsDuration(s.keyTTL()))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, s.wrap("upsert", err)
	}
	return added.Val() == 1, nil
}

// Remove deletes the record for key from both the ranked set and the
// activity hash in one batch, so neither can outlive the other.
func (s *RedisStore) Remove(ctx context.Context, key Key) error {
	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, seenKey(key.Scope), key.Subject)
	pipe.HDel(ctx, actKey(key.Scope), key.Subject)
	if _, err := pipe.Exec(ctx); err != nil {
		return s.wrap("remove", err)
	}
	return nil
}

// pruneScopeScript sweeps one scope atomically: read the stale members, drop
// their activity fields, trim the expired score range, and retire the scope
// only if its set really is empty at that instant. Running it as one script
// is what makes a racing fresh upsert safe — the upsert either lands before
// the sweep (its GT score survives the range trim and the scope stays
// indexed) or after it (onto a clean scope it re-registers itself).
//
// KEYS: seen zset, activity hash, scope index. ARGV: cutoff, scope name.
var pruneScopeScript = redis.NewScript(`
local stale = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
if #stale > 0 then
	redis.call('HDEL', KEYS[2], unpack(stale))
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
end
if redis.call('ZCARD', KEYS[1]) == 0 then
	redis.call('SREM', KEYS[3], ARGV[2])
	redis.call('DEL', KEYS[1], KEYS[2])
end
return stale
`)

// PruneExpired trims every scope's set by score range. Each scope's sweep
// runs as a single atomic script, so a concurrent upsert with a fresh
// timestamp is never swept and never loses its activity field.
func (s *RedisStore) PruneExpired(ctx context.Context, now int64) ([]Key, error) {
	cutoff := strconv.FormatInt(now-s.ttl, 10)

	scopes, err := s.rdb.SMembers(ctx, scopesKey).Result()
	if err != nil {
		return nil, s.wrap("prune: scopes", err)
	}

	var removed []Key
	for _, scope := range scopes {
		keys := []string{seenKey(scope), actKey(scope), scopesKey}
		stale, err := pruneScopeScript.Run(ctx, s.rdb, keys, cutoff, scope).StringSlice()
		if err != nil {
			return removed, s.wrap("prune: sweep", err)
		}
		for _, subject := range stale {
			removed = append(removed, Key{Subject: subject, Scope: scope})
		}
	}
	return removed, nil
}

// Snapshot reads every scope's surviving score range and joins in the
// activity hash. A subject missing from the hash falls back to its lastSeen.
func (s *RedisStore) Snapshot(ctx context.Context, now int64) ([]Record, error) {
	minLive := strconv.FormatInt(now-s.ttl, 10)

	scopes, err := s.rdb.SMembers(ctx, scopesKey).Result()
	if err != nil {
		return nil, s.wrap("snapshot: scopes", err)
	}
	sort.Strings(scopes)

	var out []Record
	for _, scope := range scopes {
		members, err := s.rdb.ZRangeByScoreWithScores(ctx, seenKey(scope), &redis.ZRangeBy{
			Min: minLive,
			Max: "+inf",
		}).Result()
		if err != nil {
			return nil, s.wrap("snapshot: range", err)
		}
		if len(members) == 0 {
			continue
		}

		activities, err := s.rdb.HGetAll(ctx, actKey(scope)).Result()
		if err != nil {
			return nil, s.wrap("snapshot: activity", err)
		}

		for _, z := range members {
			subject, _ := z.Member.(string)
			lastSeen := int64(z.Score)
			lastActivity := lastSeen
			if raw, ok := activities[subject]; ok {
				if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
					lastActivity = parsed
				}
			}
			out = append(out, Record{
				Key:          Key{Subject: subject, Scope: scope},
				LastSeen:     lastSeen,
				LastActivity: lastActivity,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Scope != out[j].Key.Scope {
			return out[i].Key.Scope < out[j].Key.Scope
		}
		return out[i].Key.Subject < out[j].Key.Subject
	})
	return out, nil
}

// Ping reports backing-store reachability; the readiness probe depends on it.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return s.wrap("ping", err)
	}
	return nil
}

// IncrementViews bumps the per-scope and total cumulative view counters.
func (s *RedisStore) IncrementViews(ctx context.Context, scope string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, viewsKey, scope, 1)
	pipe.Incr(ctx, viewsTotalKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return s.wrap("views: incr", err)
	}
	return nil
}

// TotalViews returns the all-time view count across scopes.
func (s *RedisStore) TotalViews(ctx context.Context) (int64, error) {
	n, err := s.rdb.Get(ctx, viewsTotalKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, s.wrap("views: total", err)
	}
	return n, nil
}

// ViewsByScope returns the all-time view count per scope.
func (s *RedisStore) ViewsByScope(ctx context.Context) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, viewsKey).Result()
	if err != nil {
		return nil, s.wrap("views: by scope", err)
	}
	out := make(map[string]int64, len(raw))
	for scope, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[scope] = n
	}
	return out, nil
}
