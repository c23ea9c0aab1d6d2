package presence

import (
	"sort"

	"github.com/pulsewatch/backend/internal/models"
)

// Aggregator turns a store snapshot into one broadcast frame. It is a pure
// computation: the same snapshot and instant always produce an identical view.
type Aggregator struct {
	// ActiveThreshold in seconds: a record whose lastActivity is within this
	// window of now counts as active, otherwise it is idle.
	ActiveThreshold int64

	// TopLimit caps the per-scope breakdown; zero or negative disables it
	// even when ScopeBreakdown is set.
	TopLimit int

	// ScopeBreakdown enables the top-scopes section of the frame.
	ScopeBreakdown bool
}

// Compute aggregates the snapshot at `now`. Records are assumed already
// TTL-filtered by the store; every record in the snapshot counts as online.
func (a Aggregator) Compute(records []Record, now int64) models.View {
	activeCutoff := now - a.ActiveThreshold

	active := make([]string, 0, len(records))
	idle := make([]string, 0)
	perScope := make(map[string]int)

	for _, rec := range records {
		if rec.LastActivity >= activeCutoff {
			active = append(active, rec.Key.Subject)
		} else {
			idle = append(idle, rec.Key.Subject)
		}
		perScope[rec.Key.Scope]++
	}

	sort.Strings(active)
	sort.Strings(idle)

	view := models.View{
		TS:          now,
		OnlineTotal: len(active) + len(idle),
		ActiveTotal: len(active),
		IdleTotal:   len(idle),
		ActiveUIDs:  active,
		IdleUIDs:    idle,
	}

	if a.ScopeBreakdown && a.TopLimit > 0 {
		view.TopScopes = topScopes(perScope, a.TopLimit)
	}
	return view
}

// topScopes orders scopes by count descending, name ascending on ties, and
// truncates to limit. The tie-break makes the output deterministic.
func topScopes(perScope map[string]int, limit int) []models.ScopeCount {
	out := make([]models.ScopeCount, 0, len(perScope))
	for scope, count := range perScope {
		out = append(out, models.ScopeCount{Scope: scope, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Scope < out[j].Scope
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
