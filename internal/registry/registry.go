// Package registry tracks currently attached stream subscribers. It exists so
// "online" can also mean "watching the stream right now": deployments running
// in connections mode report the attached count instead of the heartbeat view.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is a concurrency-safe set of attached subscribers.
type Registry struct {
	mu   sync.Mutex
	subs map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{subs: make(map[string]struct{})}
}

// Attach registers a new subscriber and returns its handle. The caller must
// Detach the handle on every exit path; deferring it right after Attach is
// the expected pattern.
func (r *Registry) Attach() *Subscriber {
	id := uuid.NewString()
	r.mu.Lock()
	r.subs[id] = struct{}{}
	r.mu.Unlock()
	return &Subscriber{id: id, registry: r}
}

// Count returns the number of currently attached subscribers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Registry) detach(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Subscriber is one attached stream connection.
type Subscriber struct {
	id       string
	registry *Registry
	once     sync.Once
}

// ID returns the subscriber's opaque identifier, used for log correlation.
func (s *Subscriber) ID() string {
	return s.id
}

// Detach removes the subscriber from the registry. Idempotent: detaching
// twice never double-decrements the count.
func (s *Subscriber) Detach() {
	s.once.Do(func() {
		s.registry.detach(s.id)
	})
}
