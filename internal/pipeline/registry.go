package pipeline

import (
	"sync"
	"time"
)

type entry struct {
	pipeline *Pipeline
	lastUsed time.Time
}

// Registry holds one Pipeline per client session. Pipelines unused for
// longer than the idle TTL are evicted unless an attempt is running, which
// also discards a failed attempt that was never retried.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory func() *Pipeline
	idleTTL time.Duration
	now     func() time.Time
}

// NewRegistry builds a registry. A non-positive idleTTL disables eviction.
func NewRegistry(factory func() *Pipeline, idleTTL time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		factory: factory,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// For returns the session's pipeline, creating it on first use.
func (r *Registry) For(sessionID string) *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictIdle(now)

	e, ok := r.entries[sessionID]
	if !ok {
		e = &entry{pipeline: r.factory()}
		r.entries[sessionID] = e
	}
	e.lastUsed = now
	return e.pipeline
}

func (r *Registry) Lookup(sessionID string) (*Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictIdle(now)

	e, ok := r.entries[sessionID]
	if !ok {
		return nil, false
	}
	e.lastUsed = now
	return e.pipeline, true
}

// Drop forgets the session's pipeline. An attempt already running finishes
// on its own.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// evictIdle must be called with mu held.
func (r *Registry) evictIdle(now time.Time) {
	if r.idleTTL <= 0 {
		return
	}
	for id, e := range r.entries {
		if now.Sub(e.lastUsed) < r.idleTTL {
			continue
		}
		if e.pipeline.Status().Busy {
			continue
		}
		delete(r.entries, id)
	}
}
