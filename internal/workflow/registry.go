package workflow

import (
	"sync"
	"time"
)

type registryEntry struct {
	workflow *Workflow
	expires  time.Time
}

// Registry keeps one Workflow per operator session.
type Registry struct {
	mu        sync.Mutex
	loader    Loader
	newSubmit func() Submitter
	byKey     map[string]*registryEntry
	// Now is replaced in tests.
	Now func() time.Time
}

// NewRegistry creates workflows on demand. Each workflow gets its own
// submitter so the in-flight guard is per operator.
func NewRegistry(loader Loader, newSubmit func() Submitter) *Registry {
	return &Registry{
		loader:    loader,
		newSubmit: newSubmit,
		byKey:     make(map[string]*registryEntry),
		Now:       time.Now,
	}
}

// Get returns the workflow of the session key, creating it if needed. expires
// is when the session credential lapses; the zero time means never. Every call
// drops the workflows of lapsed sessions.
func (r *Registry) Get(key string, expires time.Time) *Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(r.Now())
	e, ok := r.byKey[key]
	if !ok {
		e = &registryEntry{workflow: New(r.loader, r.newSubmit())}
		r.byKey[key] = e
	}
	e.expires = expires
	return e.workflow
}

// Forget drops the workflow of a session that logged out or lapsed.
func (r *Registry) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byKey[key]; ok {
		_ = e.workflow.Close()
		delete(r.byKey, key)
	}
}

// Len reports how many sessions hold a workflow.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// sweepLocked drops expired sessions. A workflow with a submission in flight
// stays until a later sweep.
func (r *Registry) sweepLocked(now time.Time) {
	for key, e := range r.byKey {
		if e.expires.IsZero() || now.Before(e.expires) {
			continue
		}
		if err := e.workflow.Close(); err != nil {
			continue
		}
		delete(r.byKey, key)
	}
}
