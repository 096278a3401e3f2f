package support

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns one Workflow per presentation session. Sessions never share
// drafts, caches or state.
type Registry struct {
	newWorkflow func() *Workflow
	ttl         time.Duration

	mu       sync.Mutex
	sessions map[string]*Workflow
}

// NewRegistry returns a registry that builds workflows with factory and forgets
// idle sessions after ttl.
func NewRegistry(factory func() *Workflow, ttl time.Duration) *Registry {
	return &Registry{
		newWorkflow: factory,
		ttl:         ttl,
		sessions:    make(map[string]*Workflow),
	}
}

// Create starts a new session and returns its id.
func (r *Registry) Create() (string, *Workflow) {
	id := uuid.NewString()
	wf := r.newWorkflow()

	r.mu.Lock()
	r.sessions[id] = wf
	r.mu.Unlock()

	return id, wf
}

// New builds a workflow with the registry's factory without tracking it.
func (r *Registry) New() *Workflow {
	return r.newWorkflow()
}

// Get returns the workflow for id or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wf, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return wf, nil
}

// Discard drops a session. An attempt already in flight still runs to completion.
func (r *Registry) Discard(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle since before now-ttl. Sessions with an attempt in
// flight are kept.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, wf := range r.sessions {
		if wf.State() == StateLoading || wf.LastActive().After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	return removed
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				slog.Debug("support: expired idle sessions", "count", n)
			}
		}
	}
}
