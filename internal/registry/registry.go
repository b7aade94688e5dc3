package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angeloszaimis/reverse-proxy/internal/backend"
)

var ErrEmptyPool = errors.New("registry requires at least one backend")

// Registry holds the upstream pool. Membership is fixed at construction;
// reads return a snapshot so selection never contends with state updates.
type Registry struct {
	mutex         sync.RWMutex
	backends      []*backend.Backend
	onStateChange func(*backend.Backend)
}

// New creates a Registry over the given pool. The pool must not be empty.
func New(backends []*backend.Backend) (*Registry, error) {
	if len(backends) == 0 {
		return nil, ErrEmptyPool
	}

	pool := make([]*backend.Backend, len(backends))
	copy(pool, backends)

	return &Registry{backends: pool}, nil
}

// OnStateChange registers a hook invoked whenever a backend's health state
// flips. Must be set before the registry is shared across goroutines.
func (r *Registry) OnStateChange(fn func(*backend.Backend)) {
	r.mutex.Lock()
	r.onStateChange = fn
	r.mutex.Unlock()
}

// Backends returns a snapshot of the pool in insertion order. Callers may
// iterate freely; the snapshot never mutates.
func (r *Registry) Backends() []*backend.Backend {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snapshot := make([]*backend.Backend, len(r.backends))
	copy(snapshot, r.backends)
	return snapshot
}

// Lookup finds a backend by its host:port address. Returns nil if the
// address is not in the pool.
func (r *Registry) Lookup(address string) *backend.Backend {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, b := range r.backends {
		if b.URL().Host == address {
			return b
		}
	}

	return nil
}

// RecordOutcome reports the result of one forwarding attempt against a
// backend. Called exactly once per attempt. Health transitions trigger the
// state-change hook.
func (r *Registry) RecordOutcome(b *backend.Backend, success bool, latency time.Duration) {
	var changed bool
	if success {
		changed = b.RecordSuccess(latency)
	} else {
		changed = b.RecordFailure(time.Now(), latency)
	}

	if !changed {
		return
	}

	r.mutex.RLock()
	hook := r.onStateChange
	r.mutex.RUnlock()

	if hook != nil {
		hook(b)
	}
}

// SetDraining drains or undrains the backend with the given host:port
// address. A draining backend finishes in-flight requests but is never
// selected for new ones.
func (r *Registry) SetDraining(address string, draining bool) error {
	b := r.Lookup(address)
	if b == nil {
		return fmt.Errorf("unknown backend %q", address)
	}

	if !b.SetDraining(draining) {
		return nil
	}

	r.mutex.RLock()
	hook := r.onStateChange
	r.mutex.RUnlock()

	if hook != nil {
		hook(b)
	}

	return nil
}
