// Package registry provides asynchronous, de-duplicated resource
// loading on top of generation-tagged handle pools. Requests for the
// same key share one handle and one load; entries move through
// Pending, Ready and Failed states.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gogpu/frameq/handle"
)

// State is the lifecycle state of a registry entry.
type State uint8

const (
	// Pending means the load is in flight.
	Pending State = iota
	// Ready means the resource exists on the device.
	Ready
	// Failed means the load errored. The entry stays queryable until
	// deleted, but its key is released so a retry starts a new load.
	Failed
)

var stateNames = [...]string{
	Pending: "Pending",
	Ready:   "Ready",
	Failed:  "Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(?)"
}

// Source loads a resource's params and payload for a key.
type Source[P, D any] interface {
	Load(ctx context.Context, key string) (P, D, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc[P, D any] func(ctx context.Context, key string) (P, D, error)

// Load implements Source.
func (f SourceFunc[P, D]) Load(ctx context.Context, key string) (P, D, error) {
	return f(ctx, key)
}

type entry[P any] struct {
	state State
	key   string
	pms   P
	err   error
}

// Registry tracks resources of one kind. The zero value is not usable;
// construct with New.
//
// All methods are safe for concurrent use.
type Registry[P, D any] struct {
	mu     sync.Mutex
	pool   *handle.Pool[entry[P]]
	keys   map[string]handle.Handle
	source Source[P, D]
	commit func(h handle.Handle, pms P, data D)
	logger func() *slog.Logger
}

// New returns a registry backed by source. commit runs while the entry
// is still Pending, exactly once per successful load, and typically
// enqueues the device-side create command. logger supplies the
// structured logger for load failures; it may be nil.
func New[P, D any](source Source[P, D], commit func(h handle.Handle, pms P, data D), logger func() *slog.Logger) *Registry[P, D] {
	return &Registry[P, D]{
		pool:   handle.NewPool[entry[P]](),
		keys:   make(map[string]handle.Handle),
		source: source,
		commit: commit,
		logger: logger,
	}
}

// CreateLocal registers an already-loaded resource, bypassing the
// source. The entry is Ready immediately and carries no key.
func (r *Registry[P, D]) CreateLocal(pms P) handle.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool.Create(entry[P]{state: Ready, pms: pms})
}

// Create starts loading the resource named by key, or returns the
// handle of an earlier request for the same key. The returned handle is
// valid immediately; poll State to learn the outcome.
func (r *Registry[P, D]) Create(ctx context.Context, key string) handle.Handle {
	r.mu.Lock()
	if h, ok := r.keys[key]; ok {
		r.mu.Unlock()
		return h
	}
	h := r.pool.Create(entry[P]{state: Pending, key: key})
	r.keys[key] = h
	r.mu.Unlock()

	go r.load(ctx, h, key)
	return h
}

func (r *Registry[P, D]) load(ctx context.Context, h handle.Handle, key string) {
	pms, data, err := r.source.Load(ctx, key)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pool.Get(h)
	if !ok || e.state != Pending {
		// Deleted while in flight; drop the result. The key may
		// already belong to a newer request, which keeps its mapping.
		if cur, ok := r.keys[key]; ok && cur == h {
			delete(r.keys, key)
		}
		return
	}
	if err != nil {
		if r.logger != nil {
			r.logger().Error("resource load failed", "key", key, "err", err)
		}
		e.state = Failed
		e.err = err
		r.pool.Set(h, e)
		// Release the key so a later request retries.
		delete(r.keys, key)
		return
	}
	e.state = Ready
	e.pms = pms
	r.pool.Set(h, e)
	r.commit(h, pms, data)
}

// State reports the entry's lifecycle state. ok is false for stale or
// freed handles.
func (r *Registry[P, D]) State(h handle.Handle) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pool.Get(h)
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Params returns the entry's params. ok is false unless the entry is
// Ready.
func (r *Registry[P, D]) Params(h handle.Handle) (P, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pool.Get(h)
	if !ok || e.state != Ready {
		var zero P
		return zero, false
	}
	return e.pms, true
}

// SetParams replaces the params of a Ready entry.
func (r *Registry[P, D]) SetParams(h handle.Handle, pms P) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pool.Get(h)
	if !ok || e.state != Ready {
		return false
	}
	e.pms = pms
	return r.pool.Set(h, e)
}

// Err returns the load error of a Failed entry.
func (r *Registry[P, D]) Err(h handle.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pool.Get(h)
	if !ok {
		return nil
	}
	return e.err
}

// Delete frees the entry. wasReady reports whether a device-side
// resource existed, so the caller knows to enqueue its deletion. Stale
// handles return ok=false.
func (r *Registry[P, D]) Delete(h handle.Handle) (wasReady, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pool.Free(h)
	if !ok {
		return false, false
	}
	if e.key != "" {
		delete(r.keys, e.key)
	}
	return e.state == Ready, true
}

// Len returns the number of live entries.
func (r *Registry[P, D]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool.Len()
}
