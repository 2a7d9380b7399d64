package resource

import (
	"sync"
)

// Handle is an opaque reference to a host object held by a Registry.
// Handle 0 is reserved and always invalid.
type Handle int32

// Dropper is optionally implemented by values that need cleanup when
// their handle is dropped.
type Dropper interface {
	Drop()
}

// Registry maps opaque handles to host-owned objects. Handles are
// assigned monotonically and never reassigned for the lifetime of the
// registry, so a stale handle can never alias a newer object.
//
// All operations are safe for concurrent use and never panic: an
// unknown handle is a first-class "not found" outcome, not a fault.
type Registry struct {
	mu      sync.Mutex
	entries map[Handle]any
	next    Handle
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Handle]any),
		next:    1,
	}
}

// Register stores obj and returns its handle.
func (r *Registry) Register(obj any) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.entries[h] = obj
	return h
}

// Lookup returns the raw object for a handle.
func (r *Registry) Lookup(h Handle) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.entries[h]
	return obj, ok
}

// Drop removes a handle and releases its object. Dropping an unknown
// handle is a no-op; a second drop of the same handle does nothing.
func (r *Registry) Drop(h Handle) {
	r.mu.Lock()
	obj, ok := r.entries[h]
	if ok {
		delete(r.entries, h)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if d, ok := obj.(Dropper); ok {
		d.Drop()
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear drops every live handle. Used during shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Handle]any)
	r.mu.Unlock()

	for _, obj := range entries {
		if d, ok := obj.(Dropper); ok {
			d.Drop()
		}
	}
}

// Get returns the object for h only if it has dynamic type T. A type
// mismatch and an absent handle are the same "not found" outcome.
func Get[T any](r *Registry, h Handle) (T, bool) {
	obj, ok := r.Lookup(h)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := obj.(T)
	if !ok {
		var zero T
		return zero, false
	}
	return v, true
}
