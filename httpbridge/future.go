package httpbridge

import (
	"sync"

	"github.com/tidewave/wasmhost/wasi/preview2"
)

// Future bridges one asynchronous network operation into the guest's
// poll model. It holds at most one of {response, error} and transitions
// created → pending → resolved exactly once; late resolution attempts
// are dropped, so the I/O-thread signal is idempotent.
type Future struct {
	mu       sync.Mutex
	done     chan struct{}
	resp     *IncomingResponse
	err      error
	resolved bool
	consumed bool
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// ResolveResponse settles the future with a response. No-op if already
// resolved.
func (f *Future) ResolveResponse(resp *IncomingResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return
	}
	f.resp = resp
	f.resolved = true
	close(f.done)
}

// ResolveError settles the future with a network error. No-op if
// already resolved.
func (f *Future) ResolveError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return
	}
	f.err = err
	f.resolved = true
	close(f.done)
}

// Resolved reports whether the future has settled.
func (f *Future) Resolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}

// Done is closed on resolution; pollables block on it.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled outcome. ok is false while pending. The
// first successful call marks the future consumed; later calls report
// consumed=true so the provider can surface the ABI's "already taken"
// arm.
func (f *Future) Result() (resp *IncomingResponse, err error, ok bool, consumed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolved {
		return nil, nil, false, false
	}
	if f.consumed {
		return nil, nil, true, true
	}
	f.consumed = true
	return f.resp, f.err, true, false
}

// Subscribe returns a pollable tracking resolution.
func (f *Future) Subscribe() *preview2.ConditionPollable {
	return preview2.NewConditionPollable(f.Resolved, f.done)
}
