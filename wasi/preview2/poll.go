package preview2

import (
	"context"
	"sync"
	"time"
)

// DefaultBlockBudget bounds a single pollable.block host call. Guests
// cannot truly block without starving the host, so block is a bounded
// wait: on expiry the call returns and the guest re-checks readiness.
const DefaultBlockBudget = 500 * time.Millisecond

// Pollable is a readiness condition the guest can poll or block on.
//
// Ready re-checks the underlying condition on every call
// (level-triggered semantics layered over edge-triggered native
// signals), so a late waiter still observes already-arrived data.
// Block returns once ready, on ctx cancellation, or when the budget
// expires; timeout is not an error and callers re-check Ready.
type Pollable interface {
	Ready() bool
	Block(ctx context.Context, budget time.Duration)
}

// SignalPollable is a stream-readiness pollable. Producers call Signal
// when data arrives; consumers clear the one-shot flag with
// ResetForNextWait after draining so the same pollable can be
// re-awaited. An optional probe keeps Ready level-triggered against
// the backing state.
type SignalPollable struct {
	mu       sync.Mutex
	wake     chan struct{}
	probe    func() bool
	signaled bool
}

func NewSignalPollable(probe func() bool) *SignalPollable {
	return &SignalPollable{
		wake:  make(chan struct{}, 1),
		probe: probe,
	}
}

// Signal marks the pollable ready and wakes one blocked waiter.
// Calling it repeatedly is safe.
func (p *SignalPollable) Signal() {
	p.mu.Lock()
	p.signaled = true
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// ResetForNextWait clears the one-shot signal so the pollable can be
// awaited again after the stream was drained.
func (p *SignalPollable) ResetForNextWait() {
	p.mu.Lock()
	p.signaled = false
	p.mu.Unlock()
	select {
	case <-p.wake:
	default:
	}
}

func (p *SignalPollable) Ready() bool {
	if p.probe != nil && p.probe() {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaled
}

func (p *SignalPollable) Block(ctx context.Context, budget time.Duration) {
	if p.Ready() {
		return
	}
	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case <-p.wake:
		// Re-arm so Ready observers and later waiters still see the signal.
		p.Signal()
	case <-timer.C:
	case <-ctx.Done():
	}
}

// TimerPollable becomes ready once wall-clock elapsed reaches the
// requested deadline and never blocks past it.
type TimerPollable struct {
	deadline time.Time
}

func NewTimerPollable(deadline time.Time) *TimerPollable {
	return &TimerPollable{deadline: deadline}
}

func (p *TimerPollable) Ready() bool {
	return !time.Now().Before(p.deadline)
}

func (p *TimerPollable) Block(ctx context.Context, budget time.Duration) {
	remaining := time.Until(p.deadline)
	if remaining <= 0 {
		return
	}
	if remaining > budget {
		remaining = budget
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// ConditionPollable tracks future resolution: ready once done is
// closed or the probe reports resolution.
type ConditionPollable struct {
	done  <-chan struct{}
	probe func() bool
}

func NewConditionPollable(probe func() bool, done <-chan struct{}) *ConditionPollable {
	return &ConditionPollable{done: done, probe: probe}
}

func (p *ConditionPollable) Ready() bool {
	if p.probe != nil && p.probe() {
		return true
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *ConditionPollable) Block(ctx context.Context, budget time.Duration) {
	if p.Ready() {
		return
	}
	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
	case <-ctx.Done():
	}
}
