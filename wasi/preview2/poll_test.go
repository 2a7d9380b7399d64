package preview2

import (
	"context"
	"testing"
	"time"
)

func TestSignalPollable_ReadyAfterBlock(t *testing.T) {
	p := NewSignalPollable(nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Signal()
	}()

	p.Block(context.Background(), time.Second)
	if !p.Ready() {
		t.Error("isReady must be true immediately after a successful block")
	}
}

func TestSignalPollable_BlockTimeoutIsNotAnError(t *testing.T) {
	p := NewSignalPollable(nil)

	start := time.Now()
	p.Block(context.Background(), 20*time.Millisecond)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("block overran its budget: %v", elapsed)
	}
	if p.Ready() {
		t.Error("pollable became ready without a signal")
	}
}

func TestSignalPollable_SignalIsIdempotent(t *testing.T) {
	p := NewSignalPollable(nil)
	p.Signal()
	p.Signal()
	if !p.Ready() {
		t.Error("double signal lost readiness")
	}
	p.Block(context.Background(), time.Second) // must return immediately
}

func TestSignalPollable_ProbeIsLevelTriggered(t *testing.T) {
	have := false
	p := NewSignalPollable(func() bool { return have })

	if p.Ready() {
		t.Fatal("probe false but pollable ready")
	}
	have = true
	// No Signal was ever delivered; the late waiter still observes state.
	if !p.Ready() {
		t.Error("level-triggered probe not consulted")
	}
}

func TestTimerPollable(t *testing.T) {
	p := NewTimerPollable(time.Now().Add(30 * time.Millisecond))
	if p.Ready() {
		t.Fatal("timer ready before deadline")
	}

	start := time.Now()
	p.Block(context.Background(), time.Second)
	elapsed := time.Since(start)
	if elapsed < 25*time.Millisecond {
		t.Errorf("block returned before deadline: %v", elapsed)
	}
	if !p.Ready() {
		t.Error("timer not ready after deadline")
	}
}

func TestConditionPollable(t *testing.T) {
	done := make(chan struct{})
	p := NewConditionPollable(nil, done)

	if p.Ready() {
		t.Fatal("ready before resolution")
	}
	close(done)
	if !p.Ready() {
		t.Fatal("not ready after resolution")
	}
	p.Block(context.Background(), time.Second) // resolved: returns at once
}
