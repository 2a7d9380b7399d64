package preview2

import (
	"context"
	"sync"
	"time"
)

// StreamError is the guest-visible stream failure. The only variant
// this host ever surfaces is "closed": the EOF sentinel produced once
// a body is exhausted and marked complete.
type StreamError struct {
	Closed bool
}

func (e *StreamError) Error() string {
	if e.Closed {
		return "stream closed"
	}
	return "stream error"
}

// ErrStreamClosed is returned by InputBody.Read after exhaustion.
var ErrStreamClosed = &StreamError{Closed: true}

// InputBody is an incoming byte stream shared between a producer (an
// HTTP data callback on the I/O thread, or a one-shot fill) and the
// guest reading through an input-stream handle.
//
// Reads are monotonic: bytes already returned are never re-delivered.
// Once the producer calls Complete and the buffer drains, Read reports
// closed rather than an empty success.
type InputBody struct {
	mu          sync.Mutex
	buf         []byte
	complete    bool
	consumed    bool
	subscribers []*SignalPollable
}

// NewInputBody returns an empty open body.
func NewInputBody() *InputBody {
	return &InputBody{}
}

// NewCompleteInputBody returns a body pre-filled with data and already
// marked complete (e.g. a fully buffered HTTP response).
func NewCompleteInputBody(data []byte) *InputBody {
	return &InputBody{buf: append([]byte(nil), data...), complete: true}
}

// Append adds a chunk and signals subscribed pollables.
func (b *InputBody) Append(chunk []byte) {
	b.mu.Lock()
	b.buf = append(b.buf, chunk...)
	subs := append([]*SignalPollable(nil), b.subscribers...)
	b.mu.Unlock()
	for _, p := range subs {
		p.Signal()
	}
}

// Complete marks the stream finished; no further appends are expected.
// Idempotent.
func (b *InputBody) Complete() {
	b.mu.Lock()
	b.complete = true
	subs := append([]*SignalPollable(nil), b.subscribers...)
	b.mu.Unlock()
	for _, p := range subs {
		p.Signal()
	}
}

// Read drains up to max bytes. Returns ErrStreamClosed only once the
// body is both exhausted and complete; before completion an empty read
// returns (nil, nil) so the guest polls again.
func (b *InputBody) Read(max uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		if b.complete {
			return nil, ErrStreamClosed
		}
		return nil, nil
	}
	n := uint64(len(b.buf))
	if n > max {
		n = max
	}
	out := make([]byte, n)
	copy(out, b.buf[:n])
	b.buf = b.buf[n:]
	return out, nil
}

// WaitReadable waits until data is buffered or the stream completes,
// bounded by budget. Blocking guest reads are host-side bounded waits,
// never unbounded blocks, so forward progress survives network
// failure; callers re-check state after return.
func (b *InputBody) WaitReadable(ctx context.Context, budget time.Duration) {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		if b.Pending() || b.Completed() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Pending reports whether unread bytes are buffered.
func (b *InputBody) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf) > 0
}

// Completed reports whether the producer finished the stream.
func (b *InputBody) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete
}

// MarkConsumed flags the body as handed to the guest. A body is
// consumable at most once; the second attempt fails.
func (b *InputBody) MarkConsumed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed {
		return false
	}
	b.consumed = true
	return true
}

// Subscribe returns a pollable that is ready whenever data is buffered
// or the stream completed, and is re-signaled on every later append.
func (b *InputBody) Subscribe() *SignalPollable {
	p := NewSignalPollable(func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.buf) > 0 || b.complete
	})
	b.mu.Lock()
	b.subscribers = append(b.subscribers, p)
	b.mu.Unlock()
	return p
}

// OutputBody is an append-only outgoing byte buffer. Writes always
// succeed; no backpressure is modeled.
type OutputBody struct {
	mu  sync.Mutex
	buf []byte
}

func NewOutputBody() *OutputBody {
	return &OutputBody{}
}

// Write appends data. The returned error is always nil; the signature
// keeps the call shape of richer stream sinks.
func (b *OutputBody) Write(data []byte) error {
	b.mu.Lock()
	b.buf = append(b.buf, data...)
	b.mu.Unlock()
	return nil
}

// Bytes returns a copy of everything written so far.
func (b *OutputBody) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}

// Len returns the number of buffered bytes.
func (b *OutputBody) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
