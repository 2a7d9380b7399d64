package clocks

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/resource"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

type fakeMemory struct {
	api.Memory
	buf []byte
}

func (m *fakeMemory) WriteUint32Le(offset uint32, v uint32) bool {
	if int(offset)+4 > len(m.buf) {
		return false
	}
	binary.LittleEndian.PutUint32(m.buf[offset:], v)
	return true
}

func (m *fakeMemory) WriteUint64Le(offset uint32, v uint64) bool {
	if int(offset)+8 > len(m.buf) {
		return false
	}
	binary.LittleEndian.PutUint64(m.buf[offset:], v)
	return true
}

type fakeModule struct {
	api.Module
	mem *fakeMemory
}

func (m *fakeModule) Memory() api.Memory { return m.mem }

func decl(t *testing.T, p linker.Provider, name string) linker.FuncDecl {
	t.Helper()
	for _, d := range p.Functions() {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("provider %s does not declare %q", p.Name(), name)
	return linker.FuncDecl{}
}

func TestWallClockNow(t *testing.T) {
	mod := &fakeModule{mem: &fakeMemory{buf: make([]byte, 256)}}
	p := NewWallClockProvider()

	before := time.Now().Unix()
	decl(t, p, "now").Fn(context.Background(), mod, []uint64{0})
	after := time.Now().Unix()

	secs := int64(binary.LittleEndian.Uint64(mod.mem.buf))
	if secs < before || secs > after {
		t.Fatalf("seconds %d outside [%d, %d]", secs, before, after)
	}
	if nanos := binary.LittleEndian.Uint32(mod.mem.buf[8:]); nanos >= 1e9 {
		t.Fatalf("nanoseconds field %d out of range", nanos)
	}
}

func TestMonotonicNow_NeverDecreases(t *testing.T) {
	p := NewMonotonicClockProvider(preview2.NewHost())
	now := decl(t, p, "now")

	stack := []uint64{0}
	now.Fn(context.Background(), nil, stack)
	first := stack[0]
	now.Fn(context.Background(), nil, stack)
	if stack[0] < first {
		t.Fatalf("monotonic clock went backwards: %d then %d", first, stack[0])
	}
}

func TestSubscribeDuration_TimerPollable(t *testing.T) {
	host := preview2.NewHost()
	p := NewMonotonicClockProvider(host)

	stack := []uint64{uint64(10 * time.Millisecond)}
	decl(t, p, "subscribe-duration").Fn(context.Background(), nil, stack)
	h := resource.Handle(int32(uint32(stack[0])))

	pollable, ok := resource.Get[preview2.Pollable](host.Resources, h)
	if !ok {
		t.Fatalf("subscribe-duration did not register a pollable")
	}
	if pollable.Ready() {
		t.Fatalf("timer ready before deadline")
	}
	pollable.Block(context.Background(), time.Second)
	if !pollable.Ready() {
		t.Fatalf("timer not ready after deadline")
	}
}

func TestSubscribeInstant_PastIsReady(t *testing.T) {
	host := preview2.NewHost()
	p := NewMonotonicClockProvider(host)

	stack := []uint64{0} // the provider epoch, already in the past
	decl(t, p, "subscribe-instant").Fn(context.Background(), nil, stack)
	h := resource.Handle(int32(uint32(stack[0])))

	pollable, ok := resource.Get[preview2.Pollable](host.Resources, h)
	if !ok {
		t.Fatalf("subscribe-instant did not register a pollable")
	}
	if !pollable.Ready() {
		t.Fatalf("past instant must be immediately ready")
	}
}
