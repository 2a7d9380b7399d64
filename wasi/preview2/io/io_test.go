package io

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

func newFakeMemory(size int) *fakeMemory {
	return &fakeMemory{buf: make([]byte, size)}
}

func (m *fakeMemory) Read(offset, count uint32) ([]byte, bool) {
	if int(offset)+int(count) > len(m.buf) {
		return nil, false
	}
	return m.buf[offset : offset+count], true
}

func (m *fakeMemory) Write(offset uint32, v []byte) bool {
	if int(offset)+len(v) > len(m.buf) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}

func (m *fakeMemory) WriteByte(offset uint32, v byte) bool {
	return m.Write(offset, []byte{v})
}

func (m *fakeMemory) WriteUint32Le(offset uint32, v uint32) bool {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.Write(offset, b[:])
}

func (m *fakeMemory) WriteUint64Le(offset uint32, v uint64) bool {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return m.Write(offset, b[:])
}

func (m *fakeMemory) ReadUint32Le(offset uint32) (uint32, bool) {
	b, ok := m.Read(offset, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

type fakeAllocFn struct {
	api.Function
	next uint64
}

func (f *fakeAllocFn) Call(_ context.Context, params ...uint64) ([]uint64, error) {
	size := params[3]
	ptr := f.next
	f.next += size
	if rem := f.next % 8; rem != 0 {
		f.next += 8 - rem
	}
	return []uint64{ptr}, nil
}

type fakeModule struct {
	api.Module
	mem   *fakeMemory
	alloc api.Function
}

func newFakeModule() *fakeModule {
	return &fakeModule{
		mem:   newFakeMemory(64 * 1024),
		alloc: &fakeAllocFn{next: 4096},
	}
}

func (m *fakeModule) Memory() api.Memory { return m.mem }

func (m *fakeModule) ExportedFunction(name string) api.Function {
	if name == "cabi_realloc" {
		return m.alloc
	}
	return nil
}

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

func TestInputStreamRead(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	p := NewStreamsProvider(host)

	body := preview2.NewInputBody()
	body.Append([]byte("hello"))
	h := host.Resources.Register(body)

	const retptr = 128
	stack := []uint64{uint64(uint32(h)), 1024, retptr}
	decl(t, p, "[method]input-stream.read").Fn(context.Background(), mod, stack)

	if mod.mem.buf[retptr] != 0 {
		t.Fatalf("expected ok discriminant, got %d", mod.mem.buf[retptr])
	}
	ptr := binary.LittleEndian.Uint32(mod.mem.buf[retptr+4:])
	length := binary.LittleEndian.Uint32(mod.mem.buf[retptr+8:])
	if got := string(mod.mem.buf[ptr : ptr+length]); got != "hello" {
		t.Fatalf("read %q, want %q", got, "hello")
	}
}

func TestInputStreamRead_EmptyOpenIsOkEmpty(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	p := NewStreamsProvider(host)
	h := host.Resources.Register(preview2.NewInputBody())

	const retptr = 128
	stack := []uint64{uint64(uint32(h)), 1024, retptr}
	decl(t, p, "[method]input-stream.read").Fn(context.Background(), mod, stack)

	if mod.mem.buf[retptr] != 0 {
		t.Fatalf("open empty stream must read ok, got discriminant %d", mod.mem.buf[retptr])
	}
	if length := binary.LittleEndian.Uint32(mod.mem.buf[retptr+8:]); length != 0 {
		t.Fatalf("expected zero-length read, got %d", length)
	}
}

func TestInputStreamRead_ClosedAfterDrain(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	p := NewStreamsProvider(host)

	body := preview2.NewInputBody()
	body.Append([]byte("x"))
	body.Complete()
	h := host.Resources.Register(body)

	read := decl(t, p, "[method]input-stream.read")
	const retptr = 128
	read.Fn(context.Background(), mod, []uint64{uint64(uint32(h)), 1024, retptr})
	if mod.mem.buf[retptr] != 0 {
		t.Fatalf("buffered bytes must still read ok after completion")
	}

	read.Fn(context.Background(), mod, []uint64{uint64(uint32(h)), 1024, retptr})
	if mod.mem.buf[retptr] != 1 {
		t.Fatalf("drained complete stream must read closed, got discriminant %d", mod.mem.buf[retptr])
	}
}

func TestInputStreamRead_UnknownHandleClosed(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	p := NewStreamsProvider(host)

	const retptr = 128
	decl(t, p, "[method]input-stream.read").Fn(context.Background(), mod, []uint64{999, 1024, retptr})
	if mod.mem.buf[retptr] != 1 {
		t.Fatalf("unknown handle must read closed")
	}
}

func TestBlockingRead_WaitsForProducer(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	p := NewStreamsProvider(host)

	body := preview2.NewInputBody()
	h := host.Resources.Register(body)

	go func() {
		time.Sleep(20 * time.Millisecond)
		body.Append([]byte("late"))
	}()

	const retptr = 128
	decl(t, p, "[method]input-stream.blocking-read").Fn(context.Background(), mod, []uint64{uint64(uint32(h)), 1024, retptr})

	if mod.mem.buf[retptr] != 0 {
		t.Fatalf("expected ok discriminant")
	}
	if length := binary.LittleEndian.Uint32(mod.mem.buf[retptr+8:]); length != 4 {
		t.Fatalf("expected the late chunk, got length %d", length)
	}
}

func TestOutputStreamWrite(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	p := NewStreamsProvider(host)

	body := preview2.NewOutputBody()
	h := host.Resources.Register(body)

	copy(mod.mem.buf[256:], "written")
	const retptr = 128
	decl(t, p, "[method]output-stream.write").Fn(context.Background(), mod, []uint64{uint64(uint32(h)), 256, 7, retptr})

	if mod.mem.buf[retptr] != 0 {
		t.Fatalf("write must succeed")
	}
	if got := string(body.Bytes()); got != "written" {
		t.Fatalf("body holds %q, want %q", got, "written")
	}
}

func TestOutputStream_UnknownHandleClosed(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	p := NewStreamsProvider(host)

	const retptr = 128
	decl(t, p, "[method]output-stream.write").Fn(context.Background(), mod, []uint64{42, 256, 0, retptr})
	if mod.mem.buf[retptr] != 1 {
		t.Fatalf("write to unknown handle must report closed")
	}
}

func TestSubscribeAndPoll(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	streams := NewStreamsProvider(host)
	poll := NewPollProvider(host)

	body := preview2.NewInputBody()
	h := host.Resources.Register(body)

	stack := []uint64{uint64(uint32(h))}
	decl(t, streams, "[method]input-stream.subscribe").Fn(context.Background(), mod, stack)
	pollableHandle := uint32(stack[0])
	if pollableHandle == 0 {
		t.Fatalf("subscribe returned invalid handle")
	}

	// Not ready while the body is empty and open.
	readyStack := []uint64{uint64(pollableHandle)}
	decl(t, poll, "[method]pollable.ready").Fn(context.Background(), mod, readyStack)
	if readyStack[0] != 0 {
		t.Fatalf("pollable ready before any data")
	}

	body.Append([]byte("data"))

	const listPtr, retptr = 512, 128
	mod.mem.WriteUint32Le(listPtr, pollableHandle)
	decl(t, poll, "poll").Fn(context.Background(), mod, []uint64{listPtr, 1, retptr})

	count := binary.LittleEndian.Uint32(mod.mem.buf[retptr+4:])
	if count != 1 {
		t.Fatalf("expected one ready index, got %d", count)
	}
	idxPtr := binary.LittleEndian.Uint32(mod.mem.buf[retptr:])
	if idx := binary.LittleEndian.Uint32(mod.mem.buf[idxPtr:]); idx != 0 {
		t.Fatalf("ready index = %d, want 0", idx)
	}
}

func TestPoll_TimesOutEmpty(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	poll := NewPollProvider(host)

	h := host.Resources.Register(preview2.Pollable(preview2.NewSignalPollable(nil)))

	const listPtr, retptr = 512, 128
	mod.mem.WriteUint32Le(listPtr, uint32(h))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	decl(t, poll, "poll").Fn(ctx, mod, []uint64{listPtr, 1, retptr})

	if count := binary.LittleEndian.Uint32(mod.mem.buf[retptr+4:]); count != 0 {
		t.Fatalf("expected empty ready list, got %d entries", count)
	}
}

func TestPoll_DanglingHandleIsReady(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	poll := NewPollProvider(host)

	const listPtr, retptr = 512, 128
	mod.mem.WriteUint32Le(listPtr, 7777)
	decl(t, poll, "poll").Fn(context.Background(), mod, []uint64{listPtr, 1, retptr})

	if count := binary.LittleEndian.Uint32(mod.mem.buf[retptr+4:]); count != 1 {
		t.Fatalf("dangling handle should poll ready, got %d entries", count)
	}
}

func TestPollableBlock_BudgetBounded(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	poll := NewPollProvider(host)

	h := host.Resources.Register(preview2.Pollable(preview2.NewSignalPollable(nil)))

	start := time.Now()
	decl(t, poll, "[method]pollable.block").Fn(context.Background(), mod, []uint64{uint64(uint32(h))})
	if elapsed := time.Since(start); elapsed > 2*preview2.DefaultBlockBudget {
		t.Fatalf("block exceeded budget: %v", elapsed)
	}
}

func TestResourceDrop_Idempotent(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	p := NewStreamsProvider(host)

	h := host.Resources.Register(preview2.NewInputBody())
	drop := decl(t, p, "[resource-drop]input-stream")
	drop.Fn(context.Background(), mod, []uint64{uint64(uint32(h))})
	drop.Fn(context.Background(), mod, []uint64{uint64(uint32(h))})

	if _, ok := resource.Get[*preview2.InputBody](host.Resources, h); ok {
		t.Fatalf("handle still resolves after drop")
	}
}

func TestErrorToDebugString_Unknown(t *testing.T) {
	host := preview2.NewHost()
	mod := newFakeModule()
	p := NewErrorProvider(host)

	const retptr = 128
	decl(t, p, "[method]error.to-debug-string").Fn(context.Background(), mod, []uint64{31337, retptr})

	ptr := binary.LittleEndian.Uint32(mod.mem.buf[retptr:])
	length := binary.LittleEndian.Uint32(mod.mem.buf[retptr+4:])
	if got := string(mod.mem.buf[ptr : ptr+length]); got != "unknown i/o error" {
		t.Fatalf("debug string %q", got)
	}
}
