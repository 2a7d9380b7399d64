package abi

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/tetratelabs/wazero/api"
)

// fakeMemory implements the subset of api.Memory the codec touches.
// Unused interface methods panic via the embedded nil.
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

// fakeAlloc hands out bump-allocated regions of the fake memory.
type fakeAlloc struct {
	api.Function
	next uint64
}

func (f *fakeAlloc) Call(_ context.Context, params ...uint64) ([]uint64, error) {
	size := params[3]
	ptr := f.next
	f.next += size
	return []uint64{ptr}, nil
}

func TestReadString(t *testing.T) {
	mem := newFakeMemory(64)
	copy(mem.buf[8:], "hello")

	s, err := ReadString(mem, 8, 5)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if s != "hello" {
		t.Errorf("got %q", s)
	}

	if _, err := ReadString(mem, 60, 10); err == nil {
		t.Error("expected out-of-bounds read to fail")
	}
}

func TestReadBytes_CopiesOutOfGuestMemory(t *testing.T) {
	mem := newFakeMemory(16)
	copy(mem.buf, []byte{1, 2, 3})

	got, err := ReadBytes(mem, 0, 3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	mem.buf[0] = 99 // guest overwrite must not alias the returned slice
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("returned bytes alias guest memory: %v", got)
	}
}

func TestWriteOptionEncodings(t *testing.T) {
	mem := newFakeMemory(16)

	if err := WriteOptionNone(mem, 0); err != nil {
		t.Fatal(err)
	}
	if mem.buf[0] != DiscNone {
		t.Errorf("none discriminant = %d", mem.buf[0])
	}

	if err := WriteOptionU32(mem, 0, 0xCAFE); err != nil {
		t.Fatal(err)
	}
	if mem.buf[0] != DiscSome {
		t.Errorf("some discriminant = %d", mem.buf[0])
	}
	if got := binary.LittleEndian.Uint32(mem.buf[4:]); got != 0xCAFE {
		t.Errorf("payload = %#x", got)
	}
}

func TestWriteResultEncodings(t *testing.T) {
	mem := newFakeMemory(16)

	if err := WriteResultOk(mem, 0); err != nil {
		t.Fatal(err)
	}
	if mem.buf[0] != DiscOk {
		t.Errorf("ok discriminant = %d", mem.buf[0])
	}

	if err := WriteStreamClosed(mem, 0); err != nil {
		t.Fatal(err)
	}
	if mem.buf[0] != DiscErr {
		t.Errorf("err discriminant = %d", mem.buf[0])
	}
	if mem.buf[4] != StreamErrClosed {
		t.Errorf("stream-error code = %d, want closed (%d)", mem.buf[4], StreamErrClosed)
	}
}

func TestWriteResultAlign8Encodings(t *testing.T) {
	mem := newFakeMemory(16)

	if err := WriteResultOkU32Align8(mem, 0, 0xBEEF); err != nil {
		t.Fatal(err)
	}
	if mem.buf[0] != DiscOk {
		t.Errorf("ok discriminant = %d", mem.buf[0])
	}
	if got := binary.LittleEndian.Uint32(mem.buf[8:]); got != 0xBEEF {
		t.Errorf("payload = %#x, want it at offset 8", got)
	}

	if err := WriteResultErrAlign8(mem, 0, 35); err != nil {
		t.Fatal(err)
	}
	if mem.buf[0] != DiscErr {
		t.Errorf("err discriminant = %d", mem.buf[0])
	}
	if mem.buf[8] != 35 {
		t.Errorf("error payload = %d, want it at offset 8", mem.buf[8])
	}
}

func TestReadBytesList_RejectsOverflowingCount(t *testing.T) {
	mem := newFakeMemory(64)

	// A count whose byte size wraps uint32 must fail cleanly instead
	// of reading a short pair table.
	if _, err := ReadBytesList(mem, 0, math.MaxUint32/8+1); err == nil {
		t.Fatal("expected overflowing count to fail")
	}
}

func TestWriteBytesResult(t *testing.T) {
	mem := newFakeMemory(256)
	alloc := &Allocator{fn: &fakeAlloc{next: 128}}

	payload := []byte("chunk-data")
	if err := WriteBytesResult(context.Background(), mem, alloc, 0, payload); err != nil {
		t.Fatalf("WriteBytesResult: %v", err)
	}

	if mem.buf[0] != DiscOk {
		t.Fatalf("discriminant = %d", mem.buf[0])
	}
	ptr := binary.LittleEndian.Uint32(mem.buf[4:])
	length := binary.LittleEndian.Uint32(mem.buf[8:])
	if ptr != 128 || length != uint32(len(payload)) {
		t.Fatalf("(ptr, len) = (%d, %d)", ptr, length)
	}
	if !bytes.Equal(mem.buf[ptr:ptr+length], payload) {
		t.Errorf("payload not written to guest memory")
	}
}

func TestWriteBytesResult_EmptyAvoidsAllocation(t *testing.T) {
	mem := newFakeMemory(16)
	alloc := &Allocator{fn: &fakeAlloc{next: 8}}

	if err := WriteBytesResult(context.Background(), mem, alloc, 0, nil); err != nil {
		t.Fatalf("WriteBytesResult: %v", err)
	}
	if length := binary.LittleEndian.Uint32(mem.buf[8:]); length != 0 {
		t.Errorf("expected zero length, got %d", length)
	}
}
