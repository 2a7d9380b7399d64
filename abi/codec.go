package abi

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/errors"
)

// Canonical-ABI discriminants shared by every encoded value.
const (
	DiscNone = 0 // option<T> absent
	DiscSome = 1 // option<T> present
	DiscOk   = 0 // result<T,E> ok arm
	DiscErr  = 1 // result<T,E> err arm
)

// StreamErrClosed is the only stream-error variant the host produces.
// It is the EOF sentinel, distinct from a zero-length successful read.
const StreamErrClosed = 1

var errOOB = errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
	Detail("write outside guest linear memory").Build()

// ReadBytes copies length bytes starting at ptr out of guest memory.
func ReadBytes(mem api.Memory, ptr, length uint32) ([]byte, error) {
	data, ok := mem.Read(ptr, length)
	if !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("read [%d,%d) outside guest linear memory", ptr, ptr+length).
			Build()
	}
	// mem.Read aliases guest memory; copy so the value survives guest writes.
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// ReadString reads a canonical (ptr, len) string from guest memory.
func ReadString(mem api.Memory, ptr, length uint32) (string, error) {
	data, err := ReadBytes(mem, ptr, length)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteString allocates guest memory for s and copies it in, returning
// the guest pointer and length.
func WriteString(ctx context.Context, mem api.Memory, alloc *Allocator, s string) (uint32, uint32, error) {
	return WriteBytes(ctx, mem, alloc, []byte(s))
}

// WriteBytes allocates guest memory for data and copies it in. Results
// must live in guest-addressable memory, never host-only buffers.
func WriteBytes(ctx context.Context, mem api.Memory, alloc *Allocator, data []byte) (uint32, uint32, error) {
	if len(data) == 0 {
		return 0, 0, nil
	}
	ptr, err := alloc.Alloc(ctx, uint32(len(data)), 1)
	if err != nil {
		return 0, 0, err
	}
	if !mem.Write(ptr, data) {
		return 0, 0, errOOB
	}
	return ptr, uint32(len(data)), nil
}

// WriteOptionNone writes option<T> none: a single zero discriminant byte.
func WriteOptionNone(mem api.Memory, retptr uint32) error {
	if !mem.WriteByte(retptr, DiscNone) {
		return errOOB
	}
	return nil
}

// WriteOptionU32 writes option<u32> some(v): discriminant byte then the
// payload at the next 4-byte boundary.
func WriteOptionU32(mem api.Memory, retptr, v uint32) error {
	if !mem.WriteByte(retptr, DiscSome) {
		return errOOB
	}
	if !mem.WriteUint32Le(retptr+4, v) {
		return errOOB
	}
	return nil
}

// WriteResultOk writes result<_, E> ok with no payload.
func WriteResultOk(mem api.Memory, retptr uint32) error {
	if !mem.WriteByte(retptr, DiscOk) {
		return errOOB
	}
	return nil
}

// WriteResultErr writes result<T, E> err with a one-byte payload (enum
// or variant discriminant of E).
func WriteResultErr(mem api.Memory, retptr uint32, code uint8) error {
	if !mem.WriteByte(retptr, DiscErr) {
		return errOOB
	}
	if !mem.WriteByte(retptr+4, code) {
		return errOOB
	}
	return nil
}

// WriteResultOkU32 writes result<u32, E> ok(v).
func WriteResultOkU32(mem api.Memory, retptr, v uint32) error {
	if !mem.WriteByte(retptr, DiscOk) {
		return errOOB
	}
	if !mem.WriteUint32Le(retptr+4, v) {
		return errOOB
	}
	return nil
}

// WriteResultOkU64 writes result<u64, E> ok(v). The payload sits at an
// 8-byte boundary past the discriminant.
func WriteResultOkU64(mem api.Memory, retptr uint32, v uint64) error {
	if !mem.WriteByte(retptr, DiscOk) {
		return errOOB
	}
	if !mem.WriteUint64Le(retptr+8, v) {
		return errOOB
	}
	return nil
}

// WriteResultOkU32Align8 writes result<u32-sized, E> ok(v) for an E
// whose 8-byte alignment places the payload at retptr+8.
func WriteResultOkU32Align8(mem api.Memory, retptr, v uint32) error {
	if !mem.WriteByte(retptr, DiscOk) {
		return errOOB
	}
	if !mem.WriteUint32Le(retptr+8, v) {
		return errOOB
	}
	return nil
}

// WriteResultErrAlign8 writes result<T, E> err with a one-byte variant
// discriminant of E at retptr+8, for an E whose alignment is 8.
func WriteResultErrAlign8(mem api.Memory, retptr uint32, code uint8) error {
	if !mem.WriteByte(retptr, DiscErr) {
		return errOOB
	}
	if !mem.WriteByte(retptr+8, code) {
		return errOOB
	}
	return nil
}

// WriteBytesResult writes result<list<u8>, E> ok: discriminant byte,
// then a little-endian (ptr, len) pair referencing a fresh guest
// allocation holding data.
func WriteBytesResult(ctx context.Context, mem api.Memory, alloc *Allocator, retptr uint32, data []byte) error {
	ptr, length, err := WriteBytes(ctx, mem, alloc, data)
	if err != nil {
		return err
	}
	var buf [12]byte
	buf[0] = DiscOk
	binary.LittleEndian.PutUint32(buf[4:], ptr)
	binary.LittleEndian.PutUint32(buf[8:], length)
	if !mem.Write(retptr, buf[:]) {
		return errOOB
	}
	return nil
}

// WriteStreamClosed writes result<T, stream-error> err(closed).
func WriteStreamClosed(mem api.Memory, retptr uint32) error {
	return WriteResultErr(mem, retptr, StreamErrClosed)
}

// WriteRawBytes writes a plain (ptr, len) list or string return with
// no discriminant; the payload is allocated in guest memory.
func WriteRawBytes(ctx context.Context, mem api.Memory, alloc *Allocator, retptr uint32, data []byte) error {
	ptr, length, err := WriteBytes(ctx, mem, alloc, data)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:], ptr)
	binary.LittleEndian.PutUint32(buf[4:], length)
	if !mem.Write(retptr, buf[:]) {
		return errOOB
	}
	return nil
}

// WriteOptionString writes option<string> some: discriminant byte at
// retptr, then (ptr, len) at retptr+4 with the payload in guest memory.
func WriteOptionString(ctx context.Context, mem api.Memory, alloc *Allocator, retptr uint32, s string) error {
	ptr, length, err := WriteString(ctx, mem, alloc, s)
	if err != nil {
		return err
	}
	if !mem.WriteByte(retptr, DiscSome) {
		return errOOB
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:], ptr)
	binary.LittleEndian.PutUint32(buf[4:], length)
	if !mem.Write(retptr+4, buf[:]) {
		return errOOB
	}
	return nil
}

// WritePairList writes a list<tuple<list<u8>, list<u8>>> return: an
// array of 16-byte entries (each two (ptr, len) pairs), referenced by
// a (ptr, count) pair at retptr.
func WritePairList(ctx context.Context, mem api.Memory, alloc *Allocator, retptr uint32, pairs [][2][]byte) error {
	entries := make([]byte, 16*len(pairs))
	for i, pair := range pairs {
		for j := 0; j < 2; j++ {
			ptr, length, err := WriteBytes(ctx, mem, alloc, pair[j])
			if err != nil {
				return err
			}
			binary.LittleEndian.PutUint32(entries[16*i+8*j:], ptr)
			binary.LittleEndian.PutUint32(entries[16*i+8*j+4:], length)
		}
	}
	var arrayPtr uint32
	if len(entries) > 0 {
		var err error
		arrayPtr, err = alloc.Alloc(ctx, uint32(len(entries)), 4)
		if err != nil {
			return err
		}
		if !mem.Write(arrayPtr, entries) {
			return errOOB
		}
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:], arrayPtr)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(pairs)))
	if !mem.Write(retptr, buf[:]) {
		return errOOB
	}
	return nil
}

// WriteU32List writes a plain list<u32> return: (ptr, len) at retptr
// with a little-endian u32 array allocated in guest memory.
func WriteU32List(ctx context.Context, mem api.Memory, alloc *Allocator, retptr uint32, vals []uint32) error {
	payload := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(payload[4*i:], v)
	}
	var ptr uint32
	if len(payload) > 0 {
		var err error
		ptr, err = alloc.Alloc(ctx, uint32(len(payload)), 4)
		if err != nil {
			return err
		}
		if !mem.Write(ptr, payload) {
			return errOOB
		}
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:], ptr)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(vals)))
	if !mem.Write(retptr, buf[:]) {
		return errOOB
	}
	return nil
}

// WriteBytesList writes a plain list<list<u8>> return: an array of
// (ptr, len) pairs, itself referenced by a (ptr, len) pair at retptr.
func WriteBytesList(ctx context.Context, mem api.Memory, alloc *Allocator, retptr uint32, values [][]byte) error {
	pairs := make([]byte, 8*len(values))
	for i, v := range values {
		ptr, length, err := WriteBytes(ctx, mem, alloc, v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(pairs[8*i:], ptr)
		binary.LittleEndian.PutUint32(pairs[8*i+4:], length)
	}
	var arrayPtr uint32
	if len(pairs) > 0 {
		var err error
		arrayPtr, err = alloc.Alloc(ctx, uint32(len(pairs)), 4)
		if err != nil {
			return err
		}
		if !mem.Write(arrayPtr, pairs) {
			return errOOB
		}
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:], arrayPtr)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(values)))
	if !mem.Write(retptr, buf[:]) {
		return errOOB
	}
	return nil
}

// ReadBytesList reads a list<list<u8>>: count (ptr, len) pairs
// starting at ptr. Counts whose pair table would overflow uint32
// addressing are rejected before any read.
func ReadBytesList(mem api.Memory, ptr, count uint32) ([][]byte, error) {
	if count > math.MaxUint32/8 {
		return nil, errOOB
	}
	pairs, err := ReadBytes(mem, ptr, count*8)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, count)
	for i := uint32(0); i < count; i++ {
		p := binary.LittleEndian.Uint32(pairs[8*i:])
		l := binary.LittleEndian.Uint32(pairs[8*i+4:])
		v, err := ReadBytes(mem, p, l)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
