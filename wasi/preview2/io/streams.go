// Package io provides the wasi:io interface group: streams, poll and
// error. Stream handles resolve to InputBody/OutputBody resources in
// the shared registry; pollables are the readiness objects the poll
// interface waits on.
package io

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/abi"
	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/resource"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// StreamsProvider implements wasi:io/streams. Output writes always
// succeed without backpressure; input reads surface exactly one error
// variant, closed, once a body is complete and drained.
type StreamsProvider struct {
	host *preview2.Host
}

func NewStreamsProvider(host *preview2.Host) *StreamsProvider {
	return &StreamsProvider{host: host}
}

func (p *StreamsProvider) Name() string { return "wasi:io/streams" }

func (p *StreamsProvider) Versions() []string { return linker.DefaultVersions }

func (p *StreamsProvider) Functions() []linker.FuncDecl {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64
	return []linker.FuncDecl{
		{Name: "[method]input-stream.read", Params: []api.ValueType{i32, i64, i32}, Fn: p.read},
		{Name: "[method]input-stream.blocking-read", Params: []api.ValueType{i32, i64, i32}, Fn: p.blockingRead},
		{Name: "[method]input-stream.subscribe", Params: []api.ValueType{i32}, Results: []api.ValueType{i32}, Fn: p.subscribeInput},
		{Name: "[resource-drop]input-stream", Params: []api.ValueType{i32}, Fn: p.dropStream},
		{Name: "[method]output-stream.check-write", Params: []api.ValueType{i32, i32}, Fn: p.checkWrite},
		{Name: "[method]output-stream.write", Params: []api.ValueType{i32, i32, i32, i32}, Fn: p.write},
		{Name: "[method]output-stream.blocking-write-and-flush", Params: []api.ValueType{i32, i32, i32, i32}, Fn: p.write},
		{Name: "[method]output-stream.flush", Params: []api.ValueType{i32, i32}, Fn: p.flush},
		{Name: "[method]output-stream.blocking-flush", Params: []api.ValueType{i32, i32}, Fn: p.flush},
		{Name: "[method]output-stream.subscribe", Params: []api.ValueType{i32}, Results: []api.ValueType{i32}, Fn: p.subscribeOutput},
		{Name: "[resource-drop]output-stream", Params: []api.ValueType{i32}, Fn: p.dropStream},
	}
}

// writeCap is the value reported by check-write. Output streams buffer
// in host memory, so the budget is nominal rather than a real limit.
const writeCap = 64 * 1024

func (p *StreamsProvider) read(ctx context.Context, mod api.Module, stack []uint64) {
	self := resource.Handle(int32(uint32(stack[0])))
	max := stack[1]
	retptr := uint32(stack[2])
	mem := mod.Memory()

	body, ok := resource.Get[*preview2.InputBody](p.host.Resources, self)
	if !ok {
		abi.WriteStreamClosed(mem, retptr)
		return
	}
	data, err := body.Read(max)
	if err != nil {
		abi.WriteStreamClosed(mem, retptr)
		return
	}
	alloc, aerr := p.host.Allocator(mod)
	if aerr != nil {
		abi.WriteStreamClosed(mem, retptr)
		return
	}
	abi.WriteBytesResult(ctx, mem, alloc, retptr, data)
}

func (p *StreamsProvider) blockingRead(ctx context.Context, mod api.Module, stack []uint64) {
	self := resource.Handle(int32(uint32(stack[0])))
	if body, ok := resource.Get[*preview2.InputBody](p.host.Resources, self); ok {
		body.WaitReadable(ctx, preview2.DefaultBlockBudget)
	}
	p.read(ctx, mod, stack)
}

func (p *StreamsProvider) subscribeInput(_ context.Context, _ api.Module, stack []uint64) {
	self := resource.Handle(int32(uint32(stack[0])))
	var pollable preview2.Pollable
	if body, ok := resource.Get[*preview2.InputBody](p.host.Resources, self); ok {
		pollable = body.Subscribe()
	} else {
		// Unknown streams read as closed immediately, so their
		// pollable is permanently ready.
		pollable = preview2.NewSignalPollable(func() bool { return true })
	}
	stack[0] = uint64(uint32(p.host.Resources.Register(pollable)))
}

func (p *StreamsProvider) checkWrite(_ context.Context, mod api.Module, stack []uint64) {
	self := resource.Handle(int32(uint32(stack[0])))
	retptr := uint32(stack[1])
	mem := mod.Memory()
	if _, ok := resource.Get[*preview2.OutputBody](p.host.Resources, self); !ok {
		abi.WriteStreamClosed(mem, retptr)
		return
	}
	abi.WriteResultOkU64(mem, retptr, writeCap)
}

func (p *StreamsProvider) write(_ context.Context, mod api.Module, stack []uint64) {
	self := resource.Handle(int32(uint32(stack[0])))
	ptr := uint32(stack[1])
	length := uint32(stack[2])
	retptr := uint32(stack[3])
	mem := mod.Memory()

	body, ok := resource.Get[*preview2.OutputBody](p.host.Resources, self)
	if !ok {
		abi.WriteStreamClosed(mem, retptr)
		return
	}
	data, err := abi.ReadBytes(mem, ptr, length)
	if err != nil {
		abi.WriteStreamClosed(mem, retptr)
		return
	}
	body.Write(data)
	abi.WriteResultOk(mem, retptr)
}

func (p *StreamsProvider) flush(_ context.Context, mod api.Module, stack []uint64) {
	self := resource.Handle(int32(uint32(stack[0])))
	retptr := uint32(stack[1])
	mem := mod.Memory()
	if _, ok := resource.Get[*preview2.OutputBody](p.host.Resources, self); !ok {
		abi.WriteStreamClosed(mem, retptr)
		return
	}
	// Writes land in the host buffer synchronously; flush is a no-op.
	abi.WriteResultOk(mem, retptr)
}

func (p *StreamsProvider) subscribeOutput(_ context.Context, _ api.Module, stack []uint64) {
	// Output streams never exert backpressure, so the pollable is
	// always ready.
	pollable := preview2.NewSignalPollable(func() bool { return true })
	stack[0] = uint64(uint32(p.host.Resources.Register(pollable)))
}

func (p *StreamsProvider) dropStream(_ context.Context, _ api.Module, stack []uint64) {
	p.host.Resources.Drop(resource.Handle(int32(uint32(stack[0]))))
}
