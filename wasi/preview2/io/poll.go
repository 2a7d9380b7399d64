package io

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/abi"
	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/resource"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// PollProvider implements wasi:io/poll. The list-form poll call and
// single pollable.block are both bounded by DefaultBlockBudget: a call
// that times out returns with nothing ready and the guest re-polls, so
// a stalled producer can never wedge the guest inside a host call.
type PollProvider struct {
	host *preview2.Host
}

func NewPollProvider(host *preview2.Host) *PollProvider {
	return &PollProvider{host: host}
}

func (p *PollProvider) Name() string { return "wasi:io/poll" }

func (p *PollProvider) Versions() []string { return linker.DefaultVersions }

func (p *PollProvider) Functions() []linker.FuncDecl {
	i32 := api.ValueTypeI32
	return []linker.FuncDecl{
		{Name: "poll", Params: []api.ValueType{i32, i32, i32}, Fn: p.poll},
		{Name: "[method]pollable.ready", Params: []api.ValueType{i32}, Results: []api.ValueType{i32}, Fn: p.ready},
		{Name: "[method]pollable.block", Params: []api.ValueType{i32}, Fn: p.block},
		{Name: "[resource-drop]pollable", Params: []api.ValueType{i32}, Fn: p.drop},
	}
}

func (p *PollProvider) lookup(h uint64) (preview2.Pollable, bool) {
	return resource.Get[preview2.Pollable](p.host.Resources, resource.Handle(int32(uint32(h))))
}

func (p *PollProvider) poll(ctx context.Context, mod api.Module, stack []uint64) {
	ptr := uint32(stack[0])
	count := uint32(stack[1])
	retptr := uint32(stack[2])
	mem := mod.Memory()

	pollables := make([]preview2.Pollable, 0, count)
	for i := uint32(0); i < count; i++ {
		raw, ok := mem.ReadUint32Le(ptr + i*4)
		if !ok {
			break
		}
		pollable, ok := p.lookup(uint64(raw))
		if !ok {
			// A dangling handle counts as ready so the guest
			// observes its stream as closed on the next read.
			pollable = preview2.NewSignalPollable(func() bool { return true })
		}
		pollables = append(pollables, pollable)
	}

	ready := readyIndexes(pollables)
	if len(ready) == 0 {
		deadline := time.Now().Add(preview2.DefaultBlockBudget)
		for time.Now().Before(deadline) && len(ready) == 0 {
			select {
			case <-ctx.Done():
				deadline = time.Now()
			case <-time.After(5 * time.Millisecond):
			}
			ready = readyIndexes(pollables)
		}
	}

	alloc, err := p.host.Allocator(mod)
	if err != nil {
		abi.WriteU32List(ctx, mem, nil, retptr, nil)
		return
	}
	abi.WriteU32List(ctx, mem, alloc, retptr, ready)
}

func readyIndexes(pollables []preview2.Pollable) []uint32 {
	var ready []uint32
	for i, pollable := range pollables {
		if pollable.Ready() {
			ready = append(ready, uint32(i))
		}
	}
	return ready
}

func (p *PollProvider) ready(_ context.Context, _ api.Module, stack []uint64) {
	pollable, ok := p.lookup(stack[0])
	if !ok || pollable.Ready() {
		stack[0] = 1
		return
	}
	stack[0] = 0
}

func (p *PollProvider) block(ctx context.Context, _ api.Module, stack []uint64) {
	if pollable, ok := p.lookup(stack[0]); ok {
		pollable.Block(ctx, preview2.DefaultBlockBudget)
	}
}

func (p *PollProvider) drop(_ context.Context, _ api.Module, stack []uint64) {
	p.host.Resources.Drop(resource.Handle(int32(uint32(stack[0]))))
}
