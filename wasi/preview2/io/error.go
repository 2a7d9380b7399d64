package io

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/abi"
	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/resource"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// ErrorProvider implements wasi:io/error. Streams in this host only
// ever fail as closed, which carries no error payload, so error
// resources normally never exist. The interface is still bound so
// guests compiled against it instantiate cleanly.
type ErrorProvider struct {
	host *preview2.Host
}

func NewErrorProvider(host *preview2.Host) *ErrorProvider {
	return &ErrorProvider{host: host}
}

func (p *ErrorProvider) Name() string { return "wasi:io/error" }

func (p *ErrorProvider) Versions() []string { return linker.DefaultVersions }

func (p *ErrorProvider) Functions() []linker.FuncDecl {
	i32 := api.ValueTypeI32
	return []linker.FuncDecl{
		{Name: "[method]error.to-debug-string", Params: []api.ValueType{i32, i32}, Fn: p.toDebugString},
		{Name: "[resource-drop]error", Params: []api.ValueType{i32}, Fn: p.drop},
	}
}

func (p *ErrorProvider) toDebugString(ctx context.Context, mod api.Module, stack []uint64) {
	self := resource.Handle(int32(uint32(stack[0])))
	retptr := uint32(stack[1])
	mem := mod.Memory()

	msg := "unknown i/o error"
	if err, ok := resource.Get[error](p.host.Resources, self); ok {
		msg = err.Error()
	}
	alloc, aerr := p.host.Allocator(mod)
	if aerr != nil {
		abi.WriteRawBytes(ctx, mem, nil, retptr, nil)
		return
	}
	abi.WriteRawBytes(ctx, mem, alloc, retptr, []byte(msg))
}

func (p *ErrorProvider) drop(_ context.Context, _ api.Module, stack []uint64) {
	p.host.Resources.Drop(resource.Handle(int32(uint32(stack[0]))))
}
