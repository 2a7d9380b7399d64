// Package random provides wasi:random/random backed by crypto/rand.
package random

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/abi"
	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// maxRandomBytes caps a single get-random-bytes request so a hostile
// guest cannot force an arbitrarily large host allocation.
const maxRandomBytes = 1 << 20

type Provider struct {
	host *preview2.Host
}

func NewProvider(host *preview2.Host) *Provider {
	return &Provider{host: host}
}

func (p *Provider) Name() string { return "wasi:random/random" }

func (p *Provider) Versions() []string { return linker.DefaultVersions }

func (p *Provider) Functions() []linker.FuncDecl {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64
	return []linker.FuncDecl{
		{Name: "get-random-bytes", Params: []api.ValueType{i64, i32}, Fn: p.getRandomBytes},
		{Name: "get-random-u64", Results: []api.ValueType{i64}, Fn: p.getRandomU64},
	}
}

func (p *Provider) getRandomBytes(ctx context.Context, mod api.Module, stack []uint64) {
	length := stack[0]
	retptr := uint32(stack[1])
	mem := mod.Memory()

	if length > maxRandomBytes {
		length = maxRandomBytes
	}
	data := make([]byte, length)
	crand.Read(data)

	alloc, err := p.host.Allocator(mod)
	if err != nil {
		abi.WriteRawBytes(ctx, mem, nil, retptr, nil)
		return
	}
	abi.WriteRawBytes(ctx, mem, alloc, retptr, data)
}

func (p *Provider) getRandomU64(_ context.Context, _ api.Module, stack []uint64) {
	var b [8]byte
	crand.Read(b[:])
	stack[0] = binary.LittleEndian.Uint64(b[:])
}
