package abi

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/errors"
)

// Exported allocator names probed on the guest, in preference order.
// cabi_realloc is the canonical name; the others are emitted by older
// bindings generators.
var allocExports = []string{
	"cabi_realloc",
	"canonical_abi_realloc",
}

// Allocator allocates guest linear memory through the guest's own
// exported realloc. Host-side results are always materialized through
// it so the guest can address and later free them.
type Allocator struct {
	fn api.Function
}

// NewAllocator resolves the guest's allocator export. Returns a
// not-found error when the module exports none of the known names.
func NewAllocator(mod api.Module) (*Allocator, error) {
	for _, name := range allocExports {
		if fn := mod.ExportedFunction(name); fn != nil {
			return &Allocator{fn: fn}, nil
		}
	}
	return nil, errors.NotFound(errors.PhaseRuntime, "guest allocator export")
}

// Alloc returns a fresh guest allocation of size bytes.
// The canonical signature is realloc(old, old_size, align, new_size).
func (a *Allocator) Alloc(ctx context.Context, size, align uint32) (uint32, error) {
	results, err := a.fn.Call(ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, errors.New(errors.PhaseRuntime, errors.KindInternal).
			Entity("cabi_realloc").
			Cause(err).
			Build()
	}
	if len(results) != 1 {
		return 0, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
			Entity("cabi_realloc").
			Detail("allocator returned %d results, want 1", len(results)).
			Build()
	}
	ptr := uint32(results[0])
	if ptr == 0 && size > 0 {
		return 0, errors.New(errors.PhaseRuntime, errors.KindInternal).
			Entity("cabi_realloc").
			Detail("guest allocator returned null for %d bytes", size).
			Build()
	}
	return ptr, nil
}
