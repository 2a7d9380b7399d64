package abi

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/errors"
)

// multiResultAlloc mimics an export bound at the wrong arity.
type multiResultAlloc struct {
	api.Function
}

func (f *multiResultAlloc) Call(_ context.Context, _ ...uint64) ([]uint64, error) {
	return []uint64{1, 2}, nil
}

func TestAlloc_RejectsWrongResultArity(t *testing.T) {
	alloc := &Allocator{fn: &multiResultAlloc{}}

	_, err := alloc.Alloc(context.Background(), 16, 4)
	if err == nil {
		t.Fatal("expected allocation through a two-result export to fail")
	}
	want := &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindTypeMismatch}
	if !stderrors.Is(err, want) {
		t.Fatalf("error = %v, want %s/%s", err, want.Phase, want.Kind)
	}
}
