package preview2

import (
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/abi"
	"github.com/tidewave/wasmhost/resource"
)

// Host is the per-instance context shared by every provider: the
// resource registry plus a cache of guest allocators keyed by module.
// Network callbacks run on I/O goroutines while the guest drives its
// own thread, so everything here is lock-protected.
type Host struct {
	Resources *resource.Registry

	allocMu sync.Mutex
	allocs  map[api.Module]*abi.Allocator
}

func NewHost() *Host {
	return &Host{
		Resources: resource.NewRegistry(),
		allocs:    make(map[api.Module]*abi.Allocator),
	}
}

// Allocator resolves (and caches) the calling guest's exported
// allocator. Results written back to the guest must live in its own
// linear memory.
func (h *Host) Allocator(mod api.Module) (*abi.Allocator, error) {
	h.allocMu.Lock()
	defer h.allocMu.Unlock()
	if a, ok := h.allocs[mod]; ok {
		return a, nil
	}
	a, err := abi.NewAllocator(mod)
	if err != nil {
		return nil, err
	}
	h.allocs[mod] = a
	return a, nil
}

// Close drops every live resource.
func (h *Host) Close() {
	h.Resources.Clear()
}
