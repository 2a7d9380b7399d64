// Package sockets binds the wasi:sockets resource drops so guests
// compiled against the sockets world instantiate. No connect, listen
// or datagram operations are provided: network access goes through
// the outgoing HTTP handler only.
package sockets

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/resource"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// StubProvider binds only the [resource-drop] for one sockets
// interface.
type StubProvider struct {
	host *preview2.Host
	name string
	drop string
}

func NewNetworkProvider(host *preview2.Host) *StubProvider {
	return &StubProvider{host: host, name: "wasi:sockets/network", drop: "[resource-drop]network"}
}

func NewTCPProvider(host *preview2.Host) *StubProvider {
	return &StubProvider{host: host, name: "wasi:sockets/tcp", drop: "[resource-drop]tcp-socket"}
}

func NewUDPProvider(host *preview2.Host) *StubProvider {
	return &StubProvider{host: host, name: "wasi:sockets/udp", drop: "[resource-drop]udp-socket"}
}

func (p *StubProvider) Name() string { return p.name }

func (p *StubProvider) Versions() []string { return linker.DefaultVersions }

func (p *StubProvider) Functions() []linker.FuncDecl {
	return []linker.FuncDecl{
		{Name: p.drop, Params: []api.ValueType{api.ValueTypeI32}, Fn: p.dropResource},
	}
}

func (p *StubProvider) dropResource(_ context.Context, _ api.Module, stack []uint64) {
	p.host.Resources.Drop(resource.Handle(int32(uint32(stack[0]))))
}

// InstanceNetworkProvider implements wasi:sockets/instance-network.
// The returned handle is a placeholder: it can be dropped but supports
// no operations.
type InstanceNetworkProvider struct {
	host *preview2.Host
}

func NewInstanceNetworkProvider(host *preview2.Host) *InstanceNetworkProvider {
	return &InstanceNetworkProvider{host: host}
}

func (p *InstanceNetworkProvider) Name() string { return "wasi:sockets/instance-network" }

func (p *InstanceNetworkProvider) Versions() []string { return linker.DefaultVersions }

type placeholderNetwork struct{}

func (p *InstanceNetworkProvider) Functions() []linker.FuncDecl {
	return []linker.FuncDecl{
		{Name: "instance-network", Results: []api.ValueType{api.ValueTypeI32}, Fn: p.instanceNetwork},
	}
}

func (p *InstanceNetworkProvider) instanceNetwork(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = uint64(uint32(p.host.Resources.Register(placeholderNetwork{})))
}
