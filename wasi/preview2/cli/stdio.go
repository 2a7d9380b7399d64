// Package cli provides the wasi:cli stdio and terminal interfaces.
// The host has no interactive terminal: stdin reads as immediately
// closed, stdout and stderr buffer into host memory, and terminal
// accessors report none.
package cli

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/abi"
	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/resource"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// StdinProvider implements wasi:cli/stdin. The stream is empty and
// complete, so the first guest read observes closed.
type StdinProvider struct {
	host *preview2.Host
	body *preview2.InputBody
}

func NewStdinProvider(host *preview2.Host) *StdinProvider {
	return &StdinProvider{host: host, body: preview2.NewCompleteInputBody(nil)}
}

func (p *StdinProvider) Name() string { return "wasi:cli/stdin" }

func (p *StdinProvider) Versions() []string { return linker.DefaultVersions }

func (p *StdinProvider) Functions() []linker.FuncDecl {
	return []linker.FuncDecl{
		{Name: "get-stdin", Results: []api.ValueType{api.ValueTypeI32}, Fn: p.getStdin},
	}
}

func (p *StdinProvider) getStdin(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = uint64(uint32(p.host.Resources.Register(p.body)))
}

// StdoutProvider implements wasi:cli/stdout. Every handle returned by
// get-stdout writes into the same host buffer, readable through
// Output for logging and diagnostics.
type StdoutProvider struct {
	host *preview2.Host
	body *preview2.OutputBody
}

func NewStdoutProvider(host *preview2.Host) *StdoutProvider {
	return &StdoutProvider{host: host, body: preview2.NewOutputBody()}
}

func (p *StdoutProvider) Name() string { return "wasi:cli/stdout" }

func (p *StdoutProvider) Versions() []string { return linker.DefaultVersions }

func (p *StdoutProvider) Functions() []linker.FuncDecl {
	return []linker.FuncDecl{
		{Name: "get-stdout", Results: []api.ValueType{api.ValueTypeI32}, Fn: p.getStdout},
	}
}

func (p *StdoutProvider) getStdout(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = uint64(uint32(p.host.Resources.Register(p.body)))
}

func (p *StdoutProvider) Output() []byte { return p.body.Bytes() }

// StderrProvider implements wasi:cli/stderr, buffering like stdout.
type StderrProvider struct {
	host *preview2.Host
	body *preview2.OutputBody
}

func NewStderrProvider(host *preview2.Host) *StderrProvider {
	return &StderrProvider{host: host, body: preview2.NewOutputBody()}
}

func (p *StderrProvider) Name() string { return "wasi:cli/stderr" }

func (p *StderrProvider) Versions() []string { return linker.DefaultVersions }

func (p *StderrProvider) Functions() []linker.FuncDecl {
	return []linker.FuncDecl{
		{Name: "get-stderr", Results: []api.ValueType{api.ValueTypeI32}, Fn: p.getStderr},
	}
}

func (p *StderrProvider) getStderr(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = uint64(uint32(p.host.Resources.Register(p.body)))
}

func (p *StderrProvider) Output() []byte { return p.body.Bytes() }

// TerminalProvider implements one of the wasi:cli/terminal-* accessor
// interfaces. get-terminal-* returns option none: no terminal is
// attached, and guests fall back to plain stream I/O.
type TerminalProvider struct {
	name string
	fn   string
}

func NewTerminalStdinProvider() *TerminalProvider {
	return &TerminalProvider{name: "wasi:cli/terminal-stdin", fn: "get-terminal-stdin"}
}

func NewTerminalStdoutProvider() *TerminalProvider {
	return &TerminalProvider{name: "wasi:cli/terminal-stdout", fn: "get-terminal-stdout"}
}

func NewTerminalStderrProvider() *TerminalProvider {
	return &TerminalProvider{name: "wasi:cli/terminal-stderr", fn: "get-terminal-stderr"}
}

func (p *TerminalProvider) Name() string { return p.name }

func (p *TerminalProvider) Versions() []string { return linker.DefaultVersions }

func (p *TerminalProvider) Functions() []linker.FuncDecl {
	return []linker.FuncDecl{
		{Name: p.fn, Params: []api.ValueType{api.ValueTypeI32}, Fn: p.getNone},
	}
}

func (p *TerminalProvider) getNone(_ context.Context, mod api.Module, stack []uint64) {
	abi.WriteOptionNone(mod.Memory(), uint32(stack[0]))
}

// TerminalResourceProvider implements wasi:cli/terminal-input and
// terminal-output. Handles are never produced, so only the drops are
// bound.
type TerminalResourceProvider struct {
	host *preview2.Host
	name string
	drop string
}

func NewTerminalInputProvider(host *preview2.Host) *TerminalResourceProvider {
	return &TerminalResourceProvider{host: host, name: "wasi:cli/terminal-input", drop: "[resource-drop]terminal-input"}
}

func NewTerminalOutputProvider(host *preview2.Host) *TerminalResourceProvider {
	return &TerminalResourceProvider{host: host, name: "wasi:cli/terminal-output", drop: "[resource-drop]terminal-output"}
}

func (p *TerminalResourceProvider) Name() string { return p.name }

func (p *TerminalResourceProvider) Versions() []string { return linker.DefaultVersions }

func (p *TerminalResourceProvider) Functions() []linker.FuncDecl {
	return []linker.FuncDecl{
		{Name: p.drop, Params: []api.ValueType{api.ValueTypeI32}, Fn: p.dropResource},
	}
}

func (p *TerminalResourceProvider) dropResource(_ context.Context, _ api.Module, stack []uint64) {
	p.host.Resources.Drop(resource.Handle(int32(uint32(stack[0]))))
}
