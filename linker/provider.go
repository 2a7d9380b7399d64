package linker

import (
	"github.com/tetratelabs/wazero/api"
)

// FuncDecl is the exact wire contract of one host function: its name
// within the interface and the flattened core parameter/result types.
// Widths must match the guest's expectation exactly or calls trap.
type FuncDecl struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Fn      api.GoModuleFunc
}

// Provider supplies the host functions for one WASI interface group.
// The same declarations are registered under every listed ABI revision
// simultaneously: guest modules are compiled against different
// revisions and there is no migration step.
type Provider interface {
	// Name is the unversioned interface name, e.g. "wasi:io/streams".
	Name() string
	// Versions lists the ABI revisions to register, e.g. "0.2.3".
	Versions() []string
	// Functions returns the declaration tuples. Must be stable and
	// side-effect-free; it is consulted both for binding and for
	// import-coverage validation before instantiation.
	Functions() []FuncDecl
}

// DefaultVersions are the ABI revisions registered for every standard
// interface. Published calling conventions are identical across them.
var DefaultVersions = []string{"0.2.0", "0.2.1", "0.2.2", "0.2.3"}

// moduleNames expands a provider into its versioned module names.
func moduleNames(p Provider) []string {
	versions := p.Versions()
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		names = append(names, p.Name()+"@"+v)
	}
	return names
}
