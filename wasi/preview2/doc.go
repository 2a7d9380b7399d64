// Package preview2 holds the host-side resource types backing the
// WASI Preview-2 import surface: pollables, stream bodies, and header
// fields. The per-interface providers live in subpackages (io, clocks,
// random, cli, sockets, http) and store these values in the shared
// resource registry.
package preview2
