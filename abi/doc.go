// Package abi encodes and decodes canonical-ABI primitives (options,
// results, byte lists, strings) between host values and guest linear
// memory.
//
// Encodings follow the component-model canonical ABI as this host's
// guests expect it: a one-byte discriminant followed by an aligned
// payload, with list payloads allocated inside the guest through its
// exported cabi_realloc. Every operation is bounds-checked against the
// guest memory and returns an error instead of faulting.
package abi
