// Package linker binds WASI import providers into the engine and
// validates a guest's required imports against what they declare.
//
// Each provider publishes exact (module, function, params, results)
// tuples ahead of instantiation, registered under every supported ABI
// revision at once. The coverage validator diffs a compiled guest's
// imports against that union and reports the complete missing set. The
// report is advisory, since unprovided imports may guard unreached
// paths.
package linker
