// Package resource implements the handle table that gives guest code
// indirect, type-checked access to host objects.
//
// Guests never see host pointers; every stream, pollable, HTTP message
// and process is referenced by an opaque integer handle minted here.
// Handles are monotonic and never reassigned, drops are idempotent,
// and an unknown handle is an ordinary lookup miss that callers map to
// a protocol-level error rather than a host fault.
package resource
