package http

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/tidewave/wasmhost/httpbridge"
	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// guestImport is one function import at its flattened core signature.
// All imported functions here return nothing: any lifted return type
// wider than one core value travels through a return pointer.
type guestImport struct {
	module string
	name   string
	params []byte
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func wasmSection(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(payload)))...)
	return append(out, payload...)
}

// importerModule encodes a wasm module consisting only of function
// imports, one type per import, the way bindings generators declare
// host calls.
func importerModule(imports []guestImport) []byte {
	types := uleb(uint32(len(imports)))
	for _, imp := range imports {
		types = append(types, 0x60)
		types = append(types, uleb(uint32(len(imp.params)))...)
		types = append(types, imp.params...)
		types = append(types, 0x00)
	}
	entries := uleb(uint32(len(imports)))
	for i, imp := range imports {
		entries = append(entries, uleb(uint32(len(imp.module)))...)
		entries = append(entries, imp.module...)
		entries = append(entries, uleb(uint32(len(imp.name)))...)
		entries = append(entries, imp.name...)
		entries = append(entries, 0x00)
		entries = append(entries, uleb(uint32(i))...)
	}
	mod := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	mod = append(mod, wasmSection(1, types)...)
	mod = append(mod, wasmSection(2, entries)...)
	return mod
}

// A guest compiled from standard wasi:http bindings must link against
// the bound host modules without a signature mismatch.
func TestHostFunctions_LinkAtCanonicalSignatures(t *testing.T) {
	const i32, i64 = 0x7f, 0x7e
	guest := importerModule([]guestImport{
		{"wasi:http/types@0.2.0", "[method]outgoing-request.body", []byte{i32, i32}},
		{"wasi:http/types@0.2.0", "[method]outgoing-body.write", []byte{i32, i32}},
		{"wasi:http/types@0.2.0", "[static]outgoing-body.finish", []byte{i32, i32, i32, i32}},
		{"wasi:http/types@0.2.0", "[method]incoming-response.consume", []byte{i32, i32}},
		{"wasi:http/types@0.2.0", "[method]incoming-body.stream", []byte{i32, i32}},
		{"wasi:http/types@0.2.0", "[method]future-incoming-response.get", []byte{i32, i32}},
		{"wasi:http/types@0.2.0", "[method]incoming-request.consume", []byte{i32, i32}},
		{"wasi:http/types@0.2.0", "[method]outgoing-response.body", []byte{i32, i32}},
		{"wasi:http/types@0.2.0", "[static]response-outparam.set", []byte{i32, i32, i32, i32, i64, i32, i32, i32, i32}},
		{"wasi:http/outgoing-handler@0.2.0", "handle", []byte{i32, i32, i32, i32}},
	})

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	host := preview2.NewHost()
	l := linker.New(nil)
	l.Register(
		NewTypesProvider(host),
		NewOutgoingHandlerProvider(host, httpbridge.NewDispatcher(httpbridge.Config{}), nil),
	)
	if err := l.Instantiate(ctx, rt); err != nil {
		t.Fatalf("binding host modules: %v", err)
	}
	if _, err := rt.Instantiate(ctx, guest); err != nil {
		t.Fatalf("guest failed to link: %v", err)
	}
}
