// Package http provides wasi:http/types and
// wasi:http/outgoing-handler. Request and response state lives in the
// shared resource registry as httpbridge message types; body handles
// resolve to the same InputBody/OutputBody objects the io streams
// provider reads and writes, so a body stream handle and its parent
// body observe one buffer.
package http

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/abi"
	"github.com/tidewave/wasmhost/httpbridge"
	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/resource"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// Method variant tags in wit declaration order; tag 9 is other(string).
var methodNames = []string{"GET", "HEAD", "POST", "PUT", "DELETE", "CONNECT", "OPTIONS", "TRACE", "PATCH"}

const methodTagOther = 9

// Scheme variant tags: HTTP, HTTPS, other(string).
const (
	schemeTagHTTP  = 0
	schemeTagHTTPS = 1
	schemeTagOther = 2
)

// error-code variant tags produced by this host. Only payload-free
// cases are used, so writing the discriminant alone is a complete
// encoding.
const (
	errorCodeConnectionTerminated = 7
	errorCodeHTTPProtocolError    = 35
	errorCodeConfigurationError   = 37
)

// outgoingRequest wraps the bridge request with the body-taken flag:
// the body resource can be retrieved once.
type outgoingRequest struct {
	req       *httpbridge.OutgoingRequest
	mu        sync.Mutex
	bodyTaken bool
}

// outgoingResponse wraps the server-side response the same way.
type outgoingResponse struct {
	resp      *httpbridge.OutgoingResponse
	mu        sync.Mutex
	bodyTaken bool
}

// requestOptions is accepted and ignored: timeouts are fixed per
// operation class in the dispatcher.
type requestOptions struct{}

// futureTrailers is a placeholder: this host never produces trailers.
type futureTrailers struct{}

// TypesProvider implements wasi:http/types.
type TypesProvider struct {
	host *preview2.Host
}

func NewTypesProvider(host *preview2.Host) *TypesProvider {
	return &TypesProvider{host: host}
}

func (p *TypesProvider) Name() string { return "wasi:http/types" }

func (p *TypesProvider) Versions() []string { return linker.DefaultVersions }

// Functions declares the wire tuples per canonical lowering: a return
// type that flattens to more than one core value is lowered through a
// trailing return pointer, never through multi-value core results.
func (p *TypesProvider) Functions() []linker.FuncDecl {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64
	one := []api.ValueType{i32}
	return []linker.FuncDecl{
		// fields
		{Name: "[constructor]fields", Results: one, Fn: p.constructorFields},
		{Name: "[method]fields.append", Params: []api.ValueType{i32, i32, i32, i32, i32}, Results: one, Fn: p.fieldsAppend},
		{Name: "[method]fields.get", Params: []api.ValueType{i32, i32, i32, i32}, Fn: p.fieldsGet},
		{Name: "[method]fields.has", Params: []api.ValueType{i32, i32, i32}, Results: one, Fn: p.fieldsHas},
		{Name: "[method]fields.set", Params: []api.ValueType{i32, i32, i32, i32, i32}, Results: one, Fn: p.fieldsSet},
		{Name: "[method]fields.delete", Params: []api.ValueType{i32, i32, i32}, Results: one, Fn: p.fieldsDelete},
		{Name: "[method]fields.entries", Params: []api.ValueType{i32, i32}, Fn: p.fieldsEntries},
		{Name: "[method]fields.clone", Params: one, Results: one, Fn: p.fieldsClone},
		{Name: "[resource-drop]fields", Params: one, Fn: p.drop},

		// outgoing-request
		{Name: "[constructor]outgoing-request", Params: one, Results: one, Fn: p.constructorOutgoingRequest},
		{Name: "[method]outgoing-request.set-method", Params: []api.ValueType{i32, i32, i32, i32}, Results: one, Fn: p.setMethod},
		{Name: "[method]outgoing-request.set-scheme", Params: []api.ValueType{i32, i32, i32, i32, i32}, Results: one, Fn: p.setScheme},
		{Name: "[method]outgoing-request.set-authority", Params: []api.ValueType{i32, i32, i32, i32}, Results: one, Fn: p.setAuthority},
		{Name: "[method]outgoing-request.set-path-with-query", Params: []api.ValueType{i32, i32, i32, i32}, Results: one, Fn: p.setPathWithQuery},
		{Name: "[method]outgoing-request.headers", Params: one, Results: one, Fn: p.outgoingRequestHeaders},
		{Name: "[method]outgoing-request.body", Params: []api.ValueType{i32, i32}, Fn: p.outgoingRequestBody},
		{Name: "[resource-drop]outgoing-request", Params: one, Fn: p.drop},

		// request-options
		{Name: "[constructor]request-options", Results: one, Fn: p.constructorRequestOptions},
		{Name: "[resource-drop]request-options", Params: one, Fn: p.drop},

		// outgoing-body
		{Name: "[method]outgoing-body.write", Params: []api.ValueType{i32, i32}, Fn: p.outgoingBodyWrite},
		{Name: "[static]outgoing-body.finish", Params: []api.ValueType{i32, i32, i32, i32}, Fn: p.outgoingBodyFinish},
		{Name: "[resource-drop]outgoing-body", Params: one, Fn: p.drop},

		// incoming-response
		{Name: "[method]incoming-response.status", Params: one, Results: one, Fn: p.incomingResponseStatus},
		{Name: "[method]incoming-response.headers", Params: one, Results: one, Fn: p.incomingResponseHeaders},
		{Name: "[method]incoming-response.consume", Params: []api.ValueType{i32, i32}, Fn: p.incomingResponseConsume},
		{Name: "[resource-drop]incoming-response", Params: one, Fn: p.drop},

		// incoming-body
		{Name: "[method]incoming-body.stream", Params: []api.ValueType{i32, i32}, Fn: p.incomingBodyStream},
		{Name: "[static]incoming-body.finish", Params: one, Results: one, Fn: p.incomingBodyFinish},
		{Name: "[resource-drop]incoming-body", Params: one, Fn: p.drop},

		// future-trailers
		{Name: "[method]future-trailers.subscribe", Params: one, Results: one, Fn: p.futureTrailersSubscribe},
		{Name: "[method]future-trailers.get", Params: []api.ValueType{i32, i32}, Fn: p.futureTrailersGet},
		{Name: "[resource-drop]future-trailers", Params: one, Fn: p.drop},

		// future-incoming-response
		{Name: "[method]future-incoming-response.subscribe", Params: one, Results: one, Fn: p.futureSubscribe},
		{Name: "[method]future-incoming-response.get", Params: []api.ValueType{i32, i32}, Fn: p.futureGet},
		{Name: "[resource-drop]future-incoming-response", Params: one, Fn: p.drop},

		// incoming-request (server surface)
		{Name: "[method]incoming-request.method", Params: []api.ValueType{i32, i32}, Fn: p.incomingRequestMethod},
		{Name: "[method]incoming-request.path-with-query", Params: []api.ValueType{i32, i32}, Fn: p.incomingRequestPathWithQuery},
		{Name: "[method]incoming-request.scheme", Params: []api.ValueType{i32, i32}, Fn: p.incomingRequestScheme},
		{Name: "[method]incoming-request.authority", Params: []api.ValueType{i32, i32}, Fn: p.incomingRequestAuthority},
		{Name: "[method]incoming-request.headers", Params: one, Results: one, Fn: p.incomingRequestHeaders},
		{Name: "[method]incoming-request.consume", Params: []api.ValueType{i32, i32}, Fn: p.incomingRequestConsume},
		{Name: "[resource-drop]incoming-request", Params: one, Fn: p.drop},

		// outgoing-response (server surface)
		{Name: "[constructor]outgoing-response", Params: one, Results: one, Fn: p.constructorOutgoingResponse},
		{Name: "[method]outgoing-response.set-status-code", Params: []api.ValueType{i32, i32}, Results: one, Fn: p.setStatusCode},
		{Name: "[method]outgoing-response.body", Params: []api.ValueType{i32, i32}, Fn: p.outgoingResponseBody},
		{Name: "[resource-drop]outgoing-response", Params: one, Fn: p.drop},

		// response-outparam. set's response argument is a flattened
		// result<own<outgoing-response>, error-code>; the error-code
		// payload arms widen it to six extra slots with an i64 in
		// second position.
		{Name: "[static]response-outparam.set", Params: []api.ValueType{i32, i32, i32, i32, i64, i32, i32, i32, i32}, Fn: p.responseOutparamSet},
		{Name: "[resource-drop]response-outparam", Params: one, Fn: p.drop},
	}
}

func handleOf(v uint64) resource.Handle {
	return resource.Handle(int32(uint32(v)))
}

func (p *TypesProvider) drop(_ context.Context, _ api.Module, stack []uint64) {
	p.host.Resources.Drop(handleOf(stack[0]))
}

func (p *TypesProvider) readString(mem api.Memory, ptr, length uint64) (string, bool) {
	s, err := abi.ReadString(mem, uint32(ptr), uint32(length))
	return s, err == nil
}

// fields

func (p *TypesProvider) constructorFields(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = uint64(uint32(p.host.Resources.Register(preview2.NewFields())))
}

func (p *TypesProvider) fieldsAppend(_ context.Context, mod api.Module, stack []uint64) {
	fields, ok := resource.Get[*preview2.Fields](p.host.Resources, handleOf(stack[0]))
	if !ok {
		stack[0] = 1
		return
	}
	name, nok := p.readString(mod.Memory(), stack[1], stack[2])
	value, verr := abi.ReadBytes(mod.Memory(), uint32(stack[3]), uint32(stack[4]))
	if !nok || verr != nil {
		stack[0] = 1
		return
	}
	fields.Append(name, value)
	stack[0] = 0
}

func (p *TypesProvider) fieldsGet(ctx context.Context, mod api.Module, stack []uint64) {
	retptr := uint32(stack[3])
	mem := mod.Memory()
	var values [][]byte
	if fields, ok := resource.Get[*preview2.Fields](p.host.Resources, handleOf(stack[0])); ok {
		if name, nok := p.readString(mem, stack[1], stack[2]); nok {
			values = fields.Get(name)
		}
	}
	alloc, err := p.host.Allocator(mod)
	if err != nil {
		abi.WriteBytesList(ctx, mem, nil, retptr, nil)
		return
	}
	abi.WriteBytesList(ctx, mem, alloc, retptr, values)
}

func (p *TypesProvider) fieldsHas(_ context.Context, mod api.Module, stack []uint64) {
	self := handleOf(stack[0])
	stack[0] = 0
	if fields, ok := resource.Get[*preview2.Fields](p.host.Resources, self); ok {
		if name, nok := p.readString(mod.Memory(), stack[1], stack[2]); nok && fields.Has(name) {
			stack[0] = 1
		}
	}
}

func (p *TypesProvider) fieldsSet(_ context.Context, mod api.Module, stack []uint64) {
	fields, ok := resource.Get[*preview2.Fields](p.host.Resources, handleOf(stack[0]))
	if !ok {
		stack[0] = 1
		return
	}
	mem := mod.Memory()
	name, nok := p.readString(mem, stack[1], stack[2])
	values, verr := abi.ReadBytesList(mem, uint32(stack[3]), uint32(stack[4]))
	if !nok || verr != nil {
		stack[0] = 1
		return
	}
	fields.Set(name, values)
	stack[0] = 0
}

func (p *TypesProvider) fieldsDelete(_ context.Context, mod api.Module, stack []uint64) {
	fields, ok := resource.Get[*preview2.Fields](p.host.Resources, handleOf(stack[0]))
	if !ok {
		stack[0] = 1
		return
	}
	if name, nok := p.readString(mod.Memory(), stack[1], stack[2]); nok {
		fields.Delete(name)
		stack[0] = 0
		return
	}
	stack[0] = 1
}

func (p *TypesProvider) fieldsEntries(ctx context.Context, mod api.Module, stack []uint64) {
	retptr := uint32(stack[1])
	mem := mod.Memory()
	var pairs [][2][]byte
	if fields, ok := resource.Get[*preview2.Fields](p.host.Resources, handleOf(stack[0])); ok {
		for _, f := range fields.Entries() {
			pairs = append(pairs, [2][]byte{[]byte(f.Name), f.Value})
		}
	}
	alloc, err := p.host.Allocator(mod)
	if err != nil {
		abi.WritePairList(ctx, mem, nil, retptr, nil)
		return
	}
	abi.WritePairList(ctx, mem, alloc, retptr, pairs)
}

func (p *TypesProvider) fieldsClone(_ context.Context, _ api.Module, stack []uint64) {
	cloned := preview2.NewFields()
	if fields, ok := resource.Get[*preview2.Fields](p.host.Resources, handleOf(stack[0])); ok {
		cloned = fields.Clone()
	}
	stack[0] = uint64(uint32(p.host.Resources.Register(cloned)))
}

// outgoing-request

func (p *TypesProvider) constructorOutgoingRequest(_ context.Context, _ api.Module, stack []uint64) {
	headers, _ := resource.Get[*preview2.Fields](p.host.Resources, handleOf(stack[0]))
	req := &outgoingRequest{req: httpbridge.NewOutgoingRequest(headers)}
	stack[0] = uint64(uint32(p.host.Resources.Register(req)))
}

func (p *TypesProvider) setMethod(_ context.Context, mod api.Module, stack []uint64) {
	req, ok := resource.Get[*outgoingRequest](p.host.Resources, handleOf(stack[0]))
	if !ok {
		stack[0] = 1
		return
	}
	tag := uint32(stack[1])
	switch {
	case int(tag) < len(methodNames):
		req.req.Method = methodNames[tag]
	case tag == methodTagOther:
		other, nok := p.readString(mod.Memory(), stack[2], stack[3])
		if !nok || other == "" {
			stack[0] = 1
			return
		}
		req.req.Method = other
	default:
		stack[0] = 1
		return
	}
	stack[0] = 0
}

func (p *TypesProvider) setScheme(_ context.Context, mod api.Module, stack []uint64) {
	req, ok := resource.Get[*outgoingRequest](p.host.Resources, handleOf(stack[0]))
	if !ok {
		stack[0] = 1
		return
	}
	if stack[1] == 0 { // option none: keep default
		stack[0] = 0
		return
	}
	switch uint32(stack[2]) {
	case schemeTagHTTP:
		req.req.Scheme = "http"
	case schemeTagHTTPS:
		req.req.Scheme = "https"
	case schemeTagOther:
		other, nok := p.readString(mod.Memory(), stack[3], stack[4])
		if !nok || other == "" {
			stack[0] = 1
			return
		}
		req.req.Scheme = other
	default:
		stack[0] = 1
		return
	}
	stack[0] = 0
}

func (p *TypesProvider) setAuthority(_ context.Context, mod api.Module, stack []uint64) {
	req, ok := resource.Get[*outgoingRequest](p.host.Resources, handleOf(stack[0]))
	if !ok {
		stack[0] = 1
		return
	}
	if stack[1] != 0 {
		authority, nok := p.readString(mod.Memory(), stack[2], stack[3])
		if !nok {
			stack[0] = 1
			return
		}
		req.req.Authority = authority
	}
	stack[0] = 0
}

func (p *TypesProvider) setPathWithQuery(_ context.Context, mod api.Module, stack []uint64) {
	req, ok := resource.Get[*outgoingRequest](p.host.Resources, handleOf(stack[0]))
	if !ok {
		stack[0] = 1
		return
	}
	if stack[1] != 0 {
		path, nok := p.readString(mod.Memory(), stack[2], stack[3])
		if !nok {
			stack[0] = 1
			return
		}
		req.req.PathWithQuery = path
	}
	stack[0] = 0
}

func (p *TypesProvider) outgoingRequestHeaders(_ context.Context, _ api.Module, stack []uint64) {
	headers := preview2.NewFields()
	if req, ok := resource.Get[*outgoingRequest](p.host.Resources, handleOf(stack[0])); ok {
		headers = req.req.Headers
	}
	stack[0] = uint64(uint32(p.host.Resources.Register(headers)))
}

func (p *TypesProvider) outgoingRequestBody(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	retptr := uint32(stack[1])
	req, ok := resource.Get[*outgoingRequest](p.host.Resources, handleOf(stack[0]))
	if !ok {
		abi.WriteResultErr(mem, retptr, 0)
		return
	}
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.bodyTaken {
		abi.WriteResultErr(mem, retptr, 0)
		return
	}
	req.bodyTaken = true
	abi.WriteResultOkU32(mem, retptr, uint32(p.host.Resources.Register(req.req.Body)))
}

func (p *TypesProvider) constructorRequestOptions(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = uint64(uint32(p.host.Resources.Register(requestOptions{})))
}

// outgoing-body

func (p *TypesProvider) outgoingBodyWrite(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	retptr := uint32(stack[1])
	body, ok := resource.Get[*preview2.OutputBody](p.host.Resources, handleOf(stack[0]))
	if !ok {
		abi.WriteResultErr(mem, retptr, 0)
		return
	}
	// The body and its write stream are one buffer under two handles.
	abi.WriteResultOkU32(mem, retptr, uint32(p.host.Resources.Register(body)))
}

func (p *TypesProvider) outgoingBodyFinish(_ context.Context, mod api.Module, stack []uint64) {
	p.host.Resources.Drop(handleOf(stack[0]))
	if stack[1] != 0 { // option some: the trailers handle is consumed
		p.host.Resources.Drop(handleOf(stack[2]))
	}
	abi.WriteResultOk(mod.Memory(), uint32(stack[3]))
}

// incoming-response

func (p *TypesProvider) incomingResponseStatus(_ context.Context, _ api.Module, stack []uint64) {
	self := handleOf(stack[0])
	stack[0] = 0
	if resp, ok := resource.Get[*httpbridge.IncomingResponse](p.host.Resources, self); ok {
		stack[0] = uint64(resp.Status)
	}
}

func (p *TypesProvider) incomingResponseHeaders(_ context.Context, _ api.Module, stack []uint64) {
	headers := preview2.NewFields()
	if resp, ok := resource.Get[*httpbridge.IncomingResponse](p.host.Resources, handleOf(stack[0])); ok && resp.Headers != nil {
		headers = resp.Headers
	}
	stack[0] = uint64(uint32(p.host.Resources.Register(headers)))
}

func (p *TypesProvider) incomingResponseConsume(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	retptr := uint32(stack[1])
	resp, ok := resource.Get[*httpbridge.IncomingResponse](p.host.Resources, handleOf(stack[0]))
	if !ok || !resp.Body.MarkConsumed() {
		abi.WriteResultErr(mem, retptr, 0)
		return
	}
	abi.WriteResultOkU32(mem, retptr, uint32(p.host.Resources.Register(resp.Body)))
}

// incoming-body

func (p *TypesProvider) incomingBodyStream(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	retptr := uint32(stack[1])
	body, ok := resource.Get[*preview2.InputBody](p.host.Resources, handleOf(stack[0]))
	if !ok {
		abi.WriteResultErr(mem, retptr, 0)
		return
	}
	abi.WriteResultOkU32(mem, retptr, uint32(p.host.Resources.Register(body)))
}

func (p *TypesProvider) incomingBodyFinish(_ context.Context, _ api.Module, stack []uint64) {
	p.host.Resources.Drop(handleOf(stack[0]))
	stack[0] = uint64(uint32(p.host.Resources.Register(futureTrailers{})))
}

// future-trailers

func (p *TypesProvider) futureTrailersSubscribe(_ context.Context, _ api.Module, stack []uint64) {
	pollable := preview2.NewSignalPollable(func() bool { return true })
	stack[0] = uint64(uint32(p.host.Resources.Register(pollable)))
}

func (p *TypesProvider) futureTrailersGet(_ context.Context, mod api.Module, stack []uint64) {
	// some(ok(ok(none))): trailers are never produced. The nested
	// error-code aligns to 8, so each level sits at the next 8-byte
	// boundary.
	retptr := uint32(stack[1])
	mem := mod.Memory()
	mem.WriteByte(retptr, abi.DiscSome)
	mem.WriteByte(retptr+8, abi.DiscOk)
	mem.WriteByte(retptr+16, abi.DiscOk)
	mem.WriteByte(retptr+24, abi.DiscNone)
}

// future-incoming-response

func (p *TypesProvider) futureSubscribe(_ context.Context, _ api.Module, stack []uint64) {
	var pollable preview2.Pollable
	if fut, ok := resource.Get[*httpbridge.Future](p.host.Resources, handleOf(stack[0])); ok {
		pollable = fut.Subscribe()
	} else {
		pollable = preview2.NewSignalPollable(func() bool { return true })
	}
	stack[0] = uint64(uint32(p.host.Resources.Register(pollable)))
}

// futureGet writes option<result<result<own<incoming-response>,
// error-code>, ()>> at the retptr: option discriminant at +0, outer
// result at +8, inner result at +16, handle or error-code at +24.
func (p *TypesProvider) futureGet(_ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	retptr := uint32(stack[1])
	fut, ok := resource.Get[*httpbridge.Future](p.host.Resources, handleOf(stack[0]))
	if !ok {
		writeFutureError(mem, retptr, errorCodeHTTPProtocolError)
		return
	}
	resp, err, ready, consumed := fut.Result()
	if !ready {
		mem.WriteByte(retptr, abi.DiscNone)
		return
	}
	if consumed {
		// some(err(())): the response was already taken.
		mem.WriteByte(retptr, abi.DiscSome)
		mem.WriteByte(retptr+8, abi.DiscErr)
		return
	}
	if err != nil || resp == nil {
		writeFutureError(mem, retptr, errorCodeConnectionTerminated)
		return
	}
	mem.WriteByte(retptr, abi.DiscSome)
	mem.WriteByte(retptr+8, abi.DiscOk)
	mem.WriteByte(retptr+16, abi.DiscOk)
	mem.WriteUint32Le(retptr+24, uint32(p.host.Resources.Register(resp)))
}

// writeFutureError writes some(ok(err(code))) at the futureGet layout.
func writeFutureError(mem api.Memory, retptr uint32, code uint8) {
	mem.WriteByte(retptr, abi.DiscSome)
	mem.WriteByte(retptr+8, abi.DiscOk)
	mem.WriteByte(retptr+16, abi.DiscErr)
	mem.WriteByte(retptr+24, code)
}

// incoming-request (server surface)

func (p *TypesProvider) incomingRequestMethod(ctx context.Context, mod api.Module, stack []uint64) {
	retptr := uint32(stack[1])
	mem := mod.Memory()

	method := "GET"
	if req, ok := resource.Get[*httpbridge.IncomingRequest](p.host.Resources, handleOf(stack[0])); ok {
		method = req.Method
	}
	for tag, name := range methodNames {
		if name == method {
			mem.WriteUint32Le(retptr, uint32(tag))
			mem.WriteUint32Le(retptr+4, 0)
			mem.WriteUint32Le(retptr+8, 0)
			return
		}
	}
	mem.WriteUint32Le(retptr, methodTagOther)
	alloc, err := p.host.Allocator(mod)
	if err != nil {
		mem.WriteUint32Le(retptr+4, 0)
		mem.WriteUint32Le(retptr+8, 0)
		return
	}
	ptr, length, werr := abi.WriteString(ctx, mem, alloc, method)
	if werr != nil {
		ptr, length = 0, 0
	}
	mem.WriteUint32Le(retptr+4, ptr)
	mem.WriteUint32Le(retptr+8, length)
}

func (p *TypesProvider) incomingRequestPathWithQuery(ctx context.Context, mod api.Module, stack []uint64) {
	retptr := uint32(stack[1])
	mem := mod.Memory()
	req, ok := resource.Get[*httpbridge.IncomingRequest](p.host.Resources, handleOf(stack[0]))
	if !ok || req.PathWithQuery == "" {
		abi.WriteOptionNone(mem, retptr)
		return
	}
	alloc, err := p.host.Allocator(mod)
	if err != nil {
		abi.WriteOptionNone(mem, retptr)
		return
	}
	abi.WriteOptionString(ctx, mem, alloc, retptr, req.PathWithQuery)
}

func (p *TypesProvider) incomingRequestScheme(ctx context.Context, mod api.Module, stack []uint64) {
	retptr := uint32(stack[1])
	mem := mod.Memory()
	req, ok := resource.Get[*httpbridge.IncomingRequest](p.host.Resources, handleOf(stack[0]))
	if !ok {
		abi.WriteOptionNone(mem, retptr)
		return
	}
	mem.WriteByte(retptr, abi.DiscSome)
	switch req.Scheme {
	case "http", "":
		mem.WriteUint32Le(retptr+4, schemeTagHTTP)
		mem.WriteUint32Le(retptr+8, 0)
		mem.WriteUint32Le(retptr+12, 0)
	case "https":
		mem.WriteUint32Le(retptr+4, schemeTagHTTPS)
		mem.WriteUint32Le(retptr+8, 0)
		mem.WriteUint32Le(retptr+12, 0)
	default:
		mem.WriteUint32Le(retptr+4, schemeTagOther)
		var ptr, length uint32
		if alloc, err := p.host.Allocator(mod); err == nil {
			if wp, wl, werr := abi.WriteString(ctx, mem, alloc, req.Scheme); werr == nil {
				ptr, length = wp, wl
			}
		}
		mem.WriteUint32Le(retptr+8, ptr)
		mem.WriteUint32Le(retptr+12, length)
	}
}

func (p *TypesProvider) incomingRequestAuthority(ctx context.Context, mod api.Module, stack []uint64) {
	retptr := uint32(stack[1])
	mem := mod.Memory()
	req, ok := resource.Get[*httpbridge.IncomingRequest](p.host.Resources, handleOf(stack[0]))
	if !ok || req.Authority == "" {
		abi.WriteOptionNone(mem, retptr)
		return
	}
	alloc, err := p.host.Allocator(mod)
	if err != nil {
		abi.WriteOptionNone(mem, retptr)
		return
	}
	abi.WriteOptionString(ctx, mem, alloc, retptr, req.Authority)
}

func (p *TypesProvider) incomingRequestHeaders(_ context.Context, _ api.Module, stack []uint64) {
	headers := preview2.NewFields()
	if req, ok := resource.Get[*httpbridge.IncomingRequest](p.host.Resources, handleOf(stack[0])); ok && req.Headers != nil {
		headers = req.Headers
	}
	stack[0] = uint64(uint32(p.host.Resources.Register(headers)))
}

func (p *TypesProvider) incomingRequestConsume(_ context.Context, mod api.Module, stack []uint64) {
	retptr := uint32(stack[1])
	req, ok := resource.Get[*httpbridge.IncomingRequest](p.host.Resources, handleOf(stack[0]))
	if !ok || !req.Body.MarkConsumed() {
		abi.WriteResultErr(mod.Memory(), retptr, 0)
		return
	}
	abi.WriteResultOkU32(mod.Memory(), retptr, uint32(p.host.Resources.Register(req.Body)))
}

// outgoing-response (server surface)

func (p *TypesProvider) constructorOutgoingResponse(_ context.Context, _ api.Module, stack []uint64) {
	headers, _ := resource.Get[*preview2.Fields](p.host.Resources, handleOf(stack[0]))
	resp := &outgoingResponse{resp: httpbridge.NewOutgoingResponse(headers)}
	stack[0] = uint64(uint32(p.host.Resources.Register(resp)))
}

func (p *TypesProvider) setStatusCode(_ context.Context, _ api.Module, stack []uint64) {
	resp, ok := resource.Get[*outgoingResponse](p.host.Resources, handleOf(stack[0]))
	status := uint32(stack[1])
	if !ok || status > 999 {
		stack[0] = 1
		return
	}
	resp.resp.Status = uint16(status)
	stack[0] = 0
}

func (p *TypesProvider) outgoingResponseBody(_ context.Context, mod api.Module, stack []uint64) {
	retptr := uint32(stack[1])
	resp, ok := resource.Get[*outgoingResponse](p.host.Resources, handleOf(stack[0]))
	if !ok {
		abi.WriteResultErr(mod.Memory(), retptr, 0)
		return
	}
	resp.mu.Lock()
	defer resp.mu.Unlock()
	if resp.bodyTaken {
		abi.WriteResultErr(mod.Memory(), retptr, 0)
		return
	}
	resp.bodyTaken = true
	abi.WriteResultOkU32(mod.Memory(), retptr, uint32(p.host.Resources.Register(resp.resp.Body)))
}

// response-outparam

func (p *TypesProvider) responseOutparamSet(_ context.Context, _ api.Module, stack []uint64) {
	outparam, ok := resource.Get[*httpbridge.ResponseOutparam](p.host.Resources, handleOf(stack[0]))
	if !ok {
		return
	}
	if stack[1] != 0 {
		outparam.SetError(uint8(stack[2]))
		return
	}
	if resp, rok := resource.Get[*outgoingResponse](p.host.Resources, handleOf(stack[2])); rok {
		outparam.SetResponse(resp.resp)
		return
	}
	outparam.SetError(0)
}
