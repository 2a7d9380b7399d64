package http

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tidewave/wasmhost/abi"
	"github.com/tidewave/wasmhost/httpbridge"
	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/resource"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// OutgoingHandlerProvider implements wasi:http/outgoing-handler.
// handle is the only function: it issues exactly one native request
// through the dispatcher and returns a future the guest polls.
type OutgoingHandlerProvider struct {
	host       *preview2.Host
	dispatcher *httpbridge.Dispatcher
	logger     *zap.Logger
}

func NewOutgoingHandlerProvider(host *preview2.Host, dispatcher *httpbridge.Dispatcher, logger *zap.Logger) *OutgoingHandlerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutgoingHandlerProvider{host: host, dispatcher: dispatcher, logger: logger}
}

func (p *OutgoingHandlerProvider) Name() string { return "wasi:http/outgoing-handler" }

func (p *OutgoingHandlerProvider) Versions() []string { return linker.DefaultVersions }

func (p *OutgoingHandlerProvider) Functions() []linker.FuncDecl {
	i32 := api.ValueTypeI32
	return []linker.FuncDecl{
		// handle(request, options: option<request-options>) ->
		// result<future-incoming-response, error-code>. The result
		// aligns to 8 through error-code and is written at the
		// trailing return pointer.
		{Name: "handle", Params: []api.ValueType{i32, i32, i32, i32}, Fn: p.handle},
	}
}

func (p *OutgoingHandlerProvider) handle(_ context.Context, mod api.Module, stack []uint64) {
	retptr := uint32(stack[3])
	req, ok := resource.Get[*outgoingRequest](p.host.Resources, resource.Handle(int32(uint32(stack[0]))))
	if !ok {
		abi.WriteResultErrAlign8(mod.Memory(), retptr, errorCodeHTTPProtocolError)
		return
	}
	if p.dispatcher == nil {
		abi.WriteResultErrAlign8(mod.Memory(), retptr, errorCodeConfigurationError)
		return
	}

	fut := httpbridge.NewFuture()
	futureHandle := p.host.Resources.Register(fut)

	p.logger.Debug("dispatching outgoing request",
		zap.String("method", req.req.Method),
		zap.String("scheme", req.req.Scheme),
		zap.String("authority", req.req.Authority))
	p.dispatcher.Dispatch(req.req, fut)

	abi.WriteResultOkU32Align8(mod.Memory(), retptr, uint32(futureHandle))
}
