package httpbridge

import (
	"fmt"
	"sync"

	"github.com/tidewave/wasmhost/wasi/preview2"
)

// PseudoScheme is rewritten to target the local loopback service so
// guest-to-guest calls route through host networking.
const PseudoScheme = "mcp"

// OutgoingRequest models a request the guest is assembling before
// handing it to the dispatcher.
type OutgoingRequest struct {
	Method        string
	Scheme        string
	Authority     string
	PathWithQuery string
	Headers       *preview2.Fields
	Body          *preview2.OutputBody
}

func NewOutgoingRequest(headers *preview2.Fields) *OutgoingRequest {
	if headers == nil {
		headers = preview2.NewFields()
	}
	return &OutgoingRequest{
		Method:  "GET",
		Scheme:  "https",
		Headers: headers,
		Body:    preview2.NewOutputBody(),
	}
}

// URL renders the target, applying the loopback rewrite for the
// reserved pseudo-scheme. Method, headers and body are untouched by
// the rewrite; only scheme and authority change.
func (r *OutgoingRequest) URL(loopbackPort int) string {
	scheme := r.Scheme
	authority := r.Authority
	if scheme == PseudoScheme {
		scheme = "http"
		authority = fmt.Sprintf("127.0.0.1:%d", loopbackPort)
	}
	path := r.PathWithQuery
	if path == "" {
		path = "/"
	}
	return scheme + "://" + authority + path
}

// IncomingResponse is the guest-visible side of a native response.
// Status and headers are available as soon as response headers arrive;
// the body may still be streaming.
type IncomingResponse struct {
	Status  uint16
	Headers *preview2.Fields
	Body    *preview2.InputBody
}

// IncomingRequest is the server-side request handed to a guest HTTP
// handler. Accessors on the provider side are idempotent reads of
// these immutable fields; only the body is single-consume.
type IncomingRequest struct {
	Method        string
	Scheme        string
	Authority     string
	PathWithQuery string
	Headers       *preview2.Fields
	Body          *preview2.InputBody
}

// OutgoingResponse is the guest-built response for the server surface.
type OutgoingResponse struct {
	Status  uint16
	Headers *preview2.Fields
	Body    *preview2.OutputBody
}

func NewOutgoingResponse(headers *preview2.Fields) *OutgoingResponse {
	if headers == nil {
		headers = preview2.NewFields()
	}
	return &OutgoingResponse{Status: 200, Headers: headers, Body: preview2.NewOutputBody()}
}

// ResponseOutparam collects the guest's single completion of a
// server-side request: either a response or a protocol error code.
type ResponseOutparam struct {
	mu    sync.Mutex
	set   bool
	resp  *OutgoingResponse
	errc  uint8
	isErr bool
	done  chan struct{}
}

func NewResponseOutparam() *ResponseOutparam {
	return &ResponseOutparam{done: make(chan struct{})}
}

// SetResponse completes the outparam with a response. Returns false if
// it was already completed.
func (o *ResponseOutparam) SetResponse(resp *OutgoingResponse) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.set {
		return false
	}
	o.set = true
	o.resp = resp
	close(o.done)
	return true
}

// SetError completes the outparam with an error code. Returns false if
// it was already completed.
func (o *ResponseOutparam) SetError(code uint8) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.set {
		return false
	}
	o.set = true
	o.isErr = true
	o.errc = code
	close(o.done)
	return true
}

// Done is closed once the guest completed the outparam.
func (o *ResponseOutparam) Done() <-chan struct{} {
	return o.done
}

// Outcome returns the completion. ok is false while unset.
func (o *ResponseOutparam) Outcome() (resp *OutgoingResponse, errCode uint8, isErr, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resp, o.errc, o.isErr, o.set
}
