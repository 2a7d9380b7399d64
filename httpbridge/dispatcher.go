package httpbridge

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tidewave/wasmhost/errors"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// Timeouts are fixed per operation class and expire silently: the
// guest observes an unresolved future and re-polls, or a future error
// for a dead connection.
const (
	connectTimeout        = 10 * time.Second
	bufferedTimeout       = 120 * time.Second
	responseHeaderTimeout = 30 * time.Second
	streamChunkSize       = 4096
)

// Dispatcher issues native HTTP requests on the host's I/O
// infrastructure, fully asynchronously from guest execution. The guest
// observes completion only through a Future's pollable; there is no
// reentrant host-to-guest callback path.
type Dispatcher struct {
	streamClient *http.Client
	loopbackPort int
	logger       *zap.Logger
}

// Config configures a Dispatcher.
type Config struct {
	// LoopbackPort is where mcp:// requests are rerouted.
	LoopbackPort int
	Logger       *zap.Logger
}

func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		// Streaming responses have no overall deadline; headers must
		// still arrive within their budget.
		streamClient: &http.Client{
			Transport: newTransport(),
		},
		loopbackPort: cfg.LoopbackPort,
		logger:       logger,
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: responseHeaderTimeout,
	}
}

// Dispatch issues exactly one native request for req and settles fut
// with exactly one of {response, error}.
//
// Mode selection: an SSE accept header picks streaming mode, where
// the future resolves as soon as headers arrive and chunks are
// appended to the shared incoming body as they land; otherwise
// buffered mode collects the whole response in an isolated
// short-lived session and resolves once.
func (d *Dispatcher) Dispatch(req *OutgoingRequest, fut *Future) {
	if wantsStreaming(req.Headers) {
		go d.dispatchStreaming(req, fut)
		return
	}
	go d.dispatchBuffered(req, fut)
}

func wantsStreaming(headers *preview2.Fields) bool {
	for _, e := range headers.Entries() {
		if !strings.EqualFold(e.Name, "accept") {
			continue
		}
		if strings.Contains(strings.ToLower(string(e.Value)), "text/event-stream") {
			return true
		}
	}
	return false
}

func (d *Dispatcher) buildRequest(req *OutgoingRequest) (*http.Request, error) {
	url := req.URL(d.loopbackPort)
	httpReq, err := http.NewRequest(req.Method, url, bytes.NewReader(req.Body.Bytes()))
	if err != nil {
		return nil, err
	}
	for _, e := range req.Headers.Entries() {
		httpReq.Header.Add(e.Name, string(e.Value))
	}
	return httpReq, nil
}

func (d *Dispatcher) dispatchBuffered(req *OutgoingRequest, fut *Future) {
	httpReq, err := d.buildRequest(req)
	if err != nil {
		fut.ResolveError(err)
		return
	}

	// Isolated short-lived session: nothing shared with the streaming
	// transport, idle connections torn down once done.
	transport := newTransport()
	client := &http.Client{Transport: transport, Timeout: bufferedTimeout}
	defer transport.CloseIdleConnections()

	resp, err := client.Do(httpReq)
	if err != nil {
		d.logger.Debug("buffered request failed",
			zap.String("method", req.Method),
			zap.Error(err))
		fut.ResolveError(errors.New(errors.PhaseHTTP, errors.KindUnavailable).
			Entity(req.Authority).
			Cause(err).
			Build())
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fut.ResolveError(err)
		return
	}

	fut.ResolveResponse(&IncomingResponse{
		Status:  uint16(resp.StatusCode),
		Headers: fieldsFromHeader(resp),
		Body:    preview2.NewCompleteInputBody(body),
	})
}

func (d *Dispatcher) dispatchStreaming(req *OutgoingRequest, fut *Future) {
	httpReq, err := d.buildRequest(req)
	if err != nil {
		fut.ResolveError(err)
		return
	}

	resp, err := d.streamClient.Do(httpReq)
	if err != nil {
		d.logger.Debug("streaming request failed",
			zap.String("method", req.Method),
			zap.Error(err))
		fut.ResolveError(errors.New(errors.PhaseHTTP, errors.KindUnavailable).
			Entity(req.Authority).
			Cause(err).
			Build())
		return
	}
	defer resp.Body.Close()

	// Status and headers are guest-visible before the body completes.
	body := preview2.NewInputBody()
	fut.ResolveResponse(&IncomingResponse{
		Status:  uint16(resp.StatusCode),
		Headers: fieldsFromHeader(resp),
		Body:    body,
	})

	buf := make([]byte, streamChunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			body.Append(buf[:n])
		}
		if err != nil {
			// EOF and mid-stream failure both terminate the body; the
			// guest has already seen status and every delivered chunk.
			body.Complete()
			return
		}
	}
}

func fieldsFromHeader(resp *http.Response) *preview2.Fields {
	fields := preview2.NewFields()
	for name, values := range resp.Header {
		for _, v := range values {
			fields.Append(strings.ToLower(name), []byte(v))
		}
	}
	return fields
}
