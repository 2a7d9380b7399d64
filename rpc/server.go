// Package rpc exposes the host's tool surface over a TCP JSON-RPC 2.0
// endpoint with MCP-shaped payloads. The transport is deliberately
// plain: HTTP/1.1, one JSON response per connection, connection then
// closed.
package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// ToolHandler is the host-side implementation the endpoint adapts.
type ToolHandler interface {
	Tools() []mcp.Tool
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// maxBodyBytes caps a single request body.
const maxBodyBytes = 4 << 20

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server is the JSON-RPC endpoint.
type Server struct {
	handler   ToolHandler
	sessionID string
	logger    *zap.Logger

	httpSrv *http.Server
	ln      net.Listener
}

func NewServer(handler ToolHandler, sessionID string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{handler: handler, sessionID: sessionID, logger: logger}
}

// Start binds addr (e.g. ":0") and serves until Close. Returns the
// bound TCP port.
func (s *Server) Start(addr string) (int, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, err
	}
	s.ln = ln
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// One response per connection: no keep-alive reuse.
	s.httpSrv.SetKeepAlivesEnabled(false)

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("rpc server stopped", zap.Error(err))
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	s.logger.Info("rpc endpoint listening",
		zap.Int("port", port),
		zap.String("session", s.sessionID))
	return port, nil
}

// Close shuts the endpoint down.
func (s *Server) Close(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the HTTP handler, exported for in-process routing
// and tests.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveHTTP)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, nil, mcp.PARSE_ERROR, "parse error")
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeError(w, req.ID, mcp.INVALID_REQUEST, "invalid request")
		return
	}

	s.logger.Debug("rpc request", zap.String("method", req.Method))
	switch req.Method {
	case "initialize":
		s.writeResult(w, req.ID, s.initializeResult())
	case "tools/list":
		s.writeResult(w, req.ID, mcp.ListToolsResult{Tools: s.handler.Tools()})
	case "tools/call":
		s.handleCall(w, r.Context(), req)
	default:
		s.writeError(w, req.ID, mcp.METHOD_NOT_FOUND, "method not found: "+req.Method)
	}
}

func (s *Server) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "wasmhost",
			"version": "1.0.0",
		},
		"sessionId": s.sessionID,
	}
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleCall(w http.ResponseWriter, ctx context.Context, req request) {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		s.writeError(w, req.ID, mcp.INVALID_PARAMS, "invalid tool call params")
		return
	}

	result, err := s.handler.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		// Tool failures stay inside the result envelope so the
		// client sees isError rather than a protocol fault.
		result = mcp.NewToolResultError(err.Error())
	}
	s.writeResult(w, req.ID, result)
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	s.write(w, response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	s.write(w, response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
}

func (s *Server) write(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("rpc response write failed", zap.Error(err))
	}
}
