package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tidewave/wasmhost/errors"
)

const (
	// shellTimeout bounds one tools/call shell execution.
	shellTimeout = 30 * time.Second
	// shellOutputCap bounds how much of each output stream a tool
	// result carries.
	shellOutputCap = 1 << 20
)

// Tools lists the host's tool surface.
func (h *Host) Tools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "shell",
			Description: "Run a CLI command inside a sandboxed WASM command module and return its output.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "Command line to run, split on whitespace.",
					},
					"stdin": map[string]any{
						"type":        "string",
						"description": "Data fed to the command's standard input.",
					},
				},
				Required: []string{"command"},
			},
		},
		{
			Name:        "unload_module",
			Description: "Evict a cached command module so its next use reloads from disk.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"module": map[string]any{
						"type":        "string",
						"description": "Module name without the .wasm suffix.",
					},
				},
				Required: []string{"module"},
			},
		},
	}
}

// CallTool dispatches one tools/call invocation. Tool failures come
// back as isError results; only unknown tools and malformed arguments
// surface as errors.
func (h *Host) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	switch name {
	case "shell":
		return h.runShell(ctx, args)
	case "unload_module":
		return h.unloadModule(ctx, args)
	}
	return nil, errors.NotFound(errors.PhaseRPC, name)
}

func (h *Host) runShell(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	line, _ := args["command"].(string)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.InvalidInput(errors.PhaseRPC, "empty command")
	}
	stdin, _ := args["stdin"].(string)

	handle, proc := h.procs.Spawn(fields[0], fields[1:], nil, "")
	defer h.procs.Release(handle)

	if stdin != "" {
		if err := proc.WriteStdin([]byte(stdin)); err != nil {
			return nil, err
		}
	}
	proc.CloseStdin(ctx)

	select {
	case <-proc.Done():
	case <-ctx.Done():
		proc.Terminate()
		<-proc.Done()
	case <-time.After(shellTimeout):
		proc.Terminate()
		<-proc.Done()
	}

	code, _ := proc.TryWait()
	var b strings.Builder
	b.Write(proc.ReadStdout(shellOutputCap))
	b.Write(proc.ReadStderr(shellOutputCap))
	if code != 0 {
		fmt.Fprintf(&b, "exit status %d\n", code)
		return mcp.NewToolResultError(b.String()), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (h *Host) unloadModule(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	module, _ := args["module"].(string)
	if module == "" {
		return nil, errors.InvalidInput(errors.PhaseRPC, "empty module name")
	}
	h.procs.Cache().Unload(ctx, module)
	return mcp.NewToolResultText("unloaded " + module), nil
}
