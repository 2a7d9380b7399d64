package process

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/tidewave/wasmhost/resource"
)

// Table owns the runtime and module cache for CLI command modules and
// tracks live invocations by handle. Every spawn gets an isolated
// instance: no two invocations share linear memory.
type Table struct {
	runtime wazero.Runtime
	cache   *ModuleCache
	procs   *resource.Registry
	logger  *zap.Logger
}

// Config for a process table.
type Config struct {
	// ModulesDir holds <module>.wasm files.
	ModulesDir string
	// Commands maps a CLI command name to its module name.
	Commands map[string]string
	Logger   *zap.Logger
}

// NewTable creates a table with its own runtime. Command modules are
// WASI preview-1 binaries, so preview-1 imports are instantiated once
// here and shared by every spawn.
func NewTable(ctx context.Context, cfg Config) (*Table, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return &Table{
		runtime: rt,
		cache:   NewModuleCache(rt, cfg.ModulesDir, cfg.Commands, logger),
		procs:   resource.NewRegistry(),
		logger:  logger,
	}, nil
}

// Cache exposes the module cache for preloading and eviction.
func (t *Table) Cache() *ModuleCache { return t.cache }

// Spawn allocates a process synchronously. Execution does not start
// until the caller closes stdin.
func (t *Table) Spawn(command string, args []string, env map[string]string, cwd string) (resource.Handle, *LazyProcess) {
	proc := newLazyProcess(t.cache, t.runtime, t.logger, command, args, env, cwd)
	h := t.procs.Register(proc)
	t.logger.Debug("spawned process",
		zap.Int32("handle", int32(h)),
		zap.String("command", command),
		zap.Strings("args", args))
	return h, proc
}

// Get resolves a process handle.
func (t *Table) Get(h resource.Handle) (*LazyProcess, bool) {
	return resource.Get[*LazyProcess](t.procs, h)
}

// Release drops a process handle, terminating the invocation if still
// running.
func (t *Table) Release(h resource.Handle) {
	t.procs.Drop(h)
}

// Close terminates all processes and releases the runtime.
func (t *Table) Close(ctx context.Context) {
	t.procs.Clear()
	t.runtime.Close(ctx)
}
