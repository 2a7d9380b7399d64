// Package process implements the lazy-process subsystem: on-demand
// loading of CLI command modules and per-invocation process objects
// with their own stdio buffers and lifecycle.
package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FailureTag classifies a module load failure.
type FailureTag string

const (
	TagUnknownModule  FailureTag = "unknown-module"
	TagBundleNotFound FailureTag = "bundle-not-found"
	TagFileNotFound   FailureTag = "file-not-found"
	TagLoadFailed     FailureTag = "load-failed"
)

// LoadError is a tagged module load failure. Failures are never
// cached, so a later retry can succeed once the cause is fixed.
type LoadError struct {
	Tag    FailureTag
	Module string
	cause  error
}

func (e *LoadError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("module %s: %s: %v", e.Module, e.Tag, e.cause)
	}
	return fmt.Sprintf("module %s: %s", e.Module, e.Tag)
}

func (e *LoadError) Unwrap() error { return e.cause }

// ModuleCache maps module names to compiled bytecode. A module is
// compiled once and instantiated fresh per spawn; concurrent loads of
// the same name are deduplicated.
type ModuleCache struct {
	runtime  wazero.Runtime
	dir      string
	commands map[string]string

	mu      sync.Mutex
	modules map[string]wazero.CompiledModule
	group   singleflight.Group
	logger  *zap.Logger
}

// NewModuleCache creates a cache over dir, with commands mapping a CLI
// command name to the module implementing it.
func NewModuleCache(rt wazero.Runtime, dir string, commands map[string]string, logger *zap.Logger) *ModuleCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if commands == nil {
		commands = map[string]string{}
	}
	return &ModuleCache{
		runtime:  rt,
		dir:      dir,
		commands: commands,
		modules:  make(map[string]wazero.CompiledModule),
		logger:   logger,
	}
}

// ModuleFor resolves a command name to its module name.
func (c *ModuleCache) ModuleFor(command string) (string, bool) {
	name, ok := c.commands[command]
	return name, ok
}

// LoadOrGet returns the compiled module for name, compiling it on
// first use. The second call for a name returns the identical cached
// object.
func (c *ModuleCache) LoadOrGet(ctx context.Context, name string) (wazero.CompiledModule, error) {
	c.mu.Lock()
	if mod, ok := c.modules[name]; ok {
		c.mu.Unlock()
		return mod, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(name, func() (any, error) {
		// Re-check: a previous flight may have populated the cache.
		c.mu.Lock()
		if mod, ok := c.modules[name]; ok {
			c.mu.Unlock()
			return mod, nil
		}
		c.mu.Unlock()

		mod, err := c.load(ctx, name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.modules[name] = mod
		c.mu.Unlock()
		return mod, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(wazero.CompiledModule), nil
}

func (c *ModuleCache) load(ctx context.Context, name string) (wazero.CompiledModule, error) {
	if name == "" {
		return nil, &LoadError{Tag: TagUnknownModule, Module: name}
	}
	if _, err := os.Stat(c.dir); err != nil {
		return nil, &LoadError{Tag: TagBundleNotFound, Module: name, cause: err}
	}
	path := filepath.Join(c.dir, name+".wasm")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Tag: TagFileNotFound, Module: name, cause: err}
	}
	mod, err := c.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, &LoadError{Tag: TagLoadFailed, Module: name, cause: err}
	}
	c.logger.Debug("compiled command module",
		zap.String("module", name),
		zap.Int("bytes", len(data)))
	return mod, nil
}

// Unload evicts a cached module so the next LoadOrGet reloads it from
// storage.
func (c *ModuleCache) Unload(ctx context.Context, name string) {
	c.mu.Lock()
	mod, ok := c.modules[name]
	delete(c.modules, name)
	c.mu.Unlock()
	if ok {
		mod.Close(ctx)
	}
}
