package linker

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tidewave/wasmhost/errors"
)

// Linker collects providers and binds their declarations into a wazero
// runtime as host modules, one per versioned interface name.
type Linker struct {
	providers []Provider
	logger    *zap.Logger
}

func New(logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{logger: logger}
}

// Register adds a provider. Must happen before Instantiate.
func (l *Linker) Register(providers ...Provider) {
	l.providers = append(l.providers, providers...)
}

// Providers returns the registered providers.
func (l *Linker) Providers() []Provider {
	return l.providers
}

// Instantiate builds and instantiates one host module per versioned
// interface name. Every host function is wrapped to be total: a panic
// inside a provider is converted into a logged no-op instead of
// aborting guest execution.
func (l *Linker) Instantiate(ctx context.Context, rt wazero.Runtime) error {
	for _, p := range l.providers {
		funcs := p.Functions()
		for _, module := range moduleNames(p) {
			builder := rt.NewHostModuleBuilder(module)
			for _, decl := range funcs {
				builder.NewFunctionBuilder().
					WithGoModuleFunction(l.total(module, decl.Name, decl.Fn), decl.Params, decl.Results).
					Export(decl.Name)
			}
			if _, err := builder.Instantiate(ctx); err != nil {
				return errors.Registration(module, "", err)
			}
			l.logger.Debug("host module bound",
				zap.String("module", module),
				zap.Int("functions", len(funcs)))
		}
	}
	return nil
}

func (l *Linker) total(module, name string, fn api.GoModuleFunc) api.GoModuleFunc {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("host function panicked",
					zap.String("module", module),
					zap.String("function", name),
					zap.Any("panic", r))
				for i := range stack {
					stack[i] = 0
				}
			}
		}()
		fn.Call(ctx, mod, stack)
	})
}
