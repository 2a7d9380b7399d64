package runtime

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tidewave/wasmhost/errors"
	"github.com/tidewave/wasmhost/httpbridge"
	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/process"
	"github.com/tidewave/wasmhost/rpc"
	"github.com/tidewave/wasmhost/wasi/preview2"
	wasicli "github.com/tidewave/wasmhost/wasi/preview2/cli"
	"github.com/tidewave/wasmhost/wasi/preview2/clocks"
	wasihttp "github.com/tidewave/wasmhost/wasi/preview2/http"
	wasiio "github.com/tidewave/wasmhost/wasi/preview2/io"
	"github.com/tidewave/wasmhost/wasi/preview2/random"
	"github.com/tidewave/wasmhost/wasi/preview2/sockets"
)

// Host owns everything with a lifecycle: the engine, the compiled
// primary guest and its instance, the resource world shared by the
// providers, the outgoing HTTP dispatcher, the CLI process table, and
// the JSON-RPC endpoint.
type Host struct {
	cfg       Config
	logger    *zap.Logger
	sessionID string

	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	instance api.Module

	world      *preview2.Host
	link       *linker.Linker
	dispatcher *httpbridge.Dispatcher
	procs      *process.Table
	server     *rpc.Server

	guestStdout *wasicli.StdoutProvider
	guestStderr *wasicli.StderrProvider

	port int
}

// New builds an unstarted host. Nothing is bound or compiled until
// Start.
func New(cfg Config, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{cfg: cfg, logger: logger}
}

// Start brings the host up: process table, JSON-RPC endpoint, HTTP
// dispatcher (loopback rewrites target the bound port), provider set,
// then the primary guest. Returns the bound JSON-RPC port.
//
// The endpoint comes up before the guest so that guest code running at
// instantiation can already reach the loopback surface.
func (h *Host) Start(ctx context.Context) (int, error) {
	h.sessionID = uuid.NewString()
	logger := h.logger.With(zap.String("session", h.sessionID))

	procs, err := process.NewTable(ctx, process.Config{
		ModulesDir: h.cfg.ModulesDir,
		Commands:   h.cfg.Commands,
		Logger:     logger,
	})
	if err != nil {
		return 0, errors.New(errors.PhaseRuntime, errors.KindInternal).
			Detail("process table").Cause(err).Build()
	}
	h.procs = procs

	h.server = rpc.NewServer(h, h.sessionID, logger)
	port, err := h.server.Start(fmt.Sprintf(":%d", h.cfg.ListenPort))
	if err != nil {
		h.procs.Close(ctx)
		return 0, errors.New(errors.PhaseRPC, errors.KindUnavailable).
			Detail("listen :%d", h.cfg.ListenPort).Cause(err).Build()
	}
	h.port = port

	loopback := h.cfg.LoopbackPort
	if loopback == 0 {
		loopback = port
	}
	h.dispatcher = httpbridge.NewDispatcher(httpbridge.Config{
		LoopbackPort: loopback,
		Logger:       logger,
	})

	h.world = preview2.NewHost()
	h.link = linker.New(logger)
	h.link.Register(h.providers(logger)...)

	h.runtime = wazero.NewRuntime(ctx)
	if err := h.link.Instantiate(ctx, h.runtime); err != nil {
		h.Close(ctx)
		return 0, err
	}

	if h.cfg.Guest != "" {
		if err := h.loadGuest(ctx); err != nil {
			h.Close(ctx)
			return 0, err
		}
	}

	logger.Info("host started",
		zap.Int("port", port),
		zap.String("guest", h.cfg.Guest),
		zap.Int("commands", len(h.cfg.Commands)))
	return port, nil
}

func (h *Host) loadGuest(ctx context.Context) error {
	data, err := os.ReadFile(h.cfg.Guest)
	if err != nil {
		return errors.New(errors.PhaseLoad, errors.KindNotFound).
			Entity(h.cfg.Guest).Cause(err).Build()
	}
	compiled, err := h.runtime.CompileModule(ctx, data)
	if err != nil {
		return errors.Load(h.cfg.Guest, err)
	}
	h.compiled = compiled

	// Advisory: a missing import may guard a path the guest never
	// takes, so startup proceeds either way.
	h.link.ValidateCoverage(compiled)

	instance, err := h.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName("guest"))
	if err != nil {
		return errors.Instantiation(err)
	}
	h.instance = instance
	return nil
}

// providers returns every host interface the guest may import.
func (h *Host) providers(logger *zap.Logger) []linker.Provider {
	h.guestStdout = wasicli.NewStdoutProvider(h.world)
	h.guestStderr = wasicli.NewStderrProvider(h.world)
	return []linker.Provider{
		wasiio.NewStreamsProvider(h.world),
		wasiio.NewPollProvider(h.world),
		wasiio.NewErrorProvider(h.world),
		clocks.NewWallClockProvider(),
		clocks.NewMonotonicClockProvider(h.world),
		random.NewProvider(h.world),
		wasicli.NewStdinProvider(h.world),
		h.guestStdout,
		h.guestStderr,
		wasicli.NewTerminalStdinProvider(),
		wasicli.NewTerminalStdoutProvider(),
		wasicli.NewTerminalStderrProvider(),
		wasicli.NewTerminalInputProvider(h.world),
		wasicli.NewTerminalOutputProvider(h.world),
		sockets.NewNetworkProvider(h.world),
		sockets.NewInstanceNetworkProvider(h.world),
		sockets.NewTCPProvider(h.world),
		sockets.NewUDPProvider(h.world),
		wasihttp.NewTypesProvider(h.world),
		wasihttp.NewOutgoingHandlerProvider(h.world, h.dispatcher, logger),
	}
}

// Port returns the bound JSON-RPC port.
func (h *Host) Port() int { return h.port }

// SessionID identifies this host run in logs and initialize results.
func (h *Host) SessionID() string { return h.sessionID }

// Guest returns the instantiated primary guest, or nil when none is
// configured.
func (h *Host) Guest() api.Module { return h.instance }

// GuestStdout returns everything the guest wrote to its stdout so far.
func (h *Host) GuestStdout() []byte {
	if h.guestStdout == nil {
		return nil
	}
	return h.guestStdout.Output()
}

// GuestStderr returns everything the guest wrote to its stderr so far.
func (h *Host) GuestStderr() []byte {
	if h.guestStderr == nil {
		return nil
	}
	return h.guestStderr.Output()
}

// Processes exposes the CLI process table.
func (h *Host) Processes() *process.Table { return h.procs }

// Close tears the host down in reverse start order. Safe to call on a
// partially started host.
func (h *Host) Close(ctx context.Context) {
	if h.server != nil {
		if err := h.server.Close(ctx); err != nil {
			h.logger.Warn("rpc shutdown", zap.Error(err))
		}
		h.server = nil
	}
	if h.runtime != nil {
		if err := h.runtime.Close(ctx); err != nil {
			h.logger.Warn("runtime close", zap.Error(err))
		}
		h.runtime = nil
		h.instance = nil
		h.compiled = nil
	}
	if h.world != nil {
		h.world.Close()
		h.world = nil
	}
	if h.procs != nil {
		h.procs.Close(ctx)
		h.procs = nil
	}
}

// ValidateGuest compiles the configured guest and reports which of its
// imports the provider set does not cover, without instantiating
// anything or binding the network. Standalone so the validate
// subcommand needs no running host.
func ValidateGuest(ctx context.Context, cfg Config, logger *zap.Logger) ([]linker.Import, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Guest == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "no guest configured")
	}
	data, err := os.ReadFile(cfg.Guest)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Entity(cfg.Guest).Cause(err).Build()
	}

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Load(cfg.Guest, err)
	}

	probe := &Host{cfg: cfg, logger: logger}
	probe.world = preview2.NewHost()
	defer probe.world.Close()
	probe.dispatcher = httpbridge.NewDispatcher(httpbridge.Config{Logger: logger})
	link := linker.New(logger)
	link.Register(probe.providers(logger)...)
	return link.MissingImports(compiled), nil
}
