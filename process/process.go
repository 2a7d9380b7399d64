package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	hosterrors "github.com/tidewave/wasmhost/errors"
)

// State of a LazyProcess.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateCompleted
	StateFailed
)

// TerminatedExitCode is the sentinel reported after Terminate.
const TerminatedExitCode = 137

// LazyProcess is one command invocation. Stdin accumulates while open;
// closing stdin is the sole execution trigger. This is a batch model:
// no output is produced before stdin closes, and stdout/stderr are
// drained by reads.
type LazyProcess struct {
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string

	cache   *ModuleCache
	runtime wazero.Runtime
	logger  *zap.Logger

	mu          sync.Mutex
	stdin       bytes.Buffer
	stdout      bytes.Buffer
	stderr      bytes.Buffer
	stdinClosed bool
	state       State
	exitCode    int
	err         error
	terminated  bool
	cols, rows  uint32

	cancel context.CancelFunc
	done   chan struct{}
}

func newLazyProcess(cache *ModuleCache, rt wazero.Runtime, logger *zap.Logger, command string, args []string, env map[string]string, cwd string) *LazyProcess {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LazyProcess{
		Command: command,
		Args:    args,
		Env:     env,
		Cwd:     cwd,
		cache:   cache,
		runtime: rt,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// WriteStdin appends while stdin is open.
func (p *LazyProcess) WriteStdin(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdinClosed {
		return errors.New("stdin closed")
	}
	p.stdin.Write(data)
	return nil
}

// CloseStdin closes stdin and starts execution. Idempotent: only the
// first close triggers.
func (p *LazyProcess) CloseStdin(ctx context.Context) {
	p.mu.Lock()
	if p.stdinClosed || p.terminated {
		p.mu.Unlock()
		return
	}
	p.stdinClosed = true
	p.state = StateRunning
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	input := append([]byte(nil), p.stdin.Bytes()...)
	p.mu.Unlock()

	go p.execute(runCtx, input)
}

// ReadStdout drains up to max buffered stdout bytes.
func (p *LazyProcess) ReadStdout(max int) []byte {
	return drain(&p.mu, &p.stdout, max)
}

// ReadStderr drains up to max buffered stderr bytes.
func (p *LazyProcess) ReadStderr(max int) []byte {
	return drain(&p.mu, &p.stderr, max)
}

func drain(mu *sync.Mutex, buf *bytes.Buffer, max int) []byte {
	mu.Lock()
	defer mu.Unlock()
	if max <= 0 || max > buf.Len() {
		max = buf.Len()
	}
	if max == 0 {
		return nil
	}
	out := make([]byte, max)
	buf.Read(out)
	return out
}

// TryWait reports the exit code without blocking; done is false while
// execution has not finished.
func (p *LazyProcess) TryWait() (code int, done bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateCompleted && p.state != StateFailed {
		return 0, false
	}
	return p.exitCode, true
}

// IsReady reports whether output is buffered or execution finished.
func (p *LazyProcess) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdout.Len() > 0 || p.stderr.Len() > 0 ||
		p.state == StateCompleted || p.state == StateFailed
}

// Done is closed once execution finished or the process was
// terminated.
func (p *LazyProcess) Done() <-chan struct{} { return p.done }

// Err returns the failure, if any.
func (p *LazyProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Terminate cancels the execution task cooperatively and
// force-completes with a sentinel code. Output produced after
// termination is discarded.
func (p *LazyProcess) Terminate() {
	p.mu.Lock()
	if p.state == StateCompleted || p.state == StateFailed {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	p.state = StateFailed
	p.exitCode = TerminatedExitCode
	p.err = hosterrors.New(hosterrors.PhaseProcess, hosterrors.KindCanceled).
		Entity(p.Command).
		Build()
	cancel := p.cancel
	wasRunning := cancel != nil
	if !wasRunning {
		// Never started: close done here, no execute goroutine exists.
		close(p.done)
	}
	p.mu.Unlock()
	if wasRunning {
		cancel()
	}
}

// TerminalSize returns the recorded terminal dimensions. This is spawn
// metadata only: no PTY exists.
func (p *LazyProcess) TerminalSize() (cols, rows uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cols, p.rows
}

// SetTerminalSize records terminal dimensions.
func (p *LazyProcess) SetTerminalSize(cols, rows uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cols, p.rows = cols, rows
}

// Drop implements the registry dropper: a dropped process handle
// terminates the invocation.
func (p *LazyProcess) Drop() { p.Terminate() }

func (p *LazyProcess) execute(ctx context.Context, stdin []byte) {
	code, err := p.run(ctx, stdin)

	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		close(p.done)
		return
	}
	if err != nil {
		p.state = StateFailed
		p.err = hosterrors.Process(p.Command, err)
		if code == 0 {
			code = 1
		}
		p.exitCode = code
		p.stderr.WriteString(p.Command + ": " + err.Error() + "\n")
	} else {
		p.state = StateCompleted
		p.exitCode = code
	}
	p.mu.Unlock()
	close(p.done)

	p.logger.Debug("process finished",
		zap.String("command", p.Command),
		zap.Int("exit", code),
		zap.Error(err))
}

// run resolves the command to a builtin or a module invocation.
func (p *LazyProcess) run(ctx context.Context, stdin []byte) (int, error) {
	if code, handled := p.runBuiltin(); handled {
		return code, nil
	}
	name, ok := p.cache.ModuleFor(p.Command)
	if !ok {
		p.appendStderr(p.Command + ": command not found\n")
		return 127, nil
	}
	return p.runModule(ctx, name, stdin)
}

func (p *LazyProcess) runModule(ctx context.Context, name string, stdin []byte) (int, error) {
	compiled, err := p.cache.LoadOrGet(ctx, name)
	if err != nil {
		return 126, err
	}

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(stdin)).
		WithStdout(&outputWriter{p: p, buf: &p.stdout}).
		WithStderr(&outputWriter{p: p, buf: &p.stderr}).
		WithArgs(append([]string{p.Command}, p.Args...)...).
		WithStartFunctions() // entry point invoked explicitly below
	for k, v := range p.Env {
		cfg = cfg.WithEnv(k, v)
	}

	mod, err := p.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return exitCodeOf(err)
	}
	defer mod.Close(ctx)

	entry := mod.ExportedFunction("run")
	if entry == nil {
		entry = mod.ExportedFunction("_start")
	}
	if entry == nil {
		return 126, errors.New("no run or _start export")
	}
	if _, err := entry.Call(ctx); err != nil {
		return exitCodeOf(err)
	}
	return 0, nil
}

func exitCodeOf(err error) (int, error) {
	var exit *sys.ExitError
	if errors.As(err, &exit) {
		return int(exit.ExitCode()), nil
	}
	return 0, err
}

func (p *LazyProcess) appendStderr(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.terminated {
		p.stderr.WriteString(s)
	}
}

// outputWriter funnels guest stdio into the process buffer under the
// process lock, discarding output after termination.
type outputWriter struct {
	p   *LazyProcess
	buf *bytes.Buffer
}

func (w *outputWriter) Write(data []byte) (int, error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	if w.p.terminated {
		return len(data), nil
	}
	return w.buf.Write(data)
}

var _ io.Writer = (*outputWriter)(nil)
