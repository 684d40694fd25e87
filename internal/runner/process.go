package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/sylas-dev/sylas/internal/common/logger"
)

const sigtermGrace = 5 * time.Second

// LineParser turns one NDJSON line from a spawned CLI's stdout into zero
// or more uniform Events. Each spawned-CLI adapter supplies its own,
// since Gemini/Codex/Cursor/OpenCode each speak a different wire shape.
type LineParser func(line []byte) ([]Event, error)

// ProcessConfig configures a process-backed Supervisor.
type ProcessConfig struct {
	RunnerType   Type
	Command      string
	Args         func(opts StartOptions) []string
	Env          func(opts StartOptions) []string
	UsePTY       bool // true for CLIs that need a tty to suppress ANSI spinners
	ParseLine    LineParser
	SupportsStdinStream bool // OpenCode: true; Gemini/Codex/Cursor: false
	LogDir       string
	ExternalSessionID string
	Log          *logger.Logger
}

// ProcessRunner is a Supervisor backed by a spawned child process reading
// NDJSON from stdout, shared by the Gemini/Codex/Cursor/OpenCode
// adapters. It implements every uniform contract from spec.md §4.4:
// deferred result emission, abort/SIGTERM/clean-exit disambiguation, log
// rotation on session-id assignment, and delta-message accumulation.
type ProcessRunner struct {
	cfg ProcessConfig

	mu           sync.Mutex
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	ptyFile      *os.File
	running      atomic.Bool
	stopRequested atomic.Bool
	sessionIDKnown atomic.Bool

	logs            *LogStreams
	delta           DeltaBuffer
	events          chan Event
	pendingComplete *Event
	postToolHooks   []PostToolHook
}

var _ Supervisor = (*ProcessRunner)(nil)

// NewProcessRunner builds a ProcessRunner from cfg.
func NewProcessRunner(cfg ProcessConfig) (*ProcessRunner, error) {
	logs, err := NewLogStreams(cfg.LogDir, cfg.ExternalSessionID, cfg.RunnerType)
	if err != nil {
		return nil, err
	}
	return &ProcessRunner{cfg: cfg, logs: logs}, nil
}

func (p *ProcessRunner) Type() Type { return p.cfg.RunnerType }

func (p *ProcessRunner) Start(ctx context.Context, opts StartOptions) (<-chan Event, error) {
	return p.launch(ctx, opts, false)
}

func (p *ProcessRunner) StartStreaming(ctx context.Context, opts StartOptions) (<-chan Event, error) {
	if !p.cfg.SupportsStdinStream {
		return nil, fmt.Errorf("%s runner does not support streaming input", p.cfg.RunnerType)
	}
	return p.launch(ctx, opts, true)
}

func (p *ProcessRunner) launch(ctx context.Context, opts StartOptions, streaming bool) (<-chan Event, error) {
	args := p.cfg.Args(opts)
	if len(opts.MCPServers) > 0 {
		if mcpPath, err := WriteMCPConfigFile(opts.WorkingDir, opts.MCPServers); err != nil {
			p.cfg.Log.WithError(err).Warn("failed writing merged mcp config; starting without it")
		} else {
			args = append(args, "--mcp-config", mcpPath)
		}
	}
	p.postToolHooks = opts.PostToolHooks

	// The process must outlive ctx (the webhook request context that
	// triggered this spawn is canceled the instant the HTTP handler
	// returns); Stop below is the only thing that kills it.
	cmd := exec.CommandContext(context.Background(), p.cfg.Command, args...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = append(os.Environ(), p.cfg.Env(opts)...)

	var stdout io.Reader
	var stdin io.WriteCloser
	var ptyFile *os.File

	if p.cfg.UsePTY {
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("starting %s under pty: %w", p.cfg.RunnerType, err)
		}
		ptyFile = f
		stdout = f
		stdin = f
	} else {
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("attaching stdout pipe for %s: %w", p.cfg.RunnerType, err)
		}
		stdinPipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("attaching stdin pipe for %s: %w", p.cfg.RunnerType, err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting %s: %w", p.cfg.RunnerType, err)
		}
		stdout = stdoutPipe
		stdin = stdinPipe
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.ptyFile = ptyFile
	p.mu.Unlock()
	p.running.Store(true)

	p.events = make(chan Event, 64)

	if opts.Prompt != "" {
		if err := p.writeStdin(opts.Prompt); err != nil {
			p.cfg.Log.WithError(err).Warn("failed writing initial prompt to runner stdin")
		}
	}
	if !streaming {
		stdin.Close()
	}

	go p.readLoop(stdout)
	go p.waitLoop(cmd)

	return p.events, nil
}

func (p *ProcessRunner) writeStdin(text string) error {
	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("runner stdin not open")
	}
	_, err := stdin.Write(append([]byte(text), '\n'))
	return err
}

func (p *ProcessRunner) AddStreamMessage(ctx context.Context, text string) error {
	if !p.cfg.SupportsStdinStream {
		return fmt.Errorf("%s runner does not support streaming input", p.cfg.RunnerType)
	}
	return p.writeStdin(text)
}

func (p *ProcessRunner) CompleteStream(ctx context.Context) error {
	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return nil
	}
	return stdin.Close()
}

// Stop sends SIGTERM, waiting sigtermGrace before escalating to SIGKILL.
// Idempotent: a second call on an already-stopped runner is a no-op.
func (p *ProcessRunner) Stop(ctx context.Context) error {
	if !p.running.Load() {
		return nil
	}
	p.stopRequested.Store(true)

	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return nil // already exited between the running check and here
	}

	deadline := time.NewTimer(sigtermGrace)
	defer deadline.Stop()
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-deadline.C:
			cmd.Process.Signal(syscall.SIGKILL)
			return nil
		case <-ctx.Done():
			cmd.Process.Signal(syscall.SIGKILL)
			return nil
		case <-poll.C:
			if !p.running.Load() {
				return nil
			}
		}
	}
}

func (p *ProcessRunner) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		events, err := p.cfg.ParseLine(line)
		if err != nil {
			p.cfg.Log.WithError(err).Warn("failed parsing runner output line")
			continue
		}
		for _, ev := range events {
			p.dispatch(ev)
		}
	}
}

// dispatch applies session-id-assignment log rotation, delta-message
// accumulation, and the deferred-result buffering rule before handing an
// event to the consumer channel.
func (p *ProcessRunner) dispatch(ev Event) {
	ev.Emitted = time.Now()

	if ev.RunnerSessionID != "" && p.sessionIDKnown.CompareAndSwap(false, true) {
		if err := p.logs.Rotate(ev.RunnerSessionID); err != nil {
			p.cfg.Log.WithError(err).Warn("failed rotating runner log files on session id assignment")
		}
	}

	if ev.Kind == EventMessage {
		if flushed := p.delta.Accept(ev.Role, ev.Text); flushed != nil {
			p.emit(*flushed)
		}
		return
	}
	if flushed := p.delta.FlushOnNonMessage(); flushed != nil {
		p.emit(*flushed)
	}

	if ev.Kind == EventToolUse {
		RunPostToolHooks(p.postToolHooks, ev, p.writeStdin, p.cfg.Log)
	}

	if ev.Kind == EventComplete {
		// Deferred: held until waitLoop observes process exit + running=false.
		p.pendingComplete = &ev
		return
	}
	p.emit(ev)
}

// pendingComplete (the struct field) holds the buffered final result
// event, emitted only after the process has exited (spec.md §4.4's
// deferred-result rule). It is intentionally not guarded by p.mu: only
// readLoop's goroutine writes it, and waitLoop reads it only after
// readLoop has observed EOF, which happens-before cmd.Wait() returning.

func (p *ProcessRunner) emit(ev Event) {
	p.logs.Write(ev)
	select {
	case p.events <- ev:
	default:
		p.cfg.Log.Warn("runner event channel full; dropping event")
	}
}

func (p *ProcessRunner) waitLoop(cmd *exec.Cmd) {
	err := cmd.Wait()
	p.running.Store(false)

	if flushed := p.delta.FlushOnExit(); flushed != nil {
		p.emit(*flushed)
	}

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	stopped := p.stopRequested.Load()
	sigtermExit := exitCode == 143
	cleanExit := err == nil && exitCode == 0

	if p.pendingComplete != nil {
		p.emit(*p.pendingComplete)
		p.pendingComplete = nil
	} else if !stopped && !sigtermExit && !cleanExit {
		// Unexpected exit with no observed complete event: synthesize a
		// failure result rather than leaving the session hanging.
		p.emit(Event{Kind: EventError, IsError: true, Text: fmt.Sprintf("%s exited unexpectedly (code %d): %v", p.cfg.RunnerType, exitCode, err)})
	}

	if p.ptyFile != nil {
		p.ptyFile.Close()
	}
	p.logs.Close()
	close(p.events)
}
