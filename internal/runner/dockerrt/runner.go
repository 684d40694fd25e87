package dockerrt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/runner"
)

const sigtermGrace = 5 * time.Second

// Config builds one container-backed Runner for a spawned-CLI adapter.
// ParseLine is the same exported parser internal/runner's
// NewGeminiRunner/NewCodexRunner/NewCursorRunner/NewOpenCodeRunner use;
// Factory in factory.go builds its own copies of their Command/Args/Env
// closures, with the same flags.
type Config struct {
	RunnerType          runner.Type
	Image               string
	Command             string
	Args                func(opts runner.StartOptions) []string
	Env                 func(opts runner.StartOptions) []string
	UsePTY              bool // cursor-agent needs a tty, same as ProcessRunner's UsePTY
	SupportsStdinStream bool
	ParseLine           runner.LineParser
	LogDir              string
	ExternalSessionID   string
	Log                 *logger.Logger
	Client              *Client
}

// Runner is a runner.Supervisor backed by a container instead of a local
// child process. It reuses internal/runner's exported LogStreams,
// DeltaBuffer, RunPostToolHooks and WriteMCPConfigFile helpers so the
// uniform contract (deferred result emission, delta accumulation, log
// rotation, post-tool hooks) behaves identically to ProcessRunner.
type Runner struct {
	cfg Config

	mu            sync.Mutex
	containerID   string
	stdin         io.WriteCloser
	running       atomic.Bool
	stopRequested atomic.Bool
	sessionIDKnown atomic.Bool

	logs            *runner.LogStreams
	delta           runner.DeltaBuffer
	events          chan runner.Event
	pendingComplete *runner.Event
	postToolHooks   []runner.PostToolHook
}

var _ runner.Supervisor = (*Runner)(nil)

// New builds a container-backed Runner from cfg.
func New(cfg Config) (*Runner, error) {
	logs, err := runner.NewLogStreams(cfg.LogDir, cfg.ExternalSessionID, cfg.RunnerType)
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, logs: logs}, nil
}

func (r *Runner) Type() runner.Type { return r.cfg.RunnerType }

func (r *Runner) Start(ctx context.Context, opts runner.StartOptions) (<-chan runner.Event, error) {
	return r.launch(ctx, opts, false)
}

func (r *Runner) StartStreaming(ctx context.Context, opts runner.StartOptions) (<-chan runner.Event, error) {
	if !r.cfg.SupportsStdinStream {
		return nil, fmt.Errorf("%s runner does not support streaming input", r.cfg.RunnerType)
	}
	return r.launch(ctx, opts, true)
}

func (r *Runner) launch(ctx context.Context, opts runner.StartOptions, streaming bool) (<-chan runner.Event, error) {
	args := r.cfg.Args(opts)
	if len(opts.MCPServers) > 0 {
		if mcpPath, err := runner.WriteMCPConfigFile(opts.WorkingDir, opts.MCPServers); err != nil {
			r.cfg.Log.WithError(err).Warn("failed writing merged mcp config; starting without it")
		} else {
			args = append(args, "--mcp-config", mcpPath)
		}
	}
	r.postToolHooks = opts.PostToolHooks

	if err := r.cfg.Client.EnsureImage(ctx, r.cfg.Image); err != nil {
		return nil, err
	}

	command := append([]string{r.cfg.Command}, args...)
	containerID, err := r.cfg.Client.CreateContainer(ctx, ContainerSpec{
		Image:            r.cfg.Image,
		Command:          command,
		Env:              r.cfg.Env(opts),
		WorkingDir:       opts.WorkingDir,
		HostWorkspaceDir: opts.WorkingDir,
		TTY:              r.cfg.UsePTY,
	})
	if err != nil {
		return nil, err
	}

	attached, err := r.cfg.Client.AttachContainer(ctx, containerID, r.cfg.UsePTY)
	if err != nil {
		r.cfg.Client.RemoveContainer(ctx, containerID)
		return nil, err
	}

	if err := r.cfg.Client.StartContainer(ctx, containerID); err != nil {
		r.cfg.Client.RemoveContainer(ctx, containerID)
		return nil, fmt.Errorf("starting runner container: %w", err)
	}

	r.mu.Lock()
	r.containerID = containerID
	r.stdin = attached.Stdin
	r.mu.Unlock()
	r.running.Store(true)

	r.events = make(chan runner.Event, 64)

	if opts.Prompt != "" {
		if err := r.writeStdin(opts.Prompt); err != nil {
			r.cfg.Log.WithError(err).Warn("failed writing initial prompt to runner container stdin")
		}
	}
	if !streaming {
		attached.Stdin.Close()
	}

	go r.readLoop(attached.Stdout)
	// waitLoop blocks for the container's entire lifetime; it must not
	// inherit ctx, which belongs to the webhook request that triggered
	// this launch and is canceled as soon as that request completes.
	go r.waitLoop(context.Background(), containerID)

	return r.events, nil
}

func (r *Runner) AddStreamMessage(ctx context.Context, text string) error {
	if !r.cfg.SupportsStdinStream {
		return fmt.Errorf("%s runner does not support streaming input", r.cfg.RunnerType)
	}
	return r.writeStdin(text)
}

func (r *Runner) writeStdin(text string) error {
	r.mu.Lock()
	stdin := r.stdin
	r.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("runner stdin not open")
	}
	_, err := stdin.Write(append([]byte(text), '\n'))
	return err
}

func (r *Runner) CompleteStream(ctx context.Context) error {
	r.mu.Lock()
	stdin := r.stdin
	r.mu.Unlock()
	if stdin == nil {
		return nil
	}
	return stdin.Close()
}

// Stop sends SIGTERM via ContainerStop (which itself escalates to SIGKILL
// after the grace period), idempotent like ProcessRunner.Stop.
func (r *Runner) Stop(ctx context.Context) error {
	if !r.running.Load() {
		return nil
	}
	r.stopRequested.Store(true)

	r.mu.Lock()
	containerID := r.containerID
	r.mu.Unlock()
	if containerID == "" {
		return nil
	}
	return r.cfg.Client.StopContainer(ctx, containerID, sigtermGrace)
}

func (r *Runner) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		events, err := r.cfg.ParseLine(line)
		if err != nil {
			r.cfg.Log.WithError(err).Warn("failed parsing runner output line")
			continue
		}
		for _, ev := range events {
			r.dispatch(ev)
		}
	}
}

func (r *Runner) dispatch(ev runner.Event) {
	ev.Emitted = time.Now()

	if ev.RunnerSessionID != "" && r.sessionIDKnown.CompareAndSwap(false, true) {
		if err := r.logs.Rotate(ev.RunnerSessionID); err != nil {
			r.cfg.Log.WithError(err).Warn("failed rotating runner log files on session id assignment")
		}
	}

	if ev.Kind == runner.EventMessage {
		if flushed := r.delta.Accept(ev.Role, ev.Text); flushed != nil {
			r.emit(*flushed)
		}
		return
	}
	if flushed := r.delta.FlushOnNonMessage(); flushed != nil {
		r.emit(*flushed)
	}

	if ev.Kind == runner.EventToolUse {
		runner.RunPostToolHooks(r.postToolHooks, ev, r.writeStdin, r.cfg.Log)
	}

	if ev.Kind == runner.EventComplete {
		r.pendingComplete = &ev
		return
	}
	r.emit(ev)
}

func (r *Runner) emit(ev runner.Event) {
	r.logs.Write(ev)
	select {
	case r.events <- ev:
	default:
		r.cfg.Log.Warn("runner event channel full; dropping event")
	}
}

func (r *Runner) waitLoop(ctx context.Context, containerID string) {
	exitCode, err := r.cfg.Client.WaitContainer(ctx, containerID)
	r.running.Store(false)

	if flushed := r.delta.FlushOnExit(); flushed != nil {
		r.emit(*flushed)
	}

	stopped := r.stopRequested.Load()
	sigtermExit := exitCode == 143
	cleanExit := err == nil && exitCode == 0

	if r.pendingComplete != nil {
		r.emit(*r.pendingComplete)
		r.pendingComplete = nil
	} else if !stopped && !sigtermExit && !cleanExit {
		r.emit(runner.Event{Kind: runner.EventError, IsError: true, Text: fmt.Sprintf("%s container exited unexpectedly (code %d): %v", r.cfg.RunnerType, exitCode, err)})
	}

	r.logs.Close()
	close(r.events)

	removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.cfg.Client.RemoveContainer(removeCtx, containerID); err != nil {
		r.cfg.Log.WithError(err).Warn("failed removing exited runner container")
	}
}
