package dockerrt

import (
	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/runner"
)

// Commands names the CLI executable invoked inside the container for each
// supported runner Type, mirroring runner.Commands.
type Commands struct {
	Gemini   string
	Codex    string
	Cursor   string
	OpenCode string
}

// Factory builds a container-backed Supervisor for one of the four
// spawned-CLI runner types, the container counterpart of runner.Factory.
// Claude has no entry here: its adapter (runner.ClaudeRunner) manages its
// own local `claude` subprocess and is built only by runner.Factory, so it
// is never container-backed.
type Factory struct {
	commands Commands
	logDir   string
	log      *logger.Logger
	client   *Client
}

// NewFactory builds a Factory shared across every docker-runtime
// repository; the image is supplied per Build call since each repository
// configures its own containerImage.
func NewFactory(commands Commands, logDir string, log *logger.Logger, client *Client) *Factory {
	return &Factory{commands: commands, logDir: logDir, log: log, client: client}
}

// Build constructs a container-backed Supervisor of the given Type for
// one session, launched from image. Returns runner.UnknownTypeError for
// claude (not container-backed) or any type outside the four spawned-CLI
// adapters.
func (f *Factory) Build(runnerType runner.Type, externalSessionID, image string) (runner.Supervisor, error) {
	switch runnerType {
	case runner.TypeGemini:
		return f.geminiRunner(externalSessionID, image)
	case runner.TypeCodex:
		return f.codexRunner(externalSessionID, image)
	case runner.TypeCursor:
		return f.cursorRunner(externalSessionID, image)
	case runner.TypeOpenCode:
		return f.openCodeRunner(externalSessionID, image)
	default:
		return nil, runner.UnknownTypeError{Type: runnerType}
	}
}

func (f *Factory) geminiRunner(externalSessionID, image string) (*Runner, error) {
	command := f.commands.Gemini
	if command == "" {
		command = "gemini"
	}
	return New(Config{
		RunnerType: runner.TypeGemini,
		Image:      image,
		Command:    command,
		Args: func(opts runner.StartOptions) []string {
			args := []string{"--output-format", "ndjson"}
			if opts.Model != "" {
				args = append(args, "--model", opts.Model)
			}
			if opts.ResumeSessionID != "" {
				args = append(args, "--resume", opts.ResumeSessionID)
			}
			return append(args, toolArgs(opts)...)
		},
		Env:                 envSliceFromOpts,
		SupportsStdinStream: false,
		ParseLine:           runner.ParseGeminiLine,
		LogDir:              f.logDir,
		ExternalSessionID:   externalSessionID,
		Log:                 f.log,
		Client:              f.client,
	})
}

func (f *Factory) codexRunner(externalSessionID, image string) (*Runner, error) {
	command := f.commands.Codex
	if command == "" {
		command = "codex"
	}
	return New(Config{
		RunnerType: runner.TypeCodex,
		Image:      image,
		Command:    command,
		Args: func(opts runner.StartOptions) []string {
			args := []string{"exec", "--json"}
			if opts.Model != "" {
				args = append(args, "--model", opts.Model)
			}
			if opts.ResumeSessionID != "" {
				args = append(args, "--resume", opts.ResumeSessionID)
			}
			return append(args, toolArgs(opts)...)
		},
		Env:                 envSliceFromOpts,
		SupportsStdinStream: false,
		ParseLine:           runner.ParseCodexLine,
		LogDir:              f.logDir,
		ExternalSessionID:   externalSessionID,
		Log:                 f.log,
		Client:              f.client,
	})
}

func (f *Factory) cursorRunner(externalSessionID, image string) (*Runner, error) {
	command := f.commands.Cursor
	if command == "" {
		command = "cursor-agent"
	}
	return New(Config{
		RunnerType: runner.TypeCursor,
		Image:      image,
		Command:    command,
		Args: func(opts runner.StartOptions) []string {
			args := []string{"--print", "--output-format", "json"}
			if opts.Model != "" {
				args = append(args, "--model", opts.Model)
			}
			if opts.ResumeSessionID != "" {
				args = append(args, "--resume", opts.ResumeSessionID)
			}
			return append(args, toolArgs(opts)...)
		},
		Env:                 envSliceFromOpts,
		UsePTY:              true,
		SupportsStdinStream: false,
		ParseLine:           runner.ParseCursorLine,
		LogDir:              f.logDir,
		ExternalSessionID:   externalSessionID,
		Log:                 f.log,
		Client:              f.client,
	})
}

func (f *Factory) openCodeRunner(externalSessionID, image string) (*Runner, error) {
	command := f.commands.OpenCode
	if command == "" {
		command = "opencode"
	}
	return New(Config{
		RunnerType: runner.TypeOpenCode,
		Image:      image,
		Command:    command,
		Args: func(opts runner.StartOptions) []string {
			args := []string{"run", "--output-format", "ndjson", "--stdin"}
			if opts.Model != "" {
				args = append(args, "--model", opts.Model)
			}
			if opts.ResumeSessionID != "" {
				args = append(args, "--resume", opts.ResumeSessionID)
			}
			return append(args, toolArgs(opts)...)
		},
		Env:                 envSliceFromOpts,
		SupportsStdinStream: true,
		ParseLine:           runner.ParseOpenCodeLine,
		LogDir:              f.logDir,
		ExternalSessionID:   externalSessionID,
		Log:                 f.log,
		Client:              f.client,
	})
}

// toolArgs renders the allow/deny tool policy flag pair, the container
// counterpart of internal/runner's unexported toolArgs (duplicated
// rather than exported across the package boundary since it's the only
// piece of that package's per-call argument building this package needs).
func toolArgs(opts runner.StartOptions) []string {
	var args []string
	if opts.DisallowAllTools {
		args = append(args, "--allowed-tools", "")
	} else if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", joinComma(opts.AllowedTools))
	}
	if len(opts.DisallowedTools) > 0 {
		args = append(args, "--disallowed-tools", joinComma(opts.DisallowedTools))
	}
	return args
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func envSliceFromOpts(opts runner.StartOptions) []string {
	out := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		out = append(out, k+"="+v)
	}
	return out
}
