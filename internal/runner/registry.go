// Package runner also exposes a small registry so callers outside this
// package (principally internal/session) can build a Supervisor for a
// given Type without importing every adapter constructor directly,
// mirroring the teacher's internal/agent/lifecycle runtime registry
// shape (a map of constructors keyed by a tagged-variant enum).
package runner

import "github.com/sylas-dev/sylas/internal/common/logger"

// Commands names the CLI executable used for each runner Type, overridable
// per-repository or per-deployment.
type Commands struct {
	Claude   string
	Gemini   string
	Codex    string
	Cursor   string
	OpenCode string
}

// Factory builds a fresh Supervisor for a given runner Type, one per
// session (spec.md §3: "A session owns at most one live runner at a
// time" — Factory doesn't enforce that itself, internal/session does).
type Factory struct {
	commands Commands
	logDir   string
	log      *logger.Logger
}

// NewFactory builds a Factory. logDir is the directory each session's log
// files are written into directly, as
// session-<external id>-<runner type>-<runner session id>.{jsonl,md};
// no per-workspace subdirectory is created under it.
func NewFactory(commands Commands, logDir string, log *logger.Logger) *Factory {
	return &Factory{commands: commands, logDir: logDir, log: log}
}

// Build constructs a Supervisor of the given Type for one session,
// logging under externalSessionID.
func (f *Factory) Build(runnerType Type, externalSessionID string) (Supervisor, error) {
	switch runnerType {
	case TypeClaude:
		return NewClaudeRunner(f.commands.Claude, f.logDir, externalSessionID, f.log)
	case TypeGemini:
		return NewGeminiRunner(f.commands.Gemini, f.logDir, externalSessionID, f.log)
	case TypeCodex:
		return NewCodexRunner(f.commands.Codex, f.logDir, externalSessionID, f.log)
	case TypeCursor:
		return NewCursorRunner(f.commands.Cursor, f.logDir, externalSessionID, f.log)
	case TypeOpenCode:
		return NewOpenCodeRunner(f.commands.OpenCode, f.logDir, externalSessionID, f.log)
	default:
		return nil, UnknownTypeError{Type: runnerType}
	}
}

// UnknownTypeError reports a runner Type with no registered adapter.
type UnknownTypeError struct {
	Type Type
}

func (e UnknownTypeError) Error() string {
	return "no runner adapter registered for type " + string(e.Type)
}

// SupportsStreaming reports whether runnerType's adapter accepts
// StartStreaming + AddStreamMessage (Claude and OpenCode, per spec.md
// §4.4's per-runner table).
func SupportsStreaming(runnerType Type) bool {
	return runnerType == TypeClaude || runnerType == TypeOpenCode
}
