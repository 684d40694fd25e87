package runner

import (
	"encoding/json"
	"fmt"

	"github.com/sylas-dev/sylas/internal/common/logger"
)

// opencodeLine is the NDJSON shape the OpenCode CLI writes to stdout.
// Unlike Gemini, OpenCode also accepts further input on stdin while the
// session is live (spec.md §4.4's per-runner table), so it's the other
// streaming-capable adapter alongside Claude.
type opencodeLine struct {
	Type      string                 `json:"type"` // "session", "message", "tool", "complete", "error"
	SessionID string                 `json:"sessionId"`
	Role      string                 `json:"role"`
	Text      string                 `json:"text"`
	ToolName  string                 `json:"toolName"`
	ToolInput map[string]interface{} `json:"toolInput"`
	Error     string                 `json:"error"`
}

func ParseOpenCodeLine(line []byte) ([]Event, error) {
	var ol opencodeLine
	if err := json.Unmarshal(line, &ol); err != nil {
		return nil, fmt.Errorf("parsing opencode line: %w", err)
	}
	switch ol.Type {
	case "session":
		return []Event{{Kind: EventMessage, RunnerSessionID: ol.SessionID, Role: "system"}}, nil
	case "message":
		return []Event{{Kind: EventAssistant, RunnerSessionID: ol.SessionID, Role: ol.Role, Text: ol.Text}}, nil
	case "tool":
		return []Event{{Kind: EventToolUse, RunnerSessionID: ol.SessionID, ToolName: ol.ToolName, ToolInput: ol.ToolInput}}, nil
	case "complete":
		return []Event{{Kind: EventComplete, RunnerSessionID: ol.SessionID, Text: ol.Text}}, nil
	case "error":
		return []Event{{Kind: EventComplete, RunnerSessionID: ol.SessionID, IsError: true, Text: ol.Error}}, nil
	}
	return nil, nil
}

// NewOpenCodeRunner builds the OpenCode adapter: spawned CLI, NDJSON
// stdout, streaming input over stdin, session id from the first event,
// SIGTERM cancellation (spec.md §4.4's per-runner table).
func NewOpenCodeRunner(command, logDir, externalSessionID string, log *logger.Logger) (*ProcessRunner, error) {
	if command == "" {
		command = "opencode"
	}
	return NewProcessRunner(ProcessConfig{
		RunnerType: TypeOpenCode,
		Command:    command,
		Args: func(opts StartOptions) []string {
			args := []string{"run", "--output-format", "ndjson", "--stdin"}
			if opts.Model != "" {
				args = append(args, "--model", opts.Model)
			}
			if opts.ResumeSessionID != "" {
				args = append(args, "--resume", opts.ResumeSessionID)
			}
			args = append(args, toolArgs(opts)...)
			return args
		},
		Env:                 func(opts StartOptions) []string { return envMapToSlice(opts.Env) },
		SupportsStdinStream: true,
		ParseLine:           ParseOpenCodeLine,
		LogDir:              logDir,
		ExternalSessionID:   externalSessionID,
		Log:                 log,
	})
}
