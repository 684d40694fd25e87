package runner

import (
	"encoding/json"
	"fmt"

	"github.com/sylas-dev/sylas/internal/common/logger"
)

// geminiLine is the NDJSON shape the Gemini CLI writes to stdout. Gemini
// streams partial assistant text as repeated "delta" events carrying a
// role, which ProcessRunner's DeltaBuffer accumulates into one assistant
// Event (spec.md §4.4 "Delta-message accumulation (Gemini-style)").
type geminiLine struct {
	Type      string `json:"type"` // "init", "delta", "tool_call", "final", "error"
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	ToolName  string `json:"toolName"`
	ToolInput map[string]interface{} `json:"toolInput"`
	Error     string `json:"error"`
}

func ParseGeminiLine(line []byte) ([]Event, error) {
	var gl geminiLine
	if err := json.Unmarshal(line, &gl); err != nil {
		return nil, fmt.Errorf("parsing gemini line: %w", err)
	}
	switch gl.Type {
	case "init":
		return []Event{{Kind: EventMessage, RunnerSessionID: gl.SessionID, Role: "system"}}, nil
	case "delta":
		return []Event{{Kind: EventMessage, RunnerSessionID: gl.SessionID, Role: gl.Role, Text: gl.Text}}, nil
	case "tool_call":
		return []Event{{Kind: EventToolUse, RunnerSessionID: gl.SessionID, ToolName: gl.ToolName, ToolInput: gl.ToolInput}}, nil
	case "final":
		return []Event{{Kind: EventComplete, RunnerSessionID: gl.SessionID, Text: gl.Text}}, nil
	case "error":
		return []Event{{Kind: EventComplete, RunnerSessionID: gl.SessionID, IsError: true, Text: gl.Error}}, nil
	}
	return nil, nil
}

// NewGeminiRunner builds the Gemini adapter: spawned CLI, NDJSON stdout,
// no streaming input, session id from the "init" event, SIGTERM
// cancellation (spec.md §4.4's per-runner table).
func NewGeminiRunner(command, logDir, externalSessionID string, log *logger.Logger) (*ProcessRunner, error) {
	if command == "" {
		command = "gemini"
	}
	return NewProcessRunner(ProcessConfig{
		RunnerType: TypeGemini,
		Command:    command,
		Args: func(opts StartOptions) []string {
			args := []string{"--output-format", "ndjson"}
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
		SupportsStdinStream: false,
		ParseLine:           ParseGeminiLine,
		LogDir:              logDir,
		ExternalSessionID:   externalSessionID,
		Log:                 log,
	})
}

func envMapToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
