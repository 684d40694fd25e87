package runner

import (
	"encoding/json"
	"fmt"

	"github.com/sylas-dev/sylas/internal/common/logger"
)

// cursorLine is the event shape cursor-agent prints to stdout in
// "print" mode.
type cursorLine struct {
	Type      string                 `json:"type"` // "session", "assistant", "tool_call", "result"
	SessionID string                 `json:"sessionId"`
	Text      string                 `json:"text"`
	ToolName  string                 `json:"toolName"`
	ToolInput map[string]interface{} `json:"toolInput"`
	IsError   bool                   `json:"isError"`
}

func ParseCursorLine(line []byte) ([]Event, error) {
	var cl cursorLine
	if err := json.Unmarshal(line, &cl); err != nil {
		return nil, fmt.Errorf("parsing cursor line: %w", err)
	}
	switch cl.Type {
	case "session":
		return []Event{{Kind: EventMessage, RunnerSessionID: cl.SessionID, Role: "system"}}, nil
	case "assistant":
		return []Event{{Kind: EventAssistant, RunnerSessionID: cl.SessionID, Role: "assistant", Text: cl.Text}}, nil
	case "tool_call":
		return []Event{{Kind: EventToolUse, RunnerSessionID: cl.SessionID, ToolName: cl.ToolName, ToolInput: cl.ToolInput}}, nil
	case "result":
		return []Event{{Kind: EventComplete, RunnerSessionID: cl.SessionID, Text: cl.Text, IsError: cl.IsError}}, nil
	}
	return nil, nil
}

// NewCursorRunner builds the Cursor adapter: spawned CLI, no streaming
// input, session id from the first event, SIGTERM cancellation. Run
// under a pty since cursor-agent's interactive spinner otherwise
// corrupts the NDJSON stream when stdout isn't a tty.
func NewCursorRunner(command, logDir, externalSessionID string, log *logger.Logger) (*ProcessRunner, error) {
	if command == "" {
		command = "cursor-agent"
	}
	return NewProcessRunner(ProcessConfig{
		RunnerType: TypeCursor,
		Command:    command,
		Args: func(opts StartOptions) []string {
			args := []string{"--print", "--output-format", "json"}
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
		UsePTY:              true,
		SupportsStdinStream: false,
		ParseLine:           ParseCursorLine,
		LogDir:              logDir,
		ExternalSessionID:   externalSessionID,
		Log:                 log,
	})
}
