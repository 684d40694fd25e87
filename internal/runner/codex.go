package runner

import (
	"encoding/json"
	"fmt"

	"github.com/sylas-dev/sylas/internal/common/logger"
)

// codexLine is the JSON-RPC-shaped notification the Codex CLI writes to
// stdout, grounded on this module's own JSON-RPC framing for Codex (id +
// msg.type), adapted here for one-line-per-event stdout rather than a
// request/response exchange.
type codexLine struct {
	ID  interface{} `json:"id"`
	Msg struct {
		Type      string                 `json:"type"` // "session_configured", "agent_message", "exec_command_begin", "task_complete", "error"
		SessionID string                 `json:"session_id"`
		Message   string                 `json:"message"`
		Command   string                 `json:"command"`
		ToolInput map[string]interface{} `json:"tool_input"`
	} `json:"msg"`
}

func ParseCodexLine(line []byte) ([]Event, error) {
	var cl codexLine
	if err := json.Unmarshal(line, &cl); err != nil {
		return nil, fmt.Errorf("parsing codex line: %w", err)
	}
	switch cl.Msg.Type {
	case "session_configured":
		return []Event{{Kind: EventMessage, RunnerSessionID: cl.Msg.SessionID, Role: "system"}}, nil
	case "agent_message":
		return []Event{{Kind: EventAssistant, RunnerSessionID: cl.Msg.SessionID, Role: "assistant", Text: cl.Msg.Message}}, nil
	case "exec_command_begin":
		return []Event{{Kind: EventToolUse, RunnerSessionID: cl.Msg.SessionID, ToolName: "exec_command", ToolInput: map[string]interface{}{"command": cl.Msg.Command}}}, nil
	case "task_complete":
		return []Event{{Kind: EventComplete, RunnerSessionID: cl.Msg.SessionID, Text: cl.Msg.Message}}, nil
	case "error":
		return []Event{{Kind: EventComplete, RunnerSessionID: cl.Msg.SessionID, IsError: true, Text: cl.Msg.Message}}, nil
	}
	return nil, nil
}

// NewCodexRunner builds the Codex adapter: spawned CLI, no streaming
// input, session id from the first event, SIGTERM cancellation.
func NewCodexRunner(command, logDir, externalSessionID string, log *logger.Logger) (*ProcessRunner, error) {
	if command == "" {
		command = "codex"
	}
	return NewProcessRunner(ProcessConfig{
		RunnerType: TypeCodex,
		Command:    command,
		Args: func(opts StartOptions) []string {
			args := []string{"exec", "--json"}
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
		ParseLine:           ParseCodexLine,
		LogDir:              logDir,
		ExternalSessionID:   externalSessionID,
		Log:                 log,
	})
}
