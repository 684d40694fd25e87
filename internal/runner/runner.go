// Package runner implements the Runner Supervisor: a uniform interface
// over heterogeneous agent CLIs (spec.md §4.4), modeled the way this
// codebase models every other pluggable capability — one interface, one
// file per concrete variant (internal/trackersvc.Tracker is the sibling
// pattern).
package runner

import (
	"context"
	"time"
)

// EventKind enumerates the uniform event set every adapter emits.
type EventKind string

const (
	EventMessage  EventKind = "message"
	EventAssistant EventKind = "assistant"
	EventToolUse  EventKind = "tool-use"
	EventText     EventKind = "text"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// Event is the uniform event every runner adapter produces. Not every
// field is populated for every Kind — Text/ToolName/Role are kind-
// specific.
type Event struct {
	Kind            EventKind
	RunnerSessionID string // assigned by the runner; empty until known
	Role            string // "user" | "assistant" | "system", for delta-message accumulation
	Text            string
	ToolName        string
	ToolInput       map[string]interface{}
	FilePath        string // populated by a hook when a tool produced a file
	IsError         bool
	Emitted         time.Time
}

// Type identifies which agent CLI a Supervisor wraps.
type Type string

const (
	TypeClaude   Type = "claude"
	TypeGemini   Type = "gemini"
	TypeCodex    Type = "codex"
	TypeCursor   Type = "cursor"
	TypeOpenCode Type = "opencode"
)

// PostToolHook is invoked after a tool-use event; it may return
// additional instruction text to append to the runner's context (used by
// internal/relay for the attachment-upload guidance described in
// spec.md §4.7).
type PostToolHook func(event Event) (appendText string)

// StartOptions configures a single Start/StartStreaming call.
type StartOptions struct {
	Prompt           string
	WorkingDir       string
	Model            string
	ResumeSessionID  string // only honored when it came from the same runner Type
	AllowedTools     []string
	DisallowedTools  []string
	DisallowAllTools bool
	MCPServers       []MCPServerConfig
	PostToolHooks    []PostToolHook
	Env              map[string]string
}

// Supervisor is the uniform contract spec.md §4.4 requires independent of
// which CLI is underneath.
type Supervisor interface {
	Type() Type

	// Start runs a single-shot prompt to completion.
	Start(ctx context.Context, opts StartOptions) (<-chan Event, error)

	// StartStreaming begins a session that accepts further input via
	// AddStreamMessage until CompleteStream is called.
	StartStreaming(ctx context.Context, opts StartOptions) (<-chan Event, error)

	// AddStreamMessage injects text into a live streaming session. Never
	// valid on a Supervisor started with Start.
	AddStreamMessage(ctx context.Context, text string) error

	// CompleteStream signals no further input will be sent.
	CompleteStream(ctx context.Context) error

	// Stop cooperatively cancels the runner. Idempotent; never returns an
	// error for an already-stopped runner.
	Stop(ctx context.Context) error
}
