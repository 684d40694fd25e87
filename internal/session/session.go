// Package session implements the Session Lifecycle Manager: the
// top-level state owner that glues the tracker service, message
// translator, procedure engine, and runner supervisor together
// (spec.md §4.6). It owns the session table exclusively; nothing else
// mutates a Session's fields outside a Manager handler.
package session

import (
	"sync"
	"time"

	"github.com/sylas-dev/sylas/internal/procedure"
	"github.com/sylas-dev/sylas/internal/runner"
)

// Status is one of the closed set of session states (spec.md §3).
type Status string

const (
	StatusPending         Status = "pending"
	StatusActive          Status = "active"
	StatusAwaitingInput   Status = "awaiting_input"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusCompleting      Status = "completing"
	StatusEnded           Status = "ended"
)

// IssueContext identifies the tracker work item a session concerns.
type IssueContext struct {
	TrackerID  string
	OrgID      string
	WorkItemID string
	Identifier string
}

// Session is the central entity spec.md §3 describes: one agent
// engagement with one issue, spanning many prompts and several runner
// child processes across its life.
type Session struct {
	ExternalSessionID string
	RunnerSessionIDs  procedure.RunnerSessionIDs
	Issue             IssueContext

	WorkspacePath string
	RepositoryID  string
	RunnerType    runner.Type
	Model         string
	Labels        []string

	// RepoAllowedTools/RepoDisallowedTools are the repository's
	// configured tool policy, captured at session-creation time so later
	// subroutine spawns (triggered from the runner event loop, which has
	// no direct repo reference) can still merge it with the subroutine's
	// own policy.
	RepoAllowedTools    []string
	RepoDisallowedTools []string

	// RepoRuntime/RepoContainerImage select the runner execution backend
	// (SPEC_FULL.md's containerized-runner supplement): "docker" routes
	// spawned-CLI runners through internal/runner/dockerrt instead of a
	// local child process. Captured at session-creation time for the same
	// reason as RepoAllowedTools above.
	RepoRuntime        string
	RepoContainerImage string

	Status    Status
	Procedure *procedure.State

	CreatedAt time.Time
	UpdatedAt time.Time

	// mu serializes every Manager handler touching this session, the
	// per-external-session-id ordering guarantee spec.md §5 requires.
	mu sync.Mutex

	// runtime is the at-most-one live runner this session owns
	// (spec.md §3's invariant). nil between subroutines and once ended.
	runtime runner.Supervisor
	// runtimeDone is true once the live runtime's deferred complete/error
	// event has been observed — the window during which a streaming
	// runner can still accept AddStreamMessage without a restart.
	runtimeDone bool
}

// ResumeSessionID returns the runner session id stored in the slot for
// forType, reporting false when that slot is unset or empty. Only the
// given type's slot is consulted, so a resume never crosses runner types.
func (s *Session) ResumeSessionID(forType runner.Type) (string, bool) {
	id, ok := s.RunnerSessionIDs[procedure.RunnerType(forType)]
	return id, ok && id != ""
}

// SetRunnerSessionID records the runner-assigned session id in the slot
// for forType.
func (s *Session) SetRunnerSessionID(forType runner.Type, id string) {
	if s.RunnerSessionIDs == nil {
		s.RunnerSessionIDs = procedure.RunnerSessionIDs{}
	}
	s.RunnerSessionIDs[procedure.RunnerType(forType)] = id
}

// IsLiveStreaming reports whether this session has a live, not-yet-
// completed runner of a streaming-capable type — the condition spec.md
// §4.6 requires before injecting a prompt instead of restarting.
func (s *Session) IsLiveStreaming() bool {
	return s.runtime != nil && !s.runtimeDone && runner.SupportsStreaming(s.RunnerType)
}
