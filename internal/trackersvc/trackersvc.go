// Package trackersvc defines the polymorphic tracker-service interface
// (spec.md §4.1) and the DTOs shared by its linear, climock, and
// slackmirror implementations. One interface, one file per concrete
// tracker, following the teacher's internal/agent/agents.Agent shape.
package trackersvc

import "context"

// Tracker is the capability set every tracker variant implements. Not
// every tracker supports every operation meaningfully — the slackmirror
// variant, for instance, has no workflow states — such methods return
// ErrUnsupported.
type Tracker interface {
	ID() string // "linear", "cli-mock", "slack-mirror"

	FetchIssue(ctx context.Context, issueID string) (*Issue, error)
	FetchIssueChildren(ctx context.Context, issueID string) ([]*Issue, error)
	UpdateIssue(ctx context.Context, issueID string, patch IssuePatch) error
	FetchAttachments(ctx context.Context, issueID string) ([]Attachment, error)
	CreateComment(ctx context.Context, issueID, body string) error

	FetchTeams(ctx context.Context) ([]Team, error)
	FetchWorkflowStates(ctx context.Context, teamID string) ([]WorkflowState, error)
	FetchCurrentUser(ctx context.Context) (*User, error)

	CreateAgentSessionOnIssue(ctx context.Context, issueID string) (*AgentSession, error)
	CreateAgentSessionOnComment(ctx context.Context, issueID, commentID string) (*AgentSession, error)
	FetchAgentSession(ctx context.Context, sessionID string) (*AgentSession, error)
	CreateAgentActivity(ctx context.Context, sessionID string, activity Activity) error

	RequestFileUpload(ctx context.Context, filename, contentType string, size int64) (*UploadTarget, error)

	GetIssueLabels(ctx context.Context, issueID string) ([]Label, error)
}

// Issue is the tracker-neutral projection of a work item.
type Issue struct {
	ID           string
	Identifier   string // human-readable, e.g. "TEST-1"
	Title        string
	Description  string
	TeamID       string
	StateID      string
	Labels       []Label
	WorkspaceID  string // organization / tracker-workspace id, used for routing
	URL          string
}

// IssuePatch is a partial update to an issue; zero-value fields are left
// untouched.
type IssuePatch struct {
	StateID *string
}

// Label is a tracker label/tag.
type Label struct {
	ID   string
	Name string
}

// Attachment is a file attached to an issue or comment.
type Attachment struct {
	ID          string
	URL         string
	Filename    string
	ContentType string
}

// Team is a tracker team/project grouping.
type Team struct {
	ID   string
	Name string
}

// WorkflowState is one state in a team's workflow (e.g. "In Progress").
type WorkflowState struct {
	ID   string
	Name string
	Type string // "unstarted", "started", "completed", "cancelled"
}

// User is the tracker-side identity of the current credential.
type User struct {
	ID    string
	Name  string
	Email string
}

// AgentSession is the tracker's own record of an agent engagement with an
// issue — the thing whose id becomes Session.ExternalSessionID.
type AgentSession struct {
	ID      string
	IssueID string
}

// Activity is one entry relayed to the tracker (spec.md §3, §4.7).
type Activity struct {
	Kind ActivityKind
	Body string
}

// ActivityKind enumerates the activity kinds spec.md §3 names.
type ActivityKind string

const (
	ActivityThought             ActivityKind = "thought"
	ActivityAction               ActivityKind = "action"
	ActivityResponse             ActivityKind = "response"
	ActivityProcedureSelection   ActivityKind = "procedure-selection"
	ActivityAnalyzing            ActivityKind = "analyzing"
)

// UploadTarget is the result of requesting a file upload slot (spec.md
// §6: "request upload URL + headers, PUT bytes, receive asset URL").
type UploadTarget struct {
	UploadURL string
	Headers   map[string]string
	AssetURL  string
}
