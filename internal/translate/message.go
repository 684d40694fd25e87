// Package translate turns a verified webhook payload into exactly one
// member of a closed internal message set (spec.md §4.2). Translation is
// strict: an unrecognized type/action combination is a failure result,
// never a silent pass-through, so ingress can 200-ack it without ever
// forwarding an ambiguous message to the lifecycle manager.
package translate

import "time"

// Kind enumerates the closed message set. No other value is ever
// constructed.
type Kind string

const (
	KindSessionStart  Kind = "session_start"
	KindUserPrompt    Kind = "user_prompt"
	KindStopSignal    Kind = "stop_signal"
	KindUnassign      Kind = "unassign"
	KindContentUpdate Kind = "content_update"
)

// IssueRef identifies the tracker work item a message concerns.
type IssueRef struct {
	TrackerID   string
	WorkItemID  string
	Identifier  string // human-readable, e.g. "TEST-1" or a Slack "channel:thread_ts"
	OrgID       string
}

// Message is the tracker-neutral envelope every translator produces.
// Every message carries this envelope plus exactly one populated payload
// field matching its Kind.
type Message struct {
	ID         string
	Source     string // tracker id: "linear", "cli-mock", "slack-mirror"
	Kind       Kind
	ReceivedAt time.Time
	OrgID      string
	SessionKey string // stable across retries of the same logical event
	Issue      IssueRef

	SessionStart  *SessionStartPayload
	UserPrompt    *UserPromptPayload
	StopSignal    *StopSignalPayload
	Unassign      *UnassignPayload
	ContentUpdate *ContentUpdatePayload

	// Raw carries the platform-specific blob for handlers that need fields
	// no common payload models (e.g. Slack's channel/thread_ts pair).
	Raw map[string]interface{}
}

// SessionStartPayload is the session_start message body.
type SessionStartPayload struct {
	InitialPrompt    string
	Labels           []string
	MentionTriggered bool
}

// UserPromptPayload is the user_prompt message body.
type UserPromptPayload struct {
	Text   string
	Author string
}

// StopSignalPayload is the stop_signal message body.
type StopSignalPayload struct {
	Reason string
}

// UnassignPayload is the unassign message body.
type UnassignPayload struct{}

// ContentUpdatePayload is the content_update message body.
type ContentUpdatePayload struct {
	Before  IssueSnapshot
	After   IssueSnapshot
	Changed []string // field names that differ between Before and After
}

// IssueSnapshot is a point-in-time title/description/attachment view.
type IssueSnapshot struct {
	Title       string
	Description string
	Attachments []string
}

// Failure is a strict can_translate rejection. It is never an error in
// the Go sense that propagates up as a 500 — ingress logs it and 200-acks
// the webhook so the tracker stops retrying (spec.md §4.2, §4.3).
type Failure struct {
	Reason string
}

func (f *Failure) Error() string { return f.Reason }

// NewFailure builds a translation failure with reason.
func NewFailure(reason string) *Failure { return &Failure{Reason: reason} }
