// Package slackmirror implements trackersvc.Tracker on top of Slack's Web
// API, mirroring agent activity into a Slack thread instead of a real
// issue tracker (spec.md §4.1 "Variants: ... slack-mirror"). Issue
// identity is a channel/thread pair rather than a tracker-native id, so
// operations with no Slack analogue (workflow states, teams) return
// trackersvc.ErrUnsupported.
package slackmirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/trackersvc"
)

const apiBase = "https://slack.com/api"

// Tracker mirrors activity into Slack channels. Each "issue" is a
// channel/thread_ts pair encoded into Issue.ID as "channel:thread_ts".
type Tracker struct {
	botToken   string
	httpClient *http.Client
	log        *logger.Logger

	mu       sync.Mutex
	sessions map[string]*trackersvc.AgentSession
}

var _ trackersvc.Tracker = (*Tracker)(nil)

// New builds a slack-mirror tracker authenticated with botToken (a Slack
// bot user OAuth token, "xoxb-...").
func New(botToken string, log *logger.Logger) *Tracker {
	return &Tracker{
		botToken:   botToken,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
		sessions:   make(map[string]*trackersvc.AgentSession),
	}
}

func (t *Tracker) ID() string { return "slack-mirror" }

func splitIssueID(issueID string) (channel, threadTS string, err error) {
	parts := strings.SplitN(issueID, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed slack-mirror issue id %q, want channel:thread_ts", issueID)
	}
	return parts[0], parts[1], nil
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

func (t *Tracker) call(ctx context.Context, method string, payload map[string]interface{}) (*slackResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, trackersvc.NewError("slack-mirror", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, trackersvc.NewError("slack-mirror", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+t.botToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, trackersvc.NewError("slack-mirror", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, trackersvc.NewError("slack-mirror", method, err)
	}
	if resp.StatusCode >= 400 {
		return nil, trackersvc.NewError("slack-mirror", method, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var sr slackResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, trackersvc.NewError("slack-mirror", method, err)
	}
	if !sr.OK {
		return nil, trackersvc.NewError("slack-mirror", method, fmt.Errorf("slack error: %s", sr.Error))
	}
	return &sr, nil
}

// FetchIssue reconstructs a minimal Issue from the channel:thread_ts pair.
// Slack has no title/description of its own; callers seed those via the
// originating event payload before this tracker is ever invoked, so this
// just validates the id shape.
func (t *Tracker) FetchIssue(ctx context.Context, issueID string) (*trackersvc.Issue, error) {
	channel, threadTS, err := splitIssueID(issueID)
	if err != nil {
		return nil, trackersvc.NewError("slack-mirror", "fetch_issue", err)
	}
	return &trackersvc.Issue{
		ID:          issueID,
		Identifier:  issueID,
		Title:       fmt.Sprintf("Slack thread %s", threadTS),
		WorkspaceID: channel,
	}, nil
}

func (t *Tracker) FetchIssueChildren(ctx context.Context, issueID string) ([]*trackersvc.Issue, error) {
	return nil, nil
}

func (t *Tracker) UpdateIssue(ctx context.Context, issueID string, patch trackersvc.IssuePatch) error {
	return trackersvc.ErrUnsupported
}

func (t *Tracker) FetchAttachments(ctx context.Context, issueID string) ([]trackersvc.Attachment, error) {
	return nil, nil
}

func (t *Tracker) CreateComment(ctx context.Context, issueID, body string) error {
	channel, threadTS, err := splitIssueID(issueID)
	if err != nil {
		return trackersvc.NewError("slack-mirror", "create_comment", err)
	}
	_, err = t.call(ctx, "chat.postMessage", map[string]interface{}{
		"channel":   channel,
		"thread_ts": threadTS,
		"text":      body,
	})
	return err
}

func (t *Tracker) FetchTeams(ctx context.Context) ([]trackersvc.Team, error) {
	return nil, trackersvc.ErrUnsupported
}

func (t *Tracker) FetchWorkflowStates(ctx context.Context, teamID string) ([]trackersvc.WorkflowState, error) {
	return nil, trackersvc.ErrUnsupported
}

func (t *Tracker) FetchCurrentUser(ctx context.Context) (*trackersvc.User, error) {
	sr, err := t.call(ctx, "auth.test", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	return &trackersvc.User{ID: sr.TS}, nil
}

func (t *Tracker) createSession(issueID string) (*trackersvc.AgentSession, error) {
	if _, _, err := splitIssueID(issueID); err != nil {
		return nil, trackersvc.NewError("slack-mirror", "create_agent_session", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	session := &trackersvc.AgentSession{ID: uuid.NewString(), IssueID: issueID}
	t.sessions[session.ID] = session
	return session, nil
}

func (t *Tracker) CreateAgentSessionOnIssue(ctx context.Context, issueID string) (*trackersvc.AgentSession, error) {
	return t.createSession(issueID)
}

func (t *Tracker) CreateAgentSessionOnComment(ctx context.Context, issueID, commentID string) (*trackersvc.AgentSession, error) {
	return t.createSession(issueID)
}

func (t *Tracker) FetchAgentSession(ctx context.Context, sessionID string) (*trackersvc.AgentSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[sessionID]
	if !ok {
		return nil, trackersvc.NewError("slack-mirror", "fetch_agent_session", fmt.Errorf("no such session: %s", sessionID))
	}
	return session, nil
}

// CreateAgentActivity posts the activity body as a threaded reply. Per
// spec.md's suppress_thought_posting rule, the relay layer is responsible
// for never calling this for suppressed thought activities — this tracker
// mirrors whatever it's handed.
func (t *Tracker) CreateAgentActivity(ctx context.Context, sessionID string, activity trackersvc.Activity) error {
	t.mu.Lock()
	session, ok := t.sessions[sessionID]
	t.mu.Unlock()
	if !ok {
		return trackersvc.NewError("slack-mirror", "create_agent_activity", fmt.Errorf("no such session: %s", sessionID))
	}
	return t.CreateComment(ctx, session.IssueID, activity.Body)
}

func (t *Tracker) RequestFileUpload(ctx context.Context, filename, contentType string, size int64) (*trackersvc.UploadTarget, error) {
	return nil, trackersvc.ErrUnsupported
}

func (t *Tracker) GetIssueLabels(ctx context.Context, issueID string) ([]trackersvc.Label, error) {
	return nil, nil
}
