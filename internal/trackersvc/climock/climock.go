// Package climock implements trackersvc.Tracker entirely in memory, for
// exercising the session pipeline from the command line without a real
// issue tracker (spec.md §4.1 "Variants: ... cli-mock").
package climock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/trackersvc"
)

const defaultTeamID = "team-mock"

// Tracker is a fully in-process tracker backed by a handful of seeded
// issues. Activities and comments are logged rather than persisted
// anywhere a real operator would look — this variant exists for local
// development, not for production use.
type Tracker struct {
	mu       sync.Mutex
	issues   map[string]*trackersvc.Issue
	sessions map[string]*trackersvc.AgentSession
	log      *logger.Logger
}

var _ trackersvc.Tracker = (*Tracker)(nil)

// New seeds the mock tracker with issue TEST-1, matching the TEST-1
// happy-path scenario.
func New(log *logger.Logger) *Tracker {
	t := &Tracker{
		issues:   make(map[string]*trackersvc.Issue),
		sessions: make(map[string]*trackersvc.AgentSession),
		log:      log,
	}
	t.Seed(&trackersvc.Issue{
		ID:          "issue-test-1",
		Identifier:  "TEST-1",
		Title:       "Seed mock issue",
		Description: "Seeded by the cli-mock tracker for local testing.",
		TeamID:      defaultTeamID,
		StateID:     "state-backlog",
		WorkspaceID: "workspace-mock",
	})
	return t
}

// Seed registers or overwrites an issue, keyed by both its ID and
// Identifier so lookups work with either form.
func (t *Tracker) Seed(issue *trackersvc.Issue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issues[issue.ID] = issue
	t.issues[issue.Identifier] = issue
}

func (t *Tracker) ID() string { return "cli-mock" }

func (t *Tracker) lookup(issueID string) (*trackersvc.Issue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	issue, ok := t.issues[issueID]
	if !ok {
		return nil, trackersvc.NewError("cli-mock", "fetch_issue", fmt.Errorf("no such issue: %s", issueID))
	}
	return issue, nil
}

func (t *Tracker) FetchIssue(ctx context.Context, issueID string) (*trackersvc.Issue, error) {
	return t.lookup(issueID)
}

func (t *Tracker) FetchIssueChildren(ctx context.Context, issueID string) ([]*trackersvc.Issue, error) {
	return nil, nil
}

func (t *Tracker) UpdateIssue(ctx context.Context, issueID string, patch trackersvc.IssuePatch) error {
	issue, err := t.lookup(issueID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if patch.StateID != nil {
		issue.StateID = *patch.StateID
	}
	t.log.Info("mock issue updated", zap.String("issue", issue.Identifier), zap.String("state", issue.StateID))
	return nil
}

func (t *Tracker) FetchAttachments(ctx context.Context, issueID string) ([]trackersvc.Attachment, error) {
	return nil, nil
}

func (t *Tracker) CreateComment(ctx context.Context, issueID, body string) error {
	issue, err := t.lookup(issueID)
	if err != nil {
		return err
	}
	t.log.Info("mock comment", zap.String("issue", issue.Identifier), zap.String("body", body))
	return nil
}

func (t *Tracker) FetchTeams(ctx context.Context) ([]trackersvc.Team, error) {
	return []trackersvc.Team{{ID: defaultTeamID, Name: "Mock Team"}}, nil
}

func (t *Tracker) FetchWorkflowStates(ctx context.Context, teamID string) ([]trackersvc.WorkflowState, error) {
	return []trackersvc.WorkflowState{
		{ID: "state-backlog", Name: "Backlog", Type: "unstarted"},
		{ID: "state-in-progress", Name: "In Progress", Type: "started"},
		{ID: "state-done", Name: "Done", Type: "completed"},
	}, nil
}

func (t *Tracker) FetchCurrentUser(ctx context.Context) (*trackersvc.User, error) {
	return &trackersvc.User{ID: "user-mock", Name: "CLI Mock User", Email: "mock@localhost"}, nil
}

func (t *Tracker) createSession(issueID string) (*trackersvc.AgentSession, error) {
	issue, err := t.lookup(issueID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	session := &trackersvc.AgentSession{ID: uuid.NewString(), IssueID: issue.ID}
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
		return nil, trackersvc.NewError("cli-mock", "fetch_agent_session", fmt.Errorf("no such session: %s", sessionID))
	}
	return session, nil
}

func (t *Tracker) CreateAgentActivity(ctx context.Context, sessionID string, activity trackersvc.Activity) error {
	t.log.Info("mock activity",
		zap.String("session_id", sessionID),
		zap.String("kind", string(activity.Kind)),
		zap.String("body", activity.Body),
		zap.Time("at", time.Now()),
	)
	return nil
}

func (t *Tracker) RequestFileUpload(ctx context.Context, filename, contentType string, size int64) (*trackersvc.UploadTarget, error) {
	return &trackersvc.UploadTarget{
		UploadURL: "file://" + filename,
		Headers:   map[string]string{},
		AssetURL:  "file://" + filename,
	}, nil
}

func (t *Tracker) GetIssueLabels(ctx context.Context, issueID string) ([]trackersvc.Label, error) {
	issue, err := t.lookup(issueID)
	if err != nil {
		return nil, err
	}
	return issue.Labels, nil
}
