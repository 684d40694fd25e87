package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/events/bus"
	"github.com/sylas-dev/sylas/internal/trackersvc"
)

// stubTracker records every CreateAgentActivity call and errors on
// everything else; the relay's event projection never touches those.
type stubTracker struct {
	id         string
	activities []trackersvc.Activity
}

func (s *stubTracker) ID() string { return s.id }
func (s *stubTracker) FetchIssue(ctx context.Context, issueID string) (*trackersvc.Issue, error) {
	return nil, trackersvc.ErrUnsupported
}
func (s *stubTracker) FetchIssueChildren(ctx context.Context, issueID string) ([]*trackersvc.Issue, error) {
	return nil, trackersvc.ErrUnsupported
}
func (s *stubTracker) UpdateIssue(ctx context.Context, issueID string, patch trackersvc.IssuePatch) error {
	return trackersvc.ErrUnsupported
}
func (s *stubTracker) FetchAttachments(ctx context.Context, issueID string) ([]trackersvc.Attachment, error) {
	return nil, trackersvc.ErrUnsupported
}
func (s *stubTracker) CreateComment(ctx context.Context, issueID, body string) error {
	return trackersvc.ErrUnsupported
}
func (s *stubTracker) FetchTeams(ctx context.Context) ([]trackersvc.Team, error) {
	return nil, trackersvc.ErrUnsupported
}
func (s *stubTracker) FetchWorkflowStates(ctx context.Context, teamID string) ([]trackersvc.WorkflowState, error) {
	return nil, trackersvc.ErrUnsupported
}
func (s *stubTracker) FetchCurrentUser(ctx context.Context) (*trackersvc.User, error) {
	return nil, trackersvc.ErrUnsupported
}
func (s *stubTracker) CreateAgentSessionOnIssue(ctx context.Context, issueID string) (*trackersvc.AgentSession, error) {
	return nil, trackersvc.ErrUnsupported
}
func (s *stubTracker) CreateAgentSessionOnComment(ctx context.Context, issueID, commentID string) (*trackersvc.AgentSession, error) {
	return nil, trackersvc.ErrUnsupported
}
func (s *stubTracker) FetchAgentSession(ctx context.Context, sessionID string) (*trackersvc.AgentSession, error) {
	return nil, trackersvc.ErrUnsupported
}
func (s *stubTracker) CreateAgentActivity(ctx context.Context, sessionID string, activity trackersvc.Activity) error {
	s.activities = append(s.activities, activity)
	return nil
}
func (s *stubTracker) RequestFileUpload(ctx context.Context, filename, contentType string, size int64) (*trackersvc.UploadTarget, error) {
	return nil, trackersvc.ErrUnsupported
}
func (s *stubTracker) GetIssueLabels(ctx context.Context, issueID string) ([]trackersvc.Label, error) {
	return nil, trackersvc.ErrUnsupported
}

var _ trackersvc.Tracker = (*stubTracker)(nil)

func newTestRelay(tracker trackersvc.Tracker) (*Relay, *bus.MemoryEventBus) {
	b := bus.NewMemoryEventBus(logger.Default())
	r := New(Config{
		Bus: b,
		TrackerFor: func(externalSessionID string) (trackersvc.Tracker, error) {
			return tracker, nil
		},
		Log: logger.Default(),
	})
	return r, b
}

func TestRelay_AssistantThenToolUsePostsThoughtThenAction(t *testing.T) {
	tracker := &stubTracker{id: "cli-mock"}
	r, b := newTestRelay(tracker)

	ctx := context.Background()
	require.NoError(t, r.handle(ctx, bus.NewEvent("runner.event", "test", map[string]interface{}{
		"external_session_id": "sess-1",
		"kind":                "assistant",
		"text":                "thinking about the fix",
	})))
	require.NoError(t, r.handle(ctx, bus.NewEvent("runner.event", "test", map[string]interface{}{
		"external_session_id": "sess-1",
		"kind":                "tool-use",
		"tool_name":           "Edit",
	})))

	require.Len(t, tracker.activities, 2)
	assert.Equal(t, trackersvc.ActivityThought, tracker.activities[0].Kind)
	assert.Equal(t, "thinking about the fix", tracker.activities[0].Body)
	assert.Equal(t, trackersvc.ActivityAction, tracker.activities[1].Kind)
	assert.Equal(t, "Used Edit.", tracker.activities[1].Body)
	_ = b
}

func TestRelay_SingleTurnSubroutineSuppressesAllButComplete(t *testing.T) {
	tracker := &stubTracker{id: "cli-mock"}
	r, _ := newTestRelay(tracker)
	ctx := context.Background()

	require.NoError(t, r.handle(ctx, bus.NewEvent("runner.event", "test", map[string]interface{}{
		"external_session_id": "sess-1",
		"kind":                "assistant",
		"text":                "classifying",
		"single_turn":         true,
	})))
	require.NoError(t, r.handle(ctx, bus.NewEvent("runner.event", "test", map[string]interface{}{
		"external_session_id": "sess-1",
		"kind":                "tool-use",
		"tool_name":           "Read",
		"single_turn":         true,
	})))
	assert.Empty(t, tracker.activities)

	require.NoError(t, r.handle(ctx, bus.NewEvent("runner.event", "test", map[string]interface{}{
		"external_session_id": "sess-1",
		"kind":                "complete",
		"text":                "done classifying",
		"single_turn":         true,
	})))
	require.Len(t, tracker.activities, 1)
	assert.Equal(t, trackersvc.ActivityResponse, tracker.activities[0].Kind)
}

func TestRelay_SuppressThoughtDropsThoughtAndActionNotResponse(t *testing.T) {
	tracker := &stubTracker{id: "cli-mock"}
	r, _ := newTestRelay(tracker)
	ctx := context.Background()

	require.NoError(t, r.handle(ctx, bus.NewEvent("runner.event", "test", map[string]interface{}{
		"external_session_id": "sess-1",
		"kind":                "assistant",
		"text":                "a thought",
	})))
	require.NoError(t, r.handle(ctx, bus.NewEvent("runner.event", "test", map[string]interface{}{
		"external_session_id": "sess-1",
		"kind":                "tool-use",
		"tool_name":           "Bash",
		"suppress_thought":    true,
	})))
	assert.Empty(t, tracker.activities)

	require.NoError(t, r.handle(ctx, bus.NewEvent("runner.event", "test", map[string]interface{}{
		"external_session_id": "sess-1",
		"kind":                "complete",
		"text":                "final answer",
	})))
	require.Len(t, tracker.activities, 1)
	assert.Equal(t, "final answer", tracker.activities[0].Body)
}

func TestRelay_ErrorEventPrefixesBody(t *testing.T) {
	tracker := &stubTracker{id: "cli-mock"}
	r, _ := newTestRelay(tracker)
	ctx := context.Background()

	require.NoError(t, r.handle(ctx, bus.NewEvent("runner.event", "test", map[string]interface{}{
		"external_session_id": "sess-1",
		"kind":                "error",
		"text":                "boom",
	})))
	require.Len(t, tracker.activities, 1)
	assert.Equal(t, "Session ended with an error: boom", tracker.activities[0].Body)
}

func TestRelay_UnknownTrackerLogsAndSkips(t *testing.T) {
	r := New(Config{
		TrackerFor: func(externalSessionID string) (trackersvc.Tracker, error) {
			return nil, errors.New("no tracker for session")
		},
		Log: logger.Default(),
	})
	err := r.handle(context.Background(), bus.NewEvent("runner.event", "test", map[string]interface{}{
		"external_session_id": "unknown-sess",
		"kind":                "assistant",
		"text":                "x",
	}))
	assert.NoError(t, err)
}
