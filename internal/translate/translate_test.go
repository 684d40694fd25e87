package translate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearTranslator_SessionStart_MentionTriggered(t *testing.T) {
	lt := &LinearTranslator{}
	body := []byte(`{
		"type": "AgentSessionEvent",
		"action": "created",
		"organizationId": "org-1",
		"createdAt": "2026-01-01T00:00:00Z",
		"data": {
			"agentSession": {"id": "as-1"},
			"issue": {"id": "issue-1", "identifier": "TEST-1"},
			"comment": {"id": "c-1", "body": "please look into this", "user": {"name": "alice"}},
			"labels": [{"name": "orchestrator"}]
		}
	}`)

	msg, err := lt.Translate(context.Background(), Context{TrackerID: "linear", OrgID: "org-1"}, body)
	require.NoError(t, err)
	require.Equal(t, KindSessionStart, msg.Kind)
	assert.True(t, msg.SessionStart.MentionTriggered)
	assert.Equal(t, "as-1", msg.SessionKey)
	assert.Equal(t, []string{"orchestrator"}, msg.SessionStart.Labels)
}

func TestLinearTranslator_SessionStart_NotMentionTriggered(t *testing.T) {
	lt := &LinearTranslator{}
	body := []byte(`{
		"type": "AgentSessionEvent",
		"action": "created",
		"organizationId": "org-1",
		"data": {
			"agentSession": {"id": "as-2"},
			"issue": {"id": "issue-2", "identifier": "TEST-2"},
			"comment": {"id": "c-2", "body": "<!-- agent-session -->\ngo implement this"}
		}
	}`)

	msg, err := lt.Translate(context.Background(), Context{TrackerID: "linear"}, body)
	require.NoError(t, err)
	assert.False(t, msg.SessionStart.MentionTriggered)
}

func TestLinearTranslator_CanTranslate_StrictRejection(t *testing.T) {
	lt := &LinearTranslator{}
	assert.False(t, lt.CanTranslate("AgentSessionEvent", "renamed"))
	assert.False(t, lt.CanTranslate("Comment", "create"))
	assert.True(t, lt.CanTranslate("AgentSessionEvent", "created"))
}

func TestLinearTranslator_IssueUpdate_NoDeltaIsFailure(t *testing.T) {
	lt := &LinearTranslator{}
	body := []byte(`{
		"type": "Issue",
		"action": "update",
		"organizationId": "org-1",
		"data": {"issue": {"id": "issue-1", "title": "same", "description": "same"}, "title": "same", "description": "same"}
	}`)
	_, err := lt.Translate(context.Background(), Context{TrackerID: "linear"}, body)
	require.Error(t, err)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
}

func TestSlackTranslator_TopLevelMentionIsSessionStart(t *testing.T) {
	st := &SlackTranslator{}
	body := []byte(`{
		"type": "event_callback",
		"team_id": "T1",
		"event": {"type": "app_mention", "text": "<@U1> fix the bug", "channel": "C1", "ts": "1000.1", "user": "U2"}
	}`)
	msg, err := st.Translate(context.Background(), Context{TrackerID: "slack-mirror"}, body)
	require.NoError(t, err)
	assert.Equal(t, KindSessionStart, msg.Kind)
	assert.Equal(t, "fix the bug", msg.SessionStart.InitialPrompt)
	assert.Equal(t, "C1:1000.1", msg.SessionKey)
}

func TestSlackTranslator_ThreadedMentionIsUserPrompt(t *testing.T) {
	st := &SlackTranslator{}
	body := []byte(`{
		"type": "event_callback",
		"team_id": "T1",
		"event": {"type": "app_mention", "text": "<@U1> also do this", "channel": "C1", "ts": "1000.2", "thread_ts": "1000.1"}
	}`)
	msg, err := st.Translate(context.Background(), Context{TrackerID: "slack-mirror"}, body)
	require.NoError(t, err)
	assert.Equal(t, KindUserPrompt, msg.Kind)
	assert.Equal(t, "C1:1000.1", msg.SessionKey)
}

func TestSlackTranslator_BangStopIsStopSignal(t *testing.T) {
	st := &SlackTranslator{}
	body := []byte(`{
		"type": "event_callback",
		"team_id": "T1",
		"event": {"type": "message", "text": "!stop", "channel": "C1", "ts": "1000.3", "thread_ts": "1000.1"}
	}`)
	msg, err := st.Translate(context.Background(), Context{TrackerID: "slack-mirror"}, body)
	require.NoError(t, err)
	assert.Equal(t, KindStopSignal, msg.Kind)
}

func TestCLIMockTranslator_RoundTrip(t *testing.T) {
	ct := &CLIMockTranslator{}
	require.True(t, ct.CanTranslate("mock", "start"))
	require.False(t, ct.CanTranslate("mock", "frobnicate"))

	body := []byte(`{"action": "start", "issue_id": "issue-test-1", "identifier": "TEST-1", "text": "do the thing"}`)
	msg, err := ct.Translate(context.Background(), Context{TrackerID: "cli-mock"}, body)
	require.NoError(t, err)
	assert.Equal(t, KindSessionStart, msg.Kind)
	assert.Equal(t, "mock:issue-test-1", msg.SessionKey)
}

func TestRegistry_UnknownTrackerIsFailure(t *testing.T) {
	reg := NewRegistry(map[string]Translator{"linear": &LinearTranslator{}})
	_, err := reg.Translate(context.Background(), Context{TrackerID: "unknown"}, "AgentSessionEvent", "created", []byte(`{}`))
	require.Error(t, err)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
}
