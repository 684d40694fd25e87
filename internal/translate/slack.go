package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SlackTranslator implements Translator for Slack's Events API callbacks.
// Slack has no native concept of "session" or "unassign"; Sylas maps a
// top-level app_mention to session_start, a threaded reply to
// user_prompt, and a couple of bang-commands in thread text to
// stop_signal/unassign, since there's no tracker-native button for them.
type SlackTranslator struct{}

var _ Translator = (*SlackTranslator)(nil)

func (t *SlackTranslator) CanTranslate(rawType, rawAction string) bool {
	return rawType == "event_callback" && (rawAction == "app_mention" || rawAction == "message")
}

type slackEnvelope struct {
	Type  string `json:"type"`
	TeamID string `json:"team_id"`
	Event  struct {
		Type     string `json:"type"`
		User     string `json:"user"`
		Text     string `json:"text"`
		Channel  string `json:"channel"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
		Subtype  string `json:"subtype"`
		Message  struct {
			Text string `json:"text"`
		} `json:"message"`
		PreviousMessage struct {
			Text string `json:"text"`
		} `json:"previous_message"`
	} `json:"event"`
}

func (t *SlackTranslator) Translate(ctx context.Context, tctx Context, body []byte) (*Message, error) {
	var env slackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, NewFailure(fmt.Sprintf("malformed slack webhook body: %v", err))
	}

	threadTS := env.Event.ThreadTS
	if threadTS == "" {
		threadTS = env.Event.TS
	}
	identifier := env.Event.Channel + ":" + threadTS

	var receivedAt time.Time
	if sec, err := strconv.ParseFloat(env.Event.TS, 64); err == nil {
		receivedAt = time.Unix(int64(sec), 0)
	} else {
		receivedAt = time.Now()
	}

	msg := &Message{
		ID:         uuid.NewString(),
		Source:     "slack-mirror",
		ReceivedAt: receivedAt,
		OrgID:      env.TeamID,
		SessionKey: identifier,
		Issue: IssueRef{
			TrackerID:  "slack-mirror",
			OrgID:      env.TeamID,
			WorkItemID: identifier,
			Identifier: identifier,
		},
		Raw: map[string]interface{}{"channel": env.Event.Channel, "thread_ts": threadTS},
	}

	switch env.Event.Type {
	case "app_mention":
		if env.Event.ThreadTS != "" && env.Event.ThreadTS != env.Event.TS {
			// A mention inside an existing thread is a follow-up prompt,
			// not a new session.
			msg.Kind = KindUserPrompt
			msg.UserPrompt = &UserPromptPayload{Text: stripMention(env.Event.Text), Author: env.Event.User}
			return msg, nil
		}
		msg.Kind = KindSessionStart
		msg.SessionStart = &SessionStartPayload{
			InitialPrompt:    stripMention(env.Event.Text),
			MentionTriggered: !strings.Contains(env.Event.Text, agentSessionMarker),
		}
		return msg, nil
	case "message":
		text := strings.TrimSpace(env.Event.Text)
		switch {
		case env.Event.Subtype == "message_changed":
			msg.Kind = KindContentUpdate
			msg.ContentUpdate = &ContentUpdatePayload{
				Before:  IssueSnapshot{Description: env.Event.PreviousMessage.Text},
				After:   IssueSnapshot{Description: env.Event.Message.Text},
				Changed: []string{"description"},
			}
			return msg, nil
		case text == "!stop":
			msg.Kind = KindStopSignal
			msg.StopSignal = &StopSignalPayload{Reason: "tracker_stop"}
			return msg, nil
		case text == "!unassign":
			msg.Kind = KindUnassign
			msg.Unassign = &UnassignPayload{}
			return msg, nil
		case env.Event.ThreadTS != "":
			msg.Kind = KindUserPrompt
			msg.UserPrompt = &UserPromptPayload{Text: text, Author: env.Event.User}
			return msg, nil
		}
	}
	return nil, NewFailure(fmt.Sprintf("unrecognized slack event: type=%s subtype=%s", env.Event.Type, env.Event.Subtype))
}

// stripMention removes the leading "<@BOTID>" mention token Slack
// prepends to app_mention text bodies.
func stripMention(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "<@") {
		return trimmed
	}
	if idx := strings.Index(trimmed, ">"); idx != -1 {
		return strings.TrimSpace(trimmed[idx+1:])
	}
	return trimmed
}
