package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CLIMockTranslator implements Translator for the cli-mock tracker's
// hand-authored JSON envelopes, used to drive the pipeline from a
// terminal without a real webhook source.
type CLIMockTranslator struct{}

var _ Translator = (*CLIMockTranslator)(nil)

func (t *CLIMockTranslator) CanTranslate(rawType, rawAction string) bool {
	if rawType != "mock" {
		return false
	}
	switch rawAction {
	case "start", "prompt", "stop", "unassign", "update":
		return true
	}
	return false
}

type climockEnvelope struct {
	Action     string   `json:"action"`
	IssueID    string   `json:"issue_id"`
	Identifier string   `json:"identifier"`
	OrgID      string   `json:"org_id"`
	Text       string   `json:"text"`
	Author     string   `json:"author"`
	Labels     []string `json:"labels"`
	Title      string   `json:"title"`
	Description string  `json:"description"`
}

func (t *CLIMockTranslator) Translate(ctx context.Context, tctx Context, body []byte) (*Message, error) {
	var env climockEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, NewFailure(fmt.Sprintf("malformed cli-mock envelope: %v", err))
	}

	msg := &Message{
		ID:         uuid.NewString(),
		Source:     "cli-mock",
		ReceivedAt: time.Now(),
		OrgID:      env.OrgID,
		SessionKey: "mock:" + env.IssueID,
		Issue: IssueRef{
			TrackerID:  "cli-mock",
			OrgID:      env.OrgID,
			WorkItemID: env.IssueID,
			Identifier: env.Identifier,
		},
	}

	switch env.Action {
	case "start":
		msg.Kind = KindSessionStart
		msg.SessionStart = &SessionStartPayload{
			InitialPrompt:    env.Text,
			Labels:           env.Labels,
			MentionTriggered: false,
		}
	case "prompt":
		msg.Kind = KindUserPrompt
		msg.UserPrompt = &UserPromptPayload{Text: env.Text, Author: env.Author}
	case "stop":
		msg.Kind = KindStopSignal
		msg.StopSignal = &StopSignalPayload{Reason: "operator_stop"}
	case "unassign":
		msg.Kind = KindUnassign
		msg.Unassign = &UnassignPayload{}
	case "update":
		msg.Kind = KindContentUpdate
		msg.ContentUpdate = &ContentUpdatePayload{
			After:   IssueSnapshot{Title: env.Title, Description: env.Description},
			Changed: []string{"title", "description"},
		}
	default:
		return nil, NewFailure("unrecognized cli-mock action: " + env.Action)
	}
	return msg, nil
}
