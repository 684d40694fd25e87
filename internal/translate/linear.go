package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LinearTranslator implements Translator for Linear's webhook payloads.
// Linear sends one envelope shape for every event, disambiguated by
// (type, action); agent-session lifecycle events carry type
// "AgentSessionEvent", issue field changes carry type "Issue".
type LinearTranslator struct{}

var _ Translator = (*LinearTranslator)(nil)

func (t *LinearTranslator) CanTranslate(rawType, rawAction string) bool {
	switch rawType {
	case "AgentSessionEvent":
		switch rawAction {
		case "created", "prompted", "stopped", "unassigned":
			return true
		}
	case "Issue":
		if rawAction == "update" {
			return true
		}
	}
	return false
}

type linearEnvelope struct {
	Type           string `json:"type"`
	Action         string `json:"action"`
	OrganizationID string `json:"organizationId"`
	CreatedAt      string `json:"createdAt"`
	Data           struct {
		ID    string `json:"id"`
		Issue struct {
			ID          string `json:"id"`
			Identifier  string `json:"identifier"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"issue"`
		Comment struct {
			ID   string `json:"id"`
			Body string `json:"body"`
			User struct {
				Name string `json:"name"`
			} `json:"user"`
		} `json:"comment"`
		AgentSession struct {
			ID string `json:"id"`
		} `json:"agentSession"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"data"`
	UpdatedFrom map[string]interface{} `json:"updatedFrom"`
}

func (t *LinearTranslator) Translate(ctx context.Context, tctx Context, body []byte) (*Message, error) {
	var env linearEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, NewFailure(fmt.Sprintf("malformed linear webhook body: %v", err))
	}

	issue := IssueRef{
		TrackerID:  "linear",
		OrgID:      env.OrganizationID,
		WorkItemID: env.Data.Issue.ID,
		Identifier: env.Data.Issue.Identifier,
	}
	receivedAt := time.Now()
	if ts, err := time.Parse(time.RFC3339, env.CreatedAt); err == nil {
		receivedAt = ts
	}

	msg := &Message{
		ID:         uuid.NewString(),
		Source:     "linear",
		ReceivedAt: receivedAt,
		OrgID:      env.OrganizationID,
		SessionKey: env.Data.AgentSession.ID,
		Issue:      issue,
	}
	if msg.SessionKey == "" {
		// Content-update and other issue-scoped events have no agent
		// session yet; key by issue id instead so retries still collapse.
		msg.SessionKey = "issue:" + env.Data.Issue.ID
	}

	switch env.Type {
	case "AgentSessionEvent":
		switch env.Action {
		case "created":
			labels := make([]string, 0, len(env.Data.Labels))
			for _, l := range env.Data.Labels {
				labels = append(labels, l.Name)
			}
			msg.Kind = KindSessionStart
			msg.SessionStart = &SessionStartPayload{
				InitialPrompt:    env.Data.Comment.Body,
				Labels:           labels,
				MentionTriggered: !strings.Contains(env.Data.Comment.Body, agentSessionMarker),
			}
			return msg, nil
		case "prompted":
			msg.Kind = KindUserPrompt
			msg.UserPrompt = &UserPromptPayload{
				Text:   env.Data.Comment.Body,
				Author: env.Data.Comment.User.Name,
			}
			return msg, nil
		case "stopped":
			msg.Kind = KindStopSignal
			msg.StopSignal = &StopSignalPayload{Reason: "tracker_stop"}
			return msg, nil
		case "unassigned":
			msg.Kind = KindUnassign
			msg.Unassign = &UnassignPayload{}
			return msg, nil
		}
	case "Issue":
		if env.Action == "update" {
			changed := make([]string, 0, 2)
			before := IssueSnapshot{Title: env.Data.Title, Description: env.Data.Description}
			after := IssueSnapshot{Title: env.Data.Issue.Title, Description: env.Data.Issue.Description}
			if before.Title != after.Title {
				changed = append(changed, "title")
			}
			if before.Description != after.Description {
				changed = append(changed, "description")
			}
			if len(changed) == 0 {
				return nil, NewFailure("issue update webhook carried no title/description delta")
			}
			msg.Kind = KindContentUpdate
			msg.ContentUpdate = &ContentUpdatePayload{Before: before, After: after, Changed: changed}
			return msg, nil
		}
	}
	return nil, NewFailure(fmt.Sprintf("unrecognized linear type/action: %s/%s", env.Type, env.Action))
}
