// Package linear implements trackersvc.Tracker against Linear's GraphQL
// API. It is the reference tracker implementation spec.md §1 names.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/trackersvc"
)

const defaultEndpoint = "https://api.linear.app/graphql"

// Tracker implements trackersvc.Tracker against Linear's GraphQL API.
type Tracker struct {
	workspaceID string
	endpoint    string
	httpClient  *http.Client
	log         *logger.Logger
}

var _ trackersvc.Tracker = (*Tracker)(nil)

// Config configures a Linear Tracker.
type Config struct {
	WorkspaceID string
	Endpoint    string // defaults to defaultEndpoint
	Store       trackersvc.Store
	Log         *logger.Logger
}

// New builds a Linear tracker whose outbound HTTP client carries the
// singleflight-refresh-on-401 middleware from trackersvc.refresh.go.
func New(cfg Config, refreshFn trackersvc.RefreshFunc, onRefreshed trackersvc.OnTokenRefreshed) *Tracker {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	coord := trackersvc.NewRefreshCoordinator(cfg.Store, refreshFn, onRefreshed, cfg.Log)
	rt := &trackersvc.AuthorizedRoundTripper{
		Coordinator: coord,
		WorkspaceID: cfg.WorkspaceID,
		TokenHeader: func(req *http.Request, cred trackersvc.Credential) {
			req.Header.Set("Authorization", cred.AccessToken)
		},
		Current: func() (trackersvc.Credential, error) {
			return cfg.Store.Get(cfg.WorkspaceID)
		},
	}
	return &Tracker{
		workspaceID: cfg.WorkspaceID,
		endpoint:    endpoint,
		httpClient:  &http.Client{Transport: rt, Timeout: 30 * time.Second},
		log:         cfg.Log,
	}
}

func (t *Tracker) ID() string { return "linear" }

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do executes a GraphQL operation and unmarshals the "data" object into
// out. Transport errors are wrapped with cause; non-401 4xx status codes
// and a non-empty "errors" array both become trackersvc.Error (spec.md
// §4.1's "success=false payloads become explicit errors").
func (t *Tracker) do(ctx context.Context, operation, query string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return trackersvc.NewError("linear", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return trackersvc.NewError("linear", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Restoring a fresh bytes.Reader lets the refresh-retry roundtripper
	// resend the same body after a 401.
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return trackersvc.NewError("linear", operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return trackersvc.NewError("linear", operation, err)
	}

	if resp.StatusCode >= 400 {
		return trackersvc.NewError("linear", operation, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var gr gqlResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return trackersvc.NewError("linear", operation, err)
	}
	if len(gr.Errors) > 0 {
		return trackersvc.NewError("linear", operation, fmt.Errorf("graphql error: %s", gr.Errors[0].Message))
	}
	if out != nil {
		if err := json.Unmarshal(gr.Data, out); err != nil {
			return trackersvc.NewError("linear", operation, err)
		}
	}
	return nil
}

func (t *Tracker) FetchIssue(ctx context.Context, issueID string) (*trackersvc.Issue, error) {
	var result struct {
		Issue struct {
			ID          string `json:"id"`
			Identifier  string `json:"identifier"`
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			Team        struct {
				ID string `json:"id"`
			} `json:"team"`
			State struct {
				ID string `json:"id"`
			} `json:"state"`
			Labels struct {
				Nodes []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"nodes"`
			} `json:"labels"`
		} `json:"issue"`
	}
	query := `query($id: String!) { issue(id: $id) { id identifier title description url team { id } state { id } labels { nodes { id name } } } }`
	if err := t.do(ctx, "fetch_issue", query, map[string]interface{}{"id": issueID}, &result); err != nil {
		return nil, err
	}

	labels := make([]trackersvc.Label, 0, len(result.Issue.Labels.Nodes))
	for _, l := range result.Issue.Labels.Nodes {
		labels = append(labels, trackersvc.Label{ID: l.ID, Name: l.Name})
	}
	return &trackersvc.Issue{
		ID:          result.Issue.ID,
		Identifier:  result.Issue.Identifier,
		Title:       result.Issue.Title,
		Description: result.Issue.Description,
		TeamID:      result.Issue.Team.ID,
		StateID:     result.Issue.State.ID,
		Labels:      labels,
		WorkspaceID: t.workspaceID,
		URL:         result.Issue.URL,
	}, nil
}

func (t *Tracker) FetchIssueChildren(ctx context.Context, issueID string) ([]*trackersvc.Issue, error) {
	var result struct {
		Issue struct {
			Children struct {
				Nodes []struct {
					ID         string `json:"id"`
					Identifier string `json:"identifier"`
					Title      string `json:"title"`
				} `json:"nodes"`
			} `json:"children"`
		} `json:"issue"`
	}
	query := `query($id: String!) { issue(id: $id) { children { nodes { id identifier title } } } }`
	if err := t.do(ctx, "fetch_issue_children", query, map[string]interface{}{"id": issueID}, &result); err != nil {
		return nil, err
	}
	out := make([]*trackersvc.Issue, 0, len(result.Issue.Children.Nodes))
	for _, c := range result.Issue.Children.Nodes {
		out = append(out, &trackersvc.Issue{ID: c.ID, Identifier: c.Identifier, Title: c.Title, WorkspaceID: t.workspaceID})
	}
	return out, nil
}

func (t *Tracker) UpdateIssue(ctx context.Context, issueID string, patch trackersvc.IssuePatch) error {
	input := map[string]interface{}{}
	if patch.StateID != nil {
		input["stateId"] = *patch.StateID
	}
	mutation := `mutation($id: String!, $input: IssueUpdateInput!) { issueUpdate(id: $id, input: $input) { success } }`
	var result struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	if err := t.do(ctx, "update_issue", mutation, map[string]interface{}{"id": issueID, "input": input}, &result); err != nil {
		return err
	}
	if !result.IssueUpdate.Success {
		return trackersvc.NewError("linear", "update_issue", fmt.Errorf("success=false"))
	}
	return nil
}

func (t *Tracker) FetchAttachments(ctx context.Context, issueID string) ([]trackersvc.Attachment, error) {
	var result struct {
		Issue struct {
			Attachments struct {
				Nodes []struct {
					ID    string `json:"id"`
					URL   string `json:"url"`
					Title string `json:"title"`
				} `json:"nodes"`
			} `json:"attachments"`
		} `json:"issue"`
	}
	query := `query($id: String!) { issue(id: $id) { attachments { nodes { id url title } } } }`
	if err := t.do(ctx, "fetch_attachments", query, map[string]interface{}{"id": issueID}, &result); err != nil {
		return nil, err
	}
	out := make([]trackersvc.Attachment, 0, len(result.Issue.Attachments.Nodes))
	for _, a := range result.Issue.Attachments.Nodes {
		out = append(out, trackersvc.Attachment{ID: a.ID, URL: a.URL, Filename: a.Title})
	}
	return out, nil
}

func (t *Tracker) CreateComment(ctx context.Context, issueID, body string) error {
	mutation := `mutation($issueId: String!, $body: String!) { commentCreate(input: { issueId: $issueId, body: $body }) { success } }`
	var result struct {
		CommentCreate struct {
			Success bool `json:"success"`
		} `json:"commentCreate"`
	}
	if err := t.do(ctx, "create_comment", mutation, map[string]interface{}{"issueId": issueID, "body": body}, &result); err != nil {
		return err
	}
	if !result.CommentCreate.Success {
		return trackersvc.NewError("linear", "create_comment", fmt.Errorf("success=false"))
	}
	return nil
}

func (t *Tracker) FetchTeams(ctx context.Context) ([]trackersvc.Team, error) {
	var result struct {
		Teams struct {
			Nodes []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"nodes"`
		} `json:"teams"`
	}
	query := `query { teams { nodes { id name } } }`
	if err := t.do(ctx, "fetch_teams", query, nil, &result); err != nil {
		return nil, err
	}
	out := make([]trackersvc.Team, 0, len(result.Teams.Nodes))
	for _, tm := range result.Teams.Nodes {
		out = append(out, trackersvc.Team{ID: tm.ID, Name: tm.Name})
	}
	return out, nil
}

func (t *Tracker) FetchWorkflowStates(ctx context.Context, teamID string) ([]trackersvc.WorkflowState, error) {
	var result struct {
		Team struct {
			States struct {
				Nodes []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
					Type string `json:"type"`
				} `json:"nodes"`
			} `json:"states"`
		} `json:"team"`
	}
	query := `query($teamId: String!) { team(id: $teamId) { states { nodes { id name type } } } }`
	if err := t.do(ctx, "fetch_workflow_states", query, map[string]interface{}{"teamId": teamID}, &result); err != nil {
		return nil, err
	}
	out := make([]trackersvc.WorkflowState, 0, len(result.Team.States.Nodes))
	for _, s := range result.Team.States.Nodes {
		out = append(out, trackersvc.WorkflowState{ID: s.ID, Name: s.Name, Type: s.Type})
	}
	return out, nil
}

func (t *Tracker) FetchCurrentUser(ctx context.Context) (*trackersvc.User, error) {
	var result struct {
		Viewer struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"viewer"`
	}
	query := `query { viewer { id name email } }`
	if err := t.do(ctx, "fetch_current_user", query, nil, &result); err != nil {
		return nil, err
	}
	return &trackersvc.User{ID: result.Viewer.ID, Name: result.Viewer.Name, Email: result.Viewer.Email}, nil
}

func (t *Tracker) CreateAgentSessionOnIssue(ctx context.Context, issueID string) (*trackersvc.AgentSession, error) {
	return t.createAgentSession(ctx, map[string]interface{}{"issueId": issueID})
}

func (t *Tracker) CreateAgentSessionOnComment(ctx context.Context, issueID, commentID string) (*trackersvc.AgentSession, error) {
	return t.createAgentSession(ctx, map[string]interface{}{"issueId": issueID, "commentId": commentID})
}

func (t *Tracker) createAgentSession(ctx context.Context, input map[string]interface{}) (*trackersvc.AgentSession, error) {
	mutation := `mutation($input: AgentSessionCreateInput!) { agentSessionCreate(input: $input) { success agentSession { id issue { id } } } }`
	var result struct {
		AgentSessionCreate struct {
			Success      bool `json:"success"`
			AgentSession struct {
				ID    string `json:"id"`
				Issue struct {
					ID string `json:"id"`
				} `json:"issue"`
			} `json:"agentSession"`
		} `json:"agentSessionCreate"`
	}
	if err := t.do(ctx, "create_agent_session", mutation, map[string]interface{}{"input": input}, &result); err != nil {
		return nil, err
	}
	if !result.AgentSessionCreate.Success {
		return nil, trackersvc.NewError("linear", "create_agent_session", fmt.Errorf("success=false"))
	}
	return &trackersvc.AgentSession{
		ID:      result.AgentSessionCreate.AgentSession.ID,
		IssueID: result.AgentSessionCreate.AgentSession.Issue.ID,
	}, nil
}

func (t *Tracker) FetchAgentSession(ctx context.Context, sessionID string) (*trackersvc.AgentSession, error) {
	var result struct {
		AgentSession struct {
			ID    string `json:"id"`
			Issue struct {
				ID string `json:"id"`
			} `json:"issue"`
		} `json:"agentSession"`
	}
	query := `query($id: String!) { agentSession(id: $id) { id issue { id } } }`
	if err := t.do(ctx, "fetch_agent_session", query, map[string]interface{}{"id": sessionID}, &result); err != nil {
		return nil, err
	}
	return &trackersvc.AgentSession{ID: result.AgentSession.ID, IssueID: result.AgentSession.Issue.ID}, nil
}

func (t *Tracker) CreateAgentActivity(ctx context.Context, sessionID string, activity trackersvc.Activity) error {
	mutation := `mutation($input: AgentActivityCreateInput!) { agentActivityCreate(input: $input) { success } }`
	var result struct {
		AgentActivityCreate struct {
			Success bool `json:"success"`
		} `json:"agentActivityCreate"`
	}
	input := map[string]interface{}{
		"agentSessionId": sessionID,
		"kind":           string(activity.Kind),
		"body":           activity.Body,
	}
	if err := t.do(ctx, "create_agent_activity", mutation, map[string]interface{}{"input": input}, &result); err != nil {
		return err
	}
	if !result.AgentActivityCreate.Success {
		return trackersvc.NewError("linear", "create_agent_activity", fmt.Errorf("success=false"))
	}
	return nil
}

func (t *Tracker) RequestFileUpload(ctx context.Context, filename, contentType string, size int64) (*trackersvc.UploadTarget, error) {
	mutation := `mutation($contentType: String!, $filename: String!, $size: Int!) {
		fileUpload(contentType: $contentType, filename: $filename, size: $size) {
			success
			uploadFile { uploadUrl headers { key value } assetUrl }
		}
	}`
	var result struct {
		FileUpload struct {
			Success    bool `json:"success"`
			UploadFile struct {
				UploadURL string `json:"uploadUrl"`
				Headers   []struct {
					Key   string `json:"key"`
					Value string `json:"value"`
				} `json:"headers"`
				AssetURL string `json:"assetUrl"`
			} `json:"uploadFile"`
		} `json:"fileUpload"`
	}
	vars := map[string]interface{}{"contentType": contentType, "filename": filename, "size": size}
	if err := t.do(ctx, "request_file_upload", mutation, vars, &result); err != nil {
		return nil, err
	}
	if !result.FileUpload.Success {
		return nil, trackersvc.NewError("linear", "request_file_upload", fmt.Errorf("success=false"))
	}
	headers := make(map[string]string, len(result.FileUpload.UploadFile.Headers))
	for _, h := range result.FileUpload.UploadFile.Headers {
		headers[h.Key] = h.Value
	}
	return &trackersvc.UploadTarget{
		UploadURL: result.FileUpload.UploadFile.UploadURL,
		Headers:   headers,
		AssetURL:  result.FileUpload.UploadFile.AssetURL,
	}, nil
}

func (t *Tracker) GetIssueLabels(ctx context.Context, issueID string) ([]trackersvc.Label, error) {
	issue, err := t.FetchIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return issue.Labels, nil
}

// UploadBytes PUTs data to target.UploadURL with target.Headers, completing
// the three-step dance spec.md §6 describes.
func (t *Tracker) UploadBytes(ctx context.Context, target *trackersvc.UploadTarget, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.UploadURL, bytes.NewReader(data))
	if err != nil {
		return trackersvc.NewError("linear", "upload_bytes", err)
	}
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return trackersvc.NewError("linear", "upload_bytes", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return trackersvc.NewError("linear", "upload_bytes", fmt.Errorf("http %d", resp.StatusCode))
	}
	t.log.Debug("uploaded attachment bytes", zap.String("asset_url", target.AssetURL))
	return nil
}
