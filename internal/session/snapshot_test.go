package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylas-dev/sylas/internal/procedure"
	"github.com/sylas-dev/sylas/internal/runner"
)

func TestSessionDTORoundTrip_PreservesCoreFields(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	s := &Session{
		ExternalSessionID: "ext-1",
		RunnerSessionIDs:  procedure.RunnerSessionIDs{procedure.RunnerType(runner.TypeClaude): "rs-1"},
		Issue: IssueContext{
			TrackerID:  "linear",
			OrgID:      "org-1",
			WorkItemID: "issue-1",
			Identifier: "ENG-1",
		},
		WorkspacePath: "/work/repo",
		RepositoryID:  "repo-a",
		RunnerType:    runner.TypeClaude,
		Model:         "claude-sonnet-4",
		Labels:        []string{"bug", "urgent"},
		Status:        StatusActive,
		Procedure: &procedure.State{
			ProcedureName: "default",
			CurrentIndex:  1,
			History: []procedure.HistoryEntry{
				{SubroutineName: "plan", RunnerSessionID: "rs-1", RunnerType: procedure.RunnerType(runner.TypeClaude)},
			},
			Validation: &procedure.ValidationSubstate{Active: true, Iteration: 2},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	dto := s.ToDTO()
	assert.Equal(t, "ext-1", dto.ExternalSessionID)
	assert.Equal(t, "rs-1", dto.RunnerSessionIDs[string(runner.TypeClaude)])
	assert.Equal(t, "issue-1", dto.WorkItemID)
	assert.True(t, dto.Procedure.ValidationActive)
	assert.Equal(t, 2, dto.Procedure.ValidationIteration)
	require.Len(t, dto.Procedure.History, 1)

	rebuilt := FromDTO(dto)
	assert.Equal(t, s.ExternalSessionID, rebuilt.ExternalSessionID)
	assert.Equal(t, s.Issue, rebuilt.Issue)
	assert.Equal(t, s.WorkspacePath, rebuilt.WorkspacePath)
	assert.Equal(t, s.RunnerType, rebuilt.RunnerType)
	assert.Equal(t, s.Labels, rebuilt.Labels)
	assert.Equal(t, s.Status, rebuilt.Status)
	assert.Equal(t, "rs-1", rebuilt.RunnerSessionIDs[procedure.RunnerType(runner.TypeClaude)])
	require.NotNil(t, rebuilt.Procedure)
	assert.Equal(t, 1, rebuilt.Procedure.CurrentIndex)
	require.NotNil(t, rebuilt.Procedure.Validation)
	assert.True(t, rebuilt.Procedure.Validation.Active)
	assert.Equal(t, 2, rebuilt.Procedure.Validation.Iteration)
}

func TestSessionDTORoundTrip_NilProcedureStaysEmpty(t *testing.T) {
	s := &Session{ExternalSessionID: "ext-2", Status: StatusPending}
	dto := s.ToDTO()
	assert.Equal(t, ProcedureStateDTO{}, dto.Procedure)

	rebuilt := FromDTO(dto)
	require.NotNil(t, rebuilt.Procedure)
	assert.Nil(t, rebuilt.Procedure.Validation)
}
