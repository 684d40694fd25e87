package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sylas-dev/sylas/internal/common/config"
	"github.com/sylas-dev/sylas/internal/runner"
)

var testRunnersConfig = config.RunnersConfig{
	ClaudeDefaultModel:   "claude-sonnet-4",
	GeminiDefaultModel:   "gemini-2.5-pro",
	CodexDefaultModel:    "gpt-5-codex",
	CursorDefaultModel:   "cursor-small",
	OpenCodeDefaultModel: "opencode-default",
}

func TestResolveRunnerAndModel_AgentTagWins(t *testing.T) {
	sel := resolveRunnerAndModel("please fix this [agent=gemini] today", nil, testRunnersConfig, runner.TypeClaude)
	assert.Equal(t, runner.TypeGemini, sel.RunnerType)
	assert.Equal(t, "gemini-2.5-pro", sel.Model)
}

func TestResolveRunnerAndModel_ModelTagInfersRunner(t *testing.T) {
	sel := resolveRunnerAndModel("use [model=gpt-5-codex-mini] please", nil, testRunnersConfig, runner.TypeClaude)
	assert.Equal(t, runner.TypeCodex, sel.RunnerType)
	assert.Equal(t, "gpt-5-codex-mini", sel.Model)
}

func TestResolveRunnerAndModel_AgentTagBeatsModelTag(t *testing.T) {
	sel := resolveRunnerAndModel("[agent=cursor] but also [model=gemini-2.5-pro]", nil, testRunnersConfig, runner.TypeClaude)
	assert.Equal(t, runner.TypeCursor, sel.RunnerType)
	assert.Equal(t, "cursor-small", sel.Model)
}

func TestResolveRunnerAndModel_LabelMatchingAgentName(t *testing.T) {
	sel := resolveRunnerAndModel("no tags here", []string{"bug", "opencode"}, testRunnersConfig, runner.TypeClaude)
	assert.Equal(t, runner.TypeOpenCode, sel.RunnerType)
	assert.Equal(t, "opencode-default", sel.Model)
}

func TestResolveRunnerAndModel_LabelMatchingModelName(t *testing.T) {
	sel := resolveRunnerAndModel("no tags here", []string{"bug", "o3-mini"}, testRunnersConfig, runner.TypeClaude)
	assert.Equal(t, runner.TypeCodex, sel.RunnerType)
	assert.Equal(t, "o3-mini", sel.Model)
}

func TestResolveRunnerAndModel_FallsBackToDefault(t *testing.T) {
	sel := resolveRunnerAndModel("plain text, no hints", []string{"bug", "urgent"}, testRunnersConfig, runner.TypeClaude)
	assert.Equal(t, runner.TypeClaude, sel.RunnerType)
	assert.Equal(t, "claude-sonnet-4", sel.Model)
}

func TestResolveRunnerAndModel_UnknownAgentTagFallsThrough(t *testing.T) {
	sel := resolveRunnerAndModel("[agent=nonexistent]", nil, testRunnersConfig, runner.TypeGemini)
	assert.Equal(t, runner.TypeGemini, sel.RunnerType)
	assert.Equal(t, "gemini-2.5-pro", sel.Model)
}

func TestModelOverrideForResume_MatchingRunnerAccepted(t *testing.T) {
	model, ok := modelOverrideForResume([]string{"sonnet-4.5"}, testRunnersConfig, runner.TypeClaude)
	assert.True(t, ok)
	assert.Equal(t, "sonnet-4.5", model)
}

func TestModelOverrideForResume_MismatchedRunnerDiscarded(t *testing.T) {
	model, ok := modelOverrideForResume([]string{"gemini-2.5-pro"}, testRunnersConfig, runner.TypeClaude)
	assert.False(t, ok)
	assert.Empty(t, model)
}

func TestModelOverrideForResume_NoModelLabelReturnsNotOK(t *testing.T) {
	model, ok := modelOverrideForResume([]string{"bug", "urgent"}, testRunnersConfig, runner.TypeClaude)
	assert.False(t, ok)
	assert.Empty(t, model)
}
