package session

import (
	"regexp"
	"strings"

	"github.com/sylas-dev/sylas/internal/common/config"
	"github.com/sylas-dev/sylas/internal/runner"
)

var (
	agentTagRE = regexp.MustCompile(`(?i)\[agent=([a-z0-9_-]+)\]`)
	modelTagRE = regexp.MustCompile(`(?i)\[model=([a-z0-9_.-]+)\]`)
)

// knownAgentNames maps a label or tag value onto a runner.Type.
var knownAgentNames = map[string]runner.Type{
	"claude": runner.TypeClaude, "claude-code": runner.TypeClaude,
	"gemini": runner.TypeGemini,
	"codex":  runner.TypeCodex,
	"cursor": runner.TypeCursor,
	"opencode": runner.TypeOpenCode, "open-code": runner.TypeOpenCode,
}

// knownModelPrefixes maps a model name prefix onto the runner.Type that
// serves it, used both for [model=X] tags and for a label that happens
// to name a model rather than an agent.
var knownModelPrefixes = []struct {
	prefix string
	rtype  runner.Type
}{
	{"opus", runner.TypeClaude}, {"sonnet", runner.TypeClaude}, {"haiku", runner.TypeClaude}, {"claude", runner.TypeClaude},
	{"gemini", runner.TypeGemini},
	{"gpt", runner.TypeCodex}, {"o1", runner.TypeCodex}, {"o3", runner.TypeCodex}, {"codex", runner.TypeCodex},
	{"cursor", runner.TypeCursor},
	{"opencode", runner.TypeOpenCode},
}

func runnerForModel(model string) (runner.Type, bool) {
	lower := strings.ToLower(model)
	for _, m := range knownModelPrefixes {
		if strings.HasPrefix(lower, m.prefix) {
			return m.rtype, true
		}
	}
	return "", false
}

// defaultModelFor returns the repository/global default model for rtype.
func defaultModelFor(rc config.RunnersConfig, rtype runner.Type) string {
	switch rtype {
	case runner.TypeClaude:
		return rc.ClaudeDefaultModel
	case runner.TypeGemini:
		return rc.GeminiDefaultModel
	case runner.TypeCodex:
		return rc.CodexDefaultModel
	case runner.TypeCursor:
		return rc.CursorDefaultModel
	case runner.TypeOpenCode:
		return rc.OpenCodeDefaultModel
	default:
		return ""
	}
}

// selection is the outcome of resolveRunnerAndModel.
type selection struct {
	RunnerType runner.Type
	Model      string
}

// resolveRunnerAndModel implements spec.md §4.6's runner-selection
// priority for a new session: an explicit [agent=X] tag in the
// description beats a [model=X] tag (runner inferred from the model),
// which beats a label matching a known agent name, which beats a label
// matching a known model name, which beats the configured default
// (defaultType, with its configured default model).
func resolveRunnerAndModel(description string, labels []string, rc config.RunnersConfig, defaultType runner.Type) selection {
	if m := agentTagRE.FindStringSubmatch(description); m != nil {
		if rt, ok := knownAgentNames[strings.ToLower(m[1])]; ok {
			return selection{RunnerType: rt, Model: defaultModelFor(rc, rt)}
		}
	}
	if m := modelTagRE.FindStringSubmatch(description); m != nil {
		model := m[1]
		if rt, ok := runnerForModel(model); ok {
			return selection{RunnerType: rt, Model: model}
		}
	}
	for _, label := range labels {
		if rt, ok := knownAgentNames[strings.ToLower(label)]; ok {
			return selection{RunnerType: rt, Model: defaultModelFor(rc, rt)}
		}
	}
	for _, label := range labels {
		if rt, ok := runnerForModel(label); ok {
			return selection{RunnerType: rt, Model: label}
		}
	}
	return selection{RunnerType: defaultType, Model: defaultModelFor(rc, defaultType)}
}

// modelOverrideForResume resolves a new prompt's label-carried model
// override against the runner type a resume would use, discarding a
// mismatch rather than switching runner mid-session (spec.md §4.6, §8
// scenario 6: "Runner mismatch on resume"); handleUserPrompt logs the
// warning for a discarded mismatch. ok is false when there is no model
// label or the override is discarded.
func modelOverrideForResume(labels []string, rc config.RunnersConfig, resumeType runner.Type) (model string, ok bool) {
	for _, label := range labels {
		if rt, found := runnerForModel(label); found {
			if rt != resumeType {
				return "", false
			}
			return label, true
		}
	}
	return "", false
}
