package procedure

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylas-dev/sylas/internal/common/logger"
)

func newTestEngine(classify ClassifyFunc) *Engine {
	return NewEngine(Config{Classify: classify, Log: logger.Default()})
}

func TestClassify_OrchestratorLabelBuiltinOverride(t *testing.T) {
	e := newTestEngine(func(ctx context.Context, text string) (string, error) {
		t.Fatal("classifier should not be called when the orchestrator label is present")
		return "", nil
	})
	name, used := e.Classify(context.Background(), "anything", []string{"orchestrator"}, nil)
	assert.Equal(t, OrchestratorFull, name)
	assert.Equal(t, "orchestrator", used)
}

func TestClassify_ConfiguredLabelOverrideSkipsClassifier(t *testing.T) {
	e := newTestEngine(func(ctx context.Context, text string) (string, error) {
		t.Fatal("classifier should not be called when a configured label override matches")
		return "", nil
	})
	name, _ := e.Classify(context.Background(), "anything", []string{"docs"}, map[string]string{"docs": DocumentationEdit})
	assert.Equal(t, DocumentationEdit, name)
}

func TestClassify_FallsBackOnClassifierError(t *testing.T) {
	e := newTestEngine(func(ctx context.Context, text string) (string, error) {
		return "", errors.New("classifier unavailable")
	})
	name, _ := e.Classify(context.Background(), "do the thing", nil, nil)
	assert.Equal(t, FullDevelopment, name)
}

func TestClassify_UnknownLabelFallsBackToFullDevelopment(t *testing.T) {
	e := newTestEngine(func(ctx context.Context, text string) (string, error) {
		return "not-a-real-label", nil
	})
	name, _ := e.Classify(context.Background(), "do the thing", nil, nil)
	assert.Equal(t, FullDevelopment, name)
}

func TestAdvance_HistoryRecordsCurrentNotNext(t *testing.T) {
	e := newTestEngine(nil)
	state := e.Init(FullDevelopment)
	require.Equal(t, "coding-activity", e.GetCurrentSubroutine(state).Name)

	e.Advance(state, RunnerSessionIDs{RunnerClaude: "claude-sess-1"}, "done coding")
	require.Len(t, state.History, 1)
	assert.Equal(t, "coding-activity", state.History[0].SubroutineName)
	assert.Equal(t, "done coding", state.History[0].Result)
	assert.Equal(t, 1, state.CurrentIndex)
	assert.Equal(t, "verifications", e.GetCurrentSubroutine(state).Name)
}

func TestAdvance_MonotoneIndexThroughFullProcedure(t *testing.T) {
	e := newTestEngine(nil)
	state := e.Init(FullDevelopment)
	prevIndex := -1
	for !e.IsComplete(state) {
		require.Greater(t, state.CurrentIndex, prevIndex)
		prevIndex = state.CurrentIndex
		e.Advance(state, RunnerSessionIDs{RunnerClaude: "s"}, "")
	}
	// Only subroutines advanced away from appear in history — the final
	// "concise-summary" subroutine is the current one, not yet advanced.
	assert.Equal(t, 5, len(state.History))
	assert.Equal(t, "concise-summary", e.GetCurrentSubroutine(state).Name)
}

func TestAdvance_RunnerSlotPriority(t *testing.T) {
	e := newTestEngine(nil)
	state := e.Init(FullDelegation)
	e.Advance(state, RunnerSessionIDs{RunnerClaude: "c1", RunnerOpenCode: "oc1"}, "")
	assert.Equal(t, RunnerOpenCode, state.History[0].RunnerType)
	assert.Equal(t, "oc1", state.History[0].RunnerSessionID)
}

func TestValidationLoop_CapExceededEndsSession(t *testing.T) {
	e := newTestEngine(nil)
	state := e.Init(FullDevelopment)

	for i := 0; i < 3; i++ {
		needsFixer, capExceeded := e.HandleValidationResult(state, ValidationResult{Pass: false, Reason: "nope"})
		require.False(t, capExceeded, "iteration %d should not exceed cap yet", i)
		require.True(t, needsFixer)
	}
	_, capExceeded := e.HandleValidationResult(state, ValidationResult{Pass: false, Reason: "still nope"})
	assert.True(t, capExceeded)
}

func TestValidationLoop_PassClearsSubstate(t *testing.T) {
	e := newTestEngine(nil)
	state := e.Init(FullDevelopment)
	e.HandleValidationResult(state, ValidationResult{Pass: false, Reason: "nope"})
	require.NotNil(t, state.Validation)
	needsFixer, capExceeded := e.HandleValidationResult(state, ValidationResult{Pass: true})
	assert.False(t, needsFixer)
	assert.False(t, capExceeded)
	assert.Nil(t, state.Validation)
}

func TestParseValidationResult_MalformedIsFail(t *testing.T) {
	r := ParseValidationResult("not json")
	assert.False(t, r.Pass)
	assert.NotEmpty(t, r.Reason)
}
