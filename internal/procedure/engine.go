package procedure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/logger"
)

// RunnerType identifies which agent CLI produced a runner session id, used
// to resolve the advance-time "which slot do we store this in" priority
// order (opencode > cursor > codex > gemini > claude).
type RunnerType string

const (
	RunnerClaude    RunnerType = "claude"
	RunnerGemini    RunnerType = "gemini"
	RunnerCodex     RunnerType = "codex"
	RunnerCursor    RunnerType = "cursor"
	RunnerOpenCode  RunnerType = "opencode"
)

// runnerTypePriority lists runner types from lowest to highest priority
// for the advance-time "which slot" decision in spec.md §4.5.
var runnerTypePriority = []RunnerType{RunnerClaude, RunnerGemini, RunnerCodex, RunnerCursor, RunnerOpenCode}

// HistoryEntry is one completed-subroutine record (spec.md §3).
type HistoryEntry struct {
	SubroutineName  string
	CompletedAt     time.Time
	RunnerSessionID string
	RunnerType      RunnerType
	Result          string
}

// ValidationSubstate tracks the in-progress validation loop for a
// uses_validation_loop subroutine.
type ValidationSubstate struct {
	Iteration int
	Active    bool
}

// State is the procedure-related slice of a session's state, owned by the
// lifecycle manager but mutated exclusively through Engine methods.
type State struct {
	ProcedureName string
	CurrentIndex  int
	History       []HistoryEntry
	Validation    *ValidationSubstate
}

// ClassifyFunc asks a short-budget classifier runner for exactly one
// label, returning an error if the classifier is unavailable or errors
// (spec.md §4.5: "at most one turn, ~10s budget").
type ClassifyFunc func(ctx context.Context, requestText string) (label string, err error)

// known classifier labels, for rejecting out-of-set responses.
var knownLabels = map[string]bool{
	"question": true, "documentation": true, "transient": true, "planning": true,
	"code": true, "debugger": true, "orchestrator": true, "user-testing": true, "release": true,
}

const classifierTimeout = 10 * time.Second

// ValidationResult is the structured pass/fail output a validation-loop
// subroutine's final text is parsed as.
type ValidationResult struct {
	Pass   bool   `json:"pass"`
	Reason string `json:"reason"`
}

// Engine holds the closed procedure table and the per-call classifier
// hook. It is process-wide immutable after construction (spec.md §3
// "Ownership": "Prompt templates and procedure definitions are process-
// wide immutable after load").
type Engine struct {
	table                     map[string]Procedure
	classify                  ClassifyFunc
	validationLoopMaxIterations int
	log                       *logger.Logger
}

// Config configures an Engine.
type Config struct {
	Classify                    ClassifyFunc
	ValidationLoopMaxIterations int // defaults to 3, see DESIGN.md's open-question decision
	Log                         *logger.Logger
}

// NewEngine builds an Engine from the built-in procedure table.
func NewEngine(cfg Config) *Engine {
	maxIter := cfg.ValidationLoopMaxIterations
	if maxIter <= 0 {
		maxIter = 3
	}
	return &Engine{
		table:                       defaultTable(),
		classify:                    cfg.Classify,
		validationLoopMaxIterations: maxIter,
		log:                         cfg.Log,
	}
}

// Override replaces or adds a procedure definition, used by
// internal/procedure/overrides.go to apply an optional YAML override file
// at startup.
func (e *Engine) Override(p Procedure) {
	e.table[p.Name] = p
}

// Classify resolves requestText + labels + a configured label→procedure
// map into a procedure name, applying label override before falling back
// to AI classification (spec.md §4.5).
//
// labelOverrides is the repository's configured label→procedure mapping
// (case-insensitive keys expected from callers). The built-in "orchestrator"
// label override is applied unconditionally, even with no configured
// mapping (spec.md §8 scenario 5).
func (e *Engine) Classify(ctx context.Context, requestText string, labels []string, labelOverrides map[string]string) (procedureName string, usedLabel string) {
	for _, label := range labels {
		lower := strings.ToLower(label)
		if lower == "orchestrator" {
			e.log.Info(fmt.Sprintf("Using %s procedure due to %s label (skipping AI routing)", OrchestratorFull, label))
			return OrchestratorFull, label
		}
		if mapped, ok := labelOverrides[lower]; ok {
			e.log.Info(fmt.Sprintf("Using %s procedure due to %s label (skipping AI routing)", mapped, label))
			return mapped, label
		}
	}

	if e.classify == nil {
		return FullDevelopment, ""
	}
	cctx, cancel := context.WithTimeout(ctx, classifierTimeout)
	defer cancel()
	label, err := e.classify(cctx, requestText)
	if err != nil {
		e.log.WithError(err).Warn("classifier unavailable or errored; falling back to full-development")
		return FullDevelopment, ""
	}
	label = strings.TrimSpace(strings.ToLower(label))
	if !knownLabels[label] {
		e.log.Warn("classifier returned unknown label; falling back to full-development", zap.String("label", label))
		return FullDevelopment, ""
	}
	name, ok := ProcedureForLabel(label)
	if !ok {
		return FullDevelopment, ""
	}
	return name, ""
}

// Init builds a fresh State for procedureName. Callers use this both for
// a brand-new session and to reset state when a new prompt arrives on an
// already-running session (spec.md §4.5: "A new prompt on an already-
// running session RESETS procedure state").
func (e *Engine) Init(procedureName string) *State {
	return &State{ProcedureName: procedureName, CurrentIndex: 0}
}

// procedureOf looks up the Procedure definition for state, returning ok=false
// if the name is unrecognized (should never happen for a state this
// engine produced).
func (e *Engine) procedureOf(state *State) (Procedure, bool) {
	p, ok := e.table[state.ProcedureName]
	return p, ok
}

// GetCurrentSubroutine returns the subroutine at CurrentIndex, or nil if
// none.
func (e *Engine) GetCurrentSubroutine(state *State) *Subroutine {
	p, ok := e.procedureOf(state)
	if !ok || state.CurrentIndex >= len(p.Subroutines) {
		return nil
	}
	s := p.Subroutines[state.CurrentIndex]
	return &s
}

// GetNextSubroutine returns the subroutine at CurrentIndex+1, or nil if
// none.
func (e *Engine) GetNextSubroutine(state *State) *Subroutine {
	p, ok := e.procedureOf(state)
	if !ok || state.CurrentIndex+1 >= len(p.Subroutines) {
		return nil
	}
	s := p.Subroutines[state.CurrentIndex+1]
	return &s
}

// IsComplete reports whether the procedure has no next subroutine.
func (e *Engine) IsComplete(state *State) bool {
	return e.GetNextSubroutine(state) == nil
}

// runnerSessionIDs is the per-runner-type session id set a session
// tracks, passed into Advance so it can pick the highest-priority
// non-empty slot.
type RunnerSessionIDs map[RunnerType]string

// resolveRunnerSlot picks the runner type whose session id slot is set,
// per the priority order opencode > cursor > codex > gemini > claude.
func resolveRunnerSlot(ids RunnerSessionIDs) (RunnerType, string) {
	for i := len(runnerTypePriority) - 1; i >= 0; i-- {
		rt := runnerTypePriority[i]
		if id, ok := ids[rt]; ok && id != "" {
			return rt, id
		}
	}
	return "", ""
}

// Advance appends a history entry for the CURRENT subroutine (not the
// next one) and increments CurrentIndex. result is attached to the entry
// if non-empty. The runner session id is taken from whichever slot in
// ids has highest priority (spec.md §4.5's advance semantics).
func (e *Engine) Advance(state *State, ids RunnerSessionIDs, result string) {
	current := e.GetCurrentSubroutine(state)
	if current == nil {
		return
	}
	runnerType, runnerSessionID := resolveRunnerSlot(ids)
	state.History = append(state.History, HistoryEntry{
		SubroutineName:  current.Name,
		CompletedAt:     time.Now(),
		RunnerSessionID: runnerSessionID,
		RunnerType:      runnerType,
		Result:          result,
	})
	state.CurrentIndex++
}

// ParseValidationResult parses a validation subroutine's final text as
// {pass, reason}. A malformed body is treated as a fail with the parse
// error as reason, matching the "validation fail" error-taxonomy entry
// rather than crashing the engine.
func ParseValidationResult(text string) ValidationResult {
	var r ValidationResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &r); err != nil {
		return ValidationResult{Pass: false, Reason: fmt.Sprintf("could not parse validation output: %v", err)}
	}
	return r
}

// ValidationFixerName is the subroutine name inserted on validation
// failure.
const ValidationFixerName = "validation-fixer"

// HandleValidationResult applies a validation-loop result to state,
// returning true if a fixer subroutine should run next and false if the
// engine should advance normally (pass, or cap exceeded).
//
// Capped failures are surfaced to the caller via capExceeded so the
// session can be ended with an error note per spec.md §7's "Validation
// fail ... after cap, session ends with error note" policy.
func (e *Engine) HandleValidationResult(state *State, result ValidationResult) (needsFixer bool, capExceeded bool) {
	if result.Pass {
		state.Validation = nil
		return false, false
	}
	if state.Validation == nil {
		state.Validation = &ValidationSubstate{Iteration: 1, Active: true}
	} else {
		state.Validation.Iteration++
	}
	if state.Validation.Iteration > e.validationLoopMaxIterations {
		return false, true
	}
	return true, false
}

// FixerSubroutine returns the static validation-fixer subroutine
// definition, run in place of advancing when HandleValidationResult
// requests it.
func FixerSubroutine() Subroutine {
	return sub(ValidationFixerName)
}
