// Package procedure implements the classifier + static procedure table +
// validation loop described by the session lifecycle's procedure engine.
// The set of procedures and their subroutines is closed and fixed at
// process start (spec.md §4.5); names carry semantic weight and are
// never renamed at runtime.
package procedure

// Subroutine is a static subroutine definition: one runner invocation
// plus independent policy flags.
type Subroutine struct {
	Name                   string
	PromptRef              string
	SingleTurn             bool
	SuppressThoughtPosting bool
	DisallowAllTools       bool
	AllowedTools           []string
	DisallowedTools        []string
	RequiresApproval       bool
	UsesValidationLoop     bool
}

// Procedure is a named, ordered list of subroutines.
type Procedure struct {
	Name        string
	Subroutines []Subroutine
}

func sub(name string) Subroutine {
	return Subroutine{Name: name, PromptRef: name}
}

func summarySub(name string) Subroutine {
	return Subroutine{
		Name:                   name,
		PromptRef:              name,
		SingleTurn:             true,
		DisallowAllTools:       true,
		SuppressThoughtPosting: true,
	}
}

// Name constants for the closed procedure set.
const (
	SimpleQuestion    = "simple-question"
	DocumentationEdit = "documentation-edit"
	FullDevelopment   = "full-development"
	DebuggerFull      = "debugger-full"
	OrchestratorFull  = "orchestrator-full"
	PlanMode          = "plan-mode"
	UserTesting       = "user-testing"
	Release           = "release"
	FullDelegation    = "full-delegation"
)

// defaultTable is the built-in procedure table (spec.md §4.5's table).
// Subroutines built with summarySub (the final, summary-producing step,
// including simple-question's question-answer) are the only ones with
// single_turn = disallow_all_tools = suppress_thought_posting = true.
func defaultTable() map[string]Procedure {
	verifications := sub("verifications")
	verifications.UsesValidationLoop = true

	return map[string]Procedure{
		SimpleQuestion: {
			Name: SimpleQuestion,
			Subroutines: []Subroutine{
				sub("question-investigation"),
				summarySub("question-answer"),
			},
		},
		DocumentationEdit: {
			Name: DocumentationEdit,
			Subroutines: []Subroutine{
				sub("primary"),
				sub("git-commit"),
				sub("gh-pr"),
				summarySub("concise-summary"),
			},
		},
		FullDevelopment: {
			Name: FullDevelopment,
			Subroutines: []Subroutine{
				sub("coding-activity"),
				verifications,
				sub("changelog-update"),
				sub("git-commit"),
				sub("gh-pr"),
				summarySub("concise-summary"),
			},
		},
		DebuggerFull: {
			Name: DebuggerFull,
			Subroutines: []Subroutine{
				sub("debugger-reproduction"),
				sub("debugger-fix"),
				verifications,
				sub("changelog-update"),
				sub("git-commit"),
				sub("gh-pr"),
				summarySub("concise-summary"),
			},
		},
		OrchestratorFull: {
			Name: OrchestratorFull,
			Subroutines: []Subroutine{
				sub("primary"),
				summarySub("concise-summary"),
			},
		},
		PlanMode: {
			Name: PlanMode,
			Subroutines: []Subroutine{
				sub("preparation"),
				summarySub("plan-summary"),
			},
		},
		UserTesting: {
			Name: UserTesting,
			Subroutines: []Subroutine{
				sub("user-testing"),
				summarySub("user-testing-summary"),
			},
		},
		Release: {
			Name: Release,
			Subroutines: []Subroutine{
				sub("release-execution"),
				summarySub("release-summary"),
			},
		},
		FullDelegation: {
			Name:        FullDelegation,
			Subroutines: []Subroutine{sub("full-delegation")},
		},
	}
}

// classificationMap maps a classifier label to a procedure name.
var classificationMap = map[string]string{
	"question":      SimpleQuestion,
	"documentation":  DocumentationEdit,
	"transient":      FullDelegation,
	"planning":       PlanMode,
	"code":           FullDevelopment,
	"debugger":       DebuggerFull,
	"orchestrator":   OrchestratorFull,
	"user-testing":   UserTesting,
	"release":        Release,
}

// ProcedureForLabel resolves a classifier label to a procedure name,
// reporting false for a label outside the closed set (spec.md §8:
// "classifier returns a label not in the known set → classification
// error → full-development").
func ProcedureForLabel(label string) (string, bool) {
	name, ok := classificationMap[label]
	return name, ok
}
