package procedure

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overrideFile is the on-disk shape of an optional procedure-table
// override, letting an operator add or reshape procedures without a
// rebuild. Absent by default; applied only when a caller invokes
// LoadOverrides, which no configuration option does.
type overrideFile struct {
	Procedures []overrideProcedure `yaml:"procedures"`
}

type overrideProcedure struct {
	Name        string              `yaml:"name"`
	Subroutines []overrideSubroutine `yaml:"subroutines"`
}

type overrideSubroutine struct {
	Name                   string   `yaml:"name"`
	PromptRef              string   `yaml:"prompt_ref"`
	SingleTurn             bool     `yaml:"single_turn"`
	SuppressThoughtPosting bool     `yaml:"suppress_thought_posting"`
	DisallowAllTools       bool     `yaml:"disallow_all_tools"`
	AllowedTools           []string `yaml:"allowed_tools"`
	DisallowedTools        []string `yaml:"disallowed_tools"`
	RequiresApproval       bool     `yaml:"requires_approval"`
	UsesValidationLoop     bool     `yaml:"uses_validation_loop"`
}

// LoadOverrides reads a YAML procedure-table override file from path and
// applies every procedure it defines onto e, replacing any built-in
// procedure of the same name. A procedure name outside the closed set in
// spec.md §4.5's table is rejected rather than silently admitted, since
// new procedure names have no classifier label routing to them.
func (e *Engine) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading procedure overrides %s: %w", path, err)
	}
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing procedure overrides %s: %w", path, err)
	}
	for _, op := range f.Procedures {
		if _, ok := e.table[op.Name]; !ok {
			return fmt.Errorf("procedure override %q is not one of the closed set of procedure names", op.Name)
		}
		subs := make([]Subroutine, 0, len(op.Subroutines))
		for _, s := range op.Subroutines {
			subs = append(subs, Subroutine{
				Name:                   s.Name,
				PromptRef:              s.PromptRef,
				SingleTurn:             s.SingleTurn,
				SuppressThoughtPosting: s.SuppressThoughtPosting,
				DisallowAllTools:       s.DisallowAllTools,
				AllowedTools:           s.AllowedTools,
				DisallowedTools:        s.DisallowedTools,
				RequiresApproval:       s.RequiresApproval,
				UsesValidationLoop:     s.UsesValidationLoop,
			})
		}
		e.Override(Procedure{Name: op.Name, Subroutines: subs})
	}
	return nil
}
