package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sylas-dev/sylas/internal/procedure"
	"github.com/sylas-dev/sylas/internal/runner"
)

// classificationPrompt wraps requestText with the instruction to return
// exactly one label from the closed set (spec.md §4.5). Prompt template
// wording itself is out of scope; this is the minimal scaffold needed to
// drive a real classifier-capable runner.
func classificationPrompt(requestText string) string {
	return "Classify the following request with exactly one label from " +
		"{question, documentation, transient, planning, code, debugger, " +
		"orchestrator, user-testing, release}. Respond with only the label.\n\n" +
		requestText
}

// NewClassifier builds a procedure.ClassifyFunc that spawns a short-lived,
// single-turn, tool-less runner of classifierType to produce exactly one
// label, per spec.md §4.5 ("a lightweight classifier runner ... at most
// one turn, ~10s budget"). The classifier's own runner session is never
// persisted onto any Session — it's scaffolding, not a procedure step.
func NewClassifier(factory *runner.Factory, classifierType runner.Type, workingDir string) procedure.ClassifyFunc {
	return func(ctx context.Context, requestText string) (string, error) {
		sup, err := factory.Build(classifierType, "classifier-"+uuid.NewString())
		if err != nil {
			return "", fmt.Errorf("building classifier runner: %w", err)
		}
		defer sup.Stop(context.Background())

		events, err := sup.Start(ctx, runner.StartOptions{
			Prompt:           classificationPrompt(requestText),
			WorkingDir:       workingDir,
			DisallowAllTools: true,
		})
		if err != nil {
			return "", fmt.Errorf("starting classifier runner: %w", err)
		}

		var label string
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return strings.TrimSpace(label), nil
				}
				switch ev.Kind {
				case runner.EventComplete:
					if ev.IsError {
						return "", fmt.Errorf("classifier runner reported an error: %s", ev.Text)
					}
					label = ev.Text
				case runner.EventError:
					return "", fmt.Errorf("classifier runner failed: %s", ev.Text)
				case runner.EventAssistant:
					label = ev.Text
				}
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
}
