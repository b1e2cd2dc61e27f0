package harness

import (
	"context"
	"testing"

	"github.com/qakit/qakit/internal/snapshot"
)

// RunWithGolden executes the scenario at path and compares the run's
// snapshot against the golden file named after the scenario.
// Pass -update to the test binary to regenerate golden files.
func RunWithGolden(t *testing.T, path string, opts ...snapshot.Option) *Result {
	t.Helper()

	scenario, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("harness: load scenario %s: %v", path, err)
	}

	result, err := Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("harness: run scenario %s: %v", scenario.Name, err)
	}

	snapshot.Assert(t, scenario.Name, Snapshot(scenario, result), opts...)
	return result
}

// Snapshot builds the golden-comparable view of a run.
func Snapshot(scenario *Scenario, result *Result) map[string]any {
	return map[string]any{
		"scenario":  scenario.Name,
		"run_token": result.Token,
		"pass":      result.Pass,
		"trace":     result.Trace,
		"errors":    result.Errors,
	}
}
