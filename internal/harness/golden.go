package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario, evaluates its assertions, and
// compares the rewritten graph's canonical dump against a golden file at
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files serve as the source of truth for the rewritten graph
// shape; the scenario's own assertions cover the registry and structural
// properties the dump does not show.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if !result.Passed() {
		return result, fmt.Errorf("scenario %s: %d assertion failure(s): %s",
			scenario.Name, len(result.Failures), result.Failures[0])
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, []byte(result.Module.Dump()))

	return result, nil
}
