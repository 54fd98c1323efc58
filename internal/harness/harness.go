package harness

import (
	"fmt"

	"github.com/quantfx/quantfx/internal/cli"
	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/prepare"
	"github.com/quantfx/quantfx/internal/qconfig"
)

// Result holds the outcome of one scenario run.
type Result struct {
	// Module is the rewritten module.
	Module *graph.Module

	// Trace summarizes what the pass did.
	Trace *prepare.Trace

	// Failures lists assertion failures. Empty means the scenario passed.
	Failures []string
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Run executes a scenario: load the graph, compile and validate the
// config, annotate, run the pass, then evaluate the assertions.
//
// Setup errors (unreadable files, invalid config, pass invariant
// violations) return an error; assertion failures are collected in the
// result instead, so one run reports them all.
func Run(scenario *Scenario) (*Result, error) {
	m, scope, err := cli.LoadGraph(scenario.Graph)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	loaded, err := qconfig.LoadDir(scenario.QConfig)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	if errs := qconfig.Validate(loaded.Config); len(errs) > 0 {
		return nil, fmt.Errorf("scenario %s: invalid config: %s", scenario.Name, errs[0].Error())
	}

	qconfig.Annotate(m, loaded.Config)

	m, trace, err := prepare.PrepareTraced(m, scope, scenario.QAT)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := &Result{Module: m, Trace: trace}
	for i, assertion := range scenario.Assertions {
		if failure := evaluate(m, trace, &assertion); failure != "" {
			result.Failures = append(result.Failures, fmt.Sprintf("assertions[%d] %s: %s", i, assertion.Type, failure))
		}
	}
	return result, nil
}
