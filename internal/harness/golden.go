package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rulepack/internal/ir"
)

// TraceSnapshot captures the complete trace of a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonical converts the snapshot to an ir.Object so it can be written
// as canonical JSON.
func (s *TraceSnapshot) toCanonical() ir.Object {
	trace := make(ir.List, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.NewObject(
			ir.P("type", ir.String(event.Type)),
			ir.P("seq", ir.Int(event.Seq)),
		)
		if event.Op != "" {
			obj["op"] = ir.String(event.Op)
		}
		if len(event.Args) > 0 {
			obj["args"] = event.Args
		}
		if event.Case != "" {
			obj["case"] = ir.String(event.Case)
		}
		if len(event.Result) > 0 {
			obj["result"] = event.Result
		}
		trace[i] = obj
	}

	return ir.NewObject(
		ir.P("scenario_name", ir.String(s.ScenarioName)),
		ir.P("trace", trace),
	)
}

// MarshalSnapshot returns the canonical JSON form of a scenario trace.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return ir.MarshalCanonical(snapshot.toCanonical())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario could not run. A trace that differs
// from the golden file fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
