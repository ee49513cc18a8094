package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulepack/internal/ir"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func runTestdata(t *testing.T, name string) *Result {
	t.Helper()
	result, err := Run(context.Background(), loadTestdata(t, name))
	require.NoError(t, err)
	return result
}

func completions(result *Result) []string {
	var cases []string
	for _, event := range result.Trace {
		if event.Type == EventCompletion {
			cases = append(cases, event.Case)
		}
	}
	return cases
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"deploy_minimal", "redeploy_trading", "reject_invalid", "wrapped_store"} {
		t.Run(name, func(t *testing.T) {
			result := runTestdata(t, name)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_TraceAlternatesInvocationAndCompletion(t *testing.T) {
	result := runTestdata(t, "redeploy_trading")

	require.Len(t, result.Trace, 12)
	for i, event := range result.Trace {
		assert.Equal(t, int64(i+1), event.Seq)
		if i%2 == 0 {
			assert.Equal(t, EventInvocation, event.Type)
		} else {
			assert.Equal(t, EventCompletion, event.Type)
		}
	}
	assert.Equal(t, []string{
		CaseDeployed, CaseRemoved, CaseNoSuchRule, CaseUnknownRuleFlow, CaseDeployed, CaseRoundTripped,
	}, completions(result))
}

func TestRun_RejectedDeployCarriesSummary(t *testing.T) {
	result := runTestdata(t, "reject_invalid")

	require.GreaterOrEqual(t, len(result.Trace), 2)
	deployed := result.Trace[1]
	assert.Equal(t, CaseRejected, deployed.Case)
	assert.Equal(t, ir.String(`rule "broken" has an empty consequence`), deployed.Result["summary"])
}

func TestRun_Deterministic(t *testing.T) {
	first := runTestdata(t, "wrapped_store")
	second := runTestdata(t, "wrapped_store")

	a, err := MarshalSnapshot("wrapped_store", first)
	require.NoError(t, err)
	b, err := MarshalSnapshot("wrapped_store", second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario := loadTestdata(t, "deploy_minimal")
	scenario.Flow[0].Expect = &ExpectClause{Case: CaseRejected}
	scenario.Flow[1].Expect = &ExpectClause{Case: CaseFound, Result: map[string]any{"rules": []any{"other"}}}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "flow[0] deploy: expected case Rejected, got Deployed")
	assert.Contains(t, result.Errors[1], "flow[1] get: expected result")
	assert.Len(t, result.Trace, 6, "a mismatch does not stop the flow")
}

func TestRun_OperationsOnMissingPackage(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing",
		Description: "every lookup misses",
		Flow: []FlowStep{
			{Invoke: OpGet, Args: map[string]any{"package": "org.acme.none"}},
			{Invoke: OpRemoveRule, Args: map[string]any{"package": "org.acme.none", "rule": "r"}},
			{Invoke: OpRoundTrip, Args: map[string]any{"package": "org.acme.none"}},
			{Invoke: OpRedeploy, Args: map[string]any{"package": "org.acme.none"}},
			{Invoke: OpUndeploy, Args: map[string]any{"package": "org.acme.none"}},
		},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: OpGet, Count: 1}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{CaseNotFound, CaseNotFound, CaseNotFound, CaseNotFound, CaseNotFound}, completions(result))
}

func TestRun_UnreadableSourceIsAnError(t *testing.T) {
	scenario := &Scenario{
		Name:        "gone",
		Description: "source vanished",
		Sources:     map[string]string{"gone": filepath.Join(t.TempDir(), "gone.cue")},
		Flow:        []FlowStep{{Invoke: OpDeploy, Args: map[string]any{"source": "gone"}}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Action: OpDeploy, Count: 1}},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow step 0 (deploy)")
}

func TestConvertToValue(t *testing.T) {
	v, err := convertToValue(map[string]any{
		"s": "x",
		"i": 3,
		"f": float64(4),
		"b": true,
		"l": []any{"a", 1},
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Object{
		"s": ir.String("x"),
		"i": ir.Int(3),
		"f": ir.Int(4),
		"b": ir.Bool(true),
		"l": ir.List{ir.String("a"), ir.Int(1)},
	}, v)

	_, err = convertToValue(1.5)
	assert.ErrorContains(t, err, "floats are not allowed")
	_, err = convertToValue(nil)
	assert.ErrorContains(t, err, "null values are not allowed")
	_, err = convertToValue(struct{}{})
	assert.ErrorContains(t, err, "unsupported type")
}
