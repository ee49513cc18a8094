package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/registry"
	"github.com/roach88/rulepack/internal/store"
	"github.com/roach88/rulepack/internal/testutil"
)

// sampleTrace is deploy(trading) -> Deployed, remove_rule(cleanup) ->
// Removed, get(trading) -> Found.
func sampleTrace() []TraceEvent {
	pkg := ir.P("package", ir.String("org.acme.trading"))
	return []TraceEvent{
		{Type: EventInvocation, Op: OpDeploy, Args: ir.NewObject(ir.P("source", ir.String("trading"))), Seq: 1},
		{Type: EventCompletion, Case: CaseDeployed, Result: ir.NewObject(pkg), Seq: 2},
		{Type: EventInvocation, Op: OpRemoveRule, Args: ir.NewObject(pkg, ir.P("rule", ir.String("cleanup"))), Seq: 3},
		{Type: EventCompletion, Case: CaseRemoved, Result: ir.NewObject(pkg), Seq: 4},
		{Type: EventInvocation, Op: OpGet, Args: ir.NewObject(pkg), Seq: 5},
		{Type: EventCompletion, Case: CaseFound, Result: ir.NewObject(pkg), Seq: 6},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Action: OpRemoveRule}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: OpRemoveRule, Args: map[string]any{"rule": "cleanup"}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: OpDeploy, Case: CaseDeployed}))

	err := assertTraceContains(trace, Assertion{Action: OpRemoveRule, Args: map[string]any{"rule": "other"}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "not found in trace")
	assert.Contains(t, err.Error(), "[3] remove_rule")

	assert.Error(t, assertTraceContains(trace, Assertion{Action: OpDeploy, Case: CaseRejected}))
	assert.Error(t, assertTraceContains(trace, Assertion{Action: OpUndeploy}))
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{OpDeploy, OpGet}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{OpDeploy, OpRemoveRule, OpGet}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{OpGet, OpDeploy}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deploy not found after [get]")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: OpDeploy, Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: OpUndeploy, Count: 0}))

	err := assertTraceCount(trace, Assertion{Action: OpDeploy, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoked 1 time(s)")
}

func TestAssertFinalState(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:", store.WithRevisionGenerator(testutil.NewSequenceRevisions("")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	reg := registry.New(st)

	_, err = reg.Deploy(ctx, testutil.TradingPackage(t))
	require.NoError(t, err)
	actx := &AssertionContext{Store: st, Registry: reg, Ctx: ctx}

	err = assertFinalState(actx, Assertion{Package: "org.acme.trading", Expect: map[string]any{
		"present":       true,
		"cached":        true,
		"valid":         true,
		"rule_count":    2,
		"revisions":     1,
		"framing":       "framed",
		"error_summary": "",
	}})
	assert.NoError(t, err)

	err = assertFinalState(actx, Assertion{Package: "org.acme.trading", Expect: map[string]any{"rule_count": 5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule_count: want 5, got 2")

	reg.Flush()
	assert.NoError(t, assertFinalState(actx, Assertion{Package: "org.acme.trading", Expect: map[string]any{"cached": false}}))

	assert.NoError(t, assertFinalState(actx, Assertion{Package: "org.acme.none", Expect: map[string]any{"present": false}}))
	err = assertFinalState(actx, Assertion{Package: "org.acme.none", Expect: map[string]any{"valid": true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid: package not stored")
}

func TestEvaluateAssertions_CollectsFailures(t *testing.T) {
	result := &Result{Trace: sampleTrace()}
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Action: OpDeploy, Count: 1},
		{Type: AssertTraceCount, Action: OpDeploy, Count: 3},
		{Type: AssertFinalState, Package: "org.acme.trading", Expect: map[string]any{"valid": true}},
	}, nil)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertions[1]")
	assert.Contains(t, errs[1], "assertions[2]: final_state needs a store")
}

func TestMatchArgs(t *testing.T) {
	actual := ir.NewObject(
		ir.P("package", ir.String("p")),
		ir.P("rules", ir.List{ir.String("a")}),
	)

	assert.True(t, matchArgs(actual, ir.Object{}))
	assert.True(t, matchArgs(actual, ir.NewObject(ir.P("rules", ir.List{ir.String("a")}))))
	assert.False(t, matchArgs(actual, ir.NewObject(ir.P("rules", ir.List{}))))
	assert.False(t, matchArgs(actual, ir.NewObject(ir.P("missing", ir.Bool(true)))))
}
