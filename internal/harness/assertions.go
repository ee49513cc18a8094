package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/registry"
	"github.com/roach88/rulepack/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case EventInvocation:
				fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, event.Op, ir.Plain(event.Args))
			case EventCompletion:
				fmt.Fprintf(&buf, "  [%d]   -> %s\n", i+1, event.Case)
			}
		}
	}

	return buf.String()
}

// AssertionContext gives final_state assertions access to the scenario's
// store and registry.
type AssertionContext struct {
	Store    *store.Store
	Registry *registry.Registry
	Ctx      context.Context
}

// EvaluateAssertions runs every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result.Trace, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertFinalState:
		if actx == nil || actx.Store == nil {
			return fmt.Errorf("final_state needs a store")
		}
		return assertFinalState(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains checks for an invocation of the operation whose
// args include the given ones. When Case is set, the invocation's
// completion must have that case.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	want, err := convertArgsToObject(a.Args)
	if err != nil {
		return err
	}

	for i, event := range trace {
		if event.Type != EventInvocation || event.Op != a.Action || !matchArgs(event.Args, want) {
			continue
		}
		if a.Case == "" {
			return nil
		}
		if i+1 < len(trace) && trace[i+1].Case == a.Case {
			return nil
		}
	}

	expected := fmt.Sprintf("%s with args %v", a.Action, a.Args)
	if a.Case != "" {
		expected += " completing with " + a.Case
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the operations appear in the given order.
// Other operations may appear between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next == len(a.Actions) {
			break
		}
		if event.Type == EventInvocation && event.Op == a.Actions[next] {
			next++
		}
	}
	if next == len(a.Actions) {
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("operations in order %v", a.Actions),
		Actual:   fmt.Sprintf("%s not found after %v", a.Actions[next], a.Actions[:next]),
		Trace:    trace,
	}
}

// assertTraceCount checks that the operation was invoked exactly Count
// times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventInvocation && event.Op == a.Action {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s invoked %d time(s)", a.Action, a.Count),
		Actual:   fmt.Sprintf("invoked %d time(s)", count),
		Trace:    trace,
	}
}

// assertFinalState compares the stored package with the expected fields.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	actual, err := packageState(actx, a.Package)
	if err != nil {
		return err
	}

	want, err := convertArgsToObject(a.Expect)
	if err != nil {
		return err
	}

	var mismatches []string
	for _, key := range want.SortedKeys() {
		got, ok := actual[key]
		if !ok {
			// Fields of an absent package are not comparable.
			mismatches = append(mismatches, fmt.Sprintf("%s: package not stored", key))
			continue
		}
		if !reflect.DeepEqual(got, want[key]) {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %v, got %v", key, ir.Plain(want[key]), ir.Plain(got)))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}

	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("package %s with %v", a.Package, a.Expect),
		Actual:   strings.Join(mismatches, "; "),
	}
}

// packageState reads the stored state of a package. An absent package
// yields only the present and cached fields.
func packageState(actx *AssertionContext, name string) (ir.Object, error) {
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	cached := false
	if actx.Registry != nil {
		cached = slices.Contains(actx.Registry.Cached(), name)
	}

	rec, err := actx.Store.PackageInfo(ctx, name)
	if errors.Is(err, store.ErrPackageNotFound) {
		return ir.NewObject(
			ir.P("present", ir.Bool(false)),
			ir.P("cached", ir.Bool(cached)),
		), nil
	}
	if err != nil {
		return nil, err
	}

	revs, err := actx.Store.Revisions(ctx, name)
	if err != nil {
		return nil, err
	}

	return ir.NewObject(
		ir.P("present", ir.Bool(true)),
		ir.P("cached", ir.Bool(cached)),
		ir.P("valid", ir.Bool(rec.Valid)),
		ir.P("rule_count", ir.Int(rec.RuleCount)),
		ir.P("revisions", ir.Int(len(revs))),
		ir.P("framing", ir.String(rec.Framing.String())),
		ir.P("error_summary", ir.String(rec.ErrorSummary)),
	), nil
}

// matchArgs reports whether actual contains every field of expected with
// an equal value.
func matchArgs(actual, expected ir.Object) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
