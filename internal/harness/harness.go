package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/rulepack/internal/codec"
	"github.com/roach88/rulepack/internal/compiler"
	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/registry"
	"github.com/roach88/rulepack/internal/rulepkg"
	"github.com/roach88/rulepack/internal/store"
	"github.com/roach88/rulepack/internal/testutil"
)

// Harness executes one scenario against its own store and registry.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	registry *registry.Registry
	cue      *cue.Context
	seq      int64
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the logger for operation records. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns its result.
//
// Each scenario runs in a fresh in-memory database. Revisions are
// numbered rev-000001, rev-000002, ... in save order.
//
// Execution flow:
// 1. Open the store and registry
// 2. Execute flow steps, checking expect clauses
// 3. Evaluate assertions against the trace and the store
//
// The returned error reports a scenario that could not run, such as an
// unreadable source; failed expectations are in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:",
		store.WithFraming(scenario.FramingMode()),
		store.WithRevisionGenerator(testutil.NewSequenceRevisions("")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		store:    st,
		cue:      cuecontext.New(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.registry = registry.New(st, registry.WithLogger(h.logger))

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Store:    st,
		Registry: h.registry,
		Ctx:      ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// next returns the next logical sequence number.
func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// executeFlow runs every flow step and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		args, err := convertArgsToObject(step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d: failed to convert args: %w", i, err)
		}
		result.AddInvocationTrace(step.Invoke, args, h.next())

		comp, err := h.execute(ctx, step)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}
		result.AddCompletionTrace(comp, h.next())

		if step.Expect != nil {
			if msg := checkExpect(i, step, comp); msg != "" {
				result.AddError(msg)
			}
		}

		h.logger.Info("flow step completed",
			"step", i,
			"op", step.Invoke,
			"case", comp.Case,
		)
	}
	return nil
}

// execute runs one operation. Outcomes an operation can legitimately
// have, such as a missing package, are reported as completion cases.
func (h *Harness) execute(ctx context.Context, step FlowStep) (Completion, error) {
	name, _ := step.Args["package"].(string)

	switch step.Invoke {
	case OpDeploy:
		pkg, err := h.compile(h.scenario.Sources[step.Args["source"].(string)])
		if err != nil {
			return Completion{}, err
		}
		return h.deploy(ctx, pkg)

	case OpRedeploy:
		pkg, comp, err := h.lookup(ctx, name)
		if pkg == nil {
			return comp, err
		}
		return h.deploy(ctx, pkg)

	case OpGet:
		pkg, comp, err := h.lookup(ctx, name)
		if pkg == nil {
			return comp, err
		}
		return Completion{Case: CaseFound, Result: describe(pkg)}, nil

	case OpRemoveRule:
		pkg, comp, err := h.lookup(ctx, name)
		if pkg == nil {
			return comp, err
		}
		rule, ok := pkg.Rule(step.Args["rule"].(string))
		if !ok {
			return Completion{Case: CaseNoSuchRule, Result: packageResult(name)}, nil
		}
		pkg.RemoveRule(rule)
		return Completion{Case: CaseRemoved, Result: describe(pkg)}, nil

	case OpRemoveFunction:
		pkg, comp, err := h.lookup(ctx, name)
		if pkg == nil {
			return comp, err
		}
		fn := step.Args["function"].(string)
		if _, ok := pkg.Function(fn); !ok {
			return Completion{Case: CaseNoSuchFunction, Result: packageResult(name)}, nil
		}
		pkg.RemoveFunction(fn)
		return Completion{Case: CaseRemoved, Result: describe(pkg)}, nil

	case OpRemoveRuleFlow:
		pkg, comp, err := h.lookup(ctx, name)
		if pkg == nil {
			return comp, err
		}
		if err := pkg.RemoveRuleFlow(step.Args["id"].(string)); err != nil {
			if rulepkg.IsUnknownRuleFlow(err) {
				return Completion{Case: CaseUnknownRuleFlow, Result: packageResult(name)}, nil
			}
			return Completion{}, err
		}
		return Completion{Case: CaseRemoved, Result: describe(pkg)}, nil

	case OpRoundTrip:
		pkg, comp, err := h.lookup(ctx, name)
		if pkg == nil {
			return comp, err
		}
		return roundTrip(pkg, step.Args)

	case OpUndeploy:
		if err := h.registry.Undeploy(ctx, name); err != nil {
			if errors.Is(err, store.ErrPackageNotFound) {
				return Completion{Case: CaseNotFound, Result: packageResult(name)}, nil
			}
			return Completion{}, err
		}
		return Completion{Case: CaseUndeployed, Result: packageResult(name)}, nil

	case OpFlush:
		h.registry.Flush()
		return Completion{Case: CaseFlushed, Result: ir.Object{}}, nil

	default:
		return Completion{}, fmt.Errorf("unknown operation %q", step.Invoke)
	}
}

// compile builds a package from a single CUE file.
func (h *Harness) compile(path string) (*rulepkg.Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	v := h.cue.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	res, err := compiler.Compile(v, compiler.Options{Logger: h.logger})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", path, err)
	}
	return res.Package, nil
}

func (h *Harness) deploy(ctx context.Context, pkg *rulepkg.Package) (Completion, error) {
	rec, err := h.registry.Deploy(ctx, pkg)
	if err != nil {
		if rulepkg.IsInvalidPackage(err) {
			summary, _ := pkg.ErrorSummary()
			return Completion{Case: CaseRejected, Result: ir.NewObject(
				ir.P("package", ir.String(pkg.Name())),
				ir.P("summary", ir.String(summary)),
			)}, nil
		}
		return Completion{}, err
	}
	return Completion{Case: CaseDeployed, Result: ir.NewObject(
		ir.P("package", ir.String(rec.Name)),
		ir.P("revision", ir.String(rec.Revision)),
		ir.P("rules", ir.Int(rec.RuleCount)),
	)}, nil
}

// lookup returns the live package, or a NotFound completion when the
// name was never deployed.
func (h *Harness) lookup(ctx context.Context, name string) (*rulepkg.Package, Completion, error) {
	pkg, err := h.registry.Get(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrPackageNotFound) {
			return nil, Completion{Case: CaseNotFound, Result: packageResult(name)}, nil
		}
		return nil, Completion{}, err
	}
	return pkg, Completion{}, nil
}

func roundTrip(pkg *rulepkg.Package, args map[string]any) (Completion, error) {
	framing := codec.Framed
	if f, ok := args["framing"].(string); ok {
		framing, _ = codec.ParseFraming(f)
	}
	s := rulepkg.NewSerializer(rulepkg.WithFraming(framing), rulepkg.WithParentLoader(pkg.ParentLoader()))

	data, err := s.Marshal(pkg)
	if err != nil {
		return Completion{}, err
	}
	back, err := s.Unmarshal(data)
	if err != nil {
		return Completion{}, err
	}

	want, err := pkg.Digest()
	if err != nil {
		return Completion{}, err
	}
	got, err := back.Digest()
	if err != nil {
		return Completion{}, err
	}

	return Completion{Case: CaseRoundTripped, Result: ir.NewObject(
		ir.P("package", ir.String(pkg.Name())),
		ir.P("framing", ir.String(framing.String())),
		ir.P("equal", ir.Bool(want == got && pkg.Equal(back))),
	)}, nil
}

func packageResult(name string) ir.Object {
	return ir.NewObject(ir.P("package", ir.String(name)))
}

// describe summarizes a package: its rules in load order and its
// functions sorted by name.
func describe(pkg *rulepkg.Package) ir.Object {
	rules := ir.List{}
	for _, r := range pkg.Rules() {
		rules = append(rules, ir.String(r.Name))
	}
	fnNames := make([]string, 0, len(pkg.Functions()))
	for name := range pkg.Functions() {
		fnNames = append(fnNames, name)
	}
	slices.Sort(fnNames)
	functions := ir.List{}
	for _, name := range fnNames {
		functions = append(functions, ir.String(name))
	}

	return ir.NewObject(
		ir.P("package", ir.String(pkg.Name())),
		ir.P("valid", ir.Bool(pkg.IsValid())),
		ir.P("rules", rules),
		ir.P("functions", functions),
	)
}

// checkExpect compares a completion with the step's expect clause and
// returns a failure message, or "" when it matches.
func checkExpect(index int, step FlowStep, comp Completion) string {
	if comp.Case != step.Expect.Case {
		return fmt.Sprintf("flow[%d] %s: expected case %s, got %s", index, step.Invoke, step.Expect.Case, comp.Case)
	}
	want, err := convertArgsToObject(step.Expect.Result)
	if err != nil {
		return fmt.Sprintf("flow[%d] %s: expected result: %v", index, step.Invoke, err)
	}
	if !matchArgs(comp.Result, want) {
		return fmt.Sprintf("flow[%d] %s: expected result %v, got %v", index, step.Invoke, ir.Plain(want), ir.Plain(comp.Result))
	}
	return ""
}

// convertArgsToObject converts YAML-decoded arguments to an ir.Object.
func convertArgsToObject(args map[string]any) (ir.Object, error) {
	result := make(ir.Object, len(args))
	for key, val := range args {
		v, err := convertToValue(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = v
	}
	return result, nil
}

// convertToValue converts a YAML-decoded value to an ir.Value. Nulls and
// non-integral numbers have no canonical form and are rejected.
func convertToValue(val any) (ir.Value, error) {
	if val == nil {
		return nil, fmt.Errorf("null values are not allowed")
	}

	switch v := val.(type) {
	case string:
		return ir.String(v), nil
	case int:
		return ir.Int(int64(v)), nil
	case int64:
		return ir.Int(v), nil
	case float64:
		if v == float64(int64(v)) {
			return ir.Int(int64(v)), nil
		}
		return nil, fmt.Errorf("floats are not allowed: %v", v)
	case bool:
		return ir.Bool(v), nil
	case []any:
		list := make(ir.List, len(v))
		for i, elem := range v {
			e, err := convertToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = e
		}
		return list, nil
	case map[string]any:
		return convertArgsToObject(v)
	default:
		return nil, fmt.Errorf("unsupported type %T", val)
	}
}
