package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rulepack/internal/codec"
)

// Scenario is a package registry test case loaded from YAML.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description is a human-readable summary.
	Description string `yaml:"description"`

	// Framing is the store's binary mode: "framed" (default) or "wrapped".
	Framing string `yaml:"framing,omitempty"`

	// Sources maps an alias to a CUE package file.
	Sources map[string]string `yaml:"sources"`

	// Flow lists the operations to run, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions are evaluated after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one registry operation.
type FlowStep struct {
	// Invoke names the operation (see the Op constants).
	Invoke string `yaml:"invoke"`

	// Args are the operation's arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect, when present, is checked against the actual completion.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause describes the expected completion of a step.
type ExpectClause struct {
	Case string `yaml:"case"`

	// Result fields are a subset match.
	Result map[string]any `yaml:"result,omitempty"`
}

// Operations.
const (
	OpDeploy         = "deploy"
	OpRedeploy       = "redeploy"
	OpGet            = "get"
	OpRemoveRule     = "remove_rule"
	OpRemoveFunction = "remove_function"
	OpRemoveRuleFlow = "remove_ruleflow"
	OpRoundTrip      = "roundtrip"
	OpUndeploy       = "undeploy"
	OpFlush          = "flush"
)

// requiredArgs lists the arguments each operation needs.
var requiredArgs = map[string][]string{
	OpDeploy:         {"source"},
	OpRedeploy:       {"package"},
	OpGet:            {"package"},
	OpRemoveRule:     {"package", "rule"},
	OpRemoveFunction: {"package", "function"},
	OpRemoveRuleFlow: {"package", "id"},
	OpRoundTrip:      {"package"},
	OpUndeploy:       {"package"},
	OpFlush:          nil,
}

// Assertion validates the trace or the final store state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an operation appears with the given args, and
	//   completes with Case when set
	// - "trace_order": operations appear in order
	// - "trace_count": an operation appears exactly Count times
	// - "final_state": the stored package matches Expect
	Type string `yaml:"type"`

	// Action is the operation name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are matched as a subset (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Case is the expected completion case (trace_contains).
	Case string `yaml:"case,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected operation order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Package names the stored package (final_state).
	Package string `yaml:"package,omitempty"`

	// Expect holds expected package fields (final_state). Supported keys
	// are present, valid, rule_count, revisions, framing, error_summary
	// and cached.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Source paths are
// resolved relative to the file's directory. It fails if the file is
// malformed, contains unknown fields or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for alias, src := range scenario.Sources {
		if !filepath.IsAbs(src) {
			scenario.Sources[alias] = filepath.Join(base, src)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FramingMode returns the scenario's framing, defaulting to framed.
func (s *Scenario) FramingMode() codec.Framing {
	if s.Framing == "" {
		return codec.Framed
	}
	f, _ := codec.ParseFraming(s.Framing)
	return f
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Framing != "" {
		if _, err := codec.ParseFraming(s.Framing); err != nil {
			return err
		}
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for alias, src := range s.Sources {
		if _, err := os.Stat(src); os.IsNotExist(err) {
			return fmt.Errorf("source %s not found: %s", alias, src)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step, s.Sources); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step FlowStep, sources map[string]string) error {
	if step.Invoke == "" {
		return fmt.Errorf("flow[%d]: invoke is required", index)
	}
	required, ok := requiredArgs[step.Invoke]
	if !ok {
		return fmt.Errorf("flow[%d]: unknown operation %q", index, step.Invoke)
	}
	for _, name := range required {
		v, ok := step.Args[name].(string)
		if !ok || v == "" {
			return fmt.Errorf("flow[%d]: %s requires a %s argument", index, step.Invoke, name)
		}
	}
	if step.Invoke == OpDeploy {
		alias := step.Args["source"].(string)
		if _, ok := sources[alias]; !ok {
			return fmt.Errorf("flow[%d]: unknown source %q", index, alias)
		}
	}
	if step.Invoke == OpRoundTrip {
		if f, ok := step.Args["framing"].(string); ok {
			if _, err := codec.ParseFraming(f); err != nil {
				return fmt.Errorf("flow[%d]: %w", index, err)
			}
		}
	}
	if step.Expect != nil && step.Expect.Case == "" {
		return fmt.Errorf("flow[%d].expect: case is required", index)
	}
	return nil
}

// finalStateKeys are the fields a final_state assertion can check.
var finalStateKeys = []string{"present", "valid", "rule_count", "revisions", "framing", "error_summary", "cached"}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Package == "" {
			return fmt.Errorf("assertions[%d]: package is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for key := range a.Expect {
			if !slices.Contains(finalStateKeys, key) {
				return fmt.Errorf("assertions[%d]: unknown final_state field %q", index, key)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
