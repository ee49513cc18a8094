package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulepack/internal/codec"
)

// writeScenario writes content to dir/test.yaml next to a minimal CUE
// source named minimal.cue.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	src := `name: "org.acme.minimal"
rule: r: then: "x()"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "minimal.cue"), []byte(src), 0644))
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
sources:
  minimal: minimal.cue
flow:
  - invoke: deploy
    args: {source: minimal}
    expect:
      case: Deployed
assertions:
  - type: trace_count
    action: deploy
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, validScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "minimal.cue"), scenario.Sources["minimal"],
		"sources resolve relative to the scenario file")
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, OpDeploy, scenario.Flow[0].Invoke)
	assert.Equal(t, "minimal", scenario.Flow[0].Args["source"])
	assert.Equal(t, CaseDeployed, scenario.Flow[0].Expect.Case)
	assert.Len(t, scenario.Assertions, 1)
	assert.Equal(t, codec.Framed, scenario.FramingMode())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, validScenario+"assertion: []\n")

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_WrappedFraming(t *testing.T) {
	path := writeScenario(t, validScenario+"framing: wrapped\n")

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, codec.Wrapped, scenario.FramingMode())
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name: "missing name",
			content: `
description: d
flow: [{invoke: flush}]
assertions: [{type: trace_count, action: flush, count: 1}]
`,
			errMsg: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
flow: [{invoke: flush}]
assertions: [{type: trace_count, action: flush, count: 1}]
`,
			errMsg: "description is required",
		},
		{
			name: "bad framing",
			content: `
name: n
description: d
framing: zipped
flow: [{invoke: flush}]
assertions: [{type: trace_count, action: flush, count: 1}]
`,
			errMsg: "invalid framing",
		},
		{
			name: "empty flow",
			content: `
name: n
description: d
flow: []
assertions: [{type: trace_count, action: flush, count: 1}]
`,
			errMsg: "flow list is required",
		},
		{
			name: "empty assertions",
			content: `
name: n
description: d
flow: [{invoke: flush}]
assertions: []
`,
			errMsg: "assertions list is required",
		},
		{
			name: "missing source file",
			content: `
name: n
description: d
sources: {gone: gone.cue}
flow: [{invoke: flush}]
assertions: [{type: trace_count, action: flush, count: 1}]
`,
			errMsg: "source gone not found",
		},
		{
			name: "unknown operation",
			content: `
name: n
description: d
flow: [{invoke: explode}]
assertions: [{type: trace_count, action: flush, count: 1}]
`,
			errMsg: `unknown operation "explode"`,
		},
		{
			name: "missing argument",
			content: `
name: n
description: d
flow: [{invoke: remove_rule, args: {package: org.acme.minimal}}]
assertions: [{type: trace_count, action: flush, count: 1}]
`,
			errMsg: "remove_rule requires a rule argument",
		},
		{
			name: "unknown source alias",
			content: `
name: n
description: d
sources: {minimal: minimal.cue}
flow: [{invoke: deploy, args: {source: other}}]
assertions: [{type: trace_count, action: flush, count: 1}]
`,
			errMsg: `unknown source "other"`,
		},
		{
			name: "roundtrip framing",
			content: `
name: n
description: d
flow: [{invoke: roundtrip, args: {package: p, framing: zipped}}]
assertions: [{type: trace_count, action: flush, count: 1}]
`,
			errMsg: "invalid framing",
		},
		{
			name: "expect without case",
			content: `
name: n
description: d
flow: [{invoke: flush, expect: {result: {}}}]
assertions: [{type: trace_count, action: flush, count: 1}]
`,
			errMsg: "case is required",
		},
		{
			name: "unknown assertion type",
			content: `
name: n
description: d
flow: [{invoke: flush}]
assertions: [{type: vibes}]
`,
			errMsg: `unknown assertion type "vibes"`,
		},
		{
			name: "trace_order without actions",
			content: `
name: n
description: d
flow: [{invoke: flush}]
assertions: [{type: trace_order}]
`,
			errMsg: "actions list is required",
		},
		{
			name: "final_state without package",
			content: `
name: n
description: d
flow: [{invoke: flush}]
assertions: [{type: final_state, expect: {valid: true}}]
`,
			errMsg: "package is required",
		},
		{
			name: "final_state unknown field",
			content: `
name: n
description: d
flow: [{invoke: flush}]
assertions: [{type: final_state, package: p, expect: {colour: blue}}]
`,
			errMsg: `unknown final_state field "colour"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, tt.content)

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}
