package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulepack/internal/ir"
)

func validDescriptor() *Descriptor {
	return &Descriptor{
		Package: "org.acme.trading",
		Dialect: DefaultDialect,
		Globals: []GlobalSpec{{Identifier: "out", Class: "java.util.List"}},
		Declares: []DeclareSpec{
			{Name: "Tick", Role: "event", Match: "exact", Class: "org.acme.Tick"},
			{Name: "Any", Role: "fact", Match: "pattern", Pattern: "org.acme.**"},
		},
		Templates: []TemplateSpec{{Name: "Order", Fields: []ir.FieldTemplate{{Name: "id", Type: "string"}}}},
		Functions: []FunctionSpec{{Name: "max", Dialect: DefaultDialect, Params: []string{"a", "b"}, Body: "a > b ? a : b"}},
		Rules:     []RuleSpec{{Name: "price-alert", Dialect: DefaultDialect, When: "Tick()", Then: "alert()"}},
		RuleFlows: []RuleFlowSpec{{
			ID:          "p1",
			Nodes:       []ir.Node{{ID: "start", Kind: "start"}, {ID: "end", Kind: "end"}},
			Connections: []ir.Connection{{From: "start", To: "end"}},
		}},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_Valid(t *testing.T) {
	assert.Empty(t, Validate(validDescriptor(), []string{DefaultDialect}))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Descriptor)
		code   string
	}{
		{"empty package name", func(d *Descriptor) { d.Package = "" }, ErrInvalidPackageName},
		{"bad package name", func(d *Descriptor) { d.Package = "org.acme-trading" }, ErrInvalidPackageName},
		{"empty consequence", func(d *Descriptor) { d.Rules[0].Then = "  " }, ErrRuleNoConsequence},
		{"unknown rule dialect", func(d *Descriptor) { d.Rules[0].Dialect = "mvel" }, ErrUnknownDialect},
		{"unknown function dialect", func(d *Descriptor) { d.Functions[0].Dialect = "mvel" }, ErrUnknownDialect},
		{"invalid field type", func(d *Descriptor) { d.Templates[0].Fields[0].Type = "uuid" }, ErrInvalidFieldType},
		{"float field type", func(d *Descriptor) { d.Templates[0].Fields[0].Type = "float64" }, ErrFloatTypeForbidden},
		{"duplicate field", func(d *Descriptor) {
			d.Templates[0].Fields = append(d.Templates[0].Fields, ir.FieldTemplate{Name: "id", Type: "int"})
		}, ErrDuplicateName},
		{"invalid role", func(d *Descriptor) { d.Declares[0].Role = "signal" }, ErrInvalidRole},
		{"invalid match", func(d *Descriptor) { d.Declares[0].Match = "fuzzy" }, ErrInvalidMatch},
		{"exact without class", func(d *Descriptor) { d.Declares[0].Class = "" }, ErrInvalidMatch},
		{"pattern without pattern", func(d *Descriptor) { d.Declares[1].Pattern = "" }, ErrInvalidMatch},
		{"global without class", func(d *Descriptor) { d.Globals[0].Class = "" }, ErrInvalidGlobal},
		{"global bad identifier", func(d *Descriptor) { d.Globals[0].Identifier = "my-out" }, ErrInvalidGlobal},
		{"function without body", func(d *Descriptor) { d.Functions[0].Body = "" }, ErrFunctionNoBody},
		{"function bad param", func(d *Descriptor) { d.Functions[0].Params = []string{"1a"} }, ErrInvalidParameter},
		{"node kind", func(d *Descriptor) { d.RuleFlows[0].Nodes[0].Kind = "teleport" }, ErrInvalidFlowNode},
		{"duplicate node", func(d *Descriptor) {
			d.RuleFlows[0].Nodes = append(d.RuleFlows[0].Nodes, ir.Node{ID: "end", Kind: "end"})
		}, ErrInvalidFlowNode},
		{"unknown node", func(d *Descriptor) {
			d.RuleFlows[0].Connections = append(d.RuleFlows[0].Connections, ir.Connection{From: "end", To: "nowhere"})
		}, ErrUnknownFlowNode},
		{"cycle", func(d *Descriptor) {
			d.RuleFlows[0].Connections = append(d.RuleFlows[0].Connections, ir.Connection{From: "end", To: "start"})
		}, ErrRuleFlowCycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDescriptor()
			tt.mutate(d)

			errs := Validate(d, []string{DefaultDialect})
			require.NotEmpty(t, errs)
			assert.Contains(t, codes(errs), tt.code)
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	d := validDescriptor()
	d.Package = ""
	d.Rules[0].Then = ""
	d.Declares[0].Role = "signal"

	errs := Validate(d, []string{DefaultDialect})

	assert.Equal(t, []string{ErrInvalidPackageName, ErrInvalidRole, ErrRuleNoConsequence}, codes(errs))
}

func TestValidate_CycleMessage(t *testing.T) {
	d := validDescriptor()
	d.RuleFlows[0].Connections = append(d.RuleFlows[0].Connections, ir.Connection{From: "end", To: "start"})

	errs := Validate(d, []string{DefaultDialect})

	require.Len(t, errs, 1)
	assert.Equal(t, "cycle in ruleflow p1: end → start → end", errs[0].Message)
	assert.Equal(t, "[E112] ruleflow.p1.connections: cycle in ruleflow p1: end → start → end", errs[0].Error())
}

func TestValidationCodesAreDistinct(t *testing.T) {
	codes := []string{
		ErrInvalidPackageName, ErrRuleNoConsequence, ErrUnknownDialect,
		ErrInvalidFieldType, ErrDuplicateName, ErrFloatTypeForbidden,
		ErrInvalidRole, ErrInvalidMatch, ErrInvalidGlobal,
		ErrInvalidFlowNode, ErrUnknownFlowNode, ErrRuleFlowCycle,
		ErrFunctionNoBody, ErrInvalidParameter,
	}
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
		assert.Regexp(t, `^E1(0[1-9]|1[0-4])$`, code)
	}
	assert.Len(t, seen, 14)
}
