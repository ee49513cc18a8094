package rulepkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulepack/internal/dialect"
	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/loader"
)

const sampleName = "org.acme.trading"

// samplePackage builds three rules, two functions and one of everything
// else, with a generated artifact behind every rule and function.
func samplePackage(t testing.TB) *Package {
	t.Helper()

	p := MustNew(sampleName, loader.NewStatic(&ir.Class{Name: "java.util.List"}))
	d := p.DialectDatas()
	for _, name := range []string{"a", "b", "c"} {
		d.Put("cue", dialect.Artifact{
			Class:  sampleName + ".Rule_" + name,
			Kind:   dialect.KindRule,
			Owner:  name,
			Supers: []string{"rulepack.Consequence"},
			Code:   []byte("rule " + name),
		})
	}
	for _, name := range []string{"max", "min"} {
		d.Put("cue", dialect.Artifact{
			Class: sampleName + ".Function_" + name,
			Kind:  dialect.KindFunction,
			Owner: name,
			Code:  []byte("function " + name),
		})
	}

	p.AddRule(&ir.Rule{
		Name:        "a",
		Dialect:     "cue",
		Salience:    10,
		Conditions:  "Tick(price > 10)",
		Consequence: sampleName + ".Rule_a",
		Attributes:  ir.NewObject(ir.P("no-loop", ir.Bool(true))),
	})
	p.AddRule(&ir.Rule{
		Name:        "b",
		Dialect:     "cue",
		AgendaGroup: "alerts",
		Conditions:  "Order(qty > 100)",
		Consequence: sampleName + ".Rule_b",
	})
	p.AddRule(&ir.Rule{
		Name:        "c",
		Dialect:     "cue",
		Salience:    -5,
		NoLoop:      true,
		Conditions:  "Tick()",
		Consequence: sampleName + ".Rule_c",
	})

	p.AddFunction(&ir.Function{
		Name: "max", Dialect: "cue", Params: []string{"a", "b"}, ReturnType: "int",
		Body: "a > b ? a : b", ClassName: sampleName + ".Function_max",
	})
	p.AddFunction(&ir.Function{
		Name: "min", Dialect: "cue", Params: []string{"a", "b"}, ReturnType: "int",
		Body: "a < b ? a : b", ClassName: sampleName + ".Function_min",
	})

	p.AddTypeDeclaration(&ir.TypeDeclaration{
		TypeName: "Tick",
		Role:     ir.RoleEvent,
		Match:    ir.MatchPattern,
		Pattern:  "**.Tick",
	})
	p.AddImport(&ir.ImportDeclaration{Target: "org.acme.Tick"})
	p.AddStaticImport("org.acme.Util.max")
	p.AddGlobal("out", "java.util.List")
	p.AddFactTemplate(&ir.FactTemplate{
		Name:    "Order",
		Package: sampleName,
		Fields:  []ir.FieldTemplate{{Name: "id", Type: "string"}, {Name: "qty", Type: "int"}},
	})
	p.AddRuleFlow(&ir.Process{
		ID:      "p1",
		Name:    "main",
		Package: sampleName,
		Nodes: []ir.Node{
			{ID: "start", Kind: "start"},
			{ID: "alerts", Name: "Alerts", Kind: "ruleset"},
			{ID: "end", Kind: "end"},
		},
		Connections: []ir.Connection{{From: "start", To: "alerts"}, {From: "alerts", To: "end"}},
	})
	return p
}

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

// assertSamePackage compares every public getter of two packages.
func assertSamePackage(t testingT, want, got *Package) {
	t.Helper()

	require.NotNil(t, got)
	assert.Equal(t, want.Name(), got.Name())
	assert.Equal(t, want.IsValid(), got.IsValid())
	wantSummary, wantOK := want.ErrorSummary()
	gotSummary, gotOK := got.ErrorSummary()
	assert.Equal(t, wantOK, gotOK)
	assert.Equal(t, wantSummary, gotSummary)

	assert.Equal(t, want.Rules(), got.Rules())
	assert.Equal(t, want.Imports(), got.Imports())
	assert.Equal(t, want.StaticImports(), got.StaticImports())
	assert.Equal(t, want.Functions(), got.Functions())
	assert.Equal(t, want.Globals(), got.Globals())
	assert.Equal(t, want.FactTemplates(), got.FactTemplates())
	assert.Equal(t, want.TypeDeclarations(), got.TypeDeclarations())
	assert.Equal(t, want.RuleFlows(), got.RuleFlows())
	assert.Equal(t, want.DialectDatas().Artifacts(), got.DialectDatas().Artifacts())
}
