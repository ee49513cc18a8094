package testutil

import (
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulepack/internal/compiler"
	"github.com/roach88/rulepack/internal/rulepkg"
)

// TradingSource is a complete package source exercising every kind of
// package content.
const TradingSource = `
name: "org.acme.trading"
imports: ["org.acme.Tick"]
static_imports: ["org.acme.Util.max"]
globals: out: "java.util.List"

declare: Tick: {role: "event", match: "exact", class: "org.acme.Tick"}

template: Order: fields: [
	{name: "id", type: "string"},
	{name: "qty", type: "int"},
]

function: max: {
	params: ["a", "b"]
	returns: "int"
	body: "a > b ? a : b"
}

rule: {
	"price-alert": {
		salience: 10
		agenda_group: "alerts"
		when: "Tick(price > 100)"
		then: "out.add($tick)"
	}
	cleanup: {
		salience: -10
		then: "retract($tick)"
	}
}

ruleflow: p1: {
	name: "main"
	nodes: [
		{id: "start", kind: "start"},
		{id: "alerts", kind: "ruleset"},
		{id: "end", kind: "end"},
	]
	connections: [
		{from: "start", to: "alerts"},
		{from: "alerts", to: "end"},
	]
}
`

// CompilePackage compiles CUE source into a package, failing the test if
// the source does not decode. Validation errors leave the package invalid.
func CompilePackage(t testing.TB, src string) *rulepkg.Package {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())

	res, err := compiler.Compile(v, compiler.Options{})
	require.NoError(t, err)
	return res.Package
}

// TradingPackage returns a fresh, valid package compiled from TradingSource.
func TradingPackage(t testing.TB) *rulepkg.Package {
	t.Helper()
	pkg := CompilePackage(t, TradingSource)
	require.NoError(t, pkg.CheckValidity())
	return pkg
}

// MinimalPackage returns a valid package with a single rule.
func MinimalPackage(t testing.TB, name string) *rulepkg.Package {
	t.Helper()
	pkg := CompilePackage(t, `name: "`+name+`"
rule: r: then: "x()"
`)
	require.NoError(t, pkg.CheckValidity())
	return pkg
}

// InvalidPackage returns a package whose rule has no consequence, so
// CheckValidity fails with a summary naming the rule.
func InvalidPackage(t testing.TB, name string) *rulepkg.Package {
	t.Helper()
	pkg := CompilePackage(t, `name: "`+name+`"
rule: broken: when: "Tick()"
`)
	require.False(t, pkg.IsValid())
	return pkg
}
