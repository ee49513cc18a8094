package rulepkg

import (
	"maps"
	"slices"

	"github.com/roach88/rulepack/internal/ir"
)

// Manifest describes the package content as a canonical value: names,
// load orders, roles and artifact digests. Rule bodies and artifact code
// are represented only through their digests.
//
// Two packages with the same content have equal manifests regardless of
// the order in which unordered collections were populated.
func (p *Package) Manifest() ir.Object {
	m := ir.NewObject(
		ir.P("format_version", ir.String(ir.FormatVersion)),
		ir.P("name", ir.String(p.name)),
		ir.P("valid", ir.Bool(p.valid)),
		ir.P("rules", p.manifestRules()),
		ir.P("functions", p.manifestFunctions()),
		ir.P("imports", stringList(slices.Sorted(maps.Keys(p.imports)))),
		ir.P("static_imports", stringList(p.StaticImports())),
		ir.P("globals", p.manifestGlobals()),
		ir.P("type_declarations", p.manifestTypeDeclarations()),
		ir.P("fact_templates", p.manifestFactTemplates()),
		ir.P("rule_flows", p.manifestRuleFlows()),
		ir.P("artifacts", p.manifestArtifacts()),
	)
	if summary, ok := p.ErrorSummary(); ok {
		m["error_summary"] = ir.String(summary)
	}
	return m
}

// Digest returns the domain-separated SHA-256 of the manifest.
func (p *Package) Digest() (string, error) {
	return ir.PackageDigest(p.Manifest())
}

func (p *Package) manifestRules() ir.List {
	out := ir.List{}
	for _, r := range p.Rules() {
		obj := ir.NewObject(
			ir.P("name", ir.String(r.Name)),
			ir.P("dialect", ir.String(r.Dialect)),
			ir.P("load_order", ir.Int(r.LoadOrder)),
			ir.P("salience", ir.Int(r.Salience)),
		)
		if r.AgendaGroup != "" {
			obj["agenda_group"] = ir.String(r.AgendaGroup)
		}
		if r.Consequence != "" {
			obj["consequence"] = ir.String(r.Consequence)
		}
		out = append(out, obj)
	}
	return out
}

func (p *Package) manifestFunctions() ir.List {
	out := ir.List{}
	for _, name := range slices.Sorted(maps.Keys(p.functions)) {
		fn := p.functions[name]
		obj := ir.NewObject(
			ir.P("name", ir.String(fn.Name)),
			ir.P("dialect", ir.String(fn.Dialect)),
			ir.P("params", stringList(fn.Params)),
		)
		if fn.ReturnType != "" {
			obj["returns"] = ir.String(fn.ReturnType)
		}
		if fn.ClassName != "" {
			obj["class"] = ir.String(fn.ClassName)
		}
		out = append(out, obj)
	}
	return out
}

func (p *Package) manifestGlobals() ir.Object {
	out := make(ir.Object, len(p.globals))
	for id, class := range p.globals {
		out[id] = ir.String(class)
	}
	return out
}

func (p *Package) manifestTypeDeclarations() ir.List {
	out := ir.List{}
	for _, name := range slices.Sorted(maps.Keys(p.typeDeclarations)) {
		d := p.typeDeclarations[name]
		target := d.ClassName
		if d.Match == ir.MatchPattern {
			target = d.Pattern
		}
		out = append(out, ir.NewObject(
			ir.P("name", ir.String(d.TypeName)),
			ir.P("role", ir.String(d.Role.String())),
			ir.P("match", ir.String(d.Match.String())),
			ir.P("target", ir.String(target)),
		))
	}
	return out
}

func (p *Package) manifestFactTemplates() ir.List {
	out := ir.List{}
	for _, name := range slices.Sorted(maps.Keys(p.factTemplates)) {
		t := p.factTemplates[name]
		fields := ir.List{}
		for _, f := range t.Fields {
			fields = append(fields, ir.NewObject(
				ir.P("name", ir.String(f.Name)),
				ir.P("type", ir.String(f.Type)),
			))
		}
		out = append(out, ir.NewObject(
			ir.P("name", ir.String(t.Name)),
			ir.P("fields", fields),
		))
	}
	return out
}

func (p *Package) manifestRuleFlows() ir.List {
	out := ir.List{}
	for _, id := range slices.Sorted(maps.Keys(p.ruleFlows)) {
		proc := p.ruleFlows[id]
		out = append(out, ir.NewObject(
			ir.P("id", ir.String(proc.ID)),
			ir.P("name", ir.String(proc.Name)),
			ir.P("nodes", ir.Int(len(proc.Nodes))),
			ir.P("connections", ir.Int(len(proc.Connections))),
		))
	}
	return out
}

func (p *Package) manifestArtifacts() ir.List {
	out := ir.List{}
	for _, dialectName := range p.dialects.Dialects() {
		data, _ := p.dialects.Data(dialectName)
		for _, class := range data.Classes() {
			a, _ := data.Artifact(class)
			obj := ir.NewObject(
				ir.P("class", ir.String(a.Class)),
				ir.P("dialect", ir.String(dialectName)),
				ir.P("kind", ir.String(a.Kind.String())),
				ir.P("digest", ir.String(a.Digest)),
			)
			if a.Owner != "" {
				obj["owner"] = ir.String(a.Owner)
			}
			out = append(out, obj)
		}
	}
	return out
}

func stringList(ss []string) ir.List {
	out := make(ir.List, len(ss))
	for i, s := range ss {
		out[i] = ir.String(s)
	}
	return out
}
