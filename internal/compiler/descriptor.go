package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/rulepack/internal/ir"
)

// Descriptor is the decoded form of a package source, before validation.
// Struct-valued sections keep CUE declaration order.
type Descriptor struct {
	Package       string
	Dialect       string // Default dialect for rules and functions
	Imports       []string
	StaticImports []string
	Globals       []GlobalSpec
	Declares      []DeclareSpec
	Templates     []TemplateSpec
	Functions     []FunctionSpec
	Rules         []RuleSpec
	RuleFlows     []RuleFlowSpec
}

// GlobalSpec declares one global.
type GlobalSpec struct {
	Identifier string
	Class      string
}

// DeclareSpec is a type declaration as written.
type DeclareSpec struct {
	Name     string
	Role     string
	Match    string
	Class    string
	Pattern  string
	Metadata ir.Object
}

// TemplateSpec is a fact template as written.
type TemplateSpec struct {
	Name   string
	Fields []ir.FieldTemplate
}

// FunctionSpec is a function as written.
type FunctionSpec struct {
	Name    string
	Dialect string
	Params  []string
	Returns string
	Body    string
}

// RuleSpec is a rule as written.
type RuleSpec struct {
	Name        string
	Dialect     string
	Salience    int64
	AgendaGroup string
	NoLoop      bool
	When        string
	Then        string
	Attributes  ir.Object
}

// RuleFlowSpec is a rule flow as written.
type RuleFlowSpec struct {
	ID          string
	Name        string
	Version     string
	Nodes       []ir.Node
	Connections []ir.Connection
}

// Decode parses a CUE value into a Descriptor.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the package struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`name: "org.acme", rule: { ... }`)
//	d, err := Decode(v)
//
// Only shape errors are reported here. Semantic problems are left to
// Validate so they can all be collected at once.
func Decode(v cue.Value) (*Descriptor, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	d := &Descriptor{}
	var err error

	if d.Package, err = lookupString(v, "name"); err != nil {
		return nil, err
	}
	if !v.LookupPath(cue.ParsePath("name")).Exists() {
		return nil, &CompileError{
			Field:   "name",
			Message: "package name is required",
			Pos:     v.Pos(),
		}
	}
	if d.Dialect, err = lookupString(v, "dialect"); err != nil {
		return nil, err
	}
	if d.Dialect == "" {
		d.Dialect = DefaultDialect
	}
	if d.Imports, err = lookupStrings(v, "imports"); err != nil {
		return nil, err
	}
	if d.StaticImports, err = lookupStrings(v, "static_imports"); err != nil {
		return nil, err
	}

	err = eachField(v, "globals", func(name string, fv cue.Value) error {
		class, err := fv.String()
		if err != nil {
			return formatCUEError(err)
		}
		d.Globals = append(d.Globals, GlobalSpec{Identifier: name, Class: class})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := eachField(v, "declare", func(name string, fv cue.Value) error {
		decl, err := parseDeclare(name, fv)
		if err != nil {
			return err
		}
		d.Declares = append(d.Declares, decl)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "template", func(name string, fv cue.Value) error {
		tmpl, err := parseTemplate(name, fv)
		if err != nil {
			return err
		}
		d.Templates = append(d.Templates, tmpl)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "function", func(name string, fv cue.Value) error {
		fn, err := parseFunction(name, fv, d.Dialect)
		if err != nil {
			return err
		}
		d.Functions = append(d.Functions, fn)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "rule", func(name string, fv cue.Value) error {
		rule, err := parseRule(name, fv, d.Dialect)
		if err != nil {
			return err
		}
		d.Rules = append(d.Rules, rule)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "ruleflow", func(id string, fv cue.Value) error {
		flow, err := parseRuleFlow(id, fv)
		if err != nil {
			return err
		}
		d.RuleFlows = append(d.RuleFlows, flow)
		return nil
	}); err != nil {
		return nil, err
	}

	return d, nil
}

func parseDeclare(name string, v cue.Value) (DeclareSpec, error) {
	decl := DeclareSpec{Name: name}
	var err error
	if decl.Role, err = lookupString(v, "role"); err != nil {
		return decl, err
	}
	if decl.Match, err = lookupString(v, "match"); err != nil {
		return decl, err
	}
	if decl.Class, err = lookupString(v, "class"); err != nil {
		return decl, err
	}
	if decl.Pattern, err = lookupString(v, "pattern"); err != nil {
		return decl, err
	}
	if decl.Metadata, err = lookupObject(v, "metadata", "declare."+name); err != nil {
		return decl, err
	}
	return decl, nil
}

func parseTemplate(name string, v cue.Value) (TemplateSpec, error) {
	tmpl := TemplateSpec{Name: name}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return tmpl, &CompileError{
			Field:   fmt.Sprintf("template.%s.fields", name),
			Message: "template fields are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := fieldsVal.List()
	if err != nil {
		return tmpl, formatCUEError(err)
	}
	for iter.Next() {
		fv := iter.Value()
		var f ir.FieldTemplate
		if f.Name, err = lookupString(fv, "name"); err != nil {
			return tmpl, err
		}
		if f.Type, err = lookupString(fv, "type"); err != nil {
			return tmpl, err
		}
		tmpl.Fields = append(tmpl.Fields, f)
	}
	return tmpl, nil
}

func parseFunction(name string, v cue.Value, dialect string) (FunctionSpec, error) {
	fn := FunctionSpec{Name: name}
	var err error
	if fn.Dialect, err = lookupString(v, "dialect"); err != nil {
		return fn, err
	}
	if fn.Dialect == "" {
		fn.Dialect = dialect
	}
	if fn.Params, err = lookupStrings(v, "params"); err != nil {
		return fn, err
	}
	if fn.Returns, err = lookupString(v, "returns"); err != nil {
		return fn, err
	}
	if fn.Body, err = lookupString(v, "body"); err != nil {
		return fn, err
	}
	return fn, nil
}

func parseRule(name string, v cue.Value, dialect string) (RuleSpec, error) {
	rule := RuleSpec{Name: name}
	var err error
	if rule.Dialect, err = lookupString(v, "dialect"); err != nil {
		return rule, err
	}
	if rule.Dialect == "" {
		rule.Dialect = dialect
	}
	if sv := v.LookupPath(cue.ParsePath("salience")); sv.Exists() {
		if sv.IncompleteKind() == cue.FloatKind {
			return rule, &CompileError{
				Field:   fmt.Sprintf("rule.%s.salience", name),
				Message: "float salience is forbidden - use int instead",
				Pos:     sv.Pos(),
			}
		}
		if rule.Salience, err = sv.Int64(); err != nil {
			return rule, formatCUEError(err)
		}
	}
	if rule.AgendaGroup, err = lookupString(v, "agenda_group"); err != nil {
		return rule, err
	}
	if nv := v.LookupPath(cue.ParsePath("no_loop")); nv.Exists() {
		if rule.NoLoop, err = nv.Bool(); err != nil {
			return rule, formatCUEError(err)
		}
	}
	if rule.When, err = lookupString(v, "when"); err != nil {
		return rule, err
	}
	if rule.Then, err = lookupString(v, "then"); err != nil {
		return rule, err
	}
	if rule.Attributes, err = lookupObject(v, "attributes", "rule."+name); err != nil {
		return rule, err
	}
	return rule, nil
}

func parseRuleFlow(id string, v cue.Value) (RuleFlowSpec, error) {
	flow := RuleFlowSpec{ID: id}
	var err error
	if flow.Name, err = lookupString(v, "name"); err != nil {
		return flow, err
	}
	if flow.Version, err = lookupString(v, "version"); err != nil {
		return flow, err
	}

	if nodesVal := v.LookupPath(cue.ParsePath("nodes")); nodesVal.Exists() {
		iter, err := nodesVal.List()
		if err != nil {
			return flow, formatCUEError(err)
		}
		for iter.Next() {
			nv := iter.Value()
			var n ir.Node
			if n.ID, err = lookupString(nv, "id"); err != nil {
				return flow, err
			}
			if n.Name, err = lookupString(nv, "name"); err != nil {
				return flow, err
			}
			if n.Kind, err = lookupString(nv, "kind"); err != nil {
				return flow, err
			}
			flow.Nodes = append(flow.Nodes, n)
		}
	}

	if connVal := v.LookupPath(cue.ParsePath("connections")); connVal.Exists() {
		iter, err := connVal.List()
		if err != nil {
			return flow, formatCUEError(err)
		}
		for iter.Next() {
			cv := iter.Value()
			var c ir.Connection
			if c.From, err = lookupString(cv, "from"); err != nil {
				return flow, err
			}
			if c.To, err = lookupString(cv, "to"); err != nil {
				return flow, err
			}
			flow.Connections = append(flow.Connections, c)
		}
	}

	return flow, nil
}

// eachField calls fn for every field of the struct at path, in declaration
// order. A missing struct is not an error.
func eachField(v cue.Value, path string, fn func(name string, fv cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Selector().Unquoted(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// lookupString returns the string at path, or "" if absent.
func lookupString(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// lookupStrings returns the string list at path, or nil if absent.
func lookupStrings(v cue.Value, path string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// lookupObject decodes the struct at path into an attribute object.
// Floats and null are rejected.
func lookupObject(v cue.Value, path, owner string) (ir.Object, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return nil, nil
	}
	data, err := fv.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	obj, err := ir.UnmarshalObject(data)
	if err != nil {
		return nil, &CompileError{
			Field:   owner + "." + path,
			Message: err.Error(),
			Pos:     fv.Pos(),
		}
	}
	return obj, nil
}
