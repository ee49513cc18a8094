package rulepkg

import (
	"fmt"
	"hash/fnv"
	"maps"
	"slices"

	"github.com/roach88/rulepack/internal/dialect"
	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/loader"
)

// Package is the aggregate root of a rule namespace.
//
// The zero value is the deserialization scratch instance: it has no name
// and must be populated with ReadExternal before any other use.
type Package struct {
	name   string
	parent loader.ClassLoader

	// rules keeps insertion order in ruleOrder; a replaced rule keeps its
	// slot.
	rules     map[string]*ir.Rule
	ruleOrder []string

	imports          map[string]*ir.ImportDeclaration
	staticImports    map[string]struct{}
	functions        map[string]*ir.Function
	globals          map[string]string
	factTemplates    map[string]*ir.FactTemplate
	ruleFlows        map[string]*ir.Process
	typeDeclarations map[string]*ir.TypeDeclaration

	dialects *dialect.Datas

	valid        bool
	errorSummary string
}

// New creates an empty, valid package. The parent loader is shared with
// the dialect data; nil selects loader.System().
func New(name string, parent loader.ClassLoader) (*Package, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	p := &Package{name: name}
	p.reset(parent)
	p.valid = true
	return p, nil
}

// MustNew is like New but panics on error.
func MustNew(name string, parent loader.ClassLoader) *Package {
	p, err := New(name, parent)
	if err != nil {
		panic(err)
	}
	return p
}

// reset allocates fresh collections and a fresh dialect holder.
func (p *Package) reset(parent loader.ClassLoader) {
	if parent == nil {
		parent = loader.System()
	}
	p.parent = parent
	p.rules = make(map[string]*ir.Rule)
	p.ruleOrder = nil
	p.imports = make(map[string]*ir.ImportDeclaration)
	p.staticImports = make(map[string]struct{})
	p.functions = make(map[string]*ir.Function)
	p.globals = make(map[string]string)
	p.factTemplates = make(map[string]*ir.FactTemplate)
	p.ruleFlows = make(map[string]*ir.Process)
	p.typeDeclarations = make(map[string]*ir.TypeDeclaration)
	p.dialects = dialect.New(parent)
}

// Name returns the package name.
func (p *Package) Name() string {
	return p.name
}

// ParentLoader returns the shared loader the package was created with.
func (p *Package) ParentLoader() loader.ClassLoader {
	return p.parent
}

// DialectDatas returns the compiled-artifact holder owned by the package.
func (p *Package) DialectDatas() *dialect.Datas {
	return p.dialects
}

// AddRule inserts rule and stamps its load order with the number of rules
// held after the insert. A rule with the same name is replaced in place;
// earlier load orders are not renumbered.
func (p *Package) AddRule(rule *ir.Rule) {
	if _, ok := p.rules[rule.Name]; !ok {
		p.ruleOrder = append(p.ruleOrder, rule.Name)
	}
	p.rules[rule.Name] = rule
	rule.LoadOrder = len(p.rules)
}

// RemoveRule removes the rule with rule's name and tells the dialect data
// to drop its artifacts, whether or not the rule was present.
func (p *Package) RemoveRule(rule *ir.Rule) {
	if _, ok := p.rules[rule.Name]; ok {
		delete(p.rules, rule.Name)
		p.ruleOrder = slices.DeleteFunc(p.ruleOrder, func(n string) bool { return n == rule.Name })
	}
	p.dialects.RemoveRule(p, rule)
}

// Rule returns the named rule.
func (p *Package) Rule(name string) (*ir.Rule, bool) {
	r, ok := p.rules[name]
	return r, ok
}

// Rules returns the rules in insertion order.
func (p *Package) Rules() []*ir.Rule {
	if len(p.ruleOrder) == 0 {
		return nil
	}
	out := make([]*ir.Rule, 0, len(p.ruleOrder))
	for _, name := range p.ruleOrder {
		out = append(out, p.rules[name])
	}
	return out
}

// AddImport registers imp under its target.
func (p *Package) AddImport(imp *ir.ImportDeclaration) {
	p.imports[imp.Target] = imp
}

// RemoveImport removes the import for target.
func (p *Package) RemoveImport(target string) {
	delete(p.imports, target)
}

// Imports returns the imports keyed by target.
func (p *Package) Imports() map[string]*ir.ImportDeclaration {
	return snapshot(p.imports)
}

// AddStaticImport adds a fully-qualified function import.
func (p *Package) AddStaticImport(target string) {
	p.staticImports[target] = struct{}{}
}

// RemoveFunctionImport removes a static import.
func (p *Package) RemoveFunctionImport(target string) {
	delete(p.staticImports, target)
}

// StaticImports returns the static imports in sorted order.
func (p *Package) StaticImports() []string {
	if len(p.staticImports) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(p.staticImports))
}

// AddFunction registers fn under its name.
func (p *Package) AddFunction(fn *ir.Function) {
	p.functions[fn.Name] = fn
}

// RemoveFunction removes the named function. The dialect data is told to
// drop the function's artifacts only if the function was present.
func (p *Package) RemoveFunction(name string) {
	fn, ok := p.functions[name]
	if !ok {
		return
	}
	delete(p.functions, name)
	p.dialects.RemoveFunction(p, fn)
}

// Function returns the named function.
func (p *Package) Function(name string) (*ir.Function, bool) {
	fn, ok := p.functions[name]
	return fn, ok
}

// Functions returns the functions keyed by name.
func (p *Package) Functions() map[string]*ir.Function {
	return snapshot(p.functions)
}

// AddGlobal declares identifier as a global of the given class.
func (p *Package) AddGlobal(identifier, class string) {
	p.globals[identifier] = class
}

// RemoveGlobal removes a global.
func (p *Package) RemoveGlobal(identifier string) {
	delete(p.globals, identifier)
}

// Globals returns identifier → class name.
func (p *Package) Globals() map[string]string {
	return snapshot(p.globals)
}

// AddFactTemplate registers t under its name.
func (p *Package) AddFactTemplate(t *ir.FactTemplate) {
	p.factTemplates[t.Name] = t
}

// FactTemplate returns the named fact template.
func (p *Package) FactTemplate(name string) (*ir.FactTemplate, bool) {
	t, ok := p.factTemplates[name]
	return t, ok
}

// FactTemplates returns the fact templates keyed by name.
func (p *Package) FactTemplates() map[string]*ir.FactTemplate {
	return snapshot(p.factTemplates)
}

// AddTypeDeclaration registers decl under its type name.
func (p *Package) AddTypeDeclaration(decl *ir.TypeDeclaration) {
	p.typeDeclarations[decl.TypeName] = decl
}

// RemoveTypeDeclaration removes the named type declaration.
func (p *Package) RemoveTypeDeclaration(typeName string) {
	delete(p.typeDeclarations, typeName)
}

// TypeDeclaration returns the named type declaration.
func (p *Package) TypeDeclaration(typeName string) (*ir.TypeDeclaration, bool) {
	d, ok := p.typeDeclarations[typeName]
	return d, ok
}

// TypeDeclarations returns the type declarations keyed by type name.
func (p *Package) TypeDeclarations() map[string]*ir.TypeDeclaration {
	return snapshot(p.typeDeclarations)
}

// AddRuleFlow registers proc under its id.
func (p *Package) AddRuleFlow(proc *ir.Process) {
	p.ruleFlows[proc.ID] = proc
}

// RemoveRuleFlow removes the rule flow with the given id.
// Returns UnknownRuleFlowError if no such flow is held.
func (p *Package) RemoveRuleFlow(id string) error {
	if _, ok := p.ruleFlows[id]; !ok {
		return &UnknownRuleFlowError{ID: id}
	}
	delete(p.ruleFlows, id)
	return nil
}

// RuleFlow returns the rule flow with the given id.
func (p *Package) RuleFlow(id string) (*ir.Process, bool) {
	proc, ok := p.ruleFlows[id]
	return proc, ok
}

// RuleFlows returns the rule flows keyed by id.
func (p *Package) RuleFlows() map[string]*ir.Process {
	return snapshot(p.ruleFlows)
}

// Clear empties every collection and the dialect data. Validity is kept.
func (p *Package) Clear() {
	clear(p.rules)
	p.ruleOrder = nil
	clear(p.imports)
	clear(p.staticImports)
	clear(p.functions)
	clear(p.globals)
	clear(p.factTemplates)
	clear(p.ruleFlows)
	clear(p.typeDeclarations)
	p.dialects.Clear()
}

// IsEvent reports whether some type declaration matches c with the event
// role. A nil class is never an event.
func (p *Package) IsEvent(c *ir.Class) bool {
	if c == nil {
		return false
	}
	for _, decl := range p.typeDeclarations {
		if decl.Role == ir.RoleEvent && decl.Matches(c) {
			return true
		}
	}
	return false
}

// Equal reports whether both packages carry the same name. Contents are
// not compared.
func (p *Package) Equal(other *Package) bool {
	if p == other {
		return true
	}
	if p == nil || other == nil {
		return false
	}
	return p.name == other.name
}

// Hash returns a hash of the package name, consistent with Equal.
func (p *Package) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(p.name))
	return h.Sum64()
}

func (p *Package) String() string {
	return fmt.Sprintf("[Package name=%s]", p.name)
}

// snapshot copies m, returning nil for an empty map so that ranging over
// an unused category allocates nothing.
func snapshot[K comparable, V any](m map[K]V) map[K]V {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}
