package compiler

import (
	"fmt"
	"log/slog"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/rulepack/internal/dialect"
	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/loader"
	"github.com/roach88/rulepack/internal/rulepkg"
)

// DefaultDialect is used when neither the package nor the entity names one.
const DefaultDialect = "cue"

// Supertypes implemented by generated classes.
const (
	ConsequenceType = "rulepack.Consequence"
	InvokerType     = "rulepack.Invoker"
)

// Options configures Compile and Build.
type Options struct {
	Parent   loader.ClassLoader // Parent loader of the built package; nil means loader.System()
	Dialects []string           // Dialects rules may use; empty means DefaultDialect only
	Logger   *slog.Logger       // nil means slog.Default()
}

func (o Options) dialects() []string {
	if len(o.Dialects) == 0 {
		return []string{DefaultDialect}
	}
	return o.Dialects
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Result is the outcome of a build.
//
// Package is always set when the descriptor decoded. If Errors is not
// empty the package has been marked invalid with a summary of them, so
// the caller's CheckValidity fails.
type Result struct {
	Package *rulepkg.Package
	Errors  []ValidationError
}

// Compile decodes, validates and builds a package from a CUE value.
// The returned error is a decoding failure; validation problems are
// reported through Result.Errors and the package's validity.
func Compile(v cue.Value, opts Options) (*Result, error) {
	d, err := Decode(v)
	if err != nil {
		return nil, err
	}
	return Build(d, opts)
}

// Build validates d and populates a new package from it. Every rule gets
// a generated consequence class and every function an invoker class.
func Build(d *Descriptor, opts Options) (*Result, error) {
	log := opts.logger().With(slog.String("package", d.Package), slog.String("builder", ir.BuilderVersion))

	errs := Validate(d, opts.dialects())

	name := d.Package
	if name == "" {
		name = "unnamed"
	}
	pkg, err := rulepkg.New(name, opts.Parent)
	if err != nil {
		return nil, err
	}

	for _, target := range d.Imports {
		pkg.AddImport(&ir.ImportDeclaration{Target: target})
	}
	for _, target := range d.StaticImports {
		pkg.AddStaticImport(target)
	}
	for _, g := range d.Globals {
		pkg.AddGlobal(g.Identifier, g.Class)
	}

	for _, decl := range d.Declares {
		role, _ := ir.ParseRole(decl.Role)
		match, _ := ir.ParseMatchMode(decl.Match)
		pkg.AddTypeDeclaration(&ir.TypeDeclaration{
			TypeName:  decl.Name,
			Role:      role,
			Match:     match,
			ClassName: decl.Class,
			Pattern:   decl.Pattern,
			Metadata:  decl.Metadata,
		})
	}

	for _, tmpl := range d.Templates {
		pkg.AddFactTemplate(&ir.FactTemplate{
			Name:    tmpl.Name,
			Package: name,
			Fields:  tmpl.Fields,
		})
	}

	classes := newClassNamer(name)

	for _, fs := range d.Functions {
		fn := &ir.Function{
			Name:       fs.Name,
			Dialect:    fs.Dialect,
			Params:     fs.Params,
			ReturnType: fs.Returns,
			Body:       fs.Body,
			ClassName:  classes.next("Function", fs.Name),
		}
		code, err := ir.MarshalCanonical(ir.NewObject(
			ir.P("function", ir.String(fn.Name)),
			ir.P("params", stringList(fn.Params)),
			ir.P("returns", ir.String(fn.ReturnType)),
			ir.P("body", ir.String(fn.Body)),
		))
		if err != nil {
			return nil, fmt.Errorf("generate function %s: %w", fn.Name, err)
		}
		pkg.DialectDatas().Put(fn.Dialect, dialect.Artifact{
			Class:  fn.ClassName,
			Kind:   dialect.KindFunction,
			Owner:  fn.Name,
			Supers: []string{InvokerType},
			Code:   code,
		})
		pkg.AddFunction(fn)
	}

	for _, rs := range d.Rules {
		rule := &ir.Rule{
			Name:        rs.Name,
			Dialect:     rs.Dialect,
			Salience:    rs.Salience,
			AgendaGroup: rs.AgendaGroup,
			NoLoop:      rs.NoLoop,
			Conditions:  rs.When,
			Consequence: classes.next("Rule", rs.Name),
			Attributes:  rs.Attributes,
		}
		body := ir.NewObject(
			ir.P("rule", ir.String(rule.Name)),
			ir.P("when", ir.String(rs.When)),
			ir.P("then", ir.String(rs.Then)),
			ir.P("salience", ir.Int(rule.Salience)),
		)
		if rule.Attributes != nil {
			body["attributes"] = rule.Attributes
		}
		code, err := ir.MarshalCanonical(body)
		if err != nil {
			return nil, fmt.Errorf("generate rule %s: %w", rule.Name, err)
		}
		pkg.DialectDatas().Put(rule.Dialect, dialect.Artifact{
			Class:  rule.Consequence,
			Kind:   dialect.KindRule,
			Owner:  rule.Name,
			Supers: []string{ConsequenceType},
			Code:   code,
		})
		pkg.AddRule(rule)
	}

	for _, fs := range d.RuleFlows {
		pkg.AddRuleFlow(&ir.Process{
			ID:          fs.ID,
			Name:        fs.Name,
			Version:     fs.Version,
			Package:     name,
			Nodes:       fs.Nodes,
			Connections: fs.Connections,
		})
	}

	if len(errs) > 0 {
		pkg.SetError(Summarize(errs))
		log.Warn("package built with errors", slog.Int("errors", len(errs)))
	} else {
		log.Debug("package built",
			slog.Int("rules", len(d.Rules)),
			slog.Int("functions", len(d.Functions)),
			slog.Int("artifacts", pkg.DialectDatas().Len()))
	}

	return &Result{Package: pkg, Errors: errs}, nil
}

// Summarize joins validation messages into a package error summary.
func Summarize(errs []ValidationError) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// classNamer derives unique generated class names within one package.
type classNamer struct {
	pkg  string
	used map[string]int
}

func newClassNamer(pkg string) *classNamer {
	return &classNamer{pkg: pkg, used: make(map[string]int)}
}

// next returns "<pkg>.<prefix>_<identifier>", suffixed with a counter when
// two entity names sanitize to the same identifier.
func (n *classNamer) next(prefix, entity string) string {
	base := n.pkg + "." + prefix + "_" + sanitizeIdentifier(entity)
	n.used[base]++
	if c := n.used[base]; c > 1 {
		return fmt.Sprintf("%s_%d", base, c)
	}
	return base
}

// sanitizeIdentifier replaces every character that cannot appear in a
// class name with '_'.
func sanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func stringList(ss []string) ir.List {
	out := make(ir.List, len(ss))
	for i, s := range ss {
		out[i] = ir.String(s)
	}
	return out
}
