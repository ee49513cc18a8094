package rulepkg

import (
	"bytes"
	"errors"
	"maps"
	"slices"

	"github.com/roach88/rulepack/internal/codec"
	"github.com/roach88/rulepack/internal/dialect"
	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/loader"
)

// WriteExternal writes the package to out. An engine stream
// (*codec.Writer) receives the fields directly; any other Output receives
// them as a single blob holding a complete engine stream.
//
// The engine stream is not flushed; the caller owns it.
func (p *Package) WriteExternal(out codec.Output) error {
	if w, ok := out.(*codec.Writer); ok {
		return p.writeFields(w)
	}

	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := p.writeFields(w); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	if err := out.WriteBlob(buf.Bytes()); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// ReadExternal replaces the package's state with the one read from in.
// An engine stream (*codec.Reader) is read directly; any other Input is
// expected to yield one blob produced by WriteExternal.
//
// The receiver's state is only replaced when the whole package decodes.
func (p *Package) ReadExternal(in codec.Input) error {
	r, ok := in.(*codec.Reader)
	if !ok {
		blob, err := in.ReadBlob()
		if err != nil {
			return &IOError{Op: "read", Err: err}
		}
		r = codec.NewReader(bytes.NewReader(blob))
	}
	return p.readFields(r)
}

func (p *Package) writeFields(w *codec.Writer) error {
	if err := p.validateValues(); err != nil {
		return err
	}
	blob, err := p.dialects.MarshalBinary()
	if err != nil {
		return &IOError{Op: "write", Err: err}
	}
	w.WriteBlob(blob)

	writeTypeDeclarations(w, p.typeDeclarations)
	w.WriteString(p.name)
	writeImports(w, p.imports)
	w.WriteStrings(p.StaticImports())
	writeFunctions(w, p.functions)
	writeFactTemplates(w, p.factTemplates)
	writeRuleFlows(w, p.ruleFlows)
	w.WriteStringMap(p.globals)
	w.WriteBool(p.valid)
	writeRules(w, p.Rules())

	w.WriteBool(p.errorSummary != "")
	if p.errorSummary != "" {
		w.WriteString(p.errorSummary)
	}

	if err := w.Err(); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// validateValues runs before anything is written so that a bad value
// never leaves a partial package on the stream.
func (p *Package) validateValues() error {
	for _, rule := range p.Rules() {
		if err := ir.Validate(rule.Attributes); err != nil {
			return &InvalidValueError{Owner: "rule " + rule.Name, Err: err}
		}
	}
	for _, k := range slices.Sorted(maps.Keys(p.typeDeclarations)) {
		if err := ir.Validate(p.typeDeclarations[k].Metadata); err != nil {
			return &InvalidValueError{Owner: "type declaration " + k, Err: err}
		}
	}
	return nil
}

func (p *Package) readFields(r *codec.Reader) error {
	parent := p.parent
	if parent == nil {
		parent = loader.System()
	}

	blob, _ := r.ReadBlob()
	if err := r.Err(); err != nil {
		return &IOError{Op: "read", Err: err}
	}
	dialects := dialect.New(parent)
	if err := dialects.UnmarshalBinary(blob); err != nil {
		return &DeserializationError{Err: err}
	}

	// Class names from here on resolve against the restored artifacts.
	prev := r.Resolver()
	r.SetResolver(dialects)
	defer r.SetResolver(prev)

	next := &Package{}
	next.reset(parent)
	next.dialects = dialects

	next.typeDeclarations = readTypeDeclarations(r)
	next.name = r.ReadString()
	next.imports = readImports(r)
	for _, s := range r.ReadStrings() {
		next.staticImports[s] = struct{}{}
	}
	next.functions = readFunctions(r)
	next.factTemplates = readFactTemplates(r)
	next.ruleFlows = readRuleFlows(r)
	next.globals = r.ReadStringMap()
	next.valid = r.ReadBool()

	rules := readRules(r)
	if r.Err() == nil {
		for _, rule := range rules {
			if rule.Consequence == "" {
				continue
			}
			if _, err := r.ResolveClass(rule.Consequence); err != nil {
				if !errors.Is(err, loader.ErrClassNotFound) {
					return &IOError{Op: "read", Err: err}
				}
				return &DeserializationError{Rule: rule.Name, Class: rule.Consequence, Err: err}
			}
		}
	}

	if r.ReadBool() {
		next.errorSummary = r.ReadString()
	}
	if err := r.Err(); err != nil {
		return &IOError{Op: "read", Err: err}
	}

	// Rules go in directly: their decoded load orders must survive.
	for _, rule := range rules {
		next.rules[rule.Name] = rule
		next.ruleOrder = append(next.ruleOrder, rule.Name)
	}

	*p = *next
	return nil
}

func writeTypeDeclarations(w *codec.Writer, m map[string]*ir.TypeDeclaration) {
	w.WriteUint(uint64(len(m)))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		d := m[k]
		w.WriteString(k)
		w.WriteString(d.TypeName)
		w.WriteUint(uint64(d.Role))
		w.WriteUint(uint64(d.Match))
		w.WriteString(d.ClassName)
		w.WriteString(d.Pattern)
		w.WriteValue(d.Metadata)
	}
}

func readTypeDeclarations(r *codec.Reader) map[string]*ir.TypeDeclaration {
	n := r.ReadLen()
	out := make(map[string]*ir.TypeDeclaration, min(n, 1024))
	for range n {
		k := r.ReadString()
		d := &ir.TypeDeclaration{
			TypeName:  r.ReadString(),
			Role:      ir.Role(r.ReadUint()),
			Match:     ir.MatchMode(r.ReadUint()),
			ClassName: r.ReadString(),
			Pattern:   r.ReadString(),
			Metadata:  r.ReadObject(),
		}
		if r.Err() != nil {
			break
		}
		out[k] = d
	}
	return out
}

func writeImports(w *codec.Writer, m map[string]*ir.ImportDeclaration) {
	w.WriteUint(uint64(len(m)))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		w.WriteString(k)
		w.WriteString(m[k].Target)
	}
}

func readImports(r *codec.Reader) map[string]*ir.ImportDeclaration {
	n := r.ReadLen()
	out := make(map[string]*ir.ImportDeclaration, min(n, 1024))
	for range n {
		k := r.ReadString()
		imp := &ir.ImportDeclaration{Target: r.ReadString()}
		if r.Err() != nil {
			break
		}
		out[k] = imp
	}
	return out
}

func writeFunctions(w *codec.Writer, m map[string]*ir.Function) {
	w.WriteUint(uint64(len(m)))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		fn := m[k]
		w.WriteString(k)
		w.WriteString(fn.Name)
		w.WriteString(fn.Dialect)
		w.WriteStrings(fn.Params)
		w.WriteString(fn.ReturnType)
		w.WriteString(fn.Body)
		w.WriteString(fn.ClassName)
	}
}

func readFunctions(r *codec.Reader) map[string]*ir.Function {
	n := r.ReadLen()
	out := make(map[string]*ir.Function, min(n, 1024))
	for range n {
		k := r.ReadString()
		fn := &ir.Function{
			Name:       r.ReadString(),
			Dialect:    r.ReadString(),
			Params:     r.ReadStrings(),
			ReturnType: r.ReadString(),
			Body:       r.ReadString(),
			ClassName:  r.ReadString(),
		}
		if r.Err() != nil {
			break
		}
		out[k] = fn
	}
	return out
}

func writeFactTemplates(w *codec.Writer, m map[string]*ir.FactTemplate) {
	w.WriteUint(uint64(len(m)))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		t := m[k]
		w.WriteString(k)
		w.WriteString(t.Name)
		w.WriteString(t.Package)
		w.WriteCount(len(t.Fields), t.Fields == nil)
		for _, f := range t.Fields {
			w.WriteString(f.Name)
			w.WriteString(f.Type)
		}
	}
}

func readFactTemplates(r *codec.Reader) map[string]*ir.FactTemplate {
	n := r.ReadLen()
	out := make(map[string]*ir.FactTemplate, min(n, 1024))
	for range n {
		k := r.ReadString()
		t := &ir.FactTemplate{
			Name:    r.ReadString(),
			Package: r.ReadString(),
		}
		fields, isNil := r.ReadCount()
		if !isNil {
			t.Fields = make([]ir.FieldTemplate, 0, min(fields, 1024))
		}
		for range fields {
			f := ir.FieldTemplate{Name: r.ReadString(), Type: r.ReadString()}
			if r.Err() != nil {
				break
			}
			t.Fields = append(t.Fields, f)
		}
		if r.Err() != nil {
			break
		}
		out[k] = t
	}
	return out
}

func writeRuleFlows(w *codec.Writer, m map[string]*ir.Process) {
	w.WriteUint(uint64(len(m)))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		proc := m[k]
		w.WriteString(k)
		w.WriteString(proc.ID)
		w.WriteString(proc.Name)
		w.WriteString(proc.Version)
		w.WriteString(proc.Package)
		w.WriteCount(len(proc.Nodes), proc.Nodes == nil)
		for _, n := range proc.Nodes {
			w.WriteString(n.ID)
			w.WriteString(n.Name)
			w.WriteString(n.Kind)
		}
		w.WriteCount(len(proc.Connections), proc.Connections == nil)
		for _, c := range proc.Connections {
			w.WriteString(c.From)
			w.WriteString(c.To)
		}
	}
}

func readRuleFlows(r *codec.Reader) map[string]*ir.Process {
	n := r.ReadLen()
	out := make(map[string]*ir.Process, min(n, 1024))
	for range n {
		k := r.ReadString()
		proc := &ir.Process{
			ID:      r.ReadString(),
			Name:    r.ReadString(),
			Version: r.ReadString(),
			Package: r.ReadString(),
		}
		nodes, isNil := r.ReadCount()
		if !isNil {
			proc.Nodes = make([]ir.Node, 0, min(nodes, 1024))
		}
		for range nodes {
			node := ir.Node{ID: r.ReadString(), Name: r.ReadString(), Kind: r.ReadString()}
			if r.Err() != nil {
				break
			}
			proc.Nodes = append(proc.Nodes, node)
		}
		conns, isNil := r.ReadCount()
		if !isNil {
			proc.Connections = make([]ir.Connection, 0, min(conns, 1024))
		}
		for range conns {
			c := ir.Connection{From: r.ReadString(), To: r.ReadString()}
			if r.Err() != nil {
				break
			}
			proc.Connections = append(proc.Connections, c)
		}
		if r.Err() != nil {
			break
		}
		out[k] = proc
	}
	return out
}

func writeRules(w *codec.Writer, rules []*ir.Rule) {
	w.WriteUint(uint64(len(rules)))
	for _, rule := range rules {
		w.WriteString(rule.Name)
		w.WriteString(rule.Dialect)
		w.WriteInt(rule.Salience)
		w.WriteString(rule.AgendaGroup)
		w.WriteBool(rule.NoLoop)
		w.WriteInt(int64(rule.LoadOrder))
		w.WriteString(rule.Conditions)
		w.WriteString(rule.Consequence)
		w.WriteValue(rule.Attributes)
	}
}

func readRules(r *codec.Reader) []*ir.Rule {
	n := r.ReadLen()
	var out []*ir.Rule
	for range n {
		rule := &ir.Rule{
			Name:        r.ReadString(),
			Dialect:     r.ReadString(),
			Salience:    r.ReadInt(),
			AgendaGroup: r.ReadString(),
			NoLoop:      r.ReadBool(),
			LoadOrder:   int(r.ReadInt()),
			Conditions:  r.ReadString(),
			Consequence: r.ReadString(),
			Attributes:  r.ReadObject(),
		}
		if r.Err() != nil {
			return nil
		}
		out = append(out, rule)
	}
	return out
}
