// Package dialect holds the compiled artifacts emitted by the rule compiler.
//
// A Datas is owned exclusively by one package. It keeps one Data table per
// dialect, keyed by generated class name, and acts as a child class loader
// in front of the shared parent loader so that generated classes resolve
// before anything else.
//
// The rule compiler itself is an external collaborator: artifacts are
// opaque bytes here. Datas never executes them.
package dialect

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/rulepack/internal/codec"
	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/loader"
)

// Kind identifies what an artifact was generated for.
type Kind uint8

const (
	KindRule Kind = iota
	KindFunction
	KindSupport // Shared helpers with no single owner
)

func (k Kind) String() string {
	switch k {
	case KindRule:
		return "rule"
	case KindFunction:
		return "function"
	case KindSupport:
		return "support"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Artifact is one generated class.
type Artifact struct {
	Class  string   // Fully-qualified generated class name
	Kind   Kind     // What the class was generated for
	Owner  string   // Rule or function name; empty for support classes
	Supers []string // Interfaces the generated class implements
	Code   []byte   // Opaque compiled form
	Digest string   // ir.ArtifactDigest(Class, Code), filled by Put
}

// Owner is the back-reference a package passes on removal callbacks.
// Datas never retains it.
type Owner interface {
	Name() string
}

// Data is the artifact table of one dialect.
type Data struct {
	dialect   string
	artifacts map[string]*Artifact
}

// Dialect returns the dialect name.
func (d *Data) Dialect() string {
	return d.dialect
}

// Len returns the number of artifacts.
func (d *Data) Len() int {
	return len(d.artifacts)
}

// Classes returns the generated class names in sorted order.
func (d *Data) Classes() []string {
	return slices.Sorted(maps.Keys(d.artifacts))
}

// Artifact returns the artifact generated under class.
func (d *Data) Artifact(class string) (Artifact, bool) {
	a, ok := d.artifacts[class]
	if !ok {
		return Artifact{}, false
	}
	return *a, true
}

func (d *Data) removeOwned(kind Kind, owner string) {
	for class, a := range d.artifacts {
		if a.Kind == kind && a.Owner == owner {
			delete(d.artifacts, class)
		}
	}
}

// Datas is the compiled-artifact holder of a package.
type Datas struct {
	parent loader.ClassLoader
	datas  map[string]*Data
}

// New creates an empty holder delegating class lookups to parent.
// A nil parent delegates to loader.System().
func New(parent loader.ClassLoader) *Datas {
	if parent == nil {
		parent = loader.System()
	}
	return &Datas{
		parent: parent,
		datas:  make(map[string]*Data),
	}
}

// Parent returns the parent loader, or nil after Release.
func (d *Datas) Parent() loader.ClassLoader {
	return d.parent
}

// Put adds or replaces an artifact under the given dialect and returns the
// stored copy with its digest filled in.
func (d *Datas) Put(dialect string, a Artifact) Artifact {
	data, ok := d.datas[dialect]
	if !ok {
		data = &Data{dialect: dialect, artifacts: make(map[string]*Artifact)}
		d.datas[dialect] = data
	}
	a.Code = bytes.Clone(a.Code)
	a.Supers = slices.Clone(a.Supers)
	a.Digest = ir.ArtifactDigest(a.Class, a.Code)
	data.artifacts[a.Class] = &a
	return a
}

// Data returns the table of one dialect.
func (d *Datas) Data(dialect string) (*Data, bool) {
	data, ok := d.datas[dialect]
	return data, ok
}

// Dialects returns the dialect names in sorted order.
func (d *Datas) Dialects() []string {
	return slices.Sorted(maps.Keys(d.datas))
}

// Artifact looks up a generated class across all dialects.
func (d *Datas) Artifact(class string) (Artifact, bool) {
	for _, data := range d.datas {
		if a, ok := data.artifacts[class]; ok {
			return *a, true
		}
	}
	return Artifact{}, false
}

// Artifacts returns every artifact ordered by dialect, then class.
func (d *Datas) Artifacts() []Artifact {
	var out []Artifact
	for _, dialect := range d.Dialects() {
		data := d.datas[dialect]
		for _, class := range data.Classes() {
			out = append(out, *data.artifacts[class])
		}
	}
	return out
}

// Len returns the total number of artifacts.
func (d *Datas) Len() int {
	n := 0
	for _, data := range d.datas {
		n += data.Len()
	}
	return n
}

// RemoveRule drops the artifacts generated for rule. Absent rules are
// tolerated: the package calls this even for names it never held.
func (d *Datas) RemoveRule(_ Owner, rule *ir.Rule) {
	if rule == nil {
		return
	}
	for _, data := range d.candidates(rule.Dialect) {
		data.removeOwned(KindRule, rule.Name)
		if rule.Consequence != "" {
			delete(data.artifacts, rule.Consequence)
		}
	}
	d.prune()
}

// RemoveFunction drops the artifacts generated for fn. Absence is tolerated.
func (d *Datas) RemoveFunction(_ Owner, fn *ir.Function) {
	if fn == nil {
		return
	}
	for _, data := range d.candidates(fn.Dialect) {
		data.removeOwned(KindFunction, fn.Name)
		if fn.ClassName != "" {
			delete(data.artifacts, fn.ClassName)
		}
	}
	d.prune()
}

// candidates returns the table for dialect, or every table when the
// dialect is unknown or unset.
func (d *Datas) candidates(dialect string) []*Data {
	if data, ok := d.datas[dialect]; ok {
		return []*Data{data}
	}
	return slices.Collect(maps.Values(d.datas))
}

// prune drops dialect tables left empty by a removal.
func (d *Datas) prune() {
	for name, data := range d.datas {
		if data.Len() == 0 {
			delete(d.datas, name)
		}
	}
}

// Clear drops every artifact. The holder stays usable.
func (d *Datas) Clear() {
	clear(d.datas)
}

// Release drops every artifact and detaches the parent loader. Called when
// the owning container discards the package; the holder must not be used
// for class resolution afterwards.
func (d *Datas) Release() {
	d.Clear()
	d.parent = nil
}

// LoadClass implements loader.ClassLoader: generated classes first, then
// the parent.
func (d *Datas) LoadClass(name string) (*ir.Class, error) {
	return loader.Chain(generated{d}, d.parent).LoadClass(name)
}

// generated resolves only the classes held by the dialect data.
type generated struct {
	d *Datas
}

func (g generated) LoadClass(name string) (*ir.Class, error) {
	if a, ok := g.d.Artifact(name); ok {
		return &ir.Class{Name: a.Class, Supers: slices.Clone(a.Supers)}, nil
	}
	return nil, loader.NotFound(name)
}

// MarshalBinary encodes every artifact as an opaque blob.
// The parent loader is not part of the blob.
func (d *Datas) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	dialects := d.Dialects()
	w.WriteUint(uint64(len(dialects)))
	for _, dialect := range dialects {
		data := d.datas[dialect]
		w.WriteString(dialect)
		w.WriteUint(uint64(data.Len()))
		for _, class := range data.Classes() {
			a := data.artifacts[class]
			w.WriteString(a.Class)
			w.WriteUint(uint64(a.Kind))
			w.WriteString(a.Owner)
			w.WriteStrings(a.Supers)
			w.WriteBlob(a.Code)
			w.WriteString(a.Digest)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("dialect: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces the artifact tables with the decoded blob.
// Every artifact digest is verified against its code.
func (d *Datas) UnmarshalBinary(p []byte) error {
	r := codec.NewReader(bytes.NewReader(p))
	datas := make(map[string]*Data)

	dialectCount := r.ReadLen()
	for range dialectCount {
		dialect := r.ReadString()
		count := r.ReadLen()
		if r.Err() != nil {
			break
		}
		data := &Data{dialect: dialect, artifacts: make(map[string]*Artifact, min(count, 1024))}
		for range count {
			var a Artifact
			a.Class = r.ReadString()
			a.Kind = Kind(r.ReadUint())
			a.Owner = r.ReadString()
			a.Supers = r.ReadStrings()
			a.Code, _ = r.ReadBlob()
			a.Digest = r.ReadString()
			if r.Err() != nil {
				break
			}
			if want := ir.ArtifactDigest(a.Class, a.Code); want != a.Digest {
				return fmt.Errorf("dialect: unmarshal: artifact %s: digest mismatch", a.Class)
			}
			data.artifacts[a.Class] = &a
		}
		datas[dialect] = data
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("dialect: unmarshal: %w", err)
	}

	d.datas = datas
	return nil
}
