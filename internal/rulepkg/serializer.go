package rulepkg

import (
	"bytes"
	"io"

	"github.com/roach88/rulepack/internal/codec"
	"github.com/roach88/rulepack/internal/loader"
)

// Read decodes a package from in. Rules resolve their generated classes
// against the decoded dialect data first, then against parent.
func Read(in codec.Input, parent loader.ClassLoader) (*Package, error) {
	p := &Package{parent: parent}
	if err := p.ReadExternal(in); err != nil {
		return nil, err
	}
	return p, nil
}

// Serializer encodes packages onto byte streams in one framing mode.
type Serializer struct {
	framing codec.Framing
	parent  loader.ClassLoader
}

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithFraming selects the stream the package is written into.
// Default: codec.Framed.
func WithFraming(f codec.Framing) SerializerOption {
	return func(s *Serializer) {
		s.framing = f
	}
}

// WithParentLoader sets the loader decoded packages delegate to.
// Default: loader.System().
func WithParentLoader(l loader.ClassLoader) SerializerOption {
	return func(s *Serializer) {
		s.parent = l
	}
}

// NewSerializer returns a Serializer with the given options applied.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{framing: codec.Framed}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Framing returns the configured framing mode.
func (s *Serializer) Framing() codec.Framing {
	return s.framing
}

// Encode writes p to w.
func (s *Serializer) Encode(w io.Writer, p *Package) error {
	if s.framing == codec.Wrapped {
		return p.WriteExternal(codec.NewGobOutput(w))
	}
	cw := codec.NewWriter(w)
	if err := p.WriteExternal(cw); err != nil {
		return err
	}
	if err := cw.Flush(); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// Decode reads one package from r.
func (s *Serializer) Decode(r io.Reader) (*Package, error) {
	if s.framing == codec.Wrapped {
		return Read(codec.NewGobInput(r), s.parent)
	}
	return Read(codec.NewReader(r), s.parent)
}

// Marshal returns the encoded form of p.
func (s *Serializer) Marshal(p *Package) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a package produced by Marshal with the same framing.
func (s *Serializer) Unmarshal(data []byte) (*Package, error) {
	return s.Decode(bytes.NewReader(data))
}
