package codec

import (
	"encoding/gob"
	"fmt"
	"io"
)

// GobOutput is a generic Go object stream. It is not rules-aware: a package
// written into it is wrapped as one opaque byte-array object.
type GobOutput struct {
	enc *gob.Encoder
}

// NewGobOutput returns a generic object stream writing to w.
func NewGobOutput(w io.Writer) *GobOutput {
	return &GobOutput{enc: gob.NewEncoder(w)}
}

// WriteObject writes any gob-encodable value.
func (g *GobOutput) WriteObject(v any) error {
	if err := g.enc.Encode(v); err != nil {
		return fmt.Errorf("gob: write object: %w", err)
	}
	return nil
}

// WriteBlob implements Output.
func (g *GobOutput) WriteBlob(p []byte) error {
	if p == nil {
		p = []byte{}
	}
	return g.WriteObject(p)
}

// GobInput mirrors GobOutput.
type GobInput struct {
	dec *gob.Decoder
}

// NewGobInput returns a generic object stream reading from r.
func NewGobInput(r io.Reader) *GobInput {
	return &GobInput{dec: gob.NewDecoder(r)}
}

// ReadObject decodes the next value into v, which must be a pointer.
func (g *GobInput) ReadObject(v any) error {
	if err := g.dec.Decode(v); err != nil {
		return fmt.Errorf("gob: read object: %w", err)
	}
	return nil
}

// ReadBlob implements Input.
func (g *GobInput) ReadBlob() ([]byte, error) {
	var p []byte
	if err := g.ReadObject(&p); err != nil {
		return nil, err
	}
	return p, nil
}
