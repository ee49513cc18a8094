package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/loader"
)

// MaxBlobSize bounds any single length-prefixed field on decode so that a
// corrupt length cannot trigger an enormous allocation.
const MaxBlobSize = 256 << 20

// ErrFieldTooLarge is returned when a length prefix exceeds MaxBlobSize.
var ErrFieldTooLarge = errors.New("codec: field exceeds maximum size")

// Output is the minimal object stream a package can be written into:
// something that accepts one opaque byte-array object.
type Output interface {
	WriteBlob(p []byte) error
}

// Input mirrors Output.
type Input interface {
	ReadBlob() ([]byte, error)
}

// Writer is the engine stream encoder.
type Writer struct {
	w   *bufio.Writer
	buf [binary.MaxVarintLen64]byte
	err error
}

// NewWriter returns an engine stream writing to w.
// Call Flush (or Close) once done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

// WriteUint writes an unsigned varint.
func (w *Writer) WriteUint(v uint64) {
	n := binary.PutUvarint(w.buf[:], v)
	w.write(w.buf[:n])
}

// WriteInt writes a zig-zag signed varint.
func (w *Writer) WriteInt(v int64) {
	n := binary.PutVarint(w.buf[:], v)
	w.write(w.buf[:n])
}

// WriteBool writes a single 0/1 byte.
func (w *Writer) WriteBool(v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	w.write([]byte{b})
}

// WriteString writes a length-prefixed string.
func (w *Writer) WriteString(s string) {
	w.WriteUint(uint64(len(s)))
	if w.err != nil {
		return
	}
	_, w.err = w.w.WriteString(s)
}

// WriteBlob writes a length-prefixed byte slice. It implements Output.
func (w *Writer) WriteBlob(p []byte) error {
	w.WriteUint(uint64(len(p)))
	w.write(p)
	return w.err
}

// WriteCount writes a list count that keeps nil and empty apart:
// 0 is a nil list, n+1 is a list of n elements.
func (w *Writer) WriteCount(n int, isNil bool) {
	if isNil {
		w.WriteUint(0)
		return
	}
	w.WriteUint(uint64(n) + 1)
}

// WriteStrings writes a counted list of strings.
func (w *Writer) WriteStrings(ss []string) {
	w.WriteCount(len(ss), ss == nil)
	for _, s := range ss {
		w.WriteString(s)
	}
}

// WriteStringMap writes a counted map in sorted key order so that equal
// maps always encode to equal bytes.
func (w *Writer) WriteStringMap(m map[string]string) {
	w.WriteUint(uint64(len(m)))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		w.WriteString(k)
		w.WriteString(m[k])
	}
}

// Value tags. String payloads are written as raw bytes, never normalized.
const (
	valueAbsent byte = iota
	valueString
	valueInt
	valueBool
	valueList
	valueObject
)

// maxValueDepth bounds List/Object nesting on decode.
const maxValueDepth = 512

// WriteValue writes an attribute value. A nil value, or a nil top-level
// Object, is written as absent. Values holding nil elements fail with an
// error wrapping ir.ErrInvalidValue.
func (w *Writer) WriteValue(v ir.Value) {
	if w.err != nil {
		return
	}
	if obj, ok := v.(ir.Object); v == nil || (ok && obj == nil) {
		w.write([]byte{valueAbsent})
		return
	}
	if err := ir.Validate(v); err != nil {
		w.err = fmt.Errorf("codec: write value: %w", err)
		return
	}
	w.writeValue(v)
}

func (w *Writer) writeValue(v ir.Value) {
	switch val := v.(type) {
	case ir.String:
		w.write([]byte{valueString})
		w.WriteString(string(val))
	case ir.Int:
		w.write([]byte{valueInt})
		w.WriteInt(int64(val))
	case ir.Bool:
		w.write([]byte{valueBool})
		w.WriteBool(bool(val))
	case ir.List:
		w.write([]byte{valueList})
		w.WriteCount(len(val), val == nil)
		for _, elem := range val {
			w.writeValue(elem)
		}
	case ir.Object:
		w.write([]byte{valueObject})
		w.WriteCount(len(val), val == nil)
		for _, k := range slices.Sorted(maps.Keys(val)) {
			w.WriteString(k)
			w.writeValue(val[k])
		}
	}
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

// Close flushes the stream. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.Flush()
}

// Reader is the engine stream decoder.
type Reader struct {
	r        *bufio.Reader
	resolver loader.ClassLoader
	err      error
}

// NewReader returns an engine stream reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Err returns the first error encountered, if any.
// A stream that ends mid-field reports io.ErrUnexpectedEOF.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fail(err error) {
	if r.err != nil {
		return
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	r.err = err
}

// SetResolver installs the loader used by ResolveClass.
func (r *Reader) SetResolver(l loader.ClassLoader) {
	r.resolver = l
}

// Resolver returns the installed loader, or nil.
func (r *Reader) Resolver() loader.ClassLoader {
	return r.resolver
}

// ResolveClass resolves a class name against the installed resolver.
// Fails with loader.ErrClassNotFound when no resolver is installed.
func (r *Reader) ResolveClass(name string) (*ir.Class, error) {
	if r.resolver == nil {
		return nil, loader.NotFound(name)
	}
	return r.resolver.LoadClass(name)
}

// ReadUint reads an unsigned varint.
func (r *Reader) ReadUint() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(r.r)
	if err != nil {
		r.fail(err)
		return 0
	}
	return v
}

// ReadInt reads a zig-zag signed varint.
func (r *Reader) ReadInt() int64 {
	if r.err != nil {
		return 0
	}
	v, err := binary.ReadVarint(r.r)
	if err != nil {
		r.fail(err)
		return 0
	}
	return v
}

// ReadBool reads a single 0/1 byte.
func (r *Reader) ReadBool() bool {
	if r.err != nil {
		return false
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.fail(err)
		return false
	}
	switch b {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail(fmt.Errorf("codec: invalid bool byte 0x%02x", b))
		return false
	}
}

// ReadLen reads a length or count prefix and bounds it.
func (r *Reader) ReadLen() int {
	n := r.ReadUint()
	if n > MaxBlobSize {
		r.fail(fmt.Errorf("%w: %d bytes", ErrFieldTooLarge, n))
		return 0
	}
	return int(n)
}

// readBytes returns nil for a zero-length field.
func (r *Reader) readBytes() []byte {
	n := r.ReadLen()
	if r.err != nil || n == 0 {
		return nil
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r.r, p); err != nil {
		r.fail(err)
		return nil
	}
	return p
}

// ReadString reads a length-prefixed string.
func (r *Reader) ReadString() string {
	return string(r.readBytes())
}

// ReadBlob reads a length-prefixed byte slice. It implements Input.
func (r *Reader) ReadBlob() ([]byte, error) {
	p := r.readBytes()
	return p, r.err
}

// ReadCount reads a count written by WriteCount. isNil is true for a nil
// list and after any error.
func (r *Reader) ReadCount() (n int, isNil bool) {
	v := r.ReadUint()
	if r.err != nil || v == 0 {
		return 0, true
	}
	if v-1 > MaxBlobSize {
		r.fail(fmt.Errorf("%w: %d elements", ErrFieldTooLarge, v-1))
		return 0, true
	}
	return int(v - 1), false
}

// ReadStrings reads a counted list of strings. Nil and empty lists decode
// as they were written.
func (r *Reader) ReadStrings() []string {
	n, isNil := r.ReadCount()
	if isNil {
		return nil
	}
	out := make([]string, 0, min(n, 1024))
	for range n {
		s := r.ReadString()
		if r.err != nil {
			return nil
		}
		out = append(out, s)
	}
	return out
}

// ReadStringMap reads a counted string map. Always returns a non-nil map
// on success.
func (r *Reader) ReadStringMap() map[string]string {
	n := r.ReadLen()
	if r.err != nil {
		return nil
	}
	out := make(map[string]string, min(n, 1024))
	for range n {
		k := r.ReadString()
		v := r.ReadString()
		if r.err != nil {
			return nil
		}
		out[k] = v
	}
	return out
}

// ReadValue reads an attribute value. An absent value decodes to nil.
func (r *Reader) ReadValue() ir.Value {
	if r.readTag() == valueAbsent {
		return nil
	}
	r.unreadTag()
	return r.readValue(0)
}

func (r *Reader) readTag() byte {
	if r.err != nil {
		return valueAbsent
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.fail(err)
		return valueAbsent
	}
	return b
}

func (r *Reader) unreadTag() {
	if r.err == nil {
		r.err = r.r.UnreadByte()
	}
}

func (r *Reader) readValue(depth int) ir.Value {
	if depth > maxValueDepth {
		r.fail(fmt.Errorf("codec: read value: nesting deeper than %d", maxValueDepth))
		return nil
	}
	switch tag := r.readTag(); tag {
	case valueString:
		return ir.String(r.ReadString())
	case valueInt:
		return ir.Int(r.ReadInt())
	case valueBool:
		return ir.Bool(r.ReadBool())
	case valueList:
		n, isNil := r.ReadCount()
		if isNil {
			return ir.List(nil)
		}
		list := make(ir.List, 0, min(n, 1024))
		for range n {
			elem := r.readValue(depth + 1)
			if r.err != nil {
				return nil
			}
			list = append(list, elem)
		}
		return list
	case valueObject:
		n, isNil := r.ReadCount()
		if isNil {
			return ir.Object(nil)
		}
		obj := make(ir.Object, min(n, 1024))
		for range n {
			k := r.ReadString()
			elem := r.readValue(depth + 1)
			if r.err != nil {
				return nil
			}
			if _, dup := obj[k]; dup {
				r.fail(fmt.Errorf("codec: read value: duplicate key %q", k))
				return nil
			}
			obj[k] = elem
		}
		return obj
	default:
		if r.err == nil {
			r.fail(fmt.Errorf("codec: read value: unknown tag 0x%02x", tag))
		}
		return nil
	}
}

// ReadObject reads an attribute object. An absent value decodes to nil.
func (r *Reader) ReadObject() ir.Object {
	v := r.ReadValue()
	if v == nil {
		return nil
	}
	obj, ok := v.(ir.Object)
	if !ok {
		r.fail(fmt.Errorf("codec: expected object, got %T", v))
		return nil
	}
	return obj
}
