// Package codec implements the object streams a rule package is written to.
//
// Two kinds of stream exist:
//
//   - The engine stream (Writer/Reader): a binary stream of length-prefixed
//     primitives that understands attribute values and can resolve generated
//     class names against compiled artifacts while decoding.
//   - Generic streams (GobOutput/GobInput): plain Go object streams that
//     know nothing about rules. A package written into one wraps its whole
//     engine-stream encoding as a single opaque byte-array object.
//
// Which path a writer takes is decided by the runtime type of the stream it
// is handed, never by a magic byte.
//
// # Wire primitives
//
//   - uint:   unsigned varint
//   - int:    zig-zag signed varint
//   - bool:   one byte, 0 or 1
//   - string: uint length + UTF-8 bytes
//   - blob:   uint length + raw bytes
//   - value:  blob holding RFC 8785 canonical JSON (empty blob = absent)
//
// Writers and Readers carry a sticky error: after the first failure every
// further call is a no-op and Err reports that failure.
package codec
