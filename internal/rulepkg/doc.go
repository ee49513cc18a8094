// Package rulepkg implements the rule package: the named namespace that
// aggregates rules, rule flows, functions, type declarations, imports,
// fact templates, globals and the compiled dialect artifacts that back
// them.
//
// A Package is a single-writer build artifact. The compiler populates it
// and calls CheckValidity; a host serializes it; a runtime deserializes it
// and hands its rules and dialect data to the engine. Mutating methods
// (Add*, Remove*, Clear, SetError, ReadExternal) must not run concurrently
// with anything else on the same instance. Read-only methods may run
// concurrently with each other; collection getters return copies.
//
// # Binary form
//
// WriteExternal emits these fields, in this order, into an engine stream:
//
//  1. dialect data (opaque blob; first, so later class names resolve)
//  2. type declarations
//  3. name
//  4. imports
//  5. static imports
//  6. functions
//  7. fact templates
//  8. rule flows
//  9. globals
//  10. valid
//  11. rules (insertion order, load orders included)
//  12. error summary (presence flag + string)
//
// Handed a generic stream instead, the package encodes the same fields into
// a fresh engine stream and writes the resulting bytes as one object.
// ReadExternal mirrors both paths.
package rulepkg
