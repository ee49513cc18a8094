// Package ir provides the artifact types a rule package is made of.
//
// This package contains type definitions and the canonical value encoding
// only. All other internal packages import ir; ir imports nothing internal.
// This keeps the artifact model the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - NO float types in attribute values - use int64 for numbers
//   - NO null in attribute values - absent keys express absence
//   - Class identities are carried by fully-qualified name, never by pointer
//   - Digests are computed over RFC 8785 canonical JSON only
package ir
