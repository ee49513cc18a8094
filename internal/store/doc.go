// Package store provides SQLite-backed durable storage for rule packages.
//
// A package is stored in its binary form together with the metadata a
// registry needs without decoding it:
//   - packages: the current revision of every package, keyed by name
//   - package_revisions: every save, in the order it happened
//
// # Ordering
//
// Revisions are ordered by seq, a logical counter assigned inside the
// save transaction, never by wall time. Listings order by name using
// BINARY collation so results are identical across runs.
//
// # Integrity
//
// The manifest digest (see internal/ir/hash.go) is recorded on save and
// recomputed on load. A blob whose decoded package no longer matches its
// recorded digest is rejected with ErrDigestMismatch.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
