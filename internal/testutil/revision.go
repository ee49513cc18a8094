package testutil

import (
	"fmt"
	"sync"
)

// SequenceRevisions generates numbered revision identifiers: "rev-000001",
// "rev-000002", and so on. Two stores fed the same saves through fresh
// generators record identical revisions, which keeps golden output stable.
//
// Thread-safety: all methods are safe for concurrent use.
type SequenceRevisions struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceRevisions creates a generator whose identifiers start with
// prefix. An empty prefix means "rev".
func NewSequenceRevisions(prefix string) *SequenceRevisions {
	if prefix == "" {
		prefix = "rev"
	}
	return &SequenceRevisions{prefix: prefix}
}

// Generate returns the next identifier in the sequence.
func (g *SequenceRevisions) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%06d", g.prefix, g.seq)
}

// Issued returns how many identifiers have been generated.
func (g *SequenceRevisions) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next call to Generate returns the
// first identifier again.
func (g *SequenceRevisions) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
