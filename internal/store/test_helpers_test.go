package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rulepack/internal/testutil"
)

// createTestStore creates a new file-backed store with numbered revisions.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithRevisionGenerator(testutil.NewSequenceRevisions(""))}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
