package store

import (
	"path/filepath"
	"testing"
)

// createTestStore opens a store in a fresh temporary directory and closes
// it when the test ends.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
