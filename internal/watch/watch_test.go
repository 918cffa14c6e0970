package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the batches handed to onChange.
type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) onChange(_ context.Context, changed []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, changed)
	return nil
}

func (r *recorder) first() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil
	}
	return r.batches[0]
}

func start(t *testing.T, cfg Config) *recorder {
	t.Helper()
	w, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, rec.onChange) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return rec
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestWatcher_FileDebounced(t *testing.T) {
	dir := t.TempDir()
	layout := filepath.Join(dir, "chip.yaml")
	other := filepath.Join(dir, "notes.yaml")
	write(t, layout, "top: a\n")
	write(t, other, "x\n")

	rec := start(t, Config{Paths: []string{layout}, Debounce: 50 * time.Millisecond})

	write(t, other, "y\n")
	write(t, layout, "top: b\n")
	write(t, layout, "top: c\n")

	require.Eventually(t, func() bool { return rec.first() != nil }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{layout}, rec.first(), "only the watched file, once")
}

func TestWatcher_DirectoryFiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	deck := filepath.Join(dir, "demo.cue")
	write(t, deck, "")

	rec := start(t, Config{Paths: []string{dir}, Debounce: 50 * time.Millisecond})

	write(t, filepath.Join(dir, "readme.txt"), "hi\n")
	write(t, filepath.Join(dir, ".hidden.cue"), "")
	write(t, deck, "rules: {}\n")

	require.Eventually(t, func() bool { return rec.first() != nil }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{deck}, rec.first())
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	rec := start(t, Config{Paths: []string{dir}, Debounce: 50 * time.Millisecond})

	sub := filepath.Join(dir, "cells")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher time to subscribe to the new directory.
	time.Sleep(200 * time.Millisecond)
	inner := filepath.Join(sub, "inv.yaml")
	write(t, inner, "cells: []\n")

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		for _, b := range rec.batches {
			for _, p := range b {
				if p == inner {
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNew_MissingPath(t *testing.T) {
	_, err := New(Config{Paths: []string{filepath.Join(t.TempDir(), "nope.yaml")}}, nil)
	assert.Error(t, err)
}
