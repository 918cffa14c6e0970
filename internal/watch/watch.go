// Package watch re-runs a callback when input files change.
//
// Editors often replace a file instead of writing it in place, so the
// watcher subscribes to the directories holding the watched paths and
// filters events by name. Events are debounced: the callback runs once
// the inputs have been quiet for the debounce interval, with every path
// that changed in the meantime. Callbacks never overlap.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config selects what to watch.
type Config struct {
	// Paths are files or directories. A directory matches every file in
	// it with one of Extensions; subdirectories are watched too.
	Paths    []string
	Debounce time.Duration
	// Extensions filters files inside watched directories.
	Extensions []string
}

// DefaultExtensions are the layout, config and technology file types.
var DefaultExtensions = []string{".yaml", ".yml", ".cue"}

// Watcher delivers debounced change notifications.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger *slog.Logger
	cfg    Config

	files map[string]bool // watched file paths
	dirs  map[string]bool // watched directory trees
}

// New subscribes to cfg.Paths. Every path must exist.
func New(cfg Config, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fs:     fsw,
		logger: logger,
		cfg:    cfg,
		files:  make(map[string]bool),
		dirs:   make(map[string]bool),
	}
	for _, p := range cfg.Paths {
		if err := w.add(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch %q: %w", path, err)
	}
	if !info.IsDir() {
		w.files[abs] = true
		if err := w.fs.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watch directory of %q: %w", path, err)
		}
		return nil
	}
	w.dirs[abs] = true
	return filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != abs && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			return fmt.Errorf("watch directory %q: %w", p, err)
		}
		return nil
	})
}

// relevant reports whether an event on name concerns a watched input.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(ev.Name)
	if w.files[name] {
		return true
	}
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range w.cfg.Extensions {
		if ext != strings.ToLower(e) {
			continue
		}
		for dir := range w.dirs {
			if strings.HasPrefix(name, dir+string(filepath.Separator)) {
				return true
			}
		}
	}
	return false
}

// Run delivers changes to onChange until ctx is done. Errors returned by
// onChange are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string) error) error {
	defer w.fs.Close()

	w.logger.Info("watching inputs", "paths", w.cfg.Paths, "debounce", w.cfg.Debounce)

	pending := make(map[string]bool)
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if ev.Has(fsnotify.Create) {
				w.watchNewDir(ev.Name)
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("input changed", "path", ev.Name, "op", ev.Op.String())
			pending[filepath.Clean(ev.Name)] = true
			timer.Reset(w.cfg.Debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			if err := onChange(ctx, changed); err != nil {
				w.logger.Error("change handler failed", "error", err)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// watchNewDir subscribes to a directory created inside a watched tree.
func (w *Watcher) watchNewDir(name string) {
	name = filepath.Clean(name)
	inside := false
	for dir := range w.dirs {
		if strings.HasPrefix(name, dir+string(filepath.Separator)) {
			inside = true
			break
		}
	}
	if !inside {
		return
	}
	info, err := os.Stat(name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.fs.Add(name); err != nil {
		w.logger.Warn("cannot watch new directory", "path", name, "error", err)
	}
}
