// Package watch re-runs a job whenever template documents below a directory
// change.
//
// The watcher:
//  1. Runs the job once on start
//  2. Watches the directory tree for document creates, writes, removes and renames
//  3. Waits until changes have been quiet for the debounce interval
//  4. Runs the job again, one run at a time
//
// New subdirectories are picked up as they appear. Hidden directories are
// ignored.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fitlab/promptsync/internal/schema"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc is the job triggered by changes. Its error is logged and does not
// stop the watcher.
type RunFunc func(ctx context.Context) error

// Config holds watcher settings.
type Config struct {
	// Debounce is how long changes must be quiet before the job runs.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher triggers a RunFunc on document changes.
type Watcher struct {
	dir    string
	run    RunFunc
	config Config

	watcher *fsnotify.Watcher
	pending map[string]time.Time // path -> last event
}

// New creates a watcher for dir. Call Run to start it.
func New(dir string, run RunFunc, config Config) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("watch directory cannot be empty")
	}
	if run == nil {
		return nil, errors.New("run function cannot be nil")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		dir:     dir,
		run:     run,
		config:  config,
		watcher: watcher,
		pending: make(map[string]time.Time),
	}, nil
}

// Run performs the initial run, then watches until ctx is cancelled.
// It returns nil on cancellation and an error if dir cannot be watched.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	logger := w.config.Logger

	if err := w.addTree(w.dir); err != nil {
		return err
	}
	w.trigger(ctx, "initial")
	logger.Info("watching for changes", "dir", w.dir, "debounce", w.config.Debounce)

	ticker := time.NewTicker(w.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopped watching", "dir", w.dir)
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)

		case <-ticker.C:
			if w.settled(time.Now()) {
				w.trigger(ctx, "change")
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if hidden(w.rel(event.Name)) {
		return
	}

	if event.Has(fsnotify.Create) {
		// A new directory may already contain documents, e.g. after a move.
		if err := w.addTree(event.Name); err == nil && isDir(event.Name) {
			w.queue(event.Name)
			return
		}
	}

	if filepath.Ext(event.Name) != schema.FileExt {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.config.Logger.Debug("document changed", "op", event.Op.String(), "path", event.Name)
	w.queue(event.Name)
}

func (w *Watcher) queue(path string) {
	w.pending[path] = time.Now()
}

// settled reports whether changes are pending and the most recent one is at
// least one debounce interval old. It clears the queue when it returns true.
func (w *Watcher) settled(now time.Time) bool {
	if len(w.pending) == 0 {
		return false
	}
	for _, at := range w.pending {
		if now.Sub(at) < w.config.Debounce {
			return false
		}
	}
	clear(w.pending)
	return true
}

func (w *Watcher) trigger(ctx context.Context, reason string) {
	start := time.Now()
	err := w.run(ctx)
	if err != nil {
		w.config.Logger.Warn("run finished with errors", "reason", reason, "error", err,
			"duration", time.Since(start).Round(time.Millisecond))
		return
	}
	w.config.Logger.Info("run finished", "reason", reason, "duration", time.Since(start).Round(time.Millisecond))
}

// addTree watches root and every non-hidden directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dir && hidden(w.rel(path)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return path
	}
	return rel
}

func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
