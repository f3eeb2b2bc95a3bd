// Package watcher provides recursive file system watching on top of fsnotify,
// and the working copy watcher that separates svn administrative events from
// working tree events.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// eventBuffer is the capacity of the Events channel.
const eventBuffer = 256

// Event is a change below a watched root.
type Event struct {
	Path string
	Op   fsnotify.Op
	// Admin marks events inside a .svn directory (set by RepositoryWatcher).
	Admin bool
}

// Options configures a Watcher.
type Options struct {
	// Skip excludes a directory (and everything below it) from watching.
	Skip func(path string) bool
	// MaxDepth limits recursion below the root. 0 means unlimited.
	MaxDepth int
}

// Watcher watches a directory tree. Directories created later are added as
// they appear.
type Watcher struct {
	root string
	opts Options
	fs   *fsnotify.Watcher

	events chan Event
	errs   chan error
	done   chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts watching root.
func New(root string, opts Options) (*Watcher, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		root:   root,
		opts:   opts,
		fs:     fsw,
		events: make(chan Event, eventBuffer),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()
	slog.Debug("[DEBUG-WATCH] watcher started", "root", root, "watches", len(fsw.WatchList()))
	return w, nil
}

// Events returns the change stream. It is closed by Close.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns watcher errors. Errors are dropped when nobody reads them.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Root returns the watched root.
func (w *Watcher) Root() string { return w.root }

// Close stops watching and closes Events.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
		close(w.events)
	})
	return err
}

func (w *Watcher) depth(path string) int {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func (w *Watcher) skip(path string) bool {
	if path != w.root && w.opts.Skip != nil && w.opts.Skip(path) {
		return true
	}
	return w.opts.MaxDepth > 0 && w.depth(path) > w.opts.MaxDepth
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between readdir and stat.
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.skip(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			if path == w.root {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			slog.Debug("[DEBUG-WATCH] add watch failed", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !w.skip(ev.Name) {
					if err := w.addTree(ev.Name); err != nil {
						slog.Debug("[DEBUG-WATCH] watch new directory failed", "path", ev.Name, "error", err)
					}
				}
			}
			select {
			case w.events <- Event{Path: ev.Name, Op: ev.Op}:
			case <-w.done:
				return
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("[DEBUG-WATCH] event overflow", "root", w.root)
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}
