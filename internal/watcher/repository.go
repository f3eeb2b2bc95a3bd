package watcher

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"svnscm/internal/svn"
)

// RepositoryWatcher watches one working copy. Working tree events and .svn
// events share one stream, distinguished by Event.Admin. Events under
// .svn/tmp and outside the working copy are dropped.
type RepositoryWatcher struct {
	wcRoot string

	tree  *Watcher
	admin *Watcher

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRepositoryWatcher watches workspaceRoot (which lies inside wcRoot). When
// the admin directory of wcRoot is not below workspaceRoot it gets its own
// watch.
func NewRepositoryWatcher(workspaceRoot, wcRoot string) (*RepositoryWatcher, error) {
	workspaceRoot = filepath.Clean(workspaceRoot)
	wcRoot = filepath.Clean(wcRoot)

	tree, err := New(workspaceRoot, Options{Skip: skipAdminInternals})
	if err != nil {
		return nil, err
	}
	rw := &RepositoryWatcher{
		wcRoot: wcRoot,
		tree:   tree,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	adminDir := filepath.Join(wcRoot, svn.AdminDirName)
	if !svn.IsDescendant(workspaceRoot, adminDir) {
		admin, err := New(adminDir, Options{Skip: func(string) bool { return true }})
		if err != nil {
			slog.Warn("[DEBUG-WATCH] admin directory watch failed", "path", adminDir, "error", err)
		} else {
			rw.admin = admin
		}
	}

	rw.forward(tree)
	if rw.admin != nil {
		rw.forward(rw.admin)
	}
	return rw, nil
}

// skipAdminInternals watches .svn itself but none of its subdirectories.
func skipAdminInternals(path string) bool {
	if filepath.Base(path) == svn.AdminDirName {
		return false
	}
	return svn.IsAdminPath(path)
}

func (rw *RepositoryWatcher) forward(w *Watcher) {
	rw.wg.Add(1)
	go func() {
		defer rw.wg.Done()
		for ev := range w.Events() {
			if !rw.relevant(ev.Path) {
				continue
			}
			ev.Admin = svn.IsAdminPath(ev.Path)
			select {
			case rw.events <- ev:
			case <-rw.done:
				return
			}
		}
	}()
}

func (rw *RepositoryWatcher) relevant(path string) bool {
	if !svn.IsDescendant(rw.wcRoot, path) {
		return false
	}
	slashed := svn.FixPathSeparator(path)
	return !strings.Contains(slashed, "/"+svn.AdminDirName+"/tmp")
}

// Events returns the filtered change stream.
func (rw *RepositoryWatcher) Events() <-chan Event { return rw.events }

// Close stops both watchers and closes Events.
func (rw *RepositoryWatcher) Close() error {
	var err error
	rw.closeOnce.Do(func() {
		close(rw.done)
		err = rw.tree.Close()
		if rw.admin != nil {
			if adminErr := rw.admin.Close(); err == nil {
				err = adminErr
			}
		}
		rw.wg.Wait()
		close(rw.events)
	})
	return err
}
