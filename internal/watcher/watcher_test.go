package watcher

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// waitFor reads events until match returns true or the timeout passes.
func waitFor(t *testing.T, events <-chan Event, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event channel closed")
			}
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestWatcherRecursiveAndNewDirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	w, err := New(root, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	existing := filepath.Join(root, "a", "b", "f.txt")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, w.Events(), func(ev Event) bool { return ev.Path == existing })

	newDir := filepath.Join(root, "c")
	if err := os.Mkdir(newDir, 0o755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, w.Events(), func(ev Event) bool { return ev.Path == newDir })

	// Give the loop a moment to register the new directory.
	time.Sleep(50 * time.Millisecond)
	inNew := filepath.Join(newDir, "g.txt")
	if err := os.WriteFile(inNew, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, w.Events(), func(ev Event) bool { return ev.Path == inNew })
}

func TestWatcherSkipAndDepth(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"node_modules/pkg", "one/two/three"} {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	w, err := New(root, Options{
		Skip:     func(p string) bool { return filepath.Base(p) == "node_modules" },
		MaxDepth: 2,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	watched := w.fs.WatchList()
	for _, want := range []string{root, filepath.Join(root, "one"), filepath.Join(root, "one", "two")} {
		if !slices.Contains(watched, want) {
			t.Errorf("WatchList missing %s: %v", want, watched)
		}
	}
	for _, notWant := range []string{filepath.Join(root, "node_modules"), filepath.Join(root, "one", "two", "three")} {
		if slices.Contains(watched, notWant) {
			t.Errorf("WatchList should not contain %s", notWant)
		}
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	_ = w.Close()
	if _, ok := <-w.Events(); ok {
		t.Fatal("Events not closed")
	}
}

func TestNewRejectsMissingRoot(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing"), Options{}); err == nil {
		t.Fatal("New(missing) error = nil, want error")
	}
}

func TestRepositoryWatcherSplitsAdminEvents(t *testing.T) {
	wc := t.TempDir()
	for _, dir := range []string{".svn/tmp", ".svn/pristine/ab", "src"} {
		if err := os.MkdirAll(filepath.Join(wc, filepath.FromSlash(dir)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	rw, err := NewRepositoryWatcher(wc, wc)
	if err != nil {
		t.Fatalf("NewRepositoryWatcher() error = %v", err)
	}
	defer rw.Close()

	treeFile := filepath.Join(wc, "src", "main.go")
	if err := os.WriteFile(treeFile, []byte("package main"), 0o644); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, rw.Events(), func(ev Event) bool { return ev.Path == treeFile })
	if ev.Admin {
		t.Fatal("working tree event marked admin")
	}

	if err := os.WriteFile(filepath.Join(wc, ".svn", "tmp", "junk"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	wcDB := filepath.Join(wc, ".svn", "wc.db")
	if err := os.WriteFile(wcDB, []byte("db"), 0o644); err != nil {
		t.Fatal(err)
	}
	ev = waitFor(t, rw.Events(), func(ev Event) bool {
		if filepath.Base(filepath.Dir(ev.Path)) == "tmp" {
			t.Errorf(".svn/tmp event leaked: %s", ev.Path)
		}
		return ev.Path == wcDB
	})
	if !ev.Admin {
		t.Fatal("wc.db event not marked admin")
	}
}

func TestRepositoryWatcherAdminOutsideWorkspace(t *testing.T) {
	wc := t.TempDir()
	sub := filepath.Join(wc, "project")
	for _, dir := range []string{".svn", "project"} {
		if err := os.MkdirAll(filepath.Join(wc, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	rw, err := NewRepositoryWatcher(sub, wc)
	if err != nil {
		t.Fatalf("NewRepositoryWatcher() error = %v", err)
	}
	defer rw.Close()
	if rw.admin == nil {
		t.Fatal("admin watcher not created for .svn outside workspace")
	}

	wcDB := filepath.Join(wc, ".svn", "wc.db")
	if err := os.WriteFile(wcDB, []byte("db"), 0o644); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, rw.Events(), func(ev Event) bool { return ev.Path == wcDB })
	if !ev.Admin {
		t.Fatal("admin event not marked")
	}
}
