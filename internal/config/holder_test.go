package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestHolderGetReturnsCopy(t *testing.T) {
	h := NewHolder(DefaultConfig())

	cfg := h.Get()
	cfg.Layout.Branches[0] = "mutated"

	if got := h.Get().Layout.Branches[0]; got != "branches" {
		t.Fatalf("holder state mutated through Get(): %q", got)
	}
}

func TestNewHolderNormalizesZeroConfig(t *testing.T) {
	h := NewHolder(Config{})
	if h.Get().Retry.LockMaxAttempts != 10 {
		t.Fatalf("NewHolder(Config{}) did not apply defaults: %+v", h.Get())
	}
}

func TestHolderUpdateNotifiesSubscribers(t *testing.T) {
	h := NewHolder(DefaultConfig())

	var mu sync.Mutex
	var calls []string
	cancelA := h.Subscribe(func(old, new Config) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "a")
		if !old.AutoRefresh || new.AutoRefresh {
			t.Errorf("subscriber a got old.AutoRefresh=%v new.AutoRefresh=%v", old.AutoRefresh, new.AutoRefresh)
		}
	})
	defer cancelA()
	cancelB := h.Subscribe(func(old, new Config) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "b")
	})

	next := DefaultConfig()
	next.AutoRefresh = false
	if err := h.Update(next); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if h.Get().AutoRefresh {
		t.Fatal("Update() did not swap config")
	}

	cancelB()
	cancelB()
	next.AutoRefresh = true
	if err := h.Update(next); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "a"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestHolderUpdateRejectsInvalidConfig(t *testing.T) {
	h := NewHolder(DefaultConfig())
	notified := false
	h.Subscribe(func(old, new Config) { notified = true })

	bad := DefaultConfig()
	bad.SvnPath = "svn\x00"
	if err := h.Update(bad); err == nil {
		t.Fatal("Update() expected validation error")
	}
	if notified {
		t.Fatal("subscriber notified for rejected config")
	}
	if h.Get().SvnPath != "" {
		t.Fatalf("rejected config became active: %q", h.Get().SvnPath)
	}
}

func TestHolderWatchFileReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("multiple_folders:\n  depth: 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	h := NewHolder(DefaultConfig())
	changed := make(chan Config, 8)
	h.Subscribe(func(_, new Config) {
		select {
		case changed <- new:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.WatchFile(ctx, path) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("WatchFile() error = %v", err)
		}
	}()

	deadline := time.After(10 * time.Second)
	rewrite := time.NewTicker(500 * time.Millisecond)
	defer rewrite.Stop()
	for {
		select {
		case cfg := <-changed:
			if cfg.MultipleFolders.Depth == 2 {
				return
			}
		case <-rewrite.C:
			// The watch may not be registered yet when the first write lands.
			if err := os.WriteFile(path, []byte("multiple_folders:\n  depth: 2\n"), 0o600); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("config change was not picked up")
		}
	}
}

func TestHolderWatchFileMissingDirectory(t *testing.T) {
	h := NewHolder(DefaultConfig())
	path := filepath.Join(t.TempDir(), "missing", "config.yaml")
	if err := h.WatchFile(context.Background(), path); err == nil {
		t.Fatal("WatchFile() expected error for missing directory")
	}
}
