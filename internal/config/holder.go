package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"svnscm/internal/asyncutil"
)

// reloadDebounce collapses editor save bursts (truncate + write + rename)
// into one reload.
const reloadDebounce = 200 * time.Millisecond

// Holder is the shared configuration snapshot. Components read it with Get
// and react to changes through Subscribe.
type Holder struct {
	mu     sync.RWMutex
	cfg    Config
	nextID int
	subs   map[int]func(old, new Config)
}

// NewHolder returns a Holder seeded with cfg. cfg is normalized the same way
// Load does.
func NewHolder(cfg Config) *Holder {
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		slog.Warn("[WARN-CONFIG] initial config invalid, using defaults", "error", err)
		cfg = DefaultConfig()
	}
	return &Holder{cfg: cfg, subs: make(map[int]func(old, new Config))}
}

// Get returns a deep copy of the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Clone(h.cfg)
}

// Update validates cfg, swaps it in and notifies subscribers synchronously
// in subscription order. Invalid configs are rejected and the current one
// stays active.
func (h *Holder) Update(cfg Config) error {
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return fmt.Errorf("update config: %w", err)
	}

	h.mu.Lock()
	old := h.cfg
	h.cfg = cfg
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	subs := make([]func(old, new Config), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(Clone(old), Clone(cfg))
	}
	return nil
}

// Subscribe registers fn for configuration changes. The returned cancel
// function is idempotent.
func (h *Holder) Subscribe(fn func(old, new Config)) (cancel func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// WatchFile reloads path into the holder whenever it changes on disk and
// blocks until ctx is done. The parent directory is watched so that
// rename-based saves are picked up. Parse errors keep the current config.
func (h *Holder) WatchFile(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch config %s: %w", target, err)
	}

	debouncer := asyncutil.NewDebouncer(reloadDebounce)
	defer debouncer.Stop()
	reload := func() {
		cfg, loadErr := Load(target)
		if loadErr != nil {
			slog.Warn("[WARN-CONFIG] config reload failed, keeping current settings", "path", target, "error", loadErr)
			return
		}
		if updateErr := h.Update(cfg); updateErr != nil {
			slog.Warn("[WARN-CONFIG] reloaded config rejected", "path", target, "error", updateErr)
			return
		}
		slog.Debug("[DEBUG-CONFIG] config reloaded", "path", target)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debouncer.Trigger(reload)
		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "path", target, "error", watchErr)
		}
	}
}
