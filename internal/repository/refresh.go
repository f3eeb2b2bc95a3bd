package repository

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"svnscm/internal/asyncutil"
	"svnscm/internal/config"
	"svnscm/internal/operation"
	"svnscm/internal/workerutil"
)

type lifecycle struct {
	mu        sync.Mutex
	started   bool
	disposed  bool
	cancel    context.CancelFunc
	source    EventSource
	debouncer *asyncutil.Debouncer
	cfgCancel func()
	refresh   chan struct{}
	pollReset chan struct{}
	wg        sync.WaitGroup
}

// Start launches the file system watcher, the debounced refresh worker and
// the remote polling worker. It is a no-op after the first call.
func (c *Controller) Start(ctx context.Context) {
	lc := &c.lifecycle
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.started || lc.disposed {
		return
	}
	lc.started = true

	runCtx, cancel := context.WithCancel(ctx)
	lc.cancel = cancel
	lc.refresh = make(chan struct{}, 1)
	lc.pollReset = make(chan struct{}, 1)

	cfg := c.cfg.Get()
	lc.debouncer = asyncutil.NewDebouncer(cfg.AutoRefreshDebounce)
	root := c.wc.Root()
	recovery := workerutil.RecoveryOptions{
		IsShutdown: func() bool { return runCtx.Err() != nil },
	}

	if cfg.AutoRefresh && c.newWatcher != nil {
		source, err := c.newWatcher(c.wc.WorkspaceRoot(), root)
		if err != nil {
			slog.Warn("[DEBUG-REPO] file watcher unavailable, auto refresh disabled", "root", root, "error", err)
		} else {
			lc.source = source
			workerutil.RunWithPanicRecovery(runCtx, "repository-watch:"+root, &lc.wg, func(ctx context.Context) {
				c.watchLoop(ctx, source)
			}, recovery)
		}
	}
	workerutil.RunWithPanicRecovery(runCtx, "repository-refresh:"+root, &lc.wg, c.refreshLoop, recovery)
	workerutil.RunWithPanicRecovery(runCtx, "repository-poll:"+root, &lc.wg, c.pollLoop, recovery)
	lc.cfgCancel = c.cfg.Subscribe(c.onConfigChanged)
}

// Dispose stops every worker and moves the controller to StateDisposed.
// Later Run calls fail with ErrNotInitialized. Dispose must not be called
// from a controller event handler.
func (c *Controller) Dispose() {
	c.setState(StateDisposed)

	lc := &c.lifecycle
	lc.mu.Lock()
	if lc.disposed {
		lc.mu.Unlock()
		return
	}
	lc.disposed = true
	cancel, source, debouncer, cfgCancel := lc.cancel, lc.source, lc.debouncer, lc.cfgCancel
	lc.mu.Unlock()

	if debouncer != nil {
		debouncer.Stop()
	}
	if cfgCancel != nil {
		cfgCancel()
	}
	if cancel != nil {
		cancel()
	}
	if source != nil {
		if err := source.Close(); err != nil {
			slog.Debug("[DEBUG-REPO] watcher close failed", "root", c.wc.Root(), "error", err)
		}
	}
	lc.wg.Wait()
	slog.Debug("[DEBUG-REPO] controller disposed", "root", c.wc.Root())
}

// RequestRefresh schedules a debounced status refresh. The refresh waits
// until no mutating operation runs and the UI is focused.
func (c *Controller) RequestRefresh() {
	lc := &c.lifecycle
	lc.mu.Lock()
	debouncer, refresh := lc.debouncer, lc.refresh
	lc.mu.Unlock()
	if debouncer == nil {
		return
	}
	debouncer.Trigger(func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})
}

func (c *Controller) watchLoop(ctx context.Context, source EventSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-source.Events():
			if !ok {
				return
			}
			if ev.Admin {
				c.emit(Event{Kind: EventRepositoryChanged})
			}
			c.RequestRefresh()
		}
	}
}

func (c *Controller) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.lifecycle.refresh:
			if err := c.waitIdleAndFocused(ctx); err != nil {
				return
			}
			if err := c.Run(ctx, operation.Status, nil); err != nil {
				if errors.Is(err, ErrNotInitialized) || ctx.Err() != nil {
					return
				}
				slog.Warn("[DEBUG-REPO] background refresh failed", "root", c.wc.Root(), "error", err)
			}
		}
	}
}

func (c *Controller) pollLoop(ctx context.Context) {
	for {
		interval := c.cfg.Get().RemoteChanges.CheckFrequency
		var timer *time.Timer
		var tick <-chan time.Time
		if interval > 0 {
			timer = time.NewTimer(interval)
			tick = timer.C
		}
		stop := func() {
			if timer != nil {
				timer.Stop()
			}
		}

		select {
		case <-ctx.Done():
			stop()
			return
		case <-c.lifecycle.pollReset:
			stop()
		case <-tick:
			if err := c.waitIdleAndFocused(ctx); err != nil {
				return
			}
			// Polling may have been switched off while this tick waited.
			if c.cfg.Get().RemoteChanges.CheckFrequency == 0 {
				continue
			}
			if err := c.Run(ctx, operation.StatusRemote, nil); err != nil {
				if errors.Is(err, ErrNotInitialized) || ctx.Err() != nil {
					return
				}
				slog.Warn("[DEBUG-REPO] remote status poll failed", "root", c.wc.Root(), "error", err)
			}
		}
	}
}

func (c *Controller) waitIdleAndFocused(ctx context.Context) error {
	if err := c.tracker.WaitIdle(ctx); err != nil {
		return err
	}
	if c.focus != nil {
		return c.focus.WaitFocused(ctx)
	}
	return nil
}

func (c *Controller) onConfigChanged(old, new config.Config) {
	c.applyWorkingCopySettings(new)

	if old.RemoteChanges.CheckFrequency != new.RemoteChanges.CheckFrequency {
		if new.RemoteChanges.CheckFrequency == 0 {
			c.clearRemoteChanges()
		}
		select {
		case c.lifecycle.pollReset <- struct{}{}:
		default:
		}
	}

	if !reflect.DeepEqual(old.SourceControl, new.SourceControl) ||
		!reflect.DeepEqual(old.FilesExclude, new.FilesExclude) {
		c.RequestRefresh()
	}
}
