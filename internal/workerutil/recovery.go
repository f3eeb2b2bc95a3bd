// Package workerutil runs long-lived background goroutines (watchers, pollers)
// that restart themselves after a panic.
package workerutil

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultMaxRetries     = 10
)

// RecoveryOptions controls restarts. Zero values select the defaults
// (100ms initial backoff doubling up to 5s, 10 runs).
type RecoveryOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxRetries is the total number of runs. 1 disables restarts.
	MaxRetries int

	// OnPanic is called after each recovered panic with the 1-based run number.
	OnPanic func(worker string, attempt int)
	// OnFatal is called once the worker gave up.
	OnFatal func(worker string, maxRetries int)
	// IsShutdown suppresses restarts while the owner is tearing down.
	IsShutdown func() bool
}

func (opts RecoveryOptions) withDefaults() RecoveryOptions {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		slog.Debug("[DEBUG-PANIC] max backoff below initial backoff, raising it",
			"initialBackoff", opts.InitialBackoff, "maxBackoff", opts.MaxBackoff)
		opts.MaxBackoff = opts.InitialBackoff
	}
	return opts
}

func (opts RecoveryOptions) shuttingDown() bool {
	return opts.IsShutdown != nil && opts.IsShutdown()
}

// RunWithPanicRecovery starts fn on a goroutine tracked by wg. A normal
// return of fn ends the worker. A panic is logged with its stack and fn is
// started again after a backoff, until ctx is done, IsShutdown reports true
// or MaxRetries runs panicked.
func RunWithPanicRecovery(
	ctx context.Context,
	name string,
	wg *sync.WaitGroup,
	fn func(ctx context.Context),
	opts RecoveryOptions,
) {
	opts = opts.withDefaults()
	wg.Go(func() {
		supervise(ctx, name, fn, opts)
	})
}

func supervise(ctx context.Context, name string, fn func(ctx context.Context), opts RecoveryOptions) {
	delay := opts.InitialBackoff

	for run := 1; run <= opts.MaxRetries; run++ {
		if !runOnce(ctx, name, fn) || ctx.Err() != nil {
			return
		}
		if opts.shuttingDown() {
			slog.Debug("[DEBUG-PANIC] shutting down, worker not restarted", "worker", name)
			return
		}
		if opts.OnPanic != nil {
			opts.OnPanic(name, run)
		}
		if run == opts.MaxRetries {
			break
		}

		slog.Warn("[DEBUG-PANIC] restarting worker", "worker", name, "run", run, "delay", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = nextBackoff(delay, opts.MaxBackoff)
	}

	slog.Error("[DEBUG-PANIC] worker keeps panicking, giving up", "worker", name, "runs", opts.MaxRetries)
	if opts.OnFatal != nil {
		opts.OnFatal(name, opts.MaxRetries)
	}
}

// runOnce reports whether fn panicked.
func runOnce(ctx context.Context, name string, fn func(ctx context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[DEBUG-PANIC] worker panicked",
				"worker", name, "panic", r, "stack", string(debug.Stack()))
			panicked = true
		}
	}()
	fn(ctx)
	return false
}

// nextBackoff doubles current up to limit, guarding against overflow.
func nextBackoff(current, limit time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	next := current * 2
	if next > limit || next < current {
		return limit
	}
	return next
}
