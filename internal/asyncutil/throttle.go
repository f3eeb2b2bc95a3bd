package asyncutil

import (
	"context"
	"sync"
)

type throttleCall struct {
	ctx  context.Context
	done chan struct{}
	err  error
}

// Throttle runs fn with at most one call in flight and one queued.
// Callers arriving while a run is in flight all join the single queued run
// and receive its result.
type Throttle struct {
	fn func(ctx context.Context) error

	mu      sync.Mutex
	current *throttleCall
	next    *throttleCall
}

// NewThrottle wraps fn.
func NewThrottle(fn func(ctx context.Context) error) *Throttle {
	return &Throttle{fn: fn}
}

// Run starts fn or joins the queued run, then waits for its result.
// Cancelling ctx stops the wait only; a started run is not aborted because
// other callers may share it.
func (t *Throttle) Run(ctx context.Context) error {
	t.mu.Lock()
	var call *throttleCall
	switch {
	case t.current == nil:
		call = &throttleCall{ctx: context.WithoutCancel(ctx), done: make(chan struct{})}
		t.current = call
		t.mu.Unlock()
		go t.loop(call)
	case t.next == nil:
		call = &throttleCall{ctx: context.WithoutCancel(ctx), done: make(chan struct{})}
		t.next = call
		t.mu.Unlock()
	default:
		call = t.next
		t.mu.Unlock()
	}

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Throttle) loop(call *throttleCall) {
	for call != nil {
		call.err = t.fn(call.ctx)
		close(call.done)

		t.mu.Lock()
		call = t.next
		t.next = nil
		t.current = call
		t.mu.Unlock()
	}
}
