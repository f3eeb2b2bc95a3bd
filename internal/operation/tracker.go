package operation

import (
	"context"
	"maps"
	"sync"
)

// Tracker is a multiset of running operation kinds. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	running map[Kind]int
	// idle is closed while the tracker is idle and replaced when it turns busy.
	idle chan struct{}
}

// NewTracker returns an empty (idle) tracker.
func NewTracker() *Tracker {
	idle := make(chan struct{})
	close(idle)
	return &Tracker{running: make(map[Kind]int), idle: idle}
}

// Start records one more running instance of k.
func (t *Tracker) Start(k Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasIdle := t.isIdleLocked()
	t.running[k]++
	if wasIdle && !t.isIdleLocked() {
		t.idle = make(chan struct{})
	}
}

// End records that one instance of k finished. Ending a kind that is not
// running is a no-op.
func (t *Tracker) End(k Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.running[k]
	if !ok {
		return
	}
	wasIdle := t.isIdleLocked()
	if n <= 1 {
		delete(t.running, k)
	} else {
		t.running[k] = n - 1
	}
	if !wasIdle && t.isIdleLocked() {
		close(t.idle)
	}
}

// IsRunning reports whether at least one instance of k is running.
func (t *Tracker) IsRunning(k Kind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running[k] > 0
}

// IsIdle reports whether every running kind is read-only.
func (t *Tracker) IsIdle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isIdleLocked()
}

func (t *Tracker) isIdleLocked() bool {
	for k, n := range t.running {
		if n > 0 && !k.IsReadOnly() {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the running counts.
func (t *Tracker) Snapshot() map[Kind]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.running)
}

// WaitIdle blocks until the tracker is idle or ctx is done.
func (t *Tracker) WaitIdle(ctx context.Context) error {
	for {
		t.mu.Lock()
		idle := t.idle
		t.mu.Unlock()

		select {
		case <-idle:
			// Another Start may have made us busy again between the close
			// and this read.
			if t.IsIdle() {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
