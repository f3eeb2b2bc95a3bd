package asyncutil

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

// Debouncer collapses bursts of Trigger calls into one trailing call.
type Debouncer struct {
	debounced func(func())

	mu      sync.Mutex
	stopped bool
}

// NewDebouncer returns a Debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{debounced: debounce.New(window)}
}

// Trigger schedules fn after the window. A later Trigger within the window
// replaces fn.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.debounced(func() {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

// Stop discards the pending call and ignores further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}
