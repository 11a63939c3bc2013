package autosave

import (
	"sync"
	"time"
)

// Debouncer runs a callback once edits have been quiet for a delay.
// Every Call restarts the wait; a timer that was restarted or cancelled
// never runs the callback.
type Debouncer struct {
	delay    time.Duration
	callback func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration, callback func()) *Debouncer {
	return &Debouncer{delay: delay, callback: callback}
}

// Call restarts the quiet period.
func (d *Debouncer) Call() {
	d.CallAfter(d.delay)
}

// CallAfter restarts the quiet period with an explicit delay, used for
// backoff after a failed save.
func (d *Debouncer) CallAfter(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.pending = true
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
}

// Cancel drops a scheduled call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.pending = false
}

// IsPending reports whether a call is scheduled.
func (d *Debouncer) IsPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// stopLocked stops the timer and invalidates a callback already on its way.
func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.callback()
}
