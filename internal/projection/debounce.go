package projection

import (
	"sync"
	"time"
)

// DefaultDebounce is the search input debounce window.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces rapid search input and calls fire with the last value
// once input has been quiet for the window.
type Debouncer struct {
	window time.Duration
	fire   func(string)

	mu      sync.Mutex
	timer   *time.Timer
	pending string
	seq     uint64
	stopped bool
}

// NewDebouncer creates a Debouncer. A non-positive window uses DefaultDebounce.
func NewDebouncer(window time.Duration, fire func(string)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{window: window, fire: fire}
}

// Input records a new value and restarts the window.
func (d *Debouncer) Input(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = s
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
	}
	seq := d.seq
	d.timer = time.AfterFunc(d.window, func() { d.flush(seq) })
}

// flush fires the pending value unless newer input arrived after the timer
// for seq was set. A timer that already fired cannot be stopped, so this
// check is what drops it.
func (d *Debouncer) flush(seq uint64) {
	d.mu.Lock()
	if d.stopped || seq != d.seq {
		d.mu.Unlock()
		return
	}
	s := d.pending
	d.timer = nil
	d.mu.Unlock()
	d.fire(s)
}

// Stop cancels any pending fire. Later input is ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
