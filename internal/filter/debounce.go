package filter

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDelay is the quiet period before a filter edit is applied.
const DefaultDelay = 300 * time.Millisecond

// Debouncer calls fn with the most recent value once no new value has
// arrived for the configured delay.
type Debouncer[T any] struct {
	clock clockwork.Clock
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   clockwork.Timer
	gen     uint64
	pending T
	armed   bool
	stopped bool
}

// NewDebouncer creates a debouncer. A nil clock uses wall time.
func NewDebouncer[T any](clock clockwork.Clock, delay time.Duration, fn func(T)) *Debouncer[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[T]{clock: clock, delay: delay, fn: fn}
}

// Trigger records v and restarts the quiet period.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = v
	d.armed = true
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || !d.armed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.armed = false
	d.timer = nil
	d.mu.Unlock()
	d.fn(v)
}

// Flush applies a pending value immediately. It reports whether there was
// one.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.stopped || !d.armed {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	v := d.pending
	d.armed = false
	d.mu.Unlock()
	d.fn(v)
	return true
}

// Cancel drops a pending value without applying it.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.armed = false
}

// Stop cancels any pending call. Later triggers are ignored.
func (d *Debouncer[T]) Stop() {
	d.Cancel()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

// Pending reports whether a value is waiting for the quiet period to end.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}
