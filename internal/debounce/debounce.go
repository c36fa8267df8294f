// Package debounce delays a call until its trigger has been quiet for a while.
package debounce

import (
	"sync"
	"time"
)

// Debouncer holds the pending call for one logical control.
// Each control owns its own Debouncer; nothing is shared between instances.
type Debouncer struct {
	delay   time.Duration
	maxWait time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	first   time.Time
	gen     uint64
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithMaxWait bounds how long a pending call may be postponed by later
// calls. Zero, the default, lets a steady stream of calls postpone it
// forever.
func WithMaxWait(d time.Duration) Option {
	return func(db *Debouncer) {
		db.maxWait = d
	}
}

// New returns a Debouncer that waits delay after the latest Call.
func New(delay time.Duration, opts ...Option) *Debouncer {
	d := &Debouncer{delay: delay}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Call schedules fn to run after the delay, replacing any pending call.
// With a max wait set, the call runs no later than max wait after the first
// call that found nothing pending.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if d.pending == nil {
		d.first = now
	}
	wait := d.delay
	if d.maxWait > 0 {
		if rem := d.maxWait - now.Sub(d.first); rem < wait {
			wait = max(rem, 0)
		}
	}

	d.gen++
	gen := d.gen
	d.pending = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(wait, func() {
		d.fire(gen)
	})
}

// Flush runs the pending call now, if any.
func (d *Debouncer) Flush() {
	d.fire(0)
}

// Stop cancels the pending call. It reports whether a call was cancelled.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	cancelled := d.pending != nil
	d.pending = nil
	return cancelled
}

// fire runs the pending call if gen is current. gen 0 always matches.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != 0 && gen != d.gen {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}
