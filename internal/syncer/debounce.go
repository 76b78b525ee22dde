package syncer

import (
	"sync"
	"time"
)

// Debouncer runs fn once after the last of a burst of Arm calls.
//
// Each Arm cancels the pending run and schedules a new one delay later.
// A scheduled run fires at most once: either from its timer or from
// Flush, never both.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	idle    *sync.Cond
	timer   *time.Timer
	gen     uint64
	armed   bool
	running int
}

// NewDebouncer creates a Debouncer that calls fn delay after the last Arm.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	d := &Debouncer{delay: delay, fn: fn}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Arm schedules fn, replacing any run that has not fired yet.
func (d *Debouncer) Arm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.armed = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Cancel drops the scheduled run. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.armed {
		return false
	}
	d.timer.Stop()
	d.armed = false
	d.gen++
	return true
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Flush runs a scheduled fn immediately on the calling goroutine, then
// waits for any run already started by the timer. It reports whether it
// ran fn itself.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if !d.armed {
		d.waitLocked()
		d.mu.Unlock()
		return false
	}
	d.timer.Stop()
	d.armed = false
	d.gen++
	d.running++
	d.mu.Unlock()

	d.run()

	d.mu.Lock()
	d.waitLocked()
	d.mu.Unlock()
	return true
}

// Wait blocks until no run is executing.
func (d *Debouncer) Wait() {
	d.mu.Lock()
	d.waitLocked()
	d.mu.Unlock()
}

func (d *Debouncer) waitLocked() {
	for d.running > 0 {
		d.idle.Wait()
	}
}

// run calls fn for a run already counted in running.
func (d *Debouncer) run() {
	defer func() {
		d.mu.Lock()
		d.running--
		if d.running == 0 {
			d.idle.Broadcast()
		}
		d.mu.Unlock()
	}()
	d.fn()
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if !d.armed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.armed = false
	d.running++
	d.mu.Unlock()

	d.run()
}
