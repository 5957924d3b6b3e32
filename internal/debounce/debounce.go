// Package debounce coalesces bursts of calls per key into one delayed call.
package debounce

import (
	"sync"
	"time"
)

type entry struct {
	timer *time.Timer
	fn    func()
}

// Debouncer runs the latest function registered for a key once the key has
// been quiet for the configured delay. Pending calls can be flushed early
// and are all flushed on Close; nothing runs after Close returns.
type Debouncer[K comparable] struct {
	delay   time.Duration
	mu      sync.Mutex
	pending map[K]*entry
	closed  bool
	running sync.WaitGroup
}

func New[K comparable](delay time.Duration) *Debouncer[K] {
	return &Debouncer[K]{delay: delay, pending: map[K]*entry{}}
}

// Trigger schedules fn for key, replacing any call still pending for it.
// It returns false once the debouncer is closed.
func (d *Debouncer[K]) Trigger(key K, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if old, ok := d.pending[key]; ok {
		old.timer.Stop()
	}
	e := &entry{fn: fn}
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, e) })
	d.pending[key] = e
	return true
}

func (d *Debouncer[K]) fire(key K, e *entry) {
	d.mu.Lock()
	if cur, ok := d.pending[key]; !ok || cur != e {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.running.Add(1)
	d.mu.Unlock()
	defer d.running.Done()
	e.fn()
}

// take removes the pending entry for key, stopping its timer.
func (d *Debouncer[K]) take(key K) (*entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.pending[key]
	if !ok {
		return nil, false
	}
	e.timer.Stop()
	delete(d.pending, key)
	return e, true
}

// Flush runs the pending call for key immediately. It reports whether
// there was one.
func (d *Debouncer[K]) Flush(key K) bool {
	e, ok := d.take(key)
	if ok {
		e.fn()
	}
	return ok
}

// Cancel drops the pending call for key without running it.
func (d *Debouncer[K]) Cancel(key K) bool {
	_, ok := d.take(key)
	return ok
}

// FlushAll runs every pending call now and returns how many ran.
func (d *Debouncer[K]) FlushAll() int {
	d.mu.Lock()
	entries := make([]*entry, 0, len(d.pending))
	for k, e := range d.pending {
		e.timer.Stop()
		entries = append(entries, e)
		delete(d.pending, k)
	}
	d.mu.Unlock()
	for _, e := range entries {
		e.fn()
	}
	return len(entries)
}

// Pending returns the number of scheduled calls.
func (d *Debouncer[K]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close rejects new triggers, flushes what is pending and waits for timer
// callbacks already in flight.
func (d *Debouncer[K]) Close() int {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	n := d.FlushAll()
	d.running.Wait()
	return n
}
