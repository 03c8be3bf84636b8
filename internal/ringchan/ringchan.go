// Package ringchan provides a bounded channel whose producers never block:
// when the buffer is full the oldest element is discarded.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// Ring is a bounded overwrite-oldest channel. Consumers read from C(); Push
// and Close may be called from any goroutine.
type Ring[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool

	written     atomic.Int64
	overwritten atomic.Int64
	rejected    atomic.Int64
}

// New creates a Ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Push inserts v, dropping the oldest buffered element if full. It reports
// whether an element was dropped. Push after Close is a no-op.
func (r *Ring[T]) Push(v T) (dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.rejected.Add(1)
		return false
	}

	for {
		select {
		case r.ch <- v:
			r.written.Add(1)
			return dropped
		default:
		}
		// Full: a concurrent reader may win the race for the head, so retry.
		select {
		case <-r.ch:
			r.overwritten.Add(1)
			dropped = true
		default:
		}
	}
}

// Close closes C. Safe to call more than once.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}

// Stats is a snapshot of the ring counters.
type Stats struct {
	Written     int64
	Overwritten int64
	Rejected    int64 // pushes after Close
}

func (r *Ring[T]) Stats() Stats {
	return Stats{
		Written:     r.written.Load(),
		Overwritten: r.overwritten.Load(),
		Rejected:    r.rejected.Load(),
	}
}
