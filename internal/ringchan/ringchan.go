// Package ringchan provides a bounded channel-like buffer with
// overwrite-oldest semantics and a retained backlog.
//
// Producers never block: when the buffer is full the oldest element is
// discarded. In addition to the live channel, the buffer retains a copy of
// the most recently sent elements so a consumer that attaches late can
// replay the tail of the stream (Backlog).
package ringchan

import (
	"sync"
	"sync/atomic"
)

// Ring is a bounded buffer of T with drop-oldest overflow behavior.
type Ring[T any] struct {
	ch      chan T
	metrics Metrics

	mu      sync.Mutex
	history []T // last cap(ch) sent values, oldest first
	closed  bool
}

// New creates a Ring with the given capacity. The backlog retains the same
// number of elements.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{
		ch:      make(chan T, capacity),
		history: make([]T, 0, capacity),
	}
}

// C returns the underlying receive-only channel. Consumers can range over
// it until the ring is closed. Reads via C() bypass the Processed metric.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Send inserts a value, discarding the oldest buffered element if full.
// It records the value in the backlog and never blocks indefinitely.
// Send on a closed ring is a no-op.
func (r *Ring[T]) Send(v T) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if len(r.history) == cap(r.history) {
		copy(r.history, r.history[1:])
		r.history = r.history[:len(r.history)-1]
	}
	r.history = append(r.history, v)

	select {
	case r.ch <- v:
		r.metrics.addWritten(1)
	default:
		select {
		case <-r.ch: // drop oldest
			r.metrics.addOverwritten(1)
		default:
		}
		r.ch <- v
		r.metrics.addWritten(1)
	}
	r.mu.Unlock()
}

// Receive blocks until a value is available or the ring is closed.
func (r *Ring[T]) Receive() (v T, ok bool) {
	v, ok = <-r.ch
	if ok {
		r.metrics.addProcessed(1)
	}
	return
}

// TryReceive attempts a non-blocking receive.
func (r *Ring[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-r.ch:
		if ok {
			r.metrics.addProcessed(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Backlog returns a copy of the retained tail of the stream, oldest first.
// The backlog includes values that have already been consumed from C().
func (r *Ring[T]) Backlog() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.history))
	copy(out, r.history)
	return out
}

// Len returns the number of unconsumed buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Close closes the ring. Subsequent Sends are dropped silently.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}

// GetMetrics returns an atomic snapshot of the ring's counters.
func (r *Ring[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&r.metrics.Written),
		Overwritten: atomic.LoadInt64(&r.metrics.Overwritten),
		Processed:   atomic.LoadInt64(&r.metrics.Processed),
	}
}

// Metrics tracks ring activity with lock-free counters.
type Metrics struct {
	Written     int64
	Overwritten int64
	Processed   int64
}

func (m *Metrics) addWritten(n int)     { atomic.AddInt64(&m.Written, int64(n)) }
func (m *Metrics) addOverwritten(n int) { atomic.AddInt64(&m.Overwritten, int64(n)) }
func (m *Metrics) addProcessed(n int)   { atomic.AddInt64(&m.Processed, int64(n)) }
