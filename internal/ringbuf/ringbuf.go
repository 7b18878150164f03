// Package ringbuf provides a bounded FIFO ring buffer. One producer and one
// consumer may call Push and Pop concurrently without locks.
package ringbuf

import "sync/atomic"

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// Ring is a fixed-capacity FIFO of T.
type Ring[T any] struct {
	buf []T

	// Separate cache lines to prevent false sharing between producer and consumer.
	_pad0 [cacheLine]byte
	head  atomic.Uint64 // written by producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // written by consumer
	_pad2 [cacheLine]byte

	overflow atomic.Uint64
}

// New creates a ring holding at most capacity items. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) slot(pos uint64) *T { return &r.buf[pos%uint64(len(r.buf))] }

// Push appends v. It returns false and counts an overflow if the ring is full.
func (r *Ring[T]) Push(v T) bool {
	head := r.head.Load()
	if head-r.tail.Load() >= uint64(len(r.buf)) {
		r.overflow.Add(1)
		return false
	}
	*r.slot(head) = v
	r.head.Store(head + 1)
	return true
}

// PushEvict appends v, discarding the oldest item if the ring is full.
// It reports whether an item was discarded. PushEvict advances the consumer
// side, so the caller must serialize it with Pop.
func (r *Ring[T]) PushEvict(v T) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	evicted := head-tail >= uint64(len(r.buf))
	if evicted {
		var zero T
		*r.slot(tail) = zero
		r.tail.Store(tail + 1)
		r.overflow.Add(1)
	}
	*r.slot(head) = v
	r.head.Store(head + 1)
	return evicted
}

// Pop removes the oldest item. Returns false if the ring is empty.
func (r *Ring[T]) Pop() (T, bool) {
	tail := r.tail.Load()
	if tail >= r.head.Load() {
		var zero T
		return zero, false
	}
	s := r.slot(tail)
	v := *s
	var zero T
	*s = zero
	r.tail.Store(tail + 1)
	return v, true
}

// Drain pops every item in FIFO order.
func (r *Ring[T]) Drain() []T {
	out := make([]T, 0, r.Len())
	for {
		v, ok := r.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Overflow returns the number of items rejected by Push or evicted by PushEvict.
func (r *Ring[T]) Overflow() uint64 {
	return r.overflow.Load()
}
