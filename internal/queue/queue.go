// Package queue provides an unbounded blocking FIFO used to hand work from
// producers that must never block to a single consuming goroutine.
package queue

import "sync"

type state int

const (
	open state = iota
	draining
	closed
)

// Unbounded is a FIFO with a blocking Pop and a non-blocking Push.
type Unbounded[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []T
	state state
}

func New[T any]() *Unbounded[T] {
	q := &Unbounded[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v. Returns false once the queue is closed.
func (q *Unbounded[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != open {
		return false
	}
	q.items = append(q.items, v)
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available. ok is false once the queue is closed
// (and, after Drain, emptied).
func (q *Unbounded[T]) Pop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && q.state == open {
		q.cond.Wait()
	}
	if q.state == closed || len(q.items) == 0 {
		var zero T
		return zero, false
	}
	v = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Close rejects further pushes and discards pending items.
func (q *Unbounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = closed
	q.items = nil
	q.cond.Broadcast()
}

// Drain rejects further pushes but lets Pop return the items already queued.
func (q *Unbounded[T]) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == open {
		q.state = draining
	}
	q.cond.Broadcast()
}

// Len returns the number of pending items.
func (q *Unbounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
