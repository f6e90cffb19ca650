package assistant

import "sync"

// fifo is an unbounded queue with a capacity-1 notify channel. Push never
// blocks; a consumer waits on Notify and then drains with Pop until empty.
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{notify: make(chan struct{}, 1)}
}

func (q *fifo[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *fifo[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

func (q *fifo[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *fifo[T]) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

func (q *fifo[T]) Notify() <-chan struct{} { return q.notify }
