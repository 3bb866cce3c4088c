package connection

import "sync"

// queue is a FIFO for frames held while the connection is not Open:
// outbound control frames awaiting flush and inbound frames staged until
// the subscription replay finishes. Pushes beyond the optional hard limit
// are refused; the whole queue is drained at once on entry to Open.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
}

func newQueue[T any](limit int) *queue[T] {
	return &queue[T]{limit: limit}
}

// Push appends v. It reports false when the queue is at its hard limit.
func (q *queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.items) >= q.limit {
		return false
	}
	q.items = append(q.items, v)
	return true
}

// Drain removes and returns everything in FIFO order.
func (q *queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Reset discards the contents.
func (q *queue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
