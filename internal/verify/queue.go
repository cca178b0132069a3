package verify

import "sync"

// Item is one table verification unit: a fully qualified table name and the
// database it lives in. Immutable once enqueued; ownership passes from the
// queue to the worker that pops it.
type Item struct {
	Database string
	Table    string
}

// Queue is an unbounded FIFO of Items shared between the discovering
// coordinator and the draining workers. Push never blocks, so discovery is
// never held back by slow dumps. Pop blocks until an item is available or
// the queue is closed and empty.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Item
	closed bool
}

// NewQueue creates an empty open queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item to the tail and wakes one blocked consumer.
// Pushing to a closed queue is a no-op.
func (q *Queue) Push(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, item)
	q.cond.Signal()
}

// Pop removes and returns the head item, blocking while the queue is empty.
// Returns ok=false once the queue has been closed and fully drained; each
// pushed item is still delivered exactly once before that.
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Item{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len returns a best-effort snapshot of the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue as accepting no further items and wakes all blocked
// consumers. Items already queued are still drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
