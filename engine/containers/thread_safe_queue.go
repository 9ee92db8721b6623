package containers

import "sync"

const defaultQueueCapacity = 64

// ThreadSafeQueue is an unbounded FIFO guarded by a single mutex. It carries
// jobs from dispatching threads to consumers and profiler events to the
// profiler thread.
type ThreadSafeQueue[T any] struct {
	mu   sync.Mutex
	ring *RingQueue[T]
}

func NewThreadSafeQueue[T any]() *ThreadSafeQueue[T] {
	return &ThreadSafeQueue[T]{ring: NewRingQueue[T](defaultQueueCapacity)}
}

// Push appends value at the back of the queue.
func (q *ThreadSafeQueue[T]) Push(value T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.IsFull() {
		q.ring = q.ring.grow()
	}
	// cannot fail, the ring has room
	_ = q.ring.Enqueue(value)
}

// Pop removes the front element. ok is false when the queue is empty.
func (q *ThreadSafeQueue[T]) Pop() (value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, err := q.ring.Dequeue()
	return v, err == nil
}

// Peek returns the front element without removing it.
func (q *ThreadSafeQueue[T]) Peek() (value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, err := q.ring.Peek()
	return v, err == nil
}

func (q *ThreadSafeQueue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.IsEmpty()
}

func (q *ThreadSafeQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Len()
}
