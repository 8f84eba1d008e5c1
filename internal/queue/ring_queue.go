package queue

// ringQueue is a fixed-capacity circular queue.
// When the queue is full, Enqueue overwrites the oldest item.
//
// It implements the Queue interface.
type ringQueue[T any] struct {
	items []T
	head  int
	size  int
}

var _ Queue[int] = (*ringQueue[int])(nil)

// NewRingQueue creates a new ring queue holding at most capacity items.
// A capacity lower than 1 is treated as 1.
func NewRingQueue[T any](capacity int) Queue[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &ringQueue[T]{items: make([]T, capacity)}
}

// Enqueue adds an item to the tail of the queue, evicting the head if the queue is full.
func (q *ringQueue[T]) Enqueue(item T) bool {
	capacity := len(q.items)
	if q.size == capacity {
		// overwrite the oldest slot and advance head
		q.items[q.head] = item
		q.head = (q.head + 1) % capacity

		return true
	}

	q.items[(q.head+q.size)%capacity] = item
	q.size++

	return false
}

// Dequeue removes and returns the item at the head of the queue.
func (q *ringQueue[T]) Dequeue() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero // release reference
	q.head = (q.head + 1) % len(q.items)
	q.size--

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *ringQueue[T]) Peek() (T, bool) {
	if q.size == 0 {
		var zero T
		return zero, false
	}

	return q.items[q.head], true
}

// Reset resets the queue to an empty state.
func (q *ringQueue[T]) Reset() {
	clear(q.items)
	q.head = 0
	q.size = 0
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *ringQueue[T]) IsEmpty() bool {
	return q.size == 0
}

// Length returns the number of items in the queue.
func (q *ringQueue[T]) Length() int {
	return q.size
}

// Capacity returns the maximum number of items in the queue.
func (q *ringQueue[T]) Capacity() int {
	return len(q.items)
}
