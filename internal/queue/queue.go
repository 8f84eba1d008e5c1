package queue

// Queue defines the interface for a bounded FIFO queue.
//
// Implementations are not goroutine-safe; the owner is expected to guard
// access with its own lock.
type Queue[T any] interface {
	// Enqueue adds an item to the tail of the queue.
	// It returns true if the oldest item was evicted to make room.
	Enqueue(item T) (evicted bool)
	// Dequeue removes and returns the item at the head of the queue.
	// The second return value is false if the queue is empty.
	Dequeue() (T, bool)
	// Peek returns the item at the head of the queue without removing it.
	Peek() (T, bool)
	// Reset to an empty queue
	Reset()
	// IsEmpty returns true if the queue is empty, false otherwise.
	IsEmpty() bool
	// Length returns the number of items in the queue.
	Length() int
	// Capacity returns the maximum number of items the queue holds.
	Capacity() int
}
