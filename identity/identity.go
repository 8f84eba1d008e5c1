// Package identity issues process-unique endpoint identifiers.
//
// Every endpoint of a bridge gets an ID when it is created. Messages on the
// bus carry the ID of the endpoint that read them, which is how an endpoint
// recognizes (and suppresses) its own traffic. IDs are compared by equality
// only and are never reused while the process is alive.
package identity

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// ID identifies one endpoint for the lifetime of the process.
type ID uint64

// String returns the decimal representation of the ID.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Allocator issues IDs. Implementations must be safe for concurrent use and
// must never return the same ID twice.
type Allocator interface {
	NextID() ID
}

// SequentialAllocator hands out monotonically increasing IDs from an atomic counter.
type SequentialAllocator struct {
	next atomic.Uint64
}

var _ Allocator = (*SequentialAllocator)(nil)

// NewSequentialAllocator creates an allocator whose first ID is start.
func NewSequentialAllocator(start ID) *SequentialAllocator {
	a := &SequentialAllocator{}
	a.next.Store(uint64(start))

	return a
}

// NextID returns the next ID. It is safe to call concurrently.
func (a *SequentialAllocator) NextID() ID {
	return ID(a.next.Add(1) - 1)
}

var (
	defaultAllocator *SequentialAllocator
	once             sync.Once
)

// Default returns the process-wide allocator. Its first ID is 1.
func Default() Allocator {
	once.Do(func() {
		defaultAllocator = NewSequentialAllocator(1)
	})

	return defaultAllocator
}

// Next returns the next ID of the process-wide allocator.
func Next() ID {
	return Default().NextID()
}
