package bus

import (
	"context"
	"sync"

	"github.com/arloliu/go-serbridge/internal/queue"
)

// Subscription is one receiver's view of a Bus.
//
// Recv and TryRecv are meant to be called by a single goroutine, the owner of
// the subscription. Close may be called from any goroutine.
type Subscription struct {
	id  uint64
	bus *Bus

	mu      sync.Mutex
	queue   queue.Queue[Message]
	lagged  uint64 // drops not yet reported to the owner
	dropped uint64 // drops over the subscription lifetime
	closed  bool

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(b *Bus, id uint64, capacity int) *Subscription {
	return &Subscription{
		id:     id,
		bus:    b,
		queue:  queue.NewRingQueue[Message](capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push appends msg, evicting the oldest buffered message when full.
// It returns false if the subscription is closed.
func (s *Subscription) push(msg Message) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	if s.queue.Enqueue(msg) {
		s.lagged++
		s.dropped++
		s.bus.metrics.incDropCount()
	}
	s.mu.Unlock()

	s.bus.metrics.incEnqueueCount()

	select {
	case s.notify <- struct{}{}:
	default:
	}

	return true
}

// TryRecv returns the next buffered message without blocking.
//
// It returns a *LaggedError if messages were dropped since the last call,
// ErrEmpty if nothing is buffered, or ErrClosed once the subscription is
// closed and drained.
func (s *Subscription) TryRecv() (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lagged > 0 {
		n := s.lagged
		s.lagged = 0

		return Message{}, &LaggedError{Dropped: n}
	}

	if msg, ok := s.queue.Dequeue(); ok {
		return msg, nil
	}

	if s.closed {
		return Message{}, ErrClosed
	}

	return Message{}, ErrEmpty
}

// Recv waits for the next message.
//
// The error is a *LaggedError when messages were dropped, ErrClosed once the
// subscription is closed and every buffered message has been consumed, or
// ctx.Err() when ctx is done first.
func (s *Subscription) Recv(ctx context.Context) (Message, error) {
	for {
		msg, err := s.TryRecv()
		if err != ErrEmpty { //nolint:errorlint // sentinel returned unwrapped
			return msg, err
		}

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-s.notify:
		case <-s.done:
		}
	}
}

// Len returns the number of buffered messages.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queue.Length()
}

// Dropped returns the number of messages dropped from this subscription so far.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dropped
}

// Done returns a channel that is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription from the bus. Messages already buffered
// remain readable; Recv reports ErrClosed after the last one.
// It is safe to call Close more than once.
func (s *Subscription) Close() {
	s.markClosed()
	s.bus.unsubscribe(s.id)
}

func (s *Subscription) markClosed() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)
	})
}
