package bus

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultCapacity is the default number of messages buffered per subscription.
const DefaultCapacity = 256

// Bus is a multi-producer, multi-consumer broadcast channel.
//
// It is safe for concurrent use. The zero value is not usable, create one with New.
type Bus struct {
	capacity int
	subs     *xsync.MapOf[uint64, *Subscription]
	nextID   atomic.Uint64
	closed   atomic.Bool
	metrics  Metrics
}

// New creates a bus whose subscriptions buffer at most capacity messages each.
// A capacity lower than 1 uses DefaultCapacity.
func New(capacity int) *Bus {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	return &Bus{
		capacity: capacity,
		subs:     xsync.NewMapOf[uint64, *Subscription](),
	}
}

// Capacity returns the per-subscription buffer capacity.
func (b *Bus) Capacity() int {
	return b.capacity
}

// SubscriberCount returns the number of open subscriptions.
func (b *Bus) SubscriberCount() int {
	return b.subs.Size()
}

// GetMetrics returns the metrics of the bus.
func (b *Bus) GetMetrics() *Metrics {
	return &b.metrics
}

// Subscribe registers a new subscription.
//
// The subscription receives every message published after Subscribe returns.
// A message published concurrently with Subscribe may or may not be received.
// Subscribing to a closed bus returns a subscription that is already closed.
func (b *Bus) Subscribe() *Subscription {
	sub := newSubscription(b, b.nextID.Add(1), b.capacity)

	if b.closed.Load() {
		sub.markClosed()
		return sub
	}

	b.subs.Store(sub.id, sub)
	b.metrics.incSubscriberGauge()

	// Close raced with the registration above
	if b.closed.Load() {
		sub.Close()
	}

	return sub
}

// Publish delivers msg to every open subscription and returns the number of
// subscriptions that received it.
//
// Publish never blocks. A full subscription drops its oldest message instead.
// The payload is shared by all receivers and must not be modified afterwards.
func (b *Bus) Publish(msg Message) int {
	if b.closed.Load() {
		return 0
	}

	b.metrics.incPublish(len(msg.Payload))

	delivered := 0
	b.subs.Range(func(_ uint64, sub *Subscription) bool {
		if sub.push(msg) {
			delivered++
		}

		return true
	})

	return delivered
}

// Close closes every subscription. Later publishes are discarded and later
// subscriptions are born closed. Buffered messages stay readable.
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.subs.Range(func(_ uint64, sub *Subscription) bool {
		sub.Close()
		return true
	})
}

func (b *Bus) unsubscribe(id uint64) {
	if _, ok := b.subs.LoadAndDelete(id); ok {
		b.metrics.decSubscriberGauge()
	}
}
