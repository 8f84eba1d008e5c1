// Package bus provides the in-process fan-out channel that distributes
// messages between the endpoints of a bridge.
//
// Every endpoint owns one Subscription. Publish delivers a message to every
// current subscription, including the one held by the publishing endpoint;
// the bus does not look at the origin of a message, suppressing self-echo is
// the job of the receiving endpoint.
//
// # Backpressure
//
// Each subscription buffers at most Capacity messages in a ring. Publishing
// never blocks: when a subscription is full its oldest buffered message is
// dropped to make room. The owner learns about the loss on its next Recv,
// which returns a *LaggedError carrying the number of dropped messages
// before delivery resumes with the oldest message still buffered.
//
// # Ordering
//
// Messages published by one goroutine reach every subscription in publish
// order. No ordering is defined between concurrent publishers.
package bus
