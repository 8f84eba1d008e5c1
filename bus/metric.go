package bus

import "sync/atomic"

// Metrics contains atomic metrics for a bus.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// PublishCount indicates the number of messages published.
	PublishCount atomic.Uint64
	// PublishBytes indicates the number of payload bytes published.
	PublishBytes atomic.Uint64
	// EnqueueCount indicates the number of per-subscription deliveries.
	EnqueueCount atomic.Uint64
	// DropCount indicates the number of messages dropped by the overflow policy.
	DropCount atomic.Uint64
	// SubscriberGauge indicates the number of open subscriptions.
	SubscriberGauge atomic.Int64
}

func (m *Metrics) incPublish(size int) {
	m.PublishCount.Add(1)
	m.PublishBytes.Add(uint64(size))
}

func (m *Metrics) incEnqueueCount() {
	m.EnqueueCount.Add(1)
}

func (m *Metrics) incDropCount() {
	m.DropCount.Add(1)
}

func (m *Metrics) incSubscriberGauge() {
	m.SubscriberGauge.Add(1)
}

func (m *Metrics) decSubscriberGauge() {
	m.SubscriberGauge.Add(-1)
}
