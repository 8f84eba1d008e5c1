package bridge

import "sync/atomic"

// Metrics contains atomic metrics for a bridge.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// AcceptCount indicates the number of TCP connections admitted.
	AcceptCount atomic.Uint64
	// RejectCount indicates the number of TCP connections closed by the client limit.
	RejectCount atomic.Uint64
	// AcceptErrCount indicates the number of failed accept calls.
	AcceptErrCount atomic.Uint64
	// ClientGauge indicates the number of connected TCP clients.
	ClientGauge atomic.Int64

	// SerialOpenCount indicates the number of successful serial opens.
	SerialOpenCount atomic.Uint64
	// SerialOpenErrCount indicates the number of failed serial opens.
	SerialOpenErrCount atomic.Uint64
	// SerialLossCount indicates the number of times the serial endpoint terminated unexpectedly.
	SerialLossCount atomic.Uint64
}

func (m *Metrics) incAcceptCount() {
	m.AcceptCount.Add(1)
}

func (m *Metrics) incRejectCount() {
	m.RejectCount.Add(1)
}

func (m *Metrics) incAcceptErrCount() {
	m.AcceptErrCount.Add(1)
}

func (m *Metrics) incClientGauge() {
	m.ClientGauge.Add(1)
}

func (m *Metrics) decClientGauge() {
	m.ClientGauge.Add(-1)
}

func (m *Metrics) incSerialOpenCount() {
	m.SerialOpenCount.Add(1)
}

func (m *Metrics) incSerialOpenErrCount() {
	m.SerialOpenErrCount.Add(1)
}

func (m *Metrics) incSerialLossCount() {
	m.SerialLossCount.Add(1)
}
