package endpoint

import "sync/atomic"

// Metrics contains atomic metrics for endpoints.
// A single Metrics value may be shared by many endpoints to aggregate them.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// ReadCount indicates the number of non-empty chunks read and published.
	ReadCount atomic.Uint64
	// ReadBytes indicates the number of bytes read from transports.
	ReadBytes atomic.Uint64
	// WriteCount indicates the number of messages written to transports.
	WriteCount atomic.Uint64
	// WriteBytes indicates the number of bytes written to transports.
	WriteBytes atomic.Uint64
	// TimeoutCount indicates the number of transient read errors.
	TimeoutCount atomic.Uint64
	// SelfSkipCount indicates the number of self-originated messages discarded.
	SelfSkipCount atomic.Uint64
	// LagCount indicates the number of lag signals observed.
	LagCount atomic.Uint64
	// LagDropCount indicates the number of messages reported lost by lag signals.
	LagDropCount atomic.Uint64
	// ErrorCount indicates the number of fatal transport errors.
	ErrorCount atomic.Uint64
	// ActiveGauge indicates the number of running endpoints.
	ActiveGauge atomic.Int64
}

func (m *Metrics) incRead(size int) {
	m.ReadCount.Add(1)
	m.ReadBytes.Add(uint64(size))
}

func (m *Metrics) incWrite(size int) {
	m.WriteCount.Add(1)
	m.WriteBytes.Add(uint64(size))
}

func (m *Metrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *Metrics) incSelfSkipCount() {
	m.SelfSkipCount.Add(1)
}

func (m *Metrics) incLag(dropped uint64) {
	m.LagCount.Add(1)
	m.LagDropCount.Add(dropped)
}

func (m *Metrics) incErrorCount() {
	m.ErrorCount.Add(1)
}

func (m *Metrics) incActiveGauge() {
	m.ActiveGauge.Add(1)
}

func (m *Metrics) decActiveGauge() {
	m.ActiveGauge.Add(-1)
}
