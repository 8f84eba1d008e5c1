// Package metrics exports the atomic counters of a bridge to Prometheus.
//
// The counters stay owned by the bridge, bus and endpoint packages; this
// package only registers CounterFunc and GaugeFunc collectors that read them
// at scrape time.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-serbridge/bridge"
	"github.com/arloliu/go-serbridge/bus"
	"github.com/arloliu/go-serbridge/endpoint"
	"github.com/arloliu/go-serbridge/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "serbridge"

// DefaultPath is the HTTP path the metrics are served on.
const DefaultPath = "/metrics"

// Source provides the metrics of one bridge.
type Source interface {
	GetMetrics() *bridge.Metrics
	GetBusMetrics() *bus.Metrics
	GetEndpointMetrics() *endpoint.Metrics
}

var _ Source = (*bridge.Bridge)(nil)

func counter(subsystem, name, help string, v *atomic.Uint64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(v.Load()) })
}

func gauge(subsystem, name, help string, v *atomic.Int64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(v.Load()) })
}

// Collectors returns the collectors reading src.
func Collectors(src Source) []prometheus.Collector {
	bm := src.GetMetrics()
	qm := src.GetBusMetrics()
	em := src.GetEndpointMetrics()

	return []prometheus.Collector{
		counter("bridge", "accepted_total", "TCP connections admitted.", &bm.AcceptCount),
		counter("bridge", "rejected_total", "TCP connections closed by the client limit.", &bm.RejectCount),
		counter("bridge", "accept_errors_total", "Failed accept calls.", &bm.AcceptErrCount),
		gauge("bridge", "clients", "Connected TCP clients.", &bm.ClientGauge),
		counter("bridge", "serial_opens_total", "Successful serial device opens.", &bm.SerialOpenCount),
		counter("bridge", "serial_open_errors_total", "Failed serial device opens.", &bm.SerialOpenErrCount),
		counter("bridge", "serial_losses_total", "Unexpected serial endpoint terminations.", &bm.SerialLossCount),

		counter("bus", "published_total", "Messages published.", &qm.PublishCount),
		counter("bus", "published_bytes_total", "Payload bytes published.", &qm.PublishBytes),
		counter("bus", "enqueued_total", "Per-subscriber deliveries.", &qm.EnqueueCount),
		counter("bus", "dropped_total", "Messages dropped because a subscriber was full.", &qm.DropCount),
		gauge("bus", "subscribers", "Open subscriptions.", &qm.SubscriberGauge),

		counter("endpoint", "reads_total", "Chunks read from transports.", &em.ReadCount),
		counter("endpoint", "read_bytes_total", "Bytes read from transports.", &em.ReadBytes),
		counter("endpoint", "writes_total", "Messages written to transports.", &em.WriteCount),
		counter("endpoint", "written_bytes_total", "Bytes written to transports.", &em.WriteBytes),
		counter("endpoint", "read_timeouts_total", "Transient read errors.", &em.TimeoutCount),
		counter("endpoint", "self_skips_total", "Self-originated messages discarded.", &em.SelfSkipCount),
		counter("endpoint", "lags_total", "Lag signals observed by endpoints.", &em.LagCount),
		counter("endpoint", "lag_dropped_total", "Messages reported lost by lag signals.", &em.LagDropCount),
		counter("endpoint", "errors_total", "Fatal transport errors.", &em.ErrorCount),
		gauge("endpoint", "active", "Running endpoints.", &em.ActiveGauge),
	}
}

// NewRegistry creates a registry holding the bridge collectors and the Go
// runtime and process collectors.
func NewRegistry(src Source) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	cs := append(Collectors(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// NewHandler returns an HTTP handler serving reg at DefaultPath and a
// liveness probe at /health.
func NewHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(DefaultPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return mux
}

// ListenAndServe serves handler on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, l logger.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	defer stop()

	l.Info("metrics server listening", "address", addr, "path", DefaultPath)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("metrics server failed", "address", addr, "error", err)
		return err
	}

	return nil
}
