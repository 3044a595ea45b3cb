package ipc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/saukko/sensorfw/metric"
)

// Metrics holds Prometheus metrics for the IPC session layer
type Metrics struct {
	sessionsActive    prometheus.Gauge
	writesTotal       *prometheus.CounterVec
	samplesCoalesced  prometheus.Counter
	bytesWritten      prometheus.Counter
	writesUnknown     prometheus.Counter
	handshakeFailures *prometheus.CounterVec
	sessionsLost      prometheus.Counter
	writeDuration     prometheus.Histogram
}

// newMetrics creates and registers IPC metrics.
// Returns nil if no registry is provided (nil input = nil feature pattern).
func newMetrics(registry *metric.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensorfw",
			Subsystem: "ipc",
			Name:      "sessions_active",
			Help:      "Number of sessions currently registered",
		}),
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorfw",
			Subsystem: "ipc",
			Name:      "writes_total",
			Help:      "Sample deliveries by mode",
		}, []string{"mode"}),
		samplesCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorfw",
			Subsystem: "ipc",
			Name:      "samples_coalesced_total",
			Help:      "Pending samples overwritten before delivery",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorfw",
			Subsystem: "ipc",
			Name:      "bytes_written_total",
			Help:      "Total payload bytes delivered to clients",
		}),
		writesUnknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorfw",
			Subsystem: "ipc",
			Name:      "writes_unknown_session_total",
			Help:      "Writes addressed to sessions not in the table",
		}),
		handshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorfw",
			Subsystem: "ipc",
			Name:      "handshake_failures_total",
			Help:      "Connections dropped before session binding",
		}, []string{"reason"}),
		sessionsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorfw",
			Subsystem: "ipc",
			Name:      "sessions_lost_total",
			Help:      "Sessions whose transport disconnected",
		}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sensorfw",
			Subsystem: "ipc",
			Name:      "write_duration_seconds",
			Help:      "Time spent writing a payload to a client socket",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}

	const serviceName = "ipc"
	registry.RegisterGauge(serviceName, "sessions_active", metrics.sessionsActive)
	registry.RegisterCounterVec(serviceName, "writes_total", metrics.writesTotal)
	registry.RegisterCounter(serviceName, "samples_coalesced", metrics.samplesCoalesced)
	registry.RegisterCounter(serviceName, "bytes_written", metrics.bytesWritten)
	registry.RegisterCounter(serviceName, "writes_unknown_session", metrics.writesUnknown)
	registry.RegisterCounterVec(serviceName, "handshake_failures", metrics.handshakeFailures)
	registry.RegisterCounter(serviceName, "sessions_lost", metrics.sessionsLost)
	registry.RegisterHistogram(serviceName, "write_duration", metrics.writeDuration)

	return metrics
}

func (m *Metrics) recordWrite(mode string, n int, seconds float64) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(mode).Inc()
	m.bytesWritten.Add(float64(n))
	m.writeDuration.Observe(seconds)
}

func (m *Metrics) recordCoalesced() {
	if m == nil {
		return
	}
	m.samplesCoalesced.Inc()
}

func (m *Metrics) recordUnknownWrite() {
	if m == nil {
		return
	}
	m.writesUnknown.Inc()
}

func (m *Metrics) recordHandshakeFailure(reason string) {
	if m == nil {
		return
	}
	m.handshakeFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordSessionCount(delta float64) {
	if m == nil {
		return
	}
	m.sessionsActive.Add(delta)
}

func (m *Metrics) recordSessionLost() {
	if m == nil {
		return
	}
	m.sessionsLost.Inc()
}
