package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains daemon-level metrics (not subsystem-specific)
type Metrics struct {
	ServiceStatus *prometheus.GaugeVec
	ErrorsTotal   *prometheus.CounterVec
	UptimeSeconds prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all daemon metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sensorfw",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sensorfw",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sensorfw",
				Subsystem: "service",
				Name:      "uptime_seconds",
				Help:      "Seconds since daemon start",
			},
		),
	}
}

// RecordServiceStatus records the lifecycle status of a named service
func (m *Metrics) RecordServiceStatus(service string, status float64) {
	m.ServiceStatus.WithLabelValues(service).Set(status)
}

// RecordError increments the error counter for a service and error type
func (m *Metrics) RecordError(service, errType string) {
	m.ErrorsTotal.WithLabelValues(service, errType).Inc()
}
