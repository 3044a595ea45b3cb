// Package metric provides Prometheus-based metrics collection and the HTTP
// endpoint for sensorfw daemon observability.
//
// The package offers a centralized registry managing both core daemon
// metrics (service status, error counts) and metrics registered by
// individual subsystems such as the IPC session layer. A small HTTP server
// exposes everything in Prometheus format together with a health check.
//
// Basic usage:
//
//	registry := metric.NewRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	        slog.Error("metrics server", "error", err)
//	    }
//	}()
//
// Subsystems register their own metrics through the Registrar interface,
// which keeps them testable with a nil registry (nil registry disables
// metrics entirely).
package metric
