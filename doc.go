// Package sensorfw is a sensor-data distribution daemon. Device data
// flows through a graph of processing nodes (adaptors, chains and
// filters, output sensors) and is delivered to local client processes
// over a unix socket, each client with its own delivery rate, value
// range, and power-management behavior.
//
// The module is built from two cores and the infrastructure around them:
//
//   - node: per-node metadata negotiation. Every node exposes its
//     operating ranges, merges or forwards interval requests from
//     concurrent sessions, and propagates the standby override across
//     the graph. Range selection is first-come-first-served; interval
//     selection merges to the fastest requester.
//
//   - ipc: the per-client session layer. A listener accepts local
//     connections, binds each to a control-plane issued session id, and
//     delivers raw sample payloads at each session's chosen maximum rate
//     with coalesce-to-latest buffering instead of queuing.
//
// Supporting packages: datatypes (shared value types), errors
// (classified error handling), metric (Prometheus registry and
// endpoint), config (daemon configuration), pkg/retry (startup backoff).
// The cmd/sensorfwd binary assembles the daemon.
//
// The concrete sensors, the plugin loader, and the control/discovery
// plane are external collaborators built on top of these APIs; they are
// not part of this module.
package sensorfw
