// Package node implements the per-node metadata negotiation shared by
// every entity in the sensor processing graph: device adaptors,
// intermediate chains and filters, and output sensors.
//
// Each node embeds a Base, which owns the node's description, its declared
// data ranges, the FIFO queue of outstanding range requests, the session
// interval requests, and the standby override state. Nodes are either
// locally authoritative for a property (ranges or intervals declared at
// construction) or pure forwarders delegating to upstream source nodes;
// a node that is ambiguously both, or neither, fails validation and never
// enters service.
//
// Range selection is first-come-first-served: the head of the request
// queue holds the node's range exclusively until released. Intervals are
// mergeable instead; the effective interval is the fastest one any current
// session asked for, unless a node installs its own merge policy.
//
// Forwarding links (range source, interval sources, standby override
// sources) are non-owning pointers and must form a DAG. Graph provides the
// assembly-time registry that enforces this before the daemon starts
// serving clients.
package node
