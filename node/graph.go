package node

import (
	"fmt"
	"sync"

	"github.com/saukko/sensorfw/errors"
)

// Graph is the assembly-time registry of nodes. The plugin and graph
// assembly step registers every node here before the daemon begins
// serving clients; registration validates the node's metadata setup and
// Validate rejects cyclic forwarding links. Both failures are
// construction-time fatal, never runtime conditions.
type Graph struct {
	mu    sync.Mutex
	nodes map[string]*Base
}

// NewGraph creates an empty node registry.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Base)}
}

// Add validates the node's metadata and registers it under the given
// name. A node that is neither locally authoritative nor a pure forwarder
// for each propagative property is rejected and must not enter service.
func (g *Graph) Add(name string, n *Base) error {
	if err := n.ValidateMetadata(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[name]; exists {
		return errors.WrapFatal(
			fmt.Errorf("%w: %q", errors.ErrDuplicateNode, name),
			"Graph", "Add", "node registration")
	}
	g.nodes[name] = n
	return nil
}

// Node returns the registered node with the given name.
func (g *Graph) Node(name string) (*Base, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[name]
	return n, ok
}

// Names returns the names of all registered nodes.
func (g *Graph) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	return names
}

// Validate walks every forwarding link (range source, interval sources,
// standby override sources) and rejects the graph if the links form a
// cycle. Node locking follows these links, so a cycle would deadlock at
// runtime; it must be caught here, at assembly time.
func (g *Graph) Validate() error {
	g.mu.Lock()
	roots := make([]*Base, 0, len(g.nodes))
	for _, n := range g.nodes {
		roots = append(roots, n)
	}
	g.mu.Unlock()

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Base]int)

	var visit func(n *Base) error
	visit = func(n *Base) error {
		switch state[n] {
		case done:
			return nil
		case visiting:
			return errors.WrapFatal(
				fmt.Errorf("%w: involving node %q", errors.ErrCyclicForwarding, n.Description()),
				"Graph", "Validate", "forwarding link check")
		}
		state[n] = visiting
		for _, link := range n.forwardLinks() {
			if err := visit(link); err != nil {
				return err
			}
		}
		state[n] = done
		return nil
	}

	for _, n := range roots {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}
