package workflow

import (
	"github.com/BaSui01/labelflow/models"
)

// Graph is a compiled, validated workflow configuration. It is immutable
// after Compile and safe for concurrent reads.
type Graph struct {
	// config is the snapshot the graph was compiled from
	config models.WorkflowConfig
	// order holds node ids in declaration order
	order []string
	// nodes maps node IDs to their descriptors
	nodes map[string]models.NodeConfig
	// edges maps node IDs to their dependent node IDs, in edge order
	edges map[string][]string
	// preds maps node IDs to in-graph predecessors, in edge order
	preds map[string][]string
	// external maps node IDs to predecessors described only by an
	// upstream descriptor (single-node snapshots)
	external map[string][]models.UpstreamNode
}

func newGraph(cfg models.WorkflowConfig) *Graph {
	return &Graph{
		config:   cfg,
		nodes:    make(map[string]models.NodeConfig, len(cfg.Nodes)),
		edges:    make(map[string][]string),
		preds:    make(map[string][]string),
		external: make(map[string][]models.UpstreamNode),
	}
}

// Config returns the snapshot the graph was compiled from.
func (g *Graph) Config() models.WorkflowConfig { return g.config }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Node returns a node by id.
func (g *Graph) Node(id string) (models.NodeConfig, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in declaration order.
func (g *Graph) Nodes() []models.NodeConfig {
	out := make([]models.NodeConfig, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// Successors returns the nodes depending on id.
func (g *Graph) Successors(id string) []string {
	return append([]string(nil), g.edges[id]...)
}

// Predecessors returns the in-graph nodes id depends on.
func (g *Graph) Predecessors(id string) []string {
	return append([]string(nil), g.preds[id]...)
}

// ExternalSources returns the out-of-graph predecessors of id.
func (g *Graph) ExternalSources(id string) []models.UpstreamNode {
	return append([]models.UpstreamNode(nil), g.external[id]...)
}

// Roots returns nodes with no in-graph predecessor, in declaration order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.preds[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// TopologicalOrder returns a schedule consistent with every edge. Ties are
// broken by declaration order, so the result is deterministic.
func (g *Graph) TopologicalOrder() []string {
	indegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		indegree[id] = len(g.preds[id])
	}
	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	ready := g.Roots()
	order := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		// pick the earliest declared ready node
		best := 0
		for i := range ready {
			if position[ready[i]] < position[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, id)

		for _, next := range g.edges[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return order
}
