package workflow

import (
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
	"github.com/BaSui01/labelflow/workflow/processor"
)

// Compile validates cfg and builds its graph. Every violation is reported
// as a CONFIGURATION_ERROR before anything is persisted.
func Compile(cfg models.WorkflowConfig) (*Graph, error) {
	if len(cfg.Nodes) == 0 {
		return nil, types.NewConfigurationError("workflow has no nodes")
	}

	g := newGraph(cfg)
	for i, n := range cfg.Nodes {
		if n.ID == "" {
			return nil, types.NewConfigurationError("node %d has no id", i)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, types.NewConfigurationError("duplicate node id: %s", n.ID)
		}
		if !processor.Supports(n.Type) {
			return nil, types.NewConfigurationError("node %s has unknown type %q", n.ID, n.Type)
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}

	upstream := make(map[string]models.UpstreamNode, len(cfg.Upstream))
	for _, u := range cfg.Upstream {
		if _, clash := g.nodes[u.ID]; clash {
			return nil, types.NewConfigurationError("upstream descriptor %s shadows a node", u.ID)
		}
		if !u.Type.Valid() {
			return nil, types.NewConfigurationError("upstream descriptor %s has unknown type %q", u.ID, u.Type)
		}
		upstream[u.ID] = u
	}

	seen := make(map[models.EdgeConfig]bool, len(cfg.Edges))
	for _, e := range cfg.Edges {
		if e.Source == e.Target {
			return nil, types.NewConfigurationError("self-loop on node %s", e.Source)
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return nil, types.NewConfigurationError("edge references non-existent target node: %s", e.Target)
		}
		if seen[e] {
			return nil, types.NewConfigurationError("duplicate edge %s -> %s", e.Source, e.Target)
		}
		seen[e] = true

		if _, ok := g.nodes[e.Source]; ok {
			g.edges[e.Source] = append(g.edges[e.Source], e.Target)
			g.preds[e.Target] = append(g.preds[e.Target], e.Source)
			continue
		}
		u, ok := upstream[e.Source]
		if !ok {
			return nil, types.NewConfigurationError("edge references non-existent source node: %s", e.Source)
		}
		g.external[e.Target] = append(g.external[e.Target], u)
	}

	if id, ok := g.findCycle(); ok {
		return nil, types.NewConfigurationError("cycle detected in graph involving node: %s", id)
	}
	return g, nil
}

// ValidateConfig reports whether cfg compiles.
func ValidateConfig(cfg models.WorkflowConfig) error {
	_, err := Compile(cfg)
	return err
}

// findCycle detects cycles using DFS, visiting nodes in declaration order.
func (g *Graph) findCycle() (string, bool) {
	visited := make(map[string]bool, len(g.order))
	recStack := make(map[string]bool, len(g.order))

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		recStack[id] = true
		for _, next := range g.edges[id] {
			if !visited[next] {
				if visit(next) {
					return true
				}
			} else if recStack[next] {
				// Back edge found - cycle detected
				return true
			}
		}
		recStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && visit(id) {
			return id, true
		}
	}
	return "", false
}
