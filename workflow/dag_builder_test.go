package workflow

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/testutil"
	"github.com/BaSui01/labelflow/types"
)

func TestCompile_Branching(t *testing.T) {
	g, err := Compile(testutil.BranchingConfig())
	require.NoError(t, err)

	assert.Equal(t, 5, g.Len())
	assert.Equal(t, []string{"src"}, g.Roots())
	assert.Equal(t, []string{"det", "cls", "sem"}, g.Successors("pre"))
	assert.Equal(t, []string{"pre"}, g.Predecessors("cls"))
	assert.Equal(t, []string{"src", "pre", "det", "cls", "sem"}, g.TopologicalOrder())

	n, ok := g.Node("cls")
	require.True(t, ok)
	assert.Equal(t, models.NodeClassification, n.Type)
}

func TestCompile_Errors(t *testing.T) {
	node := func(id string, nt models.NodeType) models.NodeConfig {
		return models.NodeConfig{ID: id, Type: nt}
	}
	edge := func(s, t string) models.EdgeConfig { return models.EdgeConfig{Source: s, Target: t} }

	tests := []struct {
		name    string
		cfg     models.WorkflowConfig
		wantMsg string
	}{
		{
			name:    "no nodes",
			cfg:     models.WorkflowConfig{},
			wantMsg: "no nodes",
		},
		{
			name:    "missing id",
			cfg:     models.WorkflowConfig{Nodes: []models.NodeConfig{node("", models.NodeImageSource)}},
			wantMsg: "has no id",
		},
		{
			name: "duplicate id",
			cfg: models.WorkflowConfig{Nodes: []models.NodeConfig{
				node("a", models.NodeImageSource), node("a", models.NodePreprocess),
			}},
			wantMsg: "duplicate node id: a",
		},
		{
			name:    "unknown type",
			cfg:     models.WorkflowConfig{Nodes: []models.NodeConfig{node("a", "resample")}},
			wantMsg: `unknown type "resample"`,
		},
		{
			name: "unknown target",
			cfg: models.WorkflowConfig{
				Nodes: []models.NodeConfig{node("a", models.NodeImageSource)},
				Edges: []models.EdgeConfig{edge("a", "ghost")},
			},
			wantMsg: "non-existent target node: ghost",
		},
		{
			name: "unknown source",
			cfg: models.WorkflowConfig{
				Nodes: []models.NodeConfig{node("b", models.NodePreprocess)},
				Edges: []models.EdgeConfig{edge("ghost", "b")},
			},
			wantMsg: "non-existent source node: ghost",
		},
		{
			name: "self loop",
			cfg: models.WorkflowConfig{
				Nodes: []models.NodeConfig{node("a", models.NodePreprocess)},
				Edges: []models.EdgeConfig{edge("a", "a")},
			},
			wantMsg: "self-loop on node a",
		},
		{
			name: "duplicate edge",
			cfg: models.WorkflowConfig{
				Nodes: []models.NodeConfig{node("a", models.NodeImageSource), node("b", models.NodePreprocess)},
				Edges: []models.EdgeConfig{edge("a", "b"), edge("a", "b")},
			},
			wantMsg: "duplicate edge a -> b",
		},
		{
			name: "cycle",
			cfg: models.WorkflowConfig{
				Nodes: []models.NodeConfig{
					node("a", models.NodePreprocess), node("b", models.NodeClassification), node("c", models.NodeObjectDetection),
				},
				Edges: []models.EdgeConfig{edge("a", "b"), edge("b", "c"), edge("c", "a")},
			},
			wantMsg: "cycle detected",
		},
		{
			name: "upstream shadows node",
			cfg: models.WorkflowConfig{
				Nodes:    []models.NodeConfig{node("a", models.NodePreprocess)},
				Upstream: []models.UpstreamNode{{ID: "a", Type: models.NodeImageSource}},
			},
			wantMsg: "shadows a node",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.cfg)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrConfiguration), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestCompile_ExternalSources(t *testing.T) {
	snap, err := testutil.BranchingConfig().SingleNodeSnapshot("det")
	require.NoError(t, err)

	g, err := Compile(snap)
	require.NoError(t, err)

	assert.Equal(t, []string{"det"}, g.Roots())
	assert.Empty(t, g.Predecessors("det"))
	assert.Equal(t, []models.UpstreamNode{{ID: "pre", Type: models.NodePreprocess}}, g.ExternalSources("det"))
}

// randomDAG builds n nodes where every edge points from a lower to a higher
// index, so the graph is acyclic by construction.
func randomDAG(n int, edges [][2]int) models.WorkflowConfig {
	cfg := models.WorkflowConfig{}
	for i := 0; i < n; i++ {
		cfg.Nodes = append(cfg.Nodes, models.NodeConfig{ID: fmt.Sprintf("n%d", i), Type: models.NodeClassification})
	}
	seen := map[[2]int]bool{}
	for _, e := range edges {
		a, b := e[0]%n, e[1]%n
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		if seen[[2]int{a, b}] {
			continue
		}
		seen[[2]int{a, b}] = true
		cfg.Edges = append(cfg.Edges, models.EdgeConfig{Source: cfg.Nodes[a].ID, Target: cfg.Nodes[b].ID})
	}
	return cfg
}

func TestProperty_TopologicalOrderRespectsEdges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every edge source precedes its target", prop.ForAll(
		func(n int, raw []int) bool {
			var edges [][2]int
			for i := 0; i+1 < len(raw); i += 2 {
				edges = append(edges, [2]int{raw[i], raw[i+1]})
			}
			cfg := randomDAG(n, edges)

			g, err := Compile(cfg)
			if err != nil {
				t.Logf("compile failed: %v", err)
				return false
			}
			order := g.TopologicalOrder()
			if len(order) != n {
				return false
			}
			pos := make(map[string]int, n)
			for i, id := range order {
				pos[id] = i
			}
			for _, e := range cfg.Edges {
				if pos[e.Source] >= pos[e.Target] {
					t.Logf("edge %s -> %s out of order", e.Source, e.Target)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.SliceOf(gen.IntRange(0, 50)),
	))

	properties.TestingRun(t)
}

func TestProperty_BackEdgeIsCycle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 10).Draw(t, "n")
		cfg := randomDAG(n, nil)
		for i := 0; i+1 < n; i++ {
			cfg.Edges = append(cfg.Edges, models.EdgeConfig{Source: cfg.Nodes[i].ID, Target: cfg.Nodes[i+1].ID})
		}
		from := rapid.IntRange(1, n-1).Draw(t, "from")
		to := rapid.IntRange(0, from-1).Draw(t, "to")
		cfg.Edges = append(cfg.Edges, models.EdgeConfig{Source: cfg.Nodes[from].ID, Target: cfg.Nodes[to].ID})

		_, err := Compile(cfg)
		if err == nil {
			t.Fatalf("back edge n%d -> n%d not rejected", from, to)
		}
		if !types.IsCode(err, types.ErrConfiguration) {
			t.Fatalf("unexpected error %v", err)
		}
	})
}
