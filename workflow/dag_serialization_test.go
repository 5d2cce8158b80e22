package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/testutil"
	"github.com/BaSui01/labelflow/types"
)

func TestParseConfig_JSON(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"nodes": [
			{"id": "A", "type": "image_source"},
			{"id": "B", "type": "preprocess", "params": {"resize": [32, 32]}}
		],
		"edges": [{"source": "A", "target": "B"}]
	}`))
	require.NoError(t, err)

	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, models.NodePreprocess, cfg.Nodes[1].Type)
	assert.Equal(t, []any{float64(32), float64(32)}, cfg.Nodes[1].Params["resize"])
	assert.Equal(t, []models.EdgeConfig{{Source: "A", Target: "B"}}, cfg.Edges)
}

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
nodes:
  - id: A
    type: image_source
  - id: B
    type: preprocess
    name: Resize
edges:
  - source: A
    target: B
`))
	require.NoError(t, err)
	assert.Equal(t, "Resize", cfg.Nodes[1].Name)
	assert.Len(t, cfg.Edges, 1)
}

func TestParseConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", "  "},
		{"unknown JSON field", `{"nodes": [{"id": "A", "type": "image_source"}], "loops": []}`},
		{"unknown YAML field", "nodes:\n  - id: A\n    type: image_source\n    retries: 3\n"},
		{"invalid graph", `{"nodes": [{"id": "A", "type": "image_source"}], "edges": [{"source": "A", "target": "Z"}]}`},
		{"malformed JSON", `{"nodes": [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrConfiguration), "got %v", err)
		})
	}
}

func TestConfigFile_RoundTrip(t *testing.T) {
	want := testutil.BranchingConfig()
	dir := t.TempDir()

	for _, name := range []string{"workflow.json", "workflow.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, SaveConfigFile(path, want))

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			if filepath.Ext(name) == ".json" {
				assert.Equal(t, byte('{'), raw[0])
			}

			got, err := LoadConfigFile(path)
			require.NoError(t, err)

			// numbers decode as float64 (JSON) or int (YAML); compare the graph shape
			assert.Equal(t, want.Edges, got.Edges)
			ids := func(c models.WorkflowConfig) []string {
				var out []string
				for _, n := range c.Nodes {
					out = append(out, n.ID+":"+string(n.Type))
				}
				return out
			}
			if diff := cmp.Diff(ids(want), ids(got)); diff != "" {
				t.Errorf("nodes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
