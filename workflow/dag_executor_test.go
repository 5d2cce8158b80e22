package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/testutil"
	"github.com/BaSui01/labelflow/types"
)

// fakeRunner records the order nodes run in and fails the configured ones.
type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	skipped map[string]string
	fail    map[string]bool
	panics  map[string]bool
	delay   time.Duration

	active, peak atomic.Int32
}

func newFakeRunner(fail ...string) *fakeRunner {
	r := &fakeRunner{skipped: map[string]string{}, fail: map[string]bool{}, panics: map[string]bool{}}
	for _, id := range fail {
		r.fail[id] = true
	}
	return r
}

func (r *fakeRunner) RunNode(ctx context.Context, node models.NodeConfig) error {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.ran = append(r.ran, node.ID)
	r.mu.Unlock()
	if r.panics[node.ID] {
		panic("nil model weights")
	}
	if r.fail[node.ID] {
		return errors.New("boom")
	}
	return nil
}

func (r *fakeRunner) SkipNode(ctx context.Context, node models.NodeConfig, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped[node.ID] = reason
	return nil
}

func (r *fakeRunner) position(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range r.ran {
		if v == id {
			return i
		}
	}
	return -1
}

func TestDAGExecutor_RunsInDependencyOrder(t *testing.T) {
	g, err := Compile(testutil.BranchingConfig())
	require.NoError(t, err)

	runner := newFakeRunner()
	report := NewDAGExecutor(g, 4, zap.NewNop()).Execute(context.Background(), runner)

	id, firstErr := report.FirstError()
	assert.Empty(t, id)
	assert.NoError(t, firstErr)
	require.Len(t, runner.ran, 5)
	for _, leaf := range []string{"det", "cls", "sem"} {
		assert.Greater(t, runner.position(leaf), runner.position("pre"))
		assert.Equal(t, models.StatusCompleted, report.Statuses[leaf])
	}
	assert.Less(t, runner.position("src"), runner.position("pre"))
}

func TestDAGExecutor_FailureSkipsOnlyDescendants(t *testing.T) {
	cfg := models.WorkflowConfig{
		Nodes: []models.NodeConfig{
			{ID: "src", Type: models.NodeImageSource},
			{ID: "pre", Type: models.NodePreprocess},
			{ID: "det", Type: models.NodeObjectDetection},
			{ID: "cls", Type: models.NodeClassification},
			{ID: "seg", Type: models.NodeSemanticSegmentation},
		},
		Edges: []models.EdgeConfig{
			{Source: "src", Target: "pre"},
			{Source: "pre", Target: "det"},
			{Source: "pre", Target: "cls"},
			{Source: "det", Target: "seg"},
		},
	}
	g, err := Compile(cfg)
	require.NoError(t, err)

	runner := newFakeRunner("det")
	report := NewDAGExecutor(g, 2, nil).Execute(context.Background(), runner)

	assert.Equal(t, models.StatusFailed, report.Statuses["det"])
	assert.Equal(t, models.StatusCompleted, report.Statuses["cls"], "sibling branch is unaffected")
	assert.Equal(t, models.StatusSkipped, report.Statuses["seg"])
	assert.Equal(t, "upstream node det did not complete", runner.skipped["seg"])
	assert.Equal(t, -1, runner.position("seg"))

	id, firstErr := report.FirstError()
	assert.Equal(t, "det", id)
	assert.EqualError(t, firstErr, "boom")
}

func TestDAGExecutor_SkipPropagates(t *testing.T) {
	g, err := Compile(testutil.LinearConfig(
		models.NodeImageSource, models.NodePreprocess, models.NodeObjectDetection, models.NodeClassification))
	require.NoError(t, err)

	runner := newFakeRunner("n0_image_source")
	report := NewDAGExecutor(g, 1, nil).Execute(context.Background(), runner)

	assert.Equal(t, []string{"n0_image_source"}, runner.ran)
	assert.Equal(t, models.StatusSkipped, report.Statuses["n1_preprocess"])
	assert.Equal(t, models.StatusSkipped, report.Statuses["n3_classification"])
	assert.Equal(t, "upstream node n2_object_detection did not complete", runner.skipped["n3_classification"])
	assert.Equal(t, []string{"n0_image_source"}, report.Failed)
}

func TestDAGExecutor_RespectsParallelLimit(t *testing.T) {
	cfg := models.WorkflowConfig{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		cfg.Nodes = append(cfg.Nodes, models.NodeConfig{ID: id, Type: models.NodeImageSource})
	}
	g, err := Compile(cfg)
	require.NoError(t, err)

	runner := newFakeRunner()
	runner.delay = 20 * time.Millisecond
	report := NewDAGExecutor(g, 2, nil).Execute(context.Background(), runner)

	assert.Len(t, report.Statuses, 6)
	assert.LessOrEqual(t, runner.peak.Load(), int32(2))
	assert.GreaterOrEqual(t, runner.peak.Load(), int32(1))
}

func TestDAGExecutor_DefaultLimitIsSequential(t *testing.T) {
	g, err := Compile(testutil.BranchingConfig())
	require.NoError(t, err)

	runner := newFakeRunner()
	runner.delay = 5 * time.Millisecond
	NewDAGExecutor(g, 0, nil).Execute(context.Background(), runner)

	assert.EqualValues(t, 1, runner.peak.Load())
}

func TestDAGExecutor_RecoversNodePanic(t *testing.T) {
	g, err := Compile(testutil.BranchingConfig())
	require.NoError(t, err)

	runner := newFakeRunner()
	runner.panics["det"] = true
	var report *Report
	require.NotPanics(t, func() {
		report = NewDAGExecutor(g, 4, zap.NewNop()).Execute(context.Background(), runner)
	})

	assert.Equal(t, models.StatusFailed, report.Statuses["det"])
	assert.Equal(t, models.StatusCompleted, report.Statuses["cls"])
	assert.Equal(t, models.StatusCompleted, report.Statuses["sem"])
	assert.Equal(t, []string{"det"}, report.Failed)
	assert.Equal(t, types.ErrInternalError, types.GetErrorCode(report.Errors["det"]))
	assert.Contains(t, report.Errors["det"].Error(), "nil model weights")
}
