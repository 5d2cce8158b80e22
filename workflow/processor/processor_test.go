package processor

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/BaSui01/labelflow/config"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/testutil"
	"github.com/BaSui01/labelflow/types"
	"github.com/BaSui01/labelflow/workflow/storage"
)

type fixture struct {
	t       *testing.T
	db      *gorm.DB
	project *models.Project
	dm      *storage.DataManager
	exec    *models.WorkflowExecution
}

func newFixture(t *testing.T, images ...string) *fixture {
	t.Helper()
	pm := testutil.NewTestDB(t)
	project := testutil.NewProject(t, pm.DB())
	for _, name := range images {
		testutil.WriteImage(t, project, name, 12, 8)
	}
	exec := &models.WorkflowExecution{
		ProjectID: project.ProjectID,
		Mode:      models.ModeGraph,
		Status:    models.StatusProcessing,
		Config:    datatypes.NewJSONType(models.WorkflowConfig{}),
	}
	require.NoError(t, pm.DB().Create(exec).Error)
	return &fixture{
		t:       t,
		db:      pm.DB(),
		project: project,
		dm:      storage.New(pm.DB(), project, testutil.StorageConfig(), zap.NewNop()),
		exec:    exec,
	}
}

func (f *fixture) nodeExec(node models.NodeConfig, inputs []uint) *models.WorkflowNodeExecution {
	f.t.Helper()
	ne := &models.WorkflowNodeExecution{
		ExecutionID:   f.exec.ExecutionID,
		NodeID:        node.ID,
		NodeType:      node.Type,
		Status:        models.StatusProcessing,
		Config:        datatypes.NewJSONType(node),
		InputDataIDs:  models.IDList(inputs),
		OutputDataIDs: models.IDList(nil),
	}
	require.NoError(f.t, f.db.Create(ne).Error)
	return ne
}

func (f *fixture) run(node models.NodeConfig, inputs []uint, policy string) (Processor, []uint, error) {
	f.t.Helper()
	p, err := New(Binding{NodeExec: f.nodeExec(node, inputs), Data: f.dm, Policy: policy})
	require.NoError(f.t, err)
	ids, err := f.commit(p)
	return p, ids, err
}

// commit runs p and writes its batch in one transaction.
func (f *fixture) commit(p Processor) ([]uint, error) {
	ctx := context.Background()
	batch, err := p.Process(ctx)
	if err != nil {
		return nil, err
	}
	var ids []uint
	err = f.db.Transaction(func(tx *gorm.DB) error {
		var cerr error
		ids, cerr = batch.Commit(ctx, f.dm.WithDB(tx))
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (f *fixture) ingest() []uint {
	f.t.Helper()
	_, ids, err := f.run(models.NodeConfig{ID: "src", Type: models.NodeImageSource}, nil, "")
	require.NoError(f.t, err)
	return ids
}

func (f *fixture) stageCount(stage string) int64 {
	var n int64
	f.db.Model(&models.Data{}).Where("processing_stage = ?", stage).Count(&n)
	return n
}

func TestRegistry_CoversEveryNodeType(t *testing.T) {
	for _, nt := range models.NodeTypes() {
		assert.True(t, Supports(nt), nt)
	}
	assert.False(t, Supports("ocr"))
}

func TestNew_UnknownType(t *testing.T) {
	f := newFixture(t)
	ne := f.nodeExec(models.NodeConfig{ID: "x", Type: "ocr"}, nil)
	_, err := New(Binding{NodeExec: ne, Data: f.dm})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

func TestImageSource_IngestsOncePerImage(t *testing.T) {
	f := newFixture(t, "b.png", "a.png")

	first := f.ingest()
	assert.Len(t, first, 2)
	second := f.ingest()
	assert.Len(t, second, 2)
	assert.NotEqual(t, first, second)

	assert.Equal(t, int64(2), f.stageCount(models.StageOriginal))

	pd, err := f.dm.GetProcessedData(context.Background(), first[0])
	require.NoError(t, err)
	assert.Equal(t, "original/a.png", pd.FilePath)
	assert.Equal(t, "a.png", pd.Metadata["filename"])
}

func TestImageSource_EmptyDirectory(t *testing.T) {
	f := newFixture(t)
	p, ids, err := f.run(models.NodeConfig{ID: "src", Type: models.NodeImageSource}, nil, "")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 0, p.Summary().Inputs)
}

func TestPreprocess_ResolvesProcessedDataToOriginal(t *testing.T) {
	f := newFixture(t, "a.png")
	inputs := f.ingest()

	node := models.NodeConfig{ID: "pre", Type: models.NodePreprocess, Params: map[string]any{"resize": []any{224.0, 160.0}}}
	p, ids, err := f.run(node, inputs, "")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, Summary{Inputs: 1, Outputs: 1}, p.Summary())

	data, err := f.dm.GetData(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "pre", data.ProcessingStage)
	assert.Equal(t, "preprocessed/preprocessed_a.png", data.Path)

	original, err := f.dm.DataByStage(context.Background(), storage.StageQuery{Stage: models.StageOriginal})
	require.NoError(t, err)
	require.Len(t, original, 1)
	assert.Equal(t, original[0].DataID, data.LineageRoot())

	meta, err := data.Metadata.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(meta), `"original_shape":[8,12,3]`)
	assert.Contains(t, string(meta), `"resize":[224,160]`)

	_, err = os.Stat(f.dm.FullPath(data.Path))
	assert.NoError(t, err)
}

func TestProcess_RerunKeepsOneCurrentSet(t *testing.T) {
	f := newFixture(t, "a.png", "b.png")
	inputs := f.ingest()
	node := models.NodeConfig{ID: "pre", Type: models.NodePreprocess}

	_, first, err := f.run(node, inputs, "")
	require.NoError(t, err)
	_, second, err := f.run(node, inputs, "")
	require.NoError(t, err)

	assert.Equal(t, int64(2), f.stageCount("pre"))
	for _, id := range first {
		d, err := f.dm.GetData(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, d)
	}
	for _, id := range second {
		d, err := f.dm.GetData(context.Background(), id)
		require.NoError(t, err)
		assert.NotNil(t, d)
	}
}

func TestProcess_PartialFailurePolicies(t *testing.T) {
	setup := func(t *testing.T) (*fixture, []uint) {
		f := newFixture(t, "a.png", "b.png", "c.png")
		inputs := f.ingest()
		require.NoError(t, os.Remove(f.dm.FullPath("original/b.png")))
		return f, inputs
	}
	node := models.NodeConfig{ID: "pre", Type: models.NodePreprocess}

	t.Run("skip", func(t *testing.T) {
		f, inputs := setup(t)
		p, ids, err := f.run(node, inputs, config.PartialFailureSkip)
		require.NoError(t, err)
		assert.Len(t, ids, 2)
		s := p.Summary()
		assert.Equal(t, 3, s.Inputs)
		assert.Equal(t, 1, s.Skipped)
		assert.Contains(t, s.FirstSkip, "b.png")
	})

	t.Run("fail", func(t *testing.T) {
		f, inputs := setup(t)
		_, ids, err := f.run(node, inputs, config.PartialFailureFail)
		require.Error(t, err)
		assert.Nil(t, ids)
		assert.Equal(t, types.ErrProcessing, types.GetErrorCode(err))
	})
}

func TestProcess_MissingInputRowIsSkipped(t *testing.T) {
	f := newFixture(t, "a.png")
	inputs := f.ingest()
	p, ids, err := f.run(models.NodeConfig{ID: "pre", Type: models.NodePreprocess}, append(inputs, 9999), "")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, 1, p.Summary().Skipped)
}

func TestClassification_Deterministic(t *testing.T) {
	f := newFixture(t, "a.png")
	inputs := f.ingest()
	_, pre, err := f.run(models.NodeConfig{ID: "pre", Type: models.NodePreprocess}, inputs, "")
	require.NoError(t, err)

	node := models.NodeConfig{ID: "cls", Type: models.NodeClassification, Params: map[string]any{"classes": []any{"cat", "dog"}}}
	_, first, err := f.run(node, pre, "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	d1, err := f.dm.GetData(context.Background(), first[0])
	require.NoError(t, err)

	_, second, err := f.run(node, pre, "")
	require.NoError(t, err)
	d2, err := f.dm.GetData(context.Background(), second[0])
	require.NoError(t, err)

	assert.Contains(t, []string{"cat", "dog"}, d1.Category)
	assert.Equal(t, d1.Category, d2.Category)
	assert.Equal(t, "results/classification/classified_preprocessed_a.png", d1.Path)
}

func TestClassScores_Normalised(t *testing.T) {
	scores := classScores("original/a.png", defaultClasses)
	require.Len(t, scores, 3)
	var sum float64
	for _, s := range scores {
		assert.Greater(t, s, 0.0)
		sum += s
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, scores, classScores("original/a.png", defaultClasses))
}

func TestModelStages_WriteToResultDirectories(t *testing.T) {
	f := newFixture(t, "a.png")
	inputs := f.ingest()
	_, pre, err := f.run(models.NodeConfig{ID: "pre", Type: models.NodePreprocess}, inputs, "")
	require.NoError(t, err)

	tests := []struct {
		node models.NodeConfig
		want string
	}{
		{models.NodeConfig{ID: "det", Type: models.NodeObjectDetection}, "results/object_detection/detected_preprocessed_a.png"},
		{models.NodeConfig{ID: "ins", Type: models.NodeInstanceSegmentation}, "results/instance_segmentation/instance_preprocessed_a.png"},
		{models.NodeConfig{ID: "sem", Type: models.NodeSemanticSegmentation}, "results/semantic_segmentation/semantic_preprocessed_a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.node.ID, func(t *testing.T) {
			p, ids, err := f.run(tt.node, pre, "")
			require.NoError(t, err)
			require.Len(t, ids, 1)
			d, err := f.dm.GetData(context.Background(), ids[0])
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Path)
			assert.NotNil(t, d.OriginalDataID)
			assert.NoError(t, p.Train(context.Background(), map[string]any{"epochs": 1}))
		})
	}
}

func TestProcess_CanceledContext(t *testing.T) {
	f := newFixture(t, "a.png")
	inputs := f.ingest()
	p, err := New(Binding{NodeExec: f.nodeExec(models.NodeConfig{ID: "pre", Type: models.NodePreprocess}, inputs), Data: f.dm})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Process(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type recordedNode struct {
	nodeType, status string
	outputs, skipped int
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedNode
}

func (r *fakeRecorder) RecordNode(nodeType, status string, _ time.Duration, outputs, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedNode{nodeType, status, outputs, skipped})
}

func TestInstrument_RecordsOutcome(t *testing.T) {
	f := newFixture(t, "a.png")
	rec := &fakeRecorder{}
	b := Binding{NodeExec: f.nodeExec(models.NodeConfig{ID: "src", Type: models.NodeImageSource}, nil), Data: f.dm, Logger: zap.NewNop()}
	p, err := New(b)
	require.NoError(t, err)

	wrapped := Instrument(rec)(b, p)
	batch, err := wrapped.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Staged)
	assert.Empty(t, rec.calls, "nothing recorded before commit")

	ids, err := batch.Commit(context.Background(), f.dm)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, []recordedNode{{"image_source", "completed", 1, 0}}, rec.calls)
	assert.Equal(t, 1, wrapped.Summary().Outputs)
}

func TestInstrument_RecordsProcessFailure(t *testing.T) {
	f := newFixture(t, "a.png")
	rec := &fakeRecorder{}
	b := Binding{NodeExec: f.nodeExec(models.NodeConfig{ID: "src", Type: models.NodeImageSource}, nil), Data: f.dm, Logger: zap.NewNop()}
	p, err := New(b)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Instrument(rec)(b, p).Process(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []recordedNode{{"image_source", "failed", 0, 0}}, rec.calls)
}

func TestProcess_StagesWithoutWriting(t *testing.T) {
	f := newFixture(t, "a.png", "b.png")
	inputs := f.ingest()
	p, err := New(Binding{NodeExec: f.nodeExec(models.NodeConfig{ID: "pre", Type: models.NodePreprocess}, inputs), Data: f.dm})
	require.NoError(t, err)

	batch, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Staged)
	assert.Zero(t, f.stageCount("pre"))
	assert.NoFileExists(t, f.dm.FullPath("preprocessed/preprocessed_a.png"))

	var pdBefore int64
	f.db.Model(&models.ProcessedData{}).Count(&pdBefore)

	tx := f.db.Begin()
	dm := f.dm.WithDB(tx)
	ids, err := batch.Commit(context.Background(), dm)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.FileExists(t, f.dm.FullPath("preprocessed/preprocessed_a.png"))

	require.NoError(t, tx.Rollback().Error)
	dm.Rollback()
	assert.Zero(t, f.stageCount("pre"))
	assert.NoFileExists(t, f.dm.FullPath("preprocessed/preprocessed_a.png"))

	var pdAfter int64
	f.db.Model(&models.ProcessedData{}).Count(&pdAfter)
	assert.Equal(t, pdBefore, pdAfter)
}

func TestBatch_NilCommitsNothing(t *testing.T) {
	var b *Batch
	ids, err := b.Commit(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

type tagged struct {
	Processor
	tag string
	log *[]string
}

func (p *tagged) Process(ctx context.Context) (*Batch, error) {
	*p.log = append(*p.log, p.tag)
	return p.Processor.Process(ctx)
}

func TestChain_FirstWrapperOutermost(t *testing.T) {
	f := newFixture(t)
	var order []string
	wrap := func(tag string) Wrapper {
		return func(b Binding, p Processor) Processor { return &tagged{Processor: p, tag: tag, log: &order} }
	}
	b := Binding{NodeExec: f.nodeExec(models.NodeConfig{ID: "src", Type: models.NodeImageSource}, nil), Data: f.dm}
	p, err := New(b)
	require.NoError(t, err)

	_, err = Chain(wrap("outer"), nil, wrap("inner"))(b, p).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestIntPair(t *testing.T) {
	def := []int{416, 416}
	assert.Equal(t, []int{224, 160}, intPair(map[string]any{"resize": []any{224.0, 160.0}}, "resize", def))
	assert.Equal(t, []int{32, 32}, intPair(map[string]any{"resize": []int{32, 32}}, "resize", def))
	assert.Equal(t, def, intPair(map[string]any{"resize": []any{1.0}}, "resize", def))
	assert.Equal(t, def, intPair(map[string]any{"resize": []any{-1.0, 5.0}}, "resize", def))
	assert.Equal(t, def, intPair(nil, "resize", def))
	assert.Equal(t, []int{416, 416}, intPair(nil, "resize", nil))
}

func TestStringList(t *testing.T) {
	assert.Equal(t, []string{"cat", "dog"}, stringList(map[string]any{"classes": []any{"cat", "dog"}}, "classes", defaultClasses))
	assert.Equal(t, defaultClasses, stringList(map[string]any{"classes": []any{}}, "classes", defaultClasses))
	assert.Equal(t, defaultClasses, stringList(nil, "classes", defaultClasses))
}
