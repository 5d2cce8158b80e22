package models

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, InitDatabase(db))
	return db
}

func TestNodeType_Valid(t *testing.T) {
	for _, nt := range NodeTypes() {
		assert.True(t, nt.Valid(), nt)
	}
	assert.False(t, NodeType("train").Valid())
	assert.False(t, NodeType("").Valid())
}

func TestNodeStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusSkipped.Terminal())
	assert.Equal(t, "processing", string(StatusProcessing))
}

func TestWorkflowConfig_SingleNodeSnapshot(t *testing.T) {
	cfg := WorkflowConfig{
		Nodes: []NodeConfig{
			{ID: "src", Type: NodeImageSource},
			{ID: "pre", Type: NodePreprocess, Params: map[string]any{"resize": []any{224, 224}}},
			{ID: "det", Type: NodeObjectDetection},
		},
		Edges: []EdgeConfig{
			{Source: "src", Target: "pre"},
			{Source: "pre", Target: "det"},
		},
	}

	snap, err := cfg.SingleNodeSnapshot("pre")
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "pre", snap.Nodes[0].ID)
	assert.Equal(t, []EdgeConfig{{Source: "src", Target: "pre"}}, snap.Edges)
	assert.Equal(t, []UpstreamNode{{ID: "src", Type: NodeImageSource}}, snap.Upstream)

	root, err := cfg.SingleNodeSnapshot("src")
	require.NoError(t, err)
	assert.Empty(t, root.Edges)
	assert.Empty(t, root.Upstream)

	_, err = cfg.SingleNodeSnapshot("missing")
	assert.Error(t, err)
}

func TestOutputKey(t *testing.T) {
	assert.Equal(t, "output_data_ids_det", OutputKey("det"))
}

func TestDataLineageRoot(t *testing.T) {
	assert.Equal(t, uint(7), Data{DataID: 7}.LineageRoot())
	assert.Equal(t, uint(3), Data{DataID: 7, OriginalDataID: Ptr(uint(3))}.LineageRoot())
}

func TestInitDatabase_RoundTripsJSONColumns(t *testing.T) {
	db := openTestDB(t)

	project := Project{Name: "p", DataDir: t.TempDir()}
	require.NoError(t, db.Create(&project).Error)
	assert.Equal(t, 1, project.WorkflowVersion)

	cfg := WorkflowConfig{
		Nodes: []NodeConfig{{ID: "src", Type: NodeImageSource}},
		Edges: []EdgeConfig{},
	}
	exec := WorkflowExecution{
		ProjectID: project.ProjectID,
		Mode:      ModeGraph,
		Status:    StatusPending,
		Config:    datatypes.NewJSONType(cfg),
	}
	require.NoError(t, db.Create(&exec).Error)

	nodeExec := WorkflowNodeExecution{
		ExecutionID:   exec.ExecutionID,
		NodeID:        "src",
		NodeType:      NodeImageSource,
		Status:        StatusCompleted,
		Config:        datatypes.NewJSONType(cfg.Nodes[0]),
		InputDataIDs:  IDList(nil),
		OutputDataIDs: IDList([]uint{4, 5}),
	}
	require.NoError(t, db.Create(&nodeExec).Error)

	var loaded WorkflowNodeExecution
	require.NoError(t, db.First(&loaded, nodeExec.ID).Error)
	assert.Equal(t, []uint{4, 5}, []uint(loaded.OutputDataIDs))
	assert.Empty(t, loaded.InputDataIDs)
	assert.Equal(t, NodeImageSource, loaded.Config.Data().Type)

	var loadedExec WorkflowExecution
	require.NoError(t, db.First(&loadedExec, exec.ExecutionID).Error)
	assert.Equal(t, "src", loadedExec.Config.Data().Nodes[0].ID)
}

func TestDeleteExecution_CascadesDerivedRowsOnly(t *testing.T) {
	db := openTestDB(t)

	project := Project{Name: "cascade", DataDir: t.TempDir()}
	require.NoError(t, db.Create(&project).Error)
	task := Task{ProjectID: project.ProjectID}
	require.NoError(t, db.Create(&task).Error)

	original := Data{Path: "original/a.jpg", TaskID: task.TaskID, ProjectID: project.ProjectID, ProcessingStage: StageOriginal}
	require.NoError(t, db.Create(&original).Error)

	exec := WorkflowExecution{ProjectID: project.ProjectID, Status: StatusCompleted, Config: datatypes.NewJSONType(WorkflowConfig{})}
	require.NoError(t, db.Create(&exec).Error)
	nodeExec := WorkflowNodeExecution{
		ExecutionID:   exec.ExecutionID,
		NodeID:        "save",
		NodeType:      NodeClassification,
		Status:        StatusCompleted,
		Config:        datatypes.NewJSONType(NodeConfig{ID: "save", Type: NodeClassification}),
		InputDataIDs:  IDList(nil),
		OutputDataIDs: IDList(nil),
	}
	require.NoError(t, db.Create(&nodeExec).Error)

	derived := Data{
		Path:                "results/classification/classified_a.jpg",
		TaskID:              task.TaskID,
		ProjectID:           project.ProjectID,
		OriginalDataID:      Ptr(original.DataID),
		WorkflowExecutionID: Ptr(exec.ExecutionID),
		NodeExecutionID:     Ptr(nodeExec.ID),
		ProcessingStage:     "save",
	}
	require.NoError(t, db.Create(&derived).Error)
	pd := ProcessedData{OriginalDataID: Ptr(original.DataID), NodeExecutionID: nodeExec.ID, FilePath: derived.Path}
	require.NoError(t, db.Create(&pd).Error)

	require.NoError(t, db.Delete(&WorkflowExecution{}, exec.ExecutionID).Error)

	var count int64
	db.Model(&WorkflowNodeExecution{}).Count(&count)
	assert.Zero(t, count)
	db.Model(&ProcessedData{}).Count(&count)
	assert.Zero(t, count)
	db.Model(&Data{}).Where("processing_stage = ?", "save").Count(&count)
	assert.Zero(t, count)
	db.Model(&Data{}).Where("processing_stage = ?", StageOriginal).Count(&count)
	assert.Equal(t, int64(1), count)
}
