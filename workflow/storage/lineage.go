package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
)

// DefaultTask gets or creates the project's training task (set=0), which owns
// every artifact the engine writes.
func (m *DataManager) DefaultTask(ctx context.Context) (*models.Task, error) {
	var task models.Task
	err := m.db.WithContext(ctx).
		Where("project_id = ?", m.project.ProjectID).
		Order("task_id").
		First(&task).Error
	if err == nil {
		return &task, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewPersistenceError("load default task", err)
	}

	task = models.Task{ProjectID: m.project.ProjectID, Set: models.SetTrain}
	if err := m.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, types.NewPersistenceError("create default task", err)
	}
	return &task, nil
}

// PurgeStale deletes the project's Data rows whose stage is nodeID and that
// belong to a node execution other than current. Rows with no owning node
// execution are also removed.
func (m *DataManager) PurgeStale(ctx context.Context, nodeID string, current uint) (int64, error) {
	res := m.db.WithContext(ctx).
		Where("project_id = ? AND processing_stage = ?", m.project.ProjectID, nodeID).
		Where("(node_execution_id IS NULL OR node_execution_id <> ?)", current).
		Delete(&models.Data{})
	if res.Error != nil {
		return 0, types.NewPersistenceError("purge stale data for "+nodeID, res.Error)
	}
	if res.RowsAffected > 0 {
		m.logger.Debug("purged stale artifacts",
			zap.String("node_id", nodeID),
			zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// FindOrCreateOriginal returns the project-owned stage "original" row for
// relPath, creating it when absent. The last touching node execution is
// recorded in metadata rather than as an owner.
func (m *DataManager) FindOrCreateOriginal(ctx context.Context, ne *models.WorkflowNodeExecution, relPath string, name string) (*models.Data, error) {
	db := m.db.WithContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339)

	var data models.Data
	err := db.Where("project_id = ? AND processing_stage = ? AND path = ?",
		m.project.ProjectID, models.StageOriginal, relPath).
		First(&data).Error
	switch {
	case err == nil:
		meta := data.Metadata
		if meta == nil {
			meta = datatypes.JSONMap{}
		}
		meta["last_processed"] = now
		meta["last_node_execution_id"] = ne.ID
		if err := db.Model(&data).Update("metadata", meta).Error; err != nil {
			return nil, types.NewPersistenceError("touch original "+relPath, err)
		}
		data.Metadata = meta
		return &data, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, types.NewPersistenceError("load original "+relPath, err)
	}

	task, err := m.DefaultTask(ctx)
	if err != nil {
		return nil, err
	}
	data = models.Data{
		Path:            relPath,
		TaskID:          task.TaskID,
		ProjectID:       m.project.ProjectID,
		ProcessingStage: models.StageOriginal,
		Metadata: datatypes.JSONMap{
			"original_filename":      name,
			"source_path":            m.FullPath(relPath),
			"last_processed":         now,
			"last_node_execution_id": ne.ID,
		},
	}
	if err := db.Create(&data).Error; err != nil {
		return nil, types.NewPersistenceError("create original "+relPath, err)
	}
	return &data, nil
}

// Result is one transformed artifact ready to persist.
type Result struct {
	// OriginalDataID is the lineage root.
	OriginalDataID uint
	// RelativePath is the artifact path below <data_dir>/data.
	RelativePath string
	Content      []byte
	Category     string
	Metadata     map[string]any
}

// SaveResult writes the artifact file, a Data row at stage ne.NodeID and a
// paired ProcessedData row. Database failures carry PERSISTENCE_ERROR; a
// failed file write is returned as a plain error.
func (m *DataManager) SaveResult(ctx context.Context, ne *models.WorkflowNodeExecution, r Result) (*models.Data, *models.ProcessedData, error) {
	rel := CleanRelative(r.RelativePath)
	task, err := m.DefaultTask(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := m.WriteFile(rel, r.Content); err != nil {
		return nil, nil, err
	}

	root := r.OriginalDataID
	data := models.Data{
		Path:                rel,
		TaskID:              task.TaskID,
		ProjectID:           m.project.ProjectID,
		OriginalDataID:      &root,
		WorkflowExecutionID: models.Ptr(ne.ExecutionID),
		NodeExecutionID:     models.Ptr(ne.ID),
		ProcessingStage:     ne.NodeID,
		Category:            r.Category,
		Metadata:            datatypes.JSONMap(cloneMap(r.Metadata)),
	}
	if err := m.db.WithContext(ctx).Create(&data).Error; err != nil {
		return nil, nil, types.NewPersistenceError("save data "+rel, err)
	}

	pd, err := m.SaveProcessedData(ctx, ne, &root, rel, r.Metadata)
	if err != nil {
		return nil, nil, err
	}
	return &data, pd, nil
}

// SaveProcessedData appends a ProcessedData ledger row for ne. The metadata
// is extended with node_id and node_type.
func (m *DataManager) SaveProcessedData(ctx context.Context, ne *models.WorkflowNodeExecution, originalDataID *uint, filePath string, metadata map[string]any) (*models.ProcessedData, error) {
	meta := cloneMap(metadata)
	meta["node_id"] = ne.NodeID
	meta["node_type"] = string(ne.NodeType)

	pd := models.ProcessedData{
		OriginalDataID:  originalDataID,
		NodeExecutionID: ne.ID,
		FilePath:        CleanRelative(filePath),
		FileType:        "image",
		Format:          formatOf(filePath),
		Metadata:        datatypes.JSONMap(meta),
	}
	if err := m.db.WithContext(ctx).Create(&pd).Error; err != nil {
		return nil, types.NewPersistenceError("save processed data "+filePath, err)
	}
	return &pd, nil
}

// StageQuery selects artifacts of one stage.
type StageQuery struct {
	Stage       string
	ExecutionID *uint
	Category    string
}

// DataByStage lists the project's artifacts at a stage, optionally narrowed
// to one execution and one category.
func (m *DataManager) DataByStage(ctx context.Context, q StageQuery) ([]models.Data, error) {
	return DataByStage(ctx, m.db, m.project.ProjectID, q)
}

// DataByStage is the project-id form of DataManager.DataByStage.
func DataByStage(ctx context.Context, db *gorm.DB, projectID uint, q StageQuery) ([]models.Data, error) {
	tx := db.WithContext(ctx).
		Where("project_id = ? AND processing_stage = ?", projectID, q.Stage)
	if q.ExecutionID != nil {
		tx = tx.Where("workflow_execution_id = ?", *q.ExecutionID)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}

	var rows []models.Data
	if err := tx.Order("data_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query stage %s: %w", q.Stage, err)
	}
	return rows, nil
}

// ExistingDataIDs returns the subset of ids that still have a Data row,
// preserving input order.
func (m *DataManager) ExistingDataIDs(ctx context.Context, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []uint
	if err := m.db.WithContext(ctx).Model(&models.Data{}).
		Where("data_id IN ?", ids).
		Pluck("data_id", &found).Error; err != nil {
		return nil, fmt.Errorf("filter persisted data: %w", err)
	}
	present := make(map[uint]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}
	out := make([]uint, 0, len(found))
	for _, id := range ids {
		if _, ok := present[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// GetData loads a Data row; a missing row returns (nil, nil).
func (m *DataManager) GetData(ctx context.Context, id uint) (*models.Data, error) {
	var d models.Data
	err := m.db.WithContext(ctx).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewPersistenceError(fmt.Sprintf("load data %d", id), err)
	}
	return &d, nil
}

// GetProcessedData loads a ProcessedData row; a missing row returns (nil, nil).
func (m *DataManager) GetProcessedData(ctx context.Context, id uint) (*models.ProcessedData, error) {
	var pd models.ProcessedData
	err := m.db.WithContext(ctx).First(&pd, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewPersistenceError(fmt.Sprintf("load processed data %d", id), err)
	}
	return &pd, nil
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func formatOf(p string) string {
	ext := path.Ext(p)
	if ext == "" {
		return "jpg"
	}
	return ext[1:]
}
