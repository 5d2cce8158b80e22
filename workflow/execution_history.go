package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
)

// transitions lists the allowed status moves for executions and node
// executions. COMPLETED and SKIPPED never move; a new run gets a new row.
var transitions = map[models.NodeStatus][]models.NodeStatus{
	models.StatusPending: {models.StatusProcessing, models.StatusSkipped, models.StatusFailed},
	models.StatusProcessing: {models.StatusCompleted, models.StatusFailed},
	models.StatusFailed:  {models.StatusPending},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to models.NodeStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Tracker persists execution and node-execution status. Every update is
// guarded by the expected current status, so a stale writer fails instead of
// overwriting a newer state.
type Tracker struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates a tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		logger: logger.With(zap.String("component", "execution_tracker")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// LoadExecution fetches an execution.
func (t *Tracker) LoadExecution(ctx context.Context, db *gorm.DB, id uint) (*models.WorkflowExecution, error) {
	var exec models.WorkflowExecution
	if err := db.WithContext(ctx).First(&exec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("execution", id)
		}
		return nil, types.NewPersistenceError("load execution", err)
	}
	return &exec, nil
}

func (t *Tracker) moveExecution(ctx context.Context, tx *gorm.DB, id uint, from []models.NodeStatus, to models.NodeStatus, fields map[string]any) error {
	for _, f := range from {
		if !CanTransition(f, to) {
			return fmt.Errorf("illegal execution transition %s -> %s", f, to)
		}
	}
	fields["status"] = to
	res := tx.WithContext(ctx).Model(&models.WorkflowExecution{}).
		Where("execution_id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return types.NewPersistenceError(fmt.Sprintf("update execution %d", id), res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewInvalidStateError("execution %d is not %v", id, from)
	}
	t.logger.Info("execution status changed",
		zap.Uint("execution_id", id),
		zap.String("status", string(to)))
	return nil
}

// StartExecution moves PENDING -> PROCESSING and stamps started_at.
func (t *Tracker) StartExecution(ctx context.Context, tx *gorm.DB, id uint) error {
	return t.moveExecution(ctx, tx, id, []models.NodeStatus{models.StatusPending}, models.StatusProcessing, map[string]any{
		"started_at":    t.now(),
		"completed_at":  nil,
		"error_message": nil,
	})
}

// FinishExecution moves PROCESSING to COMPLETED or FAILED. A PENDING execution
// may also be failed directly, e.g. when its snapshot does not compile.
func (t *Tracker) FinishExecution(ctx context.Context, tx *gorm.DB, id uint, status models.NodeStatus, message string) error {
	from := []models.NodeStatus{models.StatusProcessing}
	if status == models.StatusFailed {
		from = append(from, models.StatusPending)
	}
	fields := map[string]any{"completed_at": t.now()}
	if message != "" {
		fields["error_message"] = message
	}
	return t.moveExecution(ctx, tx, id, from, status, fields)
}

// AbandonExecution moves a PENDING execution straight to FAILED, e.g. when
// it could not be queued.
func (t *Tracker) AbandonExecution(ctx context.Context, tx *gorm.DB, id uint, message string) error {
	return t.moveExecution(ctx, tx, id, []models.NodeStatus{models.StatusPending}, models.StatusFailed, map[string]any{
		"completed_at":  t.now(),
		"error_message": message,
	})
}

// ResetForRetry moves a FAILED execution and its FAILED node executions back
// to PENDING, clearing errors and timestamps. COMPLETED nodes are untouched.
func (t *Tracker) ResetForRetry(ctx context.Context, tx *gorm.DB, id uint) (int64, error) {
	if err := t.moveExecution(ctx, tx, id, []models.NodeStatus{models.StatusFailed}, models.StatusPending, map[string]any{
		"started_at":    nil,
		"completed_at":  nil,
		"error_message": nil,
	}); err != nil {
		return 0, err
	}

	res := tx.WithContext(ctx).Model(&models.WorkflowNodeExecution{}).
		Where("execution_id = ? AND status = ?", id, models.StatusFailed).
		Updates(map[string]any{
			"status":        models.StatusPending,
			"started_at":    nil,
			"completed_at":  nil,
			"error_message": nil,
		})
	if res.Error != nil {
		return 0, types.NewPersistenceError("reset failed nodes", res.Error)
	}
	return res.RowsAffected, nil
}

// CreateNode inserts a PENDING node execution for node.
func (t *Tracker) CreateNode(ctx context.Context, tx *gorm.DB, executionID uint, node models.NodeConfig) (*models.WorkflowNodeExecution, error) {
	return t.insertNode(ctx, tx, executionID, node, models.StatusPending, "")
}

func (t *Tracker) insertNode(ctx context.Context, tx *gorm.DB, executionID uint, node models.NodeConfig, status models.NodeStatus, message string) (*models.WorkflowNodeExecution, error) {
	ne := models.WorkflowNodeExecution{
		ExecutionID:   executionID,
		NodeID:        node.ID,
		NodeType:      node.Type,
		Status:        status,
		Config:        datatypes.NewJSONType(node),
		InputDataIDs:  models.IDList(nil),
		OutputDataIDs: models.IDList(nil),
	}
	if message != "" {
		ne.ErrorMessage = &message
	}
	if err := tx.WithContext(ctx).Create(&ne).Error; err != nil {
		return nil, types.NewPersistenceError("create node execution "+node.ID, err)
	}
	return &ne, nil
}

func (t *Tracker) moveNode(ctx context.Context, tx *gorm.DB, ne *models.WorkflowNodeExecution, to models.NodeStatus, fields map[string]any) error {
	if !CanTransition(ne.Status, to) {
		return types.NewInvalidStateError("node %s cannot move from %s to %s", ne.NodeID, ne.Status, to)
	}
	fields["status"] = to
	res := tx.WithContext(ctx).Model(&models.WorkflowNodeExecution{}).
		Where("id = ? AND status = ?", ne.ID, ne.Status).
		Updates(fields)
	if res.Error != nil {
		return types.NewPersistenceError("update node execution "+ne.NodeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewInvalidStateError("node execution %d is no longer %s", ne.ID, ne.Status)
	}
	ne.Status = to
	return nil
}

// StartNode moves PENDING -> PROCESSING.
func (t *Tracker) StartNode(ctx context.Context, tx *gorm.DB, ne *models.WorkflowNodeExecution) error {
	now := t.now()
	if err := t.moveNode(ctx, tx, ne, models.StatusProcessing, map[string]any{
		"started_at":    now,
		"completed_at":  nil,
		"error_message": nil,
	}); err != nil {
		return err
	}
	ne.StartedAt = &now
	ne.CompletedAt = nil
	ne.ErrorMessage = nil
	return nil
}

// RecordInputs stores the resolved input ids of a running node.
func (t *Tracker) RecordInputs(ctx context.Context, tx *gorm.DB, ne *models.WorkflowNodeExecution, ids []uint) error {
	list := models.IDList(ids)
	if err := tx.WithContext(ctx).Model(&models.WorkflowNodeExecution{}).
		Where("id = ?", ne.ID).
		Update("input_data_ids", list).Error; err != nil {
		return types.NewPersistenceError("record inputs of "+ne.NodeID, err)
	}
	ne.InputDataIDs = list
	return nil
}

// CompleteNode moves PROCESSING -> COMPLETED with the node's outputs. note is
// kept in error_message when some inputs were skipped.
func (t *Tracker) CompleteNode(ctx context.Context, tx *gorm.DB, ne *models.WorkflowNodeExecution, outputs []uint, note string) error {
	now := t.now()
	list := models.IDList(outputs)
	fields := map[string]any{
		"output_data_ids": list,
		"completed_at":    now,
	}
	if note != "" {
		fields["error_message"] = note
	}
	if err := t.moveNode(ctx, tx, ne, models.StatusCompleted, fields); err != nil {
		return err
	}
	ne.OutputDataIDs = list
	ne.CompletedAt = &now
	if note != "" {
		ne.ErrorMessage = &note
	}
	return nil
}

// FailNode moves a PENDING or PROCESSING node to FAILED with message.
func (t *Tracker) FailNode(ctx context.Context, tx *gorm.DB, ne *models.WorkflowNodeExecution, message string) error {
	now := t.now()
	if err := t.moveNode(ctx, tx, ne, models.StatusFailed, map[string]any{
		"error_message":   message,
		"completed_at":    now,
		"output_data_ids": models.IDList(nil),
	}); err != nil {
		return err
	}
	ne.ErrorMessage = &message
	ne.CompletedAt = &now
	ne.OutputDataIDs = models.IDList(nil)
	t.logger.Error("node execution failed",
		zap.Uint("execution_id", ne.ExecutionID),
		zap.String("node_id", ne.NodeID),
		zap.Uint("node_execution_id", ne.ID),
		zap.String("error", message))
	return nil
}

// SkipNode marks node SKIPPED, reusing its PENDING row when there is one.
func (t *Tracker) SkipNode(ctx context.Context, tx *gorm.DB, executionID uint, node models.NodeConfig, reason string) (*models.WorkflowNodeExecution, error) {
	latest, err := t.LatestNode(ctx, tx, executionID, node.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Status == models.StatusPending {
		if err := t.moveNode(ctx, tx, latest, models.StatusSkipped, map[string]any{
			"error_message": reason,
			"completed_at":  t.now(),
		}); err != nil {
			return nil, err
		}
		latest.ErrorMessage = &reason
		return latest, nil
	}
	return t.insertNode(ctx, tx, executionID, node, models.StatusSkipped, reason)
}

// LatestNode returns the newest row for (executionID, nodeID), or nil.
func (t *Tracker) LatestNode(ctx context.Context, db *gorm.DB, executionID uint, nodeID string) (*models.WorkflowNodeExecution, error) {
	var ne models.WorkflowNodeExecution
	err := db.WithContext(ctx).
		Where("execution_id = ? AND node_id = ?", executionID, nodeID).
		Order("id DESC").
		First(&ne).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewPersistenceError("load node execution "+nodeID, err)
	}
	return &ne, nil
}

// LatestNodes returns the newest row per node id of an execution.
func (t *Tracker) LatestNodes(ctx context.Context, db *gorm.DB, executionID uint) (map[string]models.WorkflowNodeExecution, error) {
	var rows []models.WorkflowNodeExecution
	if err := db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, types.NewPersistenceError("load node executions", err)
	}
	out := make(map[string]models.WorkflowNodeExecution, len(rows))
	for _, r := range rows {
		out[r.NodeID] = r
	}
	return out, nil
}

// LatestCompleted returns the most recently completed execution of nodeID
// anywhere in the project, by completed_at, or nil.
func (t *Tracker) LatestCompleted(ctx context.Context, db *gorm.DB, projectID uint, nodeID string) (*models.WorkflowNodeExecution, error) {
	var ne models.WorkflowNodeExecution
	err := db.WithContext(ctx).
		Joins("JOIN workflow_execution ON workflow_execution.execution_id = workflow_node_execution.execution_id").
		Where("workflow_execution.project_id = ?", projectID).
		Where("workflow_node_execution.node_id = ? AND workflow_node_execution.status = ?", nodeID, models.StatusCompleted).
		Order("workflow_node_execution.completed_at DESC").
		Order("workflow_node_execution.id DESC").
		First(&ne).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewPersistenceError("load latest completed "+nodeID, err)
	}
	return &ne, nil
}
