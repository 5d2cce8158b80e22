package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/internal/cache"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
)

// NodeStatus is one node's entry in a status snapshot.
type NodeStatus struct {
	Status          models.NodeStatus `json:"status"`
	NodeExecutionID uint              `json:"node_execution_id,omitempty"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	InputCount      int               `json:"input_count"`
	OutputCount     int               `json:"output_count"`
}

// ExecutionStatus is the polled view of an execution.
type ExecutionStatus struct {
	ExecutionID  uint                  `json:"execution_id"`
	Status       models.NodeStatus     `json:"status"`
	Mode         models.ExecutionMode  `json:"mode"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Nodes        map[string]NodeStatus `json:"nodes"`
}

// NodeDetail is a node status with its input and output ids.
type NodeDetail struct {
	NodeID string `json:"node_id"`
	NodeStatus
	InputDataIDs  []uint `json:"input_data_ids"`
	OutputDataIDs []uint `json:"output_data_ids"`
}

func statusKey(executionID uint) string {
	return "status:" + lockKey(executionID)
}

// GetStatus returns the execution status and the latest row of every node in
// its snapshot. Nodes without a row are reported PENDING. Terminal snapshots
// are served from the status cache when one is configured.
func (e *Engine) GetStatus(ctx context.Context, executionID uint) (*ExecutionStatus, error) {
	if e.status != nil {
		var cached ExecutionStatus
		err := e.status.GetJSON(ctx, statusKey(executionID), &cached)
		switch {
		case err == nil:
			if e.metrics != nil {
				e.metrics.RecordCacheHit("status")
			}
			return &cached, nil
		case cache.IsCacheMiss(err):
			if e.metrics != nil {
				e.metrics.RecordCacheMiss("status")
			}
		default:
			e.logger.Warn("status cache read failed", zap.Uint("execution_id", executionID), zap.Error(err))
		}
	}

	exec, err := e.tracker.LoadExecution(ctx, e.db.DB(), executionID)
	if err != nil {
		return nil, err
	}
	latest, err := e.tracker.LatestNodes(ctx, e.db.DB(), executionID)
	if err != nil {
		return nil, err
	}

	st := &ExecutionStatus{
		ExecutionID: exec.ExecutionID,
		Status:      exec.Status,
		Mode:        exec.Mode,
		StartedAt:   exec.StartedAt,
		CompletedAt: exec.CompletedAt,
		Nodes:       make(map[string]NodeStatus, len(latest)),
	}
	if exec.ErrorMessage != nil {
		st.ErrorMessage = *exec.ErrorMessage
	}
	for _, n := range exec.Config.Data().Nodes {
		st.Nodes[n.ID] = NodeStatus{Status: models.StatusPending}
	}
	for id, ne := range latest {
		st.Nodes[id] = nodeStatusOf(ne)
	}

	if e.status != nil && (st.Status == models.StatusCompleted || st.Status == models.StatusFailed) {
		if err := e.status.SetJSON(ctx, statusKey(executionID), st, e.cfg.StatusCacheTTL); err != nil {
			e.logger.Warn("status cache write failed", zap.Uint("execution_id", executionID), zap.Error(err))
		}
	}
	return st, nil
}

// GetNodeStatus returns the latest row of nodeID in an execution.
func (e *Engine) GetNodeStatus(ctx context.Context, executionID uint, nodeID string) (*NodeDetail, error) {
	exec, err := e.tracker.LoadExecution(ctx, e.db.DB(), executionID)
	if err != nil {
		return nil, err
	}
	ne, err := e.tracker.LatestNode(ctx, e.db.DB(), executionID, nodeID)
	if err != nil {
		return nil, err
	}
	if ne == nil {
		if _, ok := exec.Config.Data().Node(nodeID); !ok {
			return nil, types.NewNotFoundError("node", nodeID)
		}
		return &NodeDetail{
			NodeID:        nodeID,
			NodeStatus:    NodeStatus{Status: models.StatusPending},
			InputDataIDs:  []uint{},
			OutputDataIDs: []uint{},
		}, nil
	}
	return &NodeDetail{
		NodeID:        nodeID,
		NodeStatus:    nodeStatusOf(*ne),
		InputDataIDs:  append([]uint{}, ne.InputDataIDs...),
		OutputDataIDs: append([]uint{}, ne.OutputDataIDs...),
	}, nil
}

func nodeStatusOf(ne models.WorkflowNodeExecution) NodeStatus {
	ns := NodeStatus{
		Status:          ne.Status,
		NodeExecutionID: ne.ID,
		StartedAt:       ne.StartedAt,
		CompletedAt:     ne.CompletedAt,
		InputCount:      len(ne.InputDataIDs),
		OutputCount:     len(ne.OutputDataIDs),
	}
	if ne.ErrorMessage != nil {
		ns.ErrorMessage = *ne.ErrorMessage
	}
	return ns
}

// forgetStatus drops a cached snapshot after the execution changed.
func (e *Engine) forgetStatus(ctx context.Context, executionID uint) {
	if e.status == nil {
		return
	}
	if err := e.status.Delete(ctx, statusKey(executionID)); err != nil {
		e.logger.Warn("status cache delete failed", zap.Uint("execution_id", executionID), zap.Error(err))
	}
}
