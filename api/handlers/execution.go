package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/types"
	"github.com/BaSui01/labelflow/workflow"
)

// =============================================================================
// Execution Handler
// =============================================================================

// ExecutionHandler starts, polls, retries and deletes executions.
type ExecutionHandler struct {
	engine *workflow.Engine
	svc    *workflow.Service
	logger *zap.Logger
}

// NewExecutionHandler creates an execution handler.
func NewExecutionHandler(engine *workflow.Engine, svc *workflow.Service, logger *zap.Logger) *ExecutionHandler {
	return &ExecutionHandler{engine: engine, svc: svc, logger: logger}
}

// ExecuteRequest is the optional body of a graph execution request.
type ExecuteRequest struct {
	ParamOverrides map[string]map[string]any `json:"param_overrides,omitempty"`
}

// ExecuteResponse acknowledges a submitted execution.
type ExecuteResponse struct {
	ExecutionID uint              `json:"execution_id"`
	Status      models.NodeStatus `json:"status"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// HandleExecuteWorkflow snapshots a workflow and submits it to the worker pool
// @Summary Execute workflow
// @Description Creates a graph execution and runs it in the background.
// @Tags execution
// @Accept json
// @Produce json
// @Param id path int true "Workflow ID"
// @Param request body ExecuteRequest false "Parameter overrides"
// @Success 202 {object} Response{data=ExecuteResponse} "Submitted"
// @Failure 400 {object} Response "Invalid graph or overrides"
// @Failure 404 {object} Response "Workflow not found"
// @Failure 503 {object} Response "Worker queue full"
// @Router /api/v1/workflows/{id}/execute [post]
func (h *ExecutionHandler) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req ExecuteRequest
	if r.ContentLength != 0 {
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}

	exec, err := h.engine.CreateExecution(r.Context(), id, workflow.ExecutionOptions{ParamOverrides: req.ParamOverrides})
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	if err := h.engine.Submit(r.Context(), exec.ExecutionID); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusAccepted, Response{
		Success: true,
		Data: ExecuteResponse{
			ExecutionID: exec.ExecutionID,
			Status:      exec.Status,
			SubmittedAt: time.Now(),
		},
		Timestamp: time.Now(),
	})
}

// HandleExecuteNode runs one node of a workflow synchronously
// @Summary Execute single node
// @Description Inputs come from the latest completed runs of the node's predecessors. A failed node is reported in the result.
// @Tags execution
// @Produce json
// @Param id path int true "Workflow ID"
// @Param node path string true "Node ID"
// @Success 200 {object} Response{data=workflow.NodeResult} "Node result"
// @Failure 404 {object} Response "Workflow or node not found"
// @Failure 409 {object} Response "Execution locked"
// @Router /api/v1/workflows/{id}/nodes/{node}/execute [post]
func (h *ExecutionHandler) HandleExecuteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	nodeID := r.PathValue("node")

	result, err := h.engine.ExecuteNode(r.Context(), id, nodeID)
	if err != nil && !workflow.IsNodeFailure(err) {
		WriteServiceError(w, err, h.logger)
		return
	}
	if err != nil {
		h.logger.Info("single node failed",
			zap.Uint("execution_id", result.ExecutionID),
			zap.String("node_id", nodeID),
			zap.Error(err))
	}
	WriteSuccess(w, result)
}

// HandleGetStatus returns the status snapshot of an execution
// @Summary Execution status
// @Tags execution
// @Produce json
// @Param id path int true "Execution ID"
// @Success 200 {object} Response{data=workflow.ExecutionStatus} "Status"
// @Failure 404 {object} Response "Execution not found"
// @Router /api/v1/executions/{id}/status [get]
func (h *ExecutionHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	st, err := h.engine.GetStatus(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, st)
}

// HandleGetNodeStatus returns the latest run of one node
// @Summary Node status
// @Tags execution
// @Produce json
// @Param id path int true "Execution ID"
// @Param node path string true "Node ID"
// @Success 200 {object} Response{data=workflow.NodeDetail} "Node status"
// @Failure 404 {object} Response "Execution or node not found"
// @Router /api/v1/executions/{id}/nodes/{node}/status [get]
func (h *ExecutionHandler) HandleGetNodeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	nd, err := h.engine.GetNodeStatus(r.Context(), id, r.PathValue("node"))
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, nd)
}

// HandleRetry resubmits a failed execution
// @Summary Retry execution
// @Tags execution
// @Produce json
// @Param id path int true "Execution ID"
// @Success 202 {object} Response{data=ExecuteResponse} "Resubmitted"
// @Failure 404 {object} Response "Execution not found"
// @Failure 409 {object} Response "Execution is not FAILED"
// @Router /api/v1/executions/{id}/retry [post]
func (h *ExecutionHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if err := h.engine.Retry(r.Context(), id); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusAccepted, Response{
		Success:   true,
		Data:      ExecuteResponse{ExecutionID: id, Status: models.StatusPending, SubmittedAt: time.Now()},
		Timestamp: time.Now(),
	})
}

// HandleDeleteExecution deletes an execution with its node runs and artifacts
// @Summary Delete execution
// @Tags execution
// @Produce json
// @Param id path int true "Execution ID"
// @Success 200 {object} Response "Deleted"
// @Failure 404 {object} Response "Execution not found"
// @Failure 409 {object} Response "Execution is running"
// @Router /api/v1/executions/{id} [delete]
func (h *ExecutionHandler) HandleDeleteExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if err := h.engine.DeleteExecution(r.Context(), id); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]uint{"execution_id": id})
}

// HandleGetStageData lists the artifacts an execution wrote at a stage
// @Summary Stage data
// @Tags execution
// @Produce json
// @Param id path int true "Execution ID"
// @Param stage path string true "Processing stage"
// @Param category query string false "Category filter"
// @Success 200 {object} Response{data=[]models.Data} "Artifacts"
// @Failure 404 {object} Response "Execution not found"
// @Router /api/v1/executions/{id}/data/{stage} [get]
func (h *ExecutionHandler) HandleGetStageData(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	stage := r.PathValue("stage")
	if stage == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "stage is required"), h.logger)
		return
	}
	rows, err := h.svc.GetExecutionStageData(r.Context(), id, stage, r.URL.Query().Get("category"))
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, rows)
}

// HandleGetNodeData returns a node execution with everything it wrote
// @Summary Node execution data
// @Tags execution
// @Produce json
// @Param id path int true "Node execution ID"
// @Success 200 {object} Response{data=workflow.NodeData} "Node data"
// @Failure 404 {object} Response "Node execution not found"
// @Router /api/v1/node-executions/{id}/data [get]
func (h *ExecutionHandler) HandleGetNodeData(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	data, err := h.svc.GetNodeData(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, data)
}
