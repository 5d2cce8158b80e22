package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/workflow"
)

// =============================================================================
// Workflow Handler
// =============================================================================

// WorkflowHandler serves workflow records.
type WorkflowHandler struct {
	svc    *workflow.Service
	logger *zap.Logger
}

// NewWorkflowHandler creates a workflow handler.
func NewWorkflowHandler(svc *workflow.Service, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{svc: svc, logger: logger}
}

// HandleCreateWorkflow validates and stores a workflow
// @Summary Create workflow
// @Description The graph is validated before anything is written.
// @Tags workflow
// @Accept json
// @Produce json
// @Param request body workflow.WorkflowInput true "Workflow"
// @Success 201 {object} Response{data=models.Workflow} "Created workflow"
// @Failure 400 {object} Response "Invalid graph"
// @Failure 404 {object} Response "Project not found"
// @Router /api/v1/workflows [post]
func (h *WorkflowHandler) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var in workflow.WorkflowInput
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}

	wf, err := h.svc.CreateWorkflow(r.Context(), in)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteCreated(w, wf)
}

// HandleGetWorkflow returns a workflow
// @Summary Get workflow
// @Tags workflow
// @Produce json
// @Param id path int true "Workflow ID"
// @Success 200 {object} Response{data=models.Workflow} "Workflow"
// @Failure 404 {object} Response "Workflow not found"
// @Router /api/v1/workflows/{id} [get]
func (h *WorkflowHandler) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	wf, err := h.svc.GetWorkflow(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, wf)
}

// HandleUpdateWorkflow patches a workflow
// @Summary Update workflow
// @Tags workflow
// @Accept json
// @Produce json
// @Param id path int true "Workflow ID"
// @Param request body workflow.WorkflowPatch true "Fields to change"
// @Success 200 {object} Response{data=models.Workflow} "Updated workflow"
// @Failure 400 {object} Response "Invalid graph"
// @Failure 404 {object} Response "Workflow not found"
// @Router /api/v1/workflows/{id} [put]
func (h *WorkflowHandler) HandleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var patch workflow.WorkflowPatch
	if err := DecodeJSONBody(w, r, &patch, h.logger); err != nil {
		return
	}

	wf, err := h.svc.UpdateWorkflow(r.Context(), id, patch)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, wf)
}

// HandleListExecutions lists a workflow's executions, newest first
// @Summary List executions
// @Tags workflow
// @Produce json
// @Param id path int true "Workflow ID"
// @Success 200 {object} Response{data=[]models.WorkflowExecution} "Executions"
// @Failure 404 {object} Response "Workflow not found"
// @Router /api/v1/workflows/{id}/executions [get]
func (h *WorkflowHandler) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	execs, err := h.svc.ListExecutions(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, execs)
}
