package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/types"
	"github.com/BaSui01/labelflow/workflow"
)

// =============================================================================
// Project Handler
// =============================================================================

// ProjectHandler serves project records.
type ProjectHandler struct {
	svc    *workflow.Service
	logger *zap.Logger
}

// NewProjectHandler creates a project handler.
func NewProjectHandler(svc *workflow.Service, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{svc: svc, logger: logger}
}

// HandleCreateProject creates a project
// @Summary Create project
// @Tags project
// @Accept json
// @Produce json
// @Param request body workflow.ProjectInput true "Project"
// @Success 201 {object} Response{data=models.Project} "Created project"
// @Failure 400 {object} Response "Invalid request"
// @Router /api/v1/projects [post]
func (h *ProjectHandler) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var in workflow.ProjectInput
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}

	project, err := h.svc.CreateProject(r.Context(), in)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteCreated(w, project)
}

// HandleGetProject returns a project
// @Summary Get project
// @Tags project
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} Response{data=models.Project} "Project"
// @Failure 404 {object} Response "Project not found"
// @Router /api/v1/projects/{id} [get]
func (h *ProjectHandler) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	project, err := h.svc.GetProject(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, project)
}

// HandleDeleteProject deletes a project with everything it owns
// @Summary Delete project
// @Tags project
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} Response "Deleted"
// @Failure 404 {object} Response "Project not found"
// @Router /api/v1/projects/{id} [delete]
func (h *ProjectHandler) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if err := h.svc.DeleteProject(r.Context(), id); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]uint{"project_id": id})
}

// HandleGetProjectWorkflow returns the latest workflow of a project
// @Summary Get project workflow
// @Tags project
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} Response{data=models.Workflow} "Workflow"
// @Failure 404 {object} Response "No workflow"
// @Router /api/v1/projects/{id}/workflow [get]
func (h *ProjectHandler) HandleGetProjectWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", h.logger)
	if !ok {
		return
	}
	wf, err := h.svc.GetProjectWorkflow(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, wf)
}

// pathID parses a numeric path parameter, writing a 400 when it is invalid.
func pathID(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (uint, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid "+name+": "+strconv.Quote(raw), logger)
		return 0, false
	}
	return uint(id), true
}
