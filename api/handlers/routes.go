package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/workflow"
)

// =============================================================================
// 🛣️ 路由注册
// =============================================================================

// API 聚合所有业务处理器
type API struct {
	Projects   *ProjectHandler
	Workflows  *WorkflowHandler
	Executions *ExecutionHandler
}

// NewAPI 基于引擎与服务创建处理器集合
func NewAPI(engine *workflow.Engine, svc *workflow.Service, logger *zap.Logger) *API {
	return &API{
		Projects:   NewProjectHandler(svc, logger),
		Workflows:  NewWorkflowHandler(svc, logger),
		Executions: NewExecutionHandler(engine, svc, logger),
	}
}

// Register 将 /api/v1 路由注册到 mux（Go 1.22 方法+通配符模式）
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/projects", a.Projects.HandleCreateProject)
	mux.HandleFunc("GET /api/v1/projects/{id}", a.Projects.HandleGetProject)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", a.Projects.HandleDeleteProject)
	mux.HandleFunc("GET /api/v1/projects/{id}/workflow", a.Projects.HandleGetProjectWorkflow)

	mux.HandleFunc("POST /api/v1/workflows", a.Workflows.HandleCreateWorkflow)
	mux.HandleFunc("GET /api/v1/workflows/{id}", a.Workflows.HandleGetWorkflow)
	mux.HandleFunc("PUT /api/v1/workflows/{id}", a.Workflows.HandleUpdateWorkflow)
	mux.HandleFunc("GET /api/v1/workflows/{id}/executions", a.Workflows.HandleListExecutions)

	mux.HandleFunc("POST /api/v1/workflows/{id}/execute", a.Executions.HandleExecuteWorkflow)
	mux.HandleFunc("POST /api/v1/workflows/{id}/nodes/{node}/execute", a.Executions.HandleExecuteNode)
	mux.HandleFunc("GET /api/v1/executions/{id}/status", a.Executions.HandleGetStatus)
	mux.HandleFunc("GET /api/v1/executions/{id}/nodes/{node}/status", a.Executions.HandleGetNodeStatus)
	mux.HandleFunc("POST /api/v1/executions/{id}/retry", a.Executions.HandleRetry)
	mux.HandleFunc("DELETE /api/v1/executions/{id}", a.Executions.HandleDeleteExecution)
	mux.HandleFunc("GET /api/v1/executions/{id}/data/{stage}", a.Executions.HandleGetStageData)
	mux.HandleFunc("GET /api/v1/node-executions/{id}/data", a.Executions.HandleGetNodeData)
}
