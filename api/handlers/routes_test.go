package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/config"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/testutil"
	"github.com/BaSui01/labelflow/workflow"
)

// =============================================================================
// 🧪 测试夹具
// =============================================================================

type apiFixture struct {
	mux     *http.ServeMux
	engine  *workflow.Engine
	project *models.Project
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	pm := testutil.NewTestDB(t)
	cfg := config.DefaultEngineConfig()
	cfg.LockTTL = time.Minute
	engine := workflow.NewEngine(pm, cfg, testutil.StorageConfig(), zap.NewNop())
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	svc := workflow.NewService(pm, testutil.StorageConfig(), zap.NewNop())

	mux := http.NewServeMux()
	NewAPI(engine, svc, zap.NewNop()).Register(mux)
	f := &apiFixture{mux: mux, engine: engine}

	var project models.Project
	f.do(t, http.MethodPost, "/api/v1/projects",
		workflow.ProjectInput{Name: "birds", DataDir: t.TempDir()}, http.StatusCreated, &project)
	f.project = &project
	testutil.WriteImage(t, f.project, "a.png", 8, 6)
	return f
}

// do sends body as JSON and decodes Response.Data into out.
func (f *apiFixture) do(t *testing.T, method, path string, body any, wantStatus int, out any) *Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, path, rd)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, r)
	require.Equal(t, wantStatus, w.Code, "%s %s: %s", method, path, w.Body.String())

	var resp struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if out != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
	return &resp.Response
}

func (f *apiFixture) createWorkflow(t *testing.T, cfg models.WorkflowConfig) uint {
	t.Helper()
	var wf models.Workflow
	f.do(t, http.MethodPost, "/api/v1/workflows",
		workflow.WorkflowInput{ProjectID: f.project.ProjectID, Name: "wf", Config: cfg}, http.StatusCreated, &wf)
	require.NotZero(t, wf.WorkflowID)
	return wf.WorkflowID
}

// =============================================================================
// 🧪 路由测试
// =============================================================================

func TestAPI_ProjectLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	path := fmt.Sprintf("/api/v1/projects/%d", f.project.ProjectID)

	var got models.Project
	f.do(t, http.MethodGet, path, nil, http.StatusOK, &got)
	assert.Equal(t, "birds", got.Name)

	resp := f.do(t, http.MethodPost, "/api/v1/projects", workflow.ProjectInput{DataDir: t.TempDir()}, http.StatusBadRequest, nil)
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)

	f.do(t, http.MethodGet, path+"/workflow", nil, http.StatusNotFound, nil)
	wfID := f.createWorkflow(t, testutil.SourcePreprocessConfig())
	var wf models.Workflow
	f.do(t, http.MethodGet, path+"/workflow", nil, http.StatusOK, &wf)
	assert.Equal(t, wfID, wf.WorkflowID)

	f.do(t, http.MethodDelete, path, nil, http.StatusOK, nil)
	f.do(t, http.MethodGet, path, nil, http.StatusNotFound, nil)
	f.do(t, http.MethodGet, "/api/v1/projects/abc", nil, http.StatusBadRequest, nil)
}

func TestAPI_WorkflowValidation(t *testing.T) {
	f := newAPIFixture(t)

	cyclic := models.WorkflowConfig{
		Nodes: []models.NodeConfig{{ID: "a", Type: models.NodePreprocess}, {ID: "b", Type: models.NodeClassification}},
		Edges: []models.EdgeConfig{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}},
	}
	resp := f.do(t, http.MethodPost, "/api/v1/workflows",
		workflow.WorkflowInput{ProjectID: f.project.ProjectID, Name: "bad", Config: cyclic}, http.StatusBadRequest, nil)
	assert.Equal(t, "CONFIGURATION_ERROR", resp.Error.Code)

	id := f.createWorkflow(t, testutil.SourcePreprocessConfig())
	name := "renamed"
	cfg := testutil.BranchingConfig()
	var wf models.Workflow
	f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/workflows/%d", id),
		workflow.WorkflowPatch{Name: &name, Config: &cfg}, http.StatusOK, &wf)
	assert.Equal(t, "renamed", wf.Name)
	assert.Len(t, wf.Config.Data().Nodes, 5)

	f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/workflows/%d", id),
		workflow.WorkflowPatch{Config: &cyclic}, http.StatusBadRequest, nil)
	f.do(t, http.MethodGet, "/api/v1/workflows/404", nil, http.StatusNotFound, nil)
}

func TestAPI_ExecuteAndPoll(t *testing.T) {
	f := newAPIFixture(t)
	wfID := f.createWorkflow(t, testutil.BranchingConfig())

	var ack ExecuteResponse
	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/workflows/%d/execute", wfID), nil, http.StatusAccepted, &ack)
	require.NotZero(t, ack.ExecutionID)
	assert.Equal(t, models.StatusPending, ack.Status)
	f.engine.Wait()

	var st workflow.ExecutionStatus
	f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/executions/%d/status", ack.ExecutionID), nil, http.StatusOK, &st)
	assert.Equal(t, models.StatusCompleted, st.Status)
	assert.Len(t, st.Nodes, 5)

	var nd workflow.NodeDetail
	f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/executions/%d/nodes/det/status", ack.ExecutionID), nil, http.StatusOK, &nd)
	assert.Equal(t, models.StatusCompleted, nd.Status)
	assert.Len(t, nd.OutputDataIDs, 1)

	var rows []models.Data
	f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/executions/%d/data/det", ack.ExecutionID), nil, http.StatusOK, &rows)
	assert.Len(t, rows, 1)

	var data workflow.NodeData
	f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/node-executions/%d/data", nd.NodeExecutionID), nil, http.StatusOK, &data)
	assert.Equal(t, "det", data.NodeExecution.NodeID)

	var execs []models.WorkflowExecution
	f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/workflows/%d/executions", wfID), nil, http.StatusOK, &execs)
	assert.Len(t, execs, 1)

	resp := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/executions/%d/retry", ack.ExecutionID), nil, http.StatusConflict, nil)
	assert.Equal(t, "INVALID_STATE", resp.Error.Code)

	f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/executions/%d", ack.ExecutionID), nil, http.StatusOK, nil)
	f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/executions/%d/status", ack.ExecutionID), nil, http.StatusNotFound, nil)
}

func TestAPI_ExecuteWithOverrides(t *testing.T) {
	f := newAPIFixture(t)
	wfID := f.createWorkflow(t, testutil.BranchingConfig())

	resp := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/workflows/%d/execute", wfID),
		ExecuteRequest{ParamOverrides: map[string]map[string]any{"ghost": {"x": 1}}}, http.StatusBadRequest, nil)
	assert.Equal(t, "CONFIGURATION_ERROR", resp.Error.Code)

	var ack ExecuteResponse
	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/workflows/%d/execute", wfID),
		ExecuteRequest{ParamOverrides: map[string]map[string]any{"cls": {"threshold": 0.9}}}, http.StatusAccepted, &ack)
	f.engine.Wait()

	var st workflow.ExecutionStatus
	f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/executions/%d/status", ack.ExecutionID), nil, http.StatusOK, &st)
	assert.Equal(t, models.StatusCompleted, st.Status)
}

func TestAPI_ExecuteNode(t *testing.T) {
	f := newAPIFixture(t)
	wfID := f.createWorkflow(t, testutil.BranchingConfig())

	var res workflow.NodeResult
	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/workflows/%d/nodes/pre/execute", wfID), nil, http.StatusOK, &res)
	assert.Equal(t, "pre", res.NodeID)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Len(t, res.OutputDataIDs, 1)

	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/workflows/%d/nodes/ghost/execute", wfID), nil, http.StatusNotFound, nil)
	f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/executions/%d/nodes/ghost/status", res.ExecutionID), nil, http.StatusNotFound, nil)
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)

	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/v1/projects/1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
