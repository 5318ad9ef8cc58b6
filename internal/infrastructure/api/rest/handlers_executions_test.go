package rest

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/application/execengine"
	"github.com/smilemakc/mbflow/internal/application/materializer"
	"github.com/smilemakc/mbflow/internal/application/runner"
	"github.com/smilemakc/mbflow/internal/application/scheduler"
	"github.com/smilemakc/mbflow/internal/application/streaming"
	"github.com/smilemakc/mbflow/internal/application/supervisor"
	"github.com/smilemakc/mbflow/internal/application/taskqueue"
	"github.com/smilemakc/mbflow/internal/application/uisession"
	"github.com/smilemakc/mbflow/internal/config"
	"github.com/smilemakc/mbflow/internal/infrastructure/filestore"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/internal/infrastructure/storage"
	"github.com/smilemakc/mbflow/testutil"
)

// setupExecutionHandlersTest wires a full C5->C8 stack against a real
// test database, so HandleRunExecution drives an actual scheduler run end
// to end.
func setupExecutionHandlersTest(t *testing.T) (*ExecutionHandlers, *gin.Engine, *storage.WorkflowRepository, func()) {
	t.Helper()

	testDB := testutil.SetupTestDB(t)
	workflowRepo := storage.NewWorkflowRepository(testDB.DB)
	workflowExecRepo := storage.NewWorkflowExecutionRepository(testDB.DB)
	programRepo := storage.NewProgramRepository(testDB.DB)
	executionRepo := storage.NewExecutionRepository(testDB.DB)
	uiRepo := storage.NewUIInteractionRepository(testDB.DB)

	log := logger.New(config.LoggingConfig{Level: "error", Format: "text"})

	store, err := filestore.NewLocal(t.TempDir())
	require.NoError(t, err)
	mat := materializer.New(store, log, 64<<20)
	runners := runner.NewDefaultRegistry()
	sup := supervisor.New(log, 1<<20)
	hub := streaming.New(log, 200, time.Minute)
	queue := taskqueue.New(context.Background(), 32, log)

	execEngine := execengine.New(programRepo, executionRepo, mat, runners, sup, hub, queue, t.TempDir(), log)
	uiSessions := uisession.New(uiRepo, hub, log)
	sched := scheduler.New(workflowRepo, workflowExecRepo, execEngine, uiSessions, hub, queue, log)

	handlers := NewExecutionHandlers(workflowExecRepo, sched, log)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	{
		api.POST("/executions", handlers.HandleRunExecution)
		api.POST("/workflows/:workflow_id/execute", handlers.HandleRunExecution)
		api.GET("/executions/:id", handlers.HandleGetExecution)
		api.GET("/executions", handlers.HandleListExecutions)
		api.GET("/executions/:id/nodes/:nodeId", handlers.HandleGetNodeResult)
		api.POST("/executions/:id/cancel", handlers.HandleCancelExecution)
		api.POST("/executions/:id/pause", handlers.HandlePauseExecution)
		api.POST("/executions/:id/resume", handlers.HandleResumeExecution)
	}

	return handlers, router, workflowRepo, func() { testDB.Cleanup(t) }
}

// waitForTerminal polls GET /executions/:id until the run leaves Pending/
// Running, since HandleRunExecution returns 202 before the scheduler's
// background dispatch loop finishes a 3-node chain of instantly-completing
// CustomFunction nodes.
func waitForTerminal(t *testing.T, router *gin.Engine, executionID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := testutil.MakeRequest(t, router, "GET", fmt.Sprintf("/api/v1/executions/%s", executionID), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var result map[string]interface{}
		testutil.ParseDataResponse(t, w, &result)
		switch result["status"] {
		case "Completed", "Failed", "Cancelled", "Timeout":
			return result
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("execution did not reach a terminal status in time")
	return nil
}

// ========== RUN EXECUTION TESTS ==========

func TestHandlers_RunExecution_Success(t *testing.T) {
	_, router, workflowRepo, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"workflow_id": workflowModel.ID.String(),
		"input":       map[string]interface{}{"test": "data"},
	}

	w := testutil.MakeRequest(t, router, "POST", "/api/v1/executions", req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var result map[string]interface{}
	testutil.ParseDataResponse(t, w, &result)

	assert.NotEmpty(t, result["id"])
	assert.Equal(t, workflowModel.ID.String(), result["workflowId"])
	assert.Contains(t, []string{"Pending", "Running", "Completed"}, result["status"])
}

func TestHandlers_RunExecution_WithWorkflowIDInPath(t *testing.T) {
	_, router, workflowRepo, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"input": map[string]interface{}{"test": "data"},
	}

	w := testutil.MakeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/workflows/%s/execute", workflowModel.ID.String()), req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var result map[string]interface{}
	testutil.ParseDataResponse(t, w, &result)

	assert.NotEmpty(t, result["id"])
	assert.Equal(t, workflowModel.ID.String(), result["workflowId"])
}

func TestHandlers_RunExecution_MissingWorkflowID(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	req := map[string]interface{}{
		"input": map[string]interface{}{"test": "data"},
	}

	w := testutil.MakeRequest(t, router, "POST", "/api/v1/executions", req)

	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "Workflow ID is required")
}

func TestHandlers_RunExecution_InvalidJSON(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	w := testutil.MakeRequestRaw(t, router, "POST", "/api/v1/executions", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_RunExecution_WorkflowNotFound(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	req := map[string]interface{}{
		"workflow_id": uuid.New().String(),
		"input":       map[string]interface{}{"test": "data"},
	}

	w := testutil.MakeRequest(t, router, "POST", "/api/v1/executions", req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_RunExecution_CompletesToTerminalStatus(t *testing.T) {
	_, router, workflowRepo, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"workflow_id": workflowModel.ID.String(),
		"input":       map[string]interface{}{"test": "data"},
	}
	w := testutil.MakeRequest(t, router, "POST", "/api/v1/executions", req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var runResult map[string]interface{}
	testutil.ParseDataResponse(t, w, &runResult)

	final := waitForTerminal(t, router, runResult["id"].(string))
	assert.Equal(t, "Completed", final["status"])
}

// ========== GET EXECUTION TESTS ==========

func TestHandlers_GetExecution_Success(t *testing.T) {
	_, router, workflowRepo, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	runReq := map[string]interface{}{
		"workflow_id": workflowModel.ID.String(),
		"input":       map[string]interface{}{"test": "data"},
	}
	runW := testutil.MakeRequest(t, router, "POST", "/api/v1/executions", runReq)
	require.Equal(t, http.StatusAccepted, runW.Code)

	var runResult map[string]interface{}
	testutil.ParseDataResponse(t, runW, &runResult)
	executionID := runResult["id"].(string)

	getW := testutil.MakeRequest(t, router, "GET", fmt.Sprintf("/api/v1/executions/%s", executionID), nil)

	assert.Equal(t, http.StatusOK, getW.Code)

	var getResult map[string]interface{}
	testutil.ParseDataResponse(t, getW, &getResult)

	assert.Equal(t, executionID, getResult["id"])
	assert.Equal(t, workflowModel.ID.String(), getResult["workflowId"])
}

func TestHandlers_GetExecution_NotFound(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	randomID := uuid.New().String()
	w := testutil.MakeRequest(t, router, "GET", fmt.Sprintf("/api/v1/executions/%s", randomID), nil)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}

func TestHandlers_GetExecution_InvalidID(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	w := testutil.MakeRequest(t, router, "GET", "/api/v1/executions/invalid-uuid", nil)

	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "Invalid ID format")
}

// ========== LIST EXECUTIONS TESTS ==========

func TestHandlers_ListExecutions_Empty(t *testing.T) {
	_, router, workflowRepo, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	w := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/executions?workflow_id=%s", workflowModel.ID.String()), nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var executions []interface{}
	testutil.ParseListResponse(t, w, &executions)

	assert.Empty(t, executions)
}

func TestHandlers_ListExecutions_MissingWorkflowID(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	w := testutil.MakeRequest(t, router, "GET", "/api/v1/executions", nil)

	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "workflow_id")
}

func TestHandlers_ListExecutions_WithData(t *testing.T) {
	_, router, workflowRepo, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	for i := 1; i <= 3; i++ {
		req := map[string]interface{}{
			"workflow_id": workflowModel.ID.String(),
			"input":       map[string]interface{}{"test": fmt.Sprintf("data_%d", i)},
		}
		w := testutil.MakeRequest(t, router, "POST", "/api/v1/executions", req)
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	w := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/executions?workflow_id=%s", workflowModel.ID.String()), nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var executions []interface{}
	testutil.ParseListResponse(t, w, &executions)

	assert.Len(t, executions, 3)
}

func TestHandlers_ListExecutions_Pagination(t *testing.T) {
	_, router, workflowRepo, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	for i := 1; i <= 5; i++ {
		req := map[string]interface{}{
			"workflow_id": workflowModel.ID.String(),
			"input":       map[string]interface{}{"test": fmt.Sprintf("data_%d", i)},
		}
		w := testutil.MakeRequest(t, router, "POST", "/api/v1/executions", req)
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	w := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/executions?workflow_id=%s&limit=2&offset=0", workflowModel.ID.String()), nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []interface{} `json:"data"`
		Meta struct {
			Total  int `json:"total"`
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		} `json:"meta"`
	}
	testutil.ParseResponse(t, w, &envelope)

	assert.Len(t, envelope.Data, 2)
	assert.Equal(t, 2, envelope.Meta.Limit)
	assert.GreaterOrEqual(t, envelope.Meta.Total, 2)
}

// ========== GET NODE RESULT TESTS ==========

func TestHandlers_GetNodeResult_InvalidExecutionID(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	w := testutil.MakeRequest(t, router, "GET", "/api/v1/executions/invalid-uuid/nodes/n1", nil)

	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "Invalid ID format")
}

func TestHandlers_GetNodeResult_ExecutionNotFound(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	randomID := uuid.New().String()
	w := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/executions/%s/nodes/n1", randomID), nil)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}

func TestHandlers_GetNodeResult_Success(t *testing.T) {
	_, router, workflowRepo, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"workflow_id": workflowModel.ID.String(),
		"input":       map[string]interface{}{"test": "data"},
	}
	w := testutil.MakeRequest(t, router, "POST", "/api/v1/executions", req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var runResult map[string]interface{}
	testutil.ParseDataResponse(t, w, &runResult)
	executionID := runResult["id"].(string)

	waitForTerminal(t, router, executionID)

	nodeW := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/executions/%s/nodes/n1", executionID), nil)

	assert.Equal(t, http.StatusOK, nodeW.Code)

	var nodeResult map[string]interface{}
	testutil.ParseDataResponse(t, nodeW, &nodeResult)
	assert.Equal(t, "n1", nodeResult["nodeId"])
}

// ========== CANCEL / PAUSE / RESUME TESTS ==========

func TestHandlers_CancelExecution_UnknownID(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	randomID := uuid.New().String()
	w := testutil.MakeRequest(t, router, "POST", fmt.Sprintf("/api/v1/executions/%s/cancel", randomID), nil)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}

func TestHandlers_PauseExecution_UnknownID(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	randomID := uuid.New().String()
	w := testutil.MakeRequest(t, router, "POST", fmt.Sprintf("/api/v1/executions/%s/pause", randomID), nil)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}

func TestHandlers_ResumeExecution_UnknownID(t *testing.T) {
	_, router, _, cleanup := setupExecutionHandlersTest(t)
	defer cleanup()

	randomID := uuid.New().String()
	w := testutil.MakeRequest(t, router, "POST", fmt.Sprintf("/api/v1/executions/%s/resume", randomID), nil)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}
