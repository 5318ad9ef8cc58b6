package rest

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/config"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/internal/infrastructure/storage"
	"github.com/smilemakc/mbflow/testutil"
)

func setupWorkflowHandlersTest(t *testing.T) (*WorkflowHandlers, *gin.Engine, *storage.WorkflowRepository, func()) {
	testDB := testutil.SetupTestDB(t)
	workflowRepo := storage.NewWorkflowRepository(testDB.DB)
	log := logger.New(config.LoggingConfig{Level: "error", Format: "text"})
	handlers := NewWorkflowHandlers(workflowRepo, log)

	router := gin.New()
	api := router.Group("/api/v1/workflows")
	{
		api.POST("", handlers.HandleCreateWorkflow)
		api.GET("", handlers.HandleListWorkflows)
		api.GET("/:workflow_id", handlers.HandleGetWorkflow)
		api.PUT("/:workflow_id", handlers.HandleUpdateWorkflow)
		api.DELETE("/:workflow_id", handlers.HandleDeleteWorkflow)
		api.POST("/:workflow_id/publish", handlers.HandlePublishWorkflow)
		api.POST("/:workflow_id/unpublish", handlers.HandleUnpublishWorkflow)
	}

	return handlers, router, workflowRepo, func() { testDB.Cleanup(t) }
}

func simpleWorkflowRequest(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":    name,
		"creator": "tester",
		"nodes": []map[string]interface{}{
			{"id": "n1", "name": "Node 1", "nodeType": "CustomFunction"},
			{"id": "n2", "name": "Node 2", "nodeType": "CustomFunction"},
		},
		"edges": []map[string]interface{}{
			{"id": "n1_to_n2", "sourceNodeId": "n1", "targetNodeId": "n2", "edgeType": "Data"},
		},
	}
}

// ========== CREATE WORKFLOW TESTS ==========

func TestHandlers_CreateWorkflow_Success(t *testing.T) {
	_, router, _, cleanup := setupWorkflowHandlersTest(t)
	defer cleanup()

	w := testutil.MakeRequest(t, router, "POST", "/api/v1/workflows", simpleWorkflowRequest("Created Workflow"))

	assert.Equal(t, http.StatusCreated, w.Code)

	var result map[string]interface{}
	testutil.ParseDataResponse(t, w, &result)
	assert.Equal(t, "Created Workflow", result["name"])
	assert.Equal(t, "draft", result["status"])
	assert.NotEmpty(t, result["id"])
}

func TestHandlers_CreateWorkflow_MissingName(t *testing.T) {
	_, router, _, cleanup := setupWorkflowHandlersTest(t)
	defer cleanup()

	req := simpleWorkflowRequest("")
	w := testutil.MakeRequest(t, router, "POST", "/api/v1/workflows", req)

	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "name")
}

func TestHandlers_CreateWorkflow_InvalidGraph(t *testing.T) {
	_, router, _, cleanup := setupWorkflowHandlersTest(t)
	defer cleanup()

	req := map[string]interface{}{
		"name": "Cyclic",
		"nodes": []map[string]interface{}{
			{"id": "n1", "name": "Node 1", "nodeType": "CustomFunction"},
			{"id": "n2", "name": "Node 2", "nodeType": "CustomFunction"},
		},
		"edges": []map[string]interface{}{
			{"id": "e1", "sourceNodeId": "n1", "targetNodeId": "n2", "edgeType": "Data"},
			{"id": "e2", "sourceNodeId": "n2", "targetNodeId": "n1", "edgeType": "Data"},
		},
	}

	w := testutil.MakeRequest(t, router, "POST", "/api/v1/workflows", req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ========== GET / LIST WORKFLOW TESTS ==========

func TestHandlers_GetWorkflow_Success(t *testing.T) {
	_, router, workflowRepo, cleanup := setupWorkflowHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	w := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/workflows/%s", workflowModel.ID), nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var result map[string]interface{}
	testutil.ParseDataResponse(t, w, &result)
	assert.Equal(t, workflowModel.ID.String(), result["id"])
	assert.Len(t, result["nodes"], 3)
}

func TestHandlers_GetWorkflow_NotFound(t *testing.T) {
	_, router, _, cleanup := setupWorkflowHandlersTest(t)
	defer cleanup()

	w := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/workflows/%s", uuid.New()), nil)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}

func TestHandlers_ListWorkflows_FilterByStatus(t *testing.T) {
	_, router, workflowRepo, cleanup := setupWorkflowHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	w := testutil.MakeRequest(t, router, "GET", "/api/v1/workflows?status=draft", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var workflows []interface{}
	testutil.ParseListResponse(t, w, &workflows)
	assert.NotEmpty(t, workflows)
}

// ========== UPDATE WORKFLOW TESTS ==========

func TestHandlers_UpdateWorkflow_Success(t *testing.T) {
	_, router, workflowRepo, cleanup := setupWorkflowHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := simpleWorkflowRequest("Renamed Workflow")
	w := testutil.MakeRequest(t, router, "PUT",
		fmt.Sprintf("/api/v1/workflows/%s", workflowModel.ID), req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result map[string]interface{}
	testutil.ParseDataResponse(t, w, &result)
	assert.Equal(t, "Renamed Workflow", result["name"])
	assert.Len(t, result["nodes"], 2)
}

func TestHandlers_UpdateWorkflow_NotFound(t *testing.T) {
	_, router, _, cleanup := setupWorkflowHandlersTest(t)
	defer cleanup()

	req := simpleWorkflowRequest("Doesn't Matter")
	w := testutil.MakeRequest(t, router, "PUT",
		fmt.Sprintf("/api/v1/workflows/%s", uuid.New()), req)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}

// ========== DELETE WORKFLOW TESTS ==========

func TestHandlers_DeleteWorkflow_Success(t *testing.T) {
	_, router, workflowRepo, cleanup := setupWorkflowHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	w := testutil.MakeRequest(t, router, "DELETE",
		fmt.Sprintf("/api/v1/workflows/%s", workflowModel.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	getW := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/workflows/%s", workflowModel.ID), nil)
	assert.Equal(t, http.StatusNotFound, getW.Code)
}

// ========== PUBLISH / UNPUBLISH TESTS ==========

func TestHandlers_PublishUnpublishWorkflow(t *testing.T) {
	_, router, workflowRepo, cleanup := setupWorkflowHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	w := testutil.MakeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/workflows/%s/publish", workflowModel.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var result map[string]interface{}
	testutil.ParseDataResponse(t, w, &result)
	assert.Equal(t, "active", result["status"])

	w = testutil.MakeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/workflows/%s/unpublish", workflowModel.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	testutil.ParseDataResponse(t, w, &result)
	assert.Equal(t, "draft", result["status"])
}
