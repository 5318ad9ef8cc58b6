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

func setupEdgeHandlersTest(t *testing.T) (*EdgeHandlers, *gin.Engine, *storage.WorkflowRepository, func()) {
	testDB := testutil.SetupTestDB(t)
	workflowRepo := storage.NewWorkflowRepository(testDB.DB)
	log := logger.New(config.LoggingConfig{Level: "error", Format: "text"})
	handlers := NewEdgeHandlers(workflowRepo, log)

	router := gin.New()
	api := router.Group("/api/v1/workflows/:workflow_id")
	{
		api.POST("/edges", handlers.HandleAddEdge)
		api.GET("/edges", handlers.HandleListEdges)
		api.GET("/edges/:edgeId", handlers.HandleGetEdge)
		api.PUT("/edges/:edgeId", handlers.HandleUpdateEdge)
		api.DELETE("/edges/:edgeId", handlers.HandleDeleteEdge)
	}

	return handlers, router, workflowRepo, func() { testDB.Cleanup(t) }
}

// ========== ADD EDGE TESTS ==========

func TestHandlers_AddEdge_Success(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow() // n1 -> n2 -> n3
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"id":           "n1_to_n3",
		"sourceNodeId": "n1",
		"targetNodeId": "n3",
		"edgeType":     "Data",
	}

	w := testutil.MakeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/workflows/%s/edges", workflowModel.ID), req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var result map[string]interface{}
	testutil.ParseDataResponse(t, w, &result)
	assert.Equal(t, "n1_to_n3", result["id"])
}

func TestHandlers_AddEdge_SourceNodeMissing(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"id":           "bad_edge",
		"sourceNodeId": "does_not_exist",
		"targetNodeId": "n1",
		"edgeType":     "Data",
	}

	w := testutil.MakeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/workflows/%s/edges", workflowModel.ID), req)

	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "source node does not exist")
}

func TestHandlers_AddEdge_TargetNodeMissing(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"id":           "bad_edge",
		"sourceNodeId": "n1",
		"targetNodeId": "does_not_exist",
		"edgeType":     "Data",
	}

	w := testutil.MakeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/workflows/%s/edges", workflowModel.ID), req)

	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "target node does not exist")
}

func TestHandlers_AddEdge_CreatesCycle(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow() // n1 -> n2 -> n3
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"id":           "n3_to_n1",
		"sourceNodeId": "n3",
		"targetNodeId": "n1",
		"edgeType":     "Data",
	}

	w := testutil.MakeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/workflows/%s/edges", workflowModel.ID), req)

	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "cycle")
}

func TestHandlers_AddEdge_SelfLoopRejectedByValidation(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"id":           "self_loop",
		"sourceNodeId": "n1",
		"targetNodeId": "n1",
		"edgeType":     "Data",
	}

	w := testutil.MakeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/workflows/%s/edges", workflowModel.ID), req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_AddEdge_WorkflowNotFound(t *testing.T) {
	_, router, _, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	req := map[string]interface{}{
		"id":           "e1",
		"sourceNodeId": "n1",
		"targetNodeId": "n2",
		"edgeType":     "Data",
	}

	w := testutil.MakeRequest(t, router, "POST",
		fmt.Sprintf("/api/v1/workflows/%s/edges", uuid.New()), req)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}

// ========== LIST / GET EDGE TESTS ==========

func TestHandlers_ListEdges_Success(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow() // 2 edges
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	w := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/workflows/%s/edges", workflowModel.ID), nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var edges []interface{}
	testutil.ParseListResponse(t, w, &edges)
	assert.Len(t, edges, 2)
}

func TestHandlers_GetEdge_Success(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	w := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/workflows/%s/edges/n1_to_n2", workflowModel.ID), nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var result map[string]interface{}
	testutil.ParseDataResponse(t, w, &result)
	assert.Equal(t, "n1_to_n2", result["id"])
}

func TestHandlers_GetEdge_NotFound(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	w := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/workflows/%s/edges/nonexistent", workflowModel.ID), nil)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}

// ========== UPDATE EDGE TESTS ==========

func TestHandlers_UpdateEdge_RetargetSuccess(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"sourceNodeId": "n1",
		"targetNodeId": "n3",
	}

	w := testutil.MakeRequest(t, router, "PUT",
		fmt.Sprintf("/api/v1/workflows/%s/edges/n1_to_n2", workflowModel.ID), req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result map[string]interface{}
	testutil.ParseDataResponse(t, w, &result)
	assert.Equal(t, "n3", result["targetNodeId"])
}

func TestHandlers_UpdateEdge_SelfLoopRejected(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"targetNodeId": "n1",
	}

	w := testutil.MakeRequest(t, router, "PUT",
		fmt.Sprintf("/api/v1/workflows/%s/edges/n1_to_n2", workflowModel.ID), req)

	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "self-loop")
}

func TestHandlers_UpdateEdge_TargetNodeMissing(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"targetNodeId": "does_not_exist",
	}

	w := testutil.MakeRequest(t, router, "PUT",
		fmt.Sprintf("/api/v1/workflows/%s/edges/n1_to_n2", workflowModel.ID), req)

	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "target node does not exist")
}

func TestHandlers_UpdateEdge_NotFound(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	req := map[string]interface{}{
		"condition": "x > 1",
	}

	w := testutil.MakeRequest(t, router, "PUT",
		fmt.Sprintf("/api/v1/workflows/%s/edges/nonexistent", workflowModel.ID), req)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}

// ========== DELETE EDGE TESTS ==========

func TestHandlers_DeleteEdge_Success(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	w := testutil.MakeRequest(t, router, "DELETE",
		fmt.Sprintf("/api/v1/workflows/%s/edges/n1_to_n2", workflowModel.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	getW := testutil.MakeRequest(t, router, "GET",
		fmt.Sprintf("/api/v1/workflows/%s/edges/n1_to_n2", workflowModel.ID), nil)
	assert.Equal(t, http.StatusNotFound, getW.Code)
}

func TestHandlers_DeleteEdge_NotFound(t *testing.T) {
	_, router, workflowRepo, cleanup := setupEdgeHandlersTest(t)
	defer cleanup()

	workflow := testutil.CreateSimpleWorkflow()
	workflowModel := testutil.WorkflowDomainToModel(workflow)
	require.NoError(t, workflowRepo.Create(context.Background(), workflowModel))

	w := testutil.MakeRequest(t, router, "DELETE",
		fmt.Sprintf("/api/v1/workflows/%s/edges/nonexistent", workflowModel.ID), nil)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
}
