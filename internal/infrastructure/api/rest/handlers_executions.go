package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/application/scheduler"
	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	storagemodels "github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/smilemakc/mbflow/pkg/models"
)

// ExecutionHandlers provides HTTP handlers for workflow-execution
// endpoints: they front C8 (the scheduler) for run/status/list/cancel/
// pause/resume and the WorkflowExecutionRepository for persisted reads.
// Live log/event streaming is handled separately by StreamingHandlers.
type ExecutionHandlers struct {
	executions repository.WorkflowExecutionRepository
	scheduler  *scheduler.Engine
	logger     *logger.Logger
}

// NewExecutionHandlers creates a new ExecutionHandlers instance.
func NewExecutionHandlers(
	executions repository.WorkflowExecutionRepository,
	sched *scheduler.Engine,
	log *logger.Logger,
) *ExecutionHandlers {
	return &ExecutionHandlers{
		executions: executions,
		scheduler:  sched,
		logger:     log,
	}
}

// HandleRunExecution handles POST /api/v1/workflows/:workflow_id/execute
// and POST /api/v1/executions (workflow_id in the body).
func (h *ExecutionHandlers) HandleRunExecution(c *gin.Context) {
	var req struct {
		WorkflowID         string                 `json:"workflow_id"`
		ExecutedBy         string                 `json:"executed_by"`
		Input              map[string]interface{} `json:"input"`
		GlobalVariables    map[string]interface{} `json:"global_variables"`
		Environment        map[string]string      `json:"environment"`
		MaxConcurrentNodes int                    `json:"max_concurrent_nodes"`
		TimeoutMinutes     int                    `json:"timeout_minutes"`
		ContinueOnError    bool                   `json:"continue_on_error"`
	}

	if err := bindJSON(c, &req); err != nil {
		return
	}

	if workflowID := c.Param("workflow_id"); workflowID != "" {
		req.WorkflowID = workflowID
	}
	if req.WorkflowID == "" {
		respondAPIError(c, NewAPIError("WORKFLOW_ID_REQUIRED", "Workflow ID is required", http.StatusBadRequest))
		return
	}

	we, err := h.scheduler.Execute(c.Request.Context(), req.WorkflowID, scheduler.Request{
		ExecutedBy:         req.ExecutedBy,
		UserInputs:         req.Input,
		GlobalVariables:    req.GlobalVariables,
		Environment:        req.Environment,
		MaxConcurrentNodes: req.MaxConcurrentNodes,
		TimeoutMinutes:     req.TimeoutMinutes,
		ContinueOnError:    req.ContinueOnError,
	})
	if err != nil {
		var invalid *scheduler.WorkflowInvalidError
		if errors.As(err, &invalid) {
			respondErrorWithDetails(c, http.StatusBadRequest, invalid.Error(), "WORKFLOW_INVALID", map[string]interface{}{
				"errors": invalid.Result.Errors,
			})
			return
		}
		h.logger.Error("failed to start workflow execution", "error", err, "workflow_id", req.WorkflowID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusAccepted, we)
}

// HandleGetExecution handles GET /api/v1/executions/:id
func (h *ExecutionHandlers) HandleGetExecution(c *gin.Context) {
	executionID, ok := getParam(c, "id")
	if !ok {
		return
	}
	if _, err := uuid.Parse(executionID); err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}

	we, err := h.scheduler.Status(c.Request.Context(), executionID)
	if err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, we)
}

// HandleListExecutions handles GET /api/v1/executions?workflow_id=...
// Query parameters:
//   - workflow_id: uuid (required)
//   - limit: int (default 50)
//   - offset: int (default 0)
func (h *ExecutionHandlers) HandleListExecutions(c *gin.Context) {
	workflowIDParam := c.Query("workflow_id")
	if workflowIDParam == "" {
		respondAPIError(c, NewAPIError("WORKFLOW_ID_REQUIRED", "workflow_id query parameter is required", http.StatusBadRequest))
		return
	}
	workflowUUID, err := uuid.Parse(workflowIDParam)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}

	limit := getQueryInt(c, "limit", 50)
	offset := getQueryInt(c, "offset", 0)

	rows, err := h.executions.FindByWorkflowID(c.Request.Context(), workflowUUID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list workflow executions", "error", err, "workflow_id", workflowUUID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	out := make([]*models.WorkflowExecution, len(rows))
	for i, row := range rows {
		out[i] = storagemodels.WorkflowExecutionFromStorage(row)
	}

	respondList(c, http.StatusOK, out, len(out), limit, offset)
}

// HandleGetNodeResult handles GET /api/v1/executions/:id/nodes/:nodeId
func (h *ExecutionHandlers) HandleGetNodeResult(c *gin.Context) {
	executionID, ok := getParam(c, "id")
	if !ok {
		return
	}
	nodeID, ok := getParam(c, "nodeId")
	if !ok {
		return
	}
	execUUID, err := uuid.Parse(executionID)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}

	rows, err := h.executions.FindNodeExecutionsByWorkflowExecutionID(c.Request.Context(), execUUID)
	if err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].NodeID == nodeID {
			respondJSON(c, http.StatusOK, storagemodels.NodeExecutionFromStorage(rows[i]))
			return
		}
	}
	respondAPIError(c, NewAPIError("NODE_EXECUTION_NOT_FOUND", "node execution not found", http.StatusNotFound))
}

// HandleCancelExecution handles POST /api/v1/executions/:id/cancel
func (h *ExecutionHandlers) HandleCancelExecution(c *gin.Context) {
	executionID, ok := getParam(c, "id")
	if !ok {
		return
	}
	if err := h.scheduler.Cancel(executionID); err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "cancelling"})
}

// HandlePauseExecution handles POST /api/v1/executions/:id/pause
func (h *ExecutionHandlers) HandlePauseExecution(c *gin.Context) {
	executionID, ok := getParam(c, "id")
	if !ok {
		return
	}
	if err := h.scheduler.Pause(c.Request.Context(), executionID); err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "paused"})
}

// HandleResumeExecution handles POST /api/v1/executions/:id/resume
func (h *ExecutionHandlers) HandleResumeExecution(c *gin.Context) {
	executionID, ok := getParam(c, "id")
	if !ok {
		return
	}
	if err := h.scheduler.Resume(c.Request.Context(), executionID); err != nil {
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "running"})
}
