package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/application/validator"
	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	storagemodels "github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/smilemakc/mbflow/pkg/models"
)

// WorkflowHandlers provides HTTP handlers for workflow-definition
// endpoints: CRUD over the DAG (C7 consumes the same domain shape this
// package builds and validates).
type WorkflowHandlers struct {
	workflowRepo repository.WorkflowRepository
	logger       *logger.Logger
}

// NewWorkflowHandlers creates a new WorkflowHandlers instance.
func NewWorkflowHandlers(workflowRepo repository.WorkflowRepository, log *logger.Logger) *WorkflowHandlers {
	return &WorkflowHandlers{
		workflowRepo: workflowRepo,
		logger:       log,
	}
}

// NodeRequest represents a node in a workflow create/update request body.
type NodeRequest struct {
	ID                   string                          `json:"id" validate:"required,max=100"`
	Name                 string                          `json:"name" validate:"required,max=255"`
	Type                 models.NodeType                 `json:"nodeType" validate:"required"`
	ProgramID            string                          `json:"programId,omitempty"`
	VersionID            string                          `json:"versionId,omitempty"`
	InputConfiguration   models.InputConfiguration       `json:"inputConfiguration,omitempty"`
	OutputConfiguration  models.OutputConfiguration      `json:"outputConfiguration,omitempty"`
	ExecutionSettings    models.ExecutionSettings        `json:"executionSettings,omitempty"`
	ConditionalExecution *models.ConditionalExecution    `json:"conditionalExecution,omitempty"`
	Disabled             bool                            `json:"disabled,omitempty"`
	Metadata             map[string]interface{}          `json:"metadata,omitempty"`
}

// EdgeRequest represents an edge in a workflow create/update request body.
type EdgeRequest struct {
	ID               string                  `json:"id" validate:"required,max=100"`
	SourceNodeID     string                  `json:"sourceNodeId" validate:"required,max=100"`
	TargetNodeID     string                  `json:"targetNodeId" validate:"required,max=100"`
	SourceOutputName string                  `json:"sourceOutputName,omitempty"`
	TargetInputName  string                  `json:"targetInputName,omitempty"`
	Type             models.EdgeType         `json:"edgeType,omitempty"`
	SourceHandle     string                  `json:"sourceHandle,omitempty"`
	Condition        string                  `json:"condition,omitempty"`
	Transformation   *models.Transformation  `json:"transformation,omitempty"`
	Loop             *models.LoopConfig      `json:"loop,omitempty"`
	Optional         bool                    `json:"optional,omitempty"`
	Disabled         bool                    `json:"disabled,omitempty"`
}

func (r NodeRequest) toDomain() *models.Node {
	return &models.Node{
		ID:                   r.ID,
		ProgramID:            r.ProgramID,
		VersionID:            r.VersionID,
		Name:                 r.Name,
		Type:                 r.Type,
		InputConfiguration:   r.InputConfiguration,
		OutputConfiguration:  r.OutputConfiguration,
		ExecutionSettings:    r.ExecutionSettings,
		ConditionalExecution: r.ConditionalExecution,
		Disabled:             r.Disabled,
		Metadata:             r.Metadata,
	}
}

func (r EdgeRequest) toDomain() *models.Edge {
	edgeType := r.Type
	if edgeType == "" {
		edgeType = models.EdgeTypeData
	}
	return &models.Edge{
		ID:               r.ID,
		SourceNodeID:     r.SourceNodeID,
		TargetNodeID:     r.TargetNodeID,
		SourceOutputName: r.SourceOutputName,
		TargetInputName:  r.TargetInputName,
		Type:             edgeType,
		SourceHandle:     r.SourceHandle,
		Condition:        r.Condition,
		Transformation:   r.Transformation,
		Loop:             r.Loop,
		Optional:         r.Optional,
		Disabled:         r.Disabled,
	}
}

// WorkflowRequest is the shared request body shape for create and update.
type WorkflowRequest struct {
	Name        string                 `json:"name"`
	Creator     string                 `json:"creator,omitempty"`
	Settings    models.WorkflowSettings `json:"settings,omitempty"`
	Permissions map[string]interface{} `json:"permissions,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	IsTemplate  bool                   `json:"isTemplate,omitempty"`
	Nodes       []NodeRequest          `json:"nodes,omitempty"`
	Edges       []EdgeRequest          `json:"edges,omitempty"`
}

func (r WorkflowRequest) toDomain(status models.WorkflowStatus, version int) *models.Workflow {
	nodes := make([]*models.Node, len(r.Nodes))
	for i, n := range r.Nodes {
		nodes[i] = n.toDomain()
	}
	edges := make([]*models.Edge, len(r.Edges))
	for i, e := range r.Edges {
		edges[i] = e.toDomain()
	}
	return &models.Workflow{
		Name:        r.Name,
		Creator:     r.Creator,
		Status:      status,
		Version:     version,
		Nodes:       nodes,
		Edges:       edges,
		Settings:    r.Settings,
		Permissions: r.Permissions,
		Tags:        r.Tags,
		IsTemplate:  r.IsTemplate,
	}
}

// HandleCreateWorkflow handles POST /api/v1/workflows
func (h *WorkflowHandlers) HandleCreateWorkflow(c *gin.Context) {
	var req WorkflowRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	if req.Name == "" {
		respondAPIError(c, NewAPIError("NAME_REQUIRED", "Workflow name is required", http.StatusBadRequest))
		return
	}

	workflow := req.toDomain(models.WorkflowStatusDraft, 1)
	if err := workflow.Validate(); err != nil {
		respondAPIError(c, NewAPIError("VALIDATION_FAILED", err.Error(), http.StatusBadRequest))
		return
	}
	if len(workflow.Nodes) > 0 {
		if result := validator.Validate(workflow); !result.IsValid {
			respondErrorWithDetails(c, http.StatusBadRequest, "workflow is invalid", "WORKFLOW_INVALID", map[string]interface{}{
				"errors": result.Errors,
			})
			return
		}
	}

	workflowID := uuid.New()
	workflowModel := storagemodels.WorkflowToStorage(workflow, workflowID)

	if err := h.workflowRepo.Create(c.Request.Context(), workflowModel); err != nil {
		h.logger.Error("failed to create workflow", "error", err, "workflow_name", req.Name, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusCreated, storagemodels.WorkflowFromStorage(workflowModel))
}

// HandleGetWorkflow handles GET /api/v1/workflows/:workflow_id
func (h *WorkflowHandlers) HandleGetWorkflow(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	if workflowID == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}

	workflowModel, err := h.workflowRepo.FindByIDWithRelations(c.Request.Context(), workflowUUID)
	if err != nil {
		h.logger.Error("failed to find workflow", "error", err, "workflow_id", workflowUUID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, storagemodels.WorkflowFromStorage(workflowModel))
}

// HandleListWorkflows handles GET /api/v1/workflows
// Query parameters: limit, offset, status, creator, is_template.
func (h *WorkflowHandlers) HandleListWorkflows(c *gin.Context) {
	limit := getQueryInt(c, "limit", 50)
	offset := getQueryInt(c, "offset", 0)

	var filters repository.WorkflowFilters
	if status := c.Query("status"); status != "" {
		filters.Status = &status
	}
	if creator := c.Query("creator"); creator != "" {
		filters.Creator = &creator
	}
	if isTemplate := c.Query("is_template"); isTemplate != "" {
		v := isTemplate == "true"
		filters.IsTemplate = &v
	}

	workflowModels, err := h.workflowRepo.FindAllWithFilters(c.Request.Context(), filters, limit, offset)
	if err != nil {
		h.logger.Error("failed to list workflows", "error", err, "limit", limit, "offset", offset, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	workflows := make([]*models.Workflow, len(workflowModels))
	for i, wm := range workflowModels {
		workflows[i] = storagemodels.WorkflowFromStorage(wm)
	}

	total, err := h.workflowRepo.CountWithFilters(c.Request.Context(), filters)
	if err != nil {
		total = len(workflows)
	}

	respondList(c, http.StatusOK, workflows, total, limit, offset)
}

// HandleUpdateWorkflow handles PUT /api/v1/workflows/:workflow_id
// Updates workflow metadata, nodes, and edges. The repository performs a
// smart merge on nodes/edges keyed by logical ID: existing ones are
// updated in place, new ones inserted, and ones absent from the request
// are deleted.
func (h *WorkflowHandlers) HandleUpdateWorkflow(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	if workflowID == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}

	existing, err := h.workflowRepo.FindByID(c.Request.Context(), workflowUUID)
	if err != nil {
		h.logger.Error("failed to find workflow for update", "error", err, "workflow_id", workflowUUID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	var req WorkflowRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}
	if req.Name == "" {
		req.Name = existing.Name
	}
	if req.Creator == "" {
		req.Creator = existing.Creator
	}

	workflow := req.toDomain(models.WorkflowStatus(existing.Status), existing.Version)
	if err := workflow.Validate(); err != nil {
		respondAPIError(c, NewAPIError("VALIDATION_FAILED", err.Error(), http.StatusBadRequest))
		return
	}
	if result := validator.Validate(workflow); !result.IsValid {
		respondErrorWithDetails(c, http.StatusBadRequest, "workflow is invalid", "WORKFLOW_INVALID", map[string]interface{}{
			"errors": result.Errors,
		})
		return
	}

	workflowModel := storagemodels.WorkflowToStorage(workflow, workflowUUID)
	if err := h.workflowRepo.Update(c.Request.Context(), workflowModel); err != nil {
		h.logger.Error("failed to update workflow", "error", err, "workflow_id", workflowUUID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	updated, err := h.workflowRepo.FindByIDWithRelations(c.Request.Context(), workflowUUID)
	if err != nil {
		h.logger.Error("failed to fetch updated workflow", "error", err, "workflow_id", workflowUUID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, storagemodels.WorkflowFromStorage(updated))
}

// HandleDeleteWorkflow handles DELETE /api/v1/workflows/:workflow_id
func (h *WorkflowHandlers) HandleDeleteWorkflow(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	if workflowID == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}

	if err := h.workflowRepo.Delete(c.Request.Context(), workflowUUID); err != nil {
		h.logger.Error("failed to delete workflow", "error", err, "workflow_id", workflowUUID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"message": "workflow deleted successfully"})
}

// HandlePublishWorkflow handles POST /api/v1/workflows/:workflow_id/publish
func (h *WorkflowHandlers) HandlePublishWorkflow(c *gin.Context) {
	h.setStatus(c, models.WorkflowStatusActive)
}

// HandleUnpublishWorkflow handles POST /api/v1/workflows/:workflow_id/unpublish
func (h *WorkflowHandlers) HandleUnpublishWorkflow(c *gin.Context) {
	h.setStatus(c, models.WorkflowStatusDraft)
}

func (h *WorkflowHandlers) setStatus(c *gin.Context, status models.WorkflowStatus) {
	workflowID := c.Param("workflow_id")
	if workflowID == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}

	workflowModel, err := h.workflowRepo.FindByID(c.Request.Context(), workflowUUID)
	if err != nil {
		h.logger.Error("failed to find workflow", "error", err, "workflow_id", workflowUUID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	workflowModel.Status = string(status)
	if err := h.workflowRepo.Update(c.Request.Context(), workflowModel); err != nil {
		h.logger.Error("failed to change workflow status", "error", err, "workflow_id", workflowUUID, "status", status, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, storagemodels.WorkflowFromStorage(workflowModel))
}
