package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	storagemodels "github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/smilemakc/mbflow/pkg/models"
)

// NodeHandlers provides HTTP handlers for single-node CRUD endpoints,
// nested under a workflow. Bulk node/edge replacement for a whole
// workflow goes through WorkflowHandlers.HandleUpdateWorkflow instead.
type NodeHandlers struct {
	workflowRepo repository.WorkflowRepository
	logger       *logger.Logger
}

// NewNodeHandlers creates a new NodeHandlers instance.
func NewNodeHandlers(workflowRepo repository.WorkflowRepository, log *logger.Logger) *NodeHandlers {
	return &NodeHandlers{
		workflowRepo: workflowRepo,
		logger:       log,
	}
}

// HandleAddNode handles POST /api/v1/workflows/{workflow_id}/nodes
func (h *NodeHandlers) HandleAddNode(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	if workflowID == "" {
		respondError(c, http.StatusBadRequest, "workflow ID is required")
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid workflow ID")
		return
	}

	var req NodeRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}
	if req.ID == "" || req.Name == "" || req.Type == "" {
		respondError(c, http.StatusBadRequest, "id, name and nodeType are required")
		return
	}

	if _, err := h.workflowRepo.FindByID(c.Request.Context(), workflowUUID); err != nil {
		h.logger.Error("workflow not found in AddNode", "error", err, "workflow_id", workflowUUID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	node := req.toDomain()
	if err := node.Validate(); err != nil {
		respondAPIError(c, NewAPIError("VALIDATION_FAILED", err.Error(), http.StatusBadRequest))
		return
	}

	nodeModel := storagemodels.NodeToStorage(node, workflowUUID)
	if err := h.workflowRepo.CreateNode(c.Request.Context(), nodeModel); err != nil {
		h.logger.Error("failed to create node", "error", err, "workflow_id", workflowUUID, "node_id", req.ID)
		if strings.Contains(err.Error(), "node_id") {
			respondError(c, http.StatusBadRequest, "node with this ID already exists")
			return
		}
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusCreated, storagemodels.NodeFromStorage(nodeModel))
}

// HandleListNodes handles GET /api/v1/workflows/{workflow_id}/nodes
func (h *NodeHandlers) HandleListNodes(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	if workflowID == "" {
		respondError(c, http.StatusBadRequest, "workflow ID is required")
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid workflow ID")
		return
	}

	if _, err := h.workflowRepo.FindByID(c.Request.Context(), workflowUUID); err != nil {
		h.logger.Error("workflow not found in ListNodes", "error", err, "workflow_id", workflowUUID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	nodeModels, err := h.workflowRepo.FindNodesByWorkflowID(c.Request.Context(), workflowUUID)
	if err != nil {
		h.logger.Error("failed to list nodes", "error", err, "workflow_id", workflowUUID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	nodes := make([]*models.Node, len(nodeModels))
	for i, nm := range nodeModels {
		nodes[i] = storagemodels.NodeFromStorage(nm)
	}

	respondList(c, http.StatusOK, nodes, len(nodes), 0, 0)
}

func (h *NodeHandlers) findNodeModel(c *gin.Context, workflowUUID uuid.UUID, nodeID string) *storagemodels.NodeModel {
	nodeModels, err := h.workflowRepo.FindNodesByWorkflowID(c.Request.Context(), workflowUUID)
	if err != nil {
		h.logger.Error("failed to find nodes", "error", err, "workflow_id", workflowUUID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return nil
	}
	for _, nm := range nodeModels {
		if nm.NodeID == nodeID {
			return nm
		}
	}
	respondAPIError(c, NewAPIError("NODE_NOT_FOUND", "node not found", http.StatusNotFound))
	return nil
}

// HandleGetNode handles GET /api/v1/workflows/{workflow_id}/nodes/{nodeId}
func (h *NodeHandlers) HandleGetNode(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	nodeID := c.Param("nodeId")
	if workflowID == "" || nodeID == "" {
		respondError(c, http.StatusBadRequest, "workflow ID and node ID are required")
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid workflow ID")
		return
	}

	nodeModel := h.findNodeModel(c, workflowUUID, nodeID)
	if nodeModel == nil {
		return
	}

	respondJSON(c, http.StatusOK, storagemodels.NodeFromStorage(nodeModel))
}

// HandleUpdateNode handles PUT /api/v1/workflows/{workflow_id}/nodes/{nodeId}
func (h *NodeHandlers) HandleUpdateNode(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	nodeID := c.Param("nodeId")
	if workflowID == "" || nodeID == "" {
		respondError(c, http.StatusBadRequest, "workflow ID and node ID are required")
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid workflow ID")
		return
	}

	var req NodeRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	nodeModel := h.findNodeModel(c, workflowUUID, nodeID)
	if nodeModel == nil {
		return
	}

	if req.Name != "" {
		nodeModel.Name = req.Name
	}
	if req.Type != "" {
		nodeModel.Type = string(req.Type)
	}
	if req.InputConfiguration.Mappings != nil || req.InputConfiguration.StaticInputs != nil {
		nodeModel.InputConfiguration = storagemodels.JSONBMap{
			"mappings":     req.InputConfiguration.Mappings,
			"staticInputs": req.InputConfiguration.StaticInputs,
			"userInputs":   req.InputConfiguration.UserInputs,
		}
	}
	if req.Metadata != nil {
		nodeModel.Metadata = storagemodels.JSONBMap(req.Metadata)
	}

	if err := h.workflowRepo.UpdateNode(c.Request.Context(), nodeModel); err != nil {
		h.logger.Error("failed to update node", "error", err, "workflow_id", workflowUUID, "node_id", nodeID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, storagemodels.NodeFromStorage(nodeModel))
}

// HandleDeleteNode handles DELETE /api/v1/workflows/{workflow_id}/nodes/{nodeId}
func (h *NodeHandlers) HandleDeleteNode(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	nodeID := c.Param("nodeId")
	if workflowID == "" || nodeID == "" {
		respondError(c, http.StatusBadRequest, "workflow ID and node ID are required")
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid workflow ID")
		return
	}

	nodeModel := h.findNodeModel(c, workflowUUID, nodeID)
	if nodeModel == nil {
		return
	}

	if err := h.workflowRepo.DeleteNode(c.Request.Context(), nodeModel.ID); err != nil {
		h.logger.Error("failed to delete node", "error", err, "workflow_id", workflowUUID, "node_id", nodeID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"message": "node deleted successfully"})
}
