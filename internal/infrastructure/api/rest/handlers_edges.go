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

// EdgeHandlers provides HTTP handlers for single-edge CRUD endpoints,
// nested under a workflow. Bulk node/edge replacement for a whole
// workflow goes through WorkflowHandlers.HandleUpdateWorkflow instead.
type EdgeHandlers struct {
	workflowRepo repository.WorkflowRepository
	logger       *logger.Logger
}

// NewEdgeHandlers creates a new EdgeHandlers instance.
func NewEdgeHandlers(workflowRepo repository.WorkflowRepository, log *logger.Logger) *EdgeHandlers {
	return &EdgeHandlers{
		workflowRepo: workflowRepo,
		logger:       log,
	}
}

// detectCycle reports whether adding an edge newFrom->newTo to the
// existing edge set would create a cycle, via DFS from newTo looking
// for a path back to newFrom.
func detectCycle(edges []*storagemodels.EdgeModel, newFrom, newTo string) bool {
	adj := make(map[string][]string)
	for _, e := range edges {
		if e.IsLoop() {
			continue
		}
		adj[e.SourceNodeID] = append(adj[e.SourceNodeID], e.TargetNodeID)
	}
	adj[newFrom] = append(adj[newFrom], newTo)

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(node string) bool
	hasCycle = func(node string) bool {
		visited[node] = true
		recStack[node] = true
		for _, neighbor := range adj[node] {
			if !visited[neighbor] {
				if hasCycle(neighbor) {
					return true
				}
			} else if recStack[neighbor] {
				return true
			}
		}
		recStack[node] = false
		return false
	}

	return hasCycle(newTo)
}

func (h *EdgeHandlers) nodeExists(c *gin.Context, workflowUUID uuid.UUID, nodeID string) (bool, bool) {
	nodes, err := h.workflowRepo.FindNodesByWorkflowID(c.Request.Context(), workflowUUID)
	if err != nil {
		h.logger.Error("failed to find nodes", "error", err, "workflow_id", workflowUUID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return false, false
	}
	for _, n := range nodes {
		if n.NodeID == nodeID {
			return true, true
		}
	}
	return false, true
}

// HandleAddEdge handles POST /api/v1/workflows/{workflow_id}/edges
func (h *EdgeHandlers) HandleAddEdge(c *gin.Context) {
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

	var req EdgeRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	edge := req.toDomain()
	if err := edge.Validate(); err != nil {
		respondAPIError(c, NewAPIError("VALIDATION_FAILED", err.Error(), http.StatusBadRequest))
		return
	}

	if _, err := h.workflowRepo.FindByID(c.Request.Context(), workflowUUID); err != nil {
		h.logger.Error("workflow not found in AddEdge", "error", err, "workflow_id", workflowUUID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	sourceExists, ok := h.nodeExists(c, workflowUUID, edge.SourceNodeID)
	if !ok {
		return
	}
	if !sourceExists {
		respondError(c, http.StatusBadRequest, "source node does not exist")
		return
	}
	targetExists, ok := h.nodeExists(c, workflowUUID, edge.TargetNodeID)
	if !ok {
		return
	}
	if !targetExists {
		respondError(c, http.StatusBadRequest, "target node does not exist")
		return
	}

	if !edge.IsLoop() {
		existingEdges, err := h.workflowRepo.FindEdgesByWorkflowID(c.Request.Context(), workflowUUID)
		if err != nil {
			h.logger.Error("failed to find edges for cycle detection", "error", err, "workflow_id", workflowUUID)
			respondAPIErrorWithRequestID(c, TranslateError(err))
			return
		}
		if detectCycle(existingEdges, edge.SourceNodeID, edge.TargetNodeID) {
			respondError(c, http.StatusBadRequest, "adding this edge creates a cycle in the workflow")
			return
		}
	}

	edgeModel := storagemodels.EdgeToStorage(edge, workflowUUID)
	if err := h.workflowRepo.CreateEdge(c.Request.Context(), edgeModel); err != nil {
		h.logger.Error("failed to create edge", "error", err, "workflow_id", workflowUUID, "edge_id", edge.ID)
		if strings.Contains(err.Error(), "edge_id") {
			respondError(c, http.StatusBadRequest, "edge with this ID already exists")
			return
		}
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusCreated, storagemodels.EdgeFromStorage(edgeModel))
}

// HandleListEdges handles GET /api/v1/workflows/{workflow_id}/edges
func (h *EdgeHandlers) HandleListEdges(c *gin.Context) {
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
		h.logger.Error("workflow not found in ListEdges", "error", err, "workflow_id", workflowUUID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	edgeModels, err := h.workflowRepo.FindEdgesByWorkflowID(c.Request.Context(), workflowUUID)
	if err != nil {
		h.logger.Error("failed to list edges", "error", err, "workflow_id", workflowUUID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	edges := make([]*models.Edge, len(edgeModels))
	for i, em := range edgeModels {
		edges[i] = storagemodels.EdgeFromStorage(em)
	}

	respondList(c, http.StatusOK, edges, len(edges), 0, 0)
}

func (h *EdgeHandlers) findEdgeModel(c *gin.Context, workflowUUID uuid.UUID, edgeID string) *storagemodels.EdgeModel {
	edgeModels, err := h.workflowRepo.FindEdgesByWorkflowID(c.Request.Context(), workflowUUID)
	if err != nil {
		h.logger.Error("failed to find edges", "error", err, "workflow_id", workflowUUID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return nil
	}
	for _, em := range edgeModels {
		if em.EdgeID == edgeID {
			return em
		}
	}
	respondAPIError(c, NewAPIError("EDGE_NOT_FOUND", "edge not found", http.StatusNotFound))
	return nil
}

// HandleGetEdge handles GET /api/v1/workflows/{workflow_id}/edges/{edgeId}
func (h *EdgeHandlers) HandleGetEdge(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	edgeID := c.Param("edgeId")
	if workflowID == "" || edgeID == "" {
		respondError(c, http.StatusBadRequest, "workflow ID and edge ID are required")
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid workflow ID")
		return
	}

	edgeModel := h.findEdgeModel(c, workflowUUID, edgeID)
	if edgeModel == nil {
		return
	}

	respondJSON(c, http.StatusOK, storagemodels.EdgeFromStorage(edgeModel))
}

// HandleUpdateEdge handles PUT /api/v1/workflows/{workflow_id}/edges/{edgeId}
func (h *EdgeHandlers) HandleUpdateEdge(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	edgeID := c.Param("edgeId")
	if workflowID == "" || edgeID == "" {
		respondError(c, http.StatusBadRequest, "workflow ID and edge ID are required")
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid workflow ID")
		return
	}

	var req EdgeRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	edgeModel := h.findEdgeModel(c, workflowUUID, edgeID)
	if edgeModel == nil {
		return
	}

	if req.SourceNodeID != "" {
		exists, ok := h.nodeExists(c, workflowUUID, req.SourceNodeID)
		if !ok {
			return
		}
		if !exists {
			respondError(c, http.StatusBadRequest, "source node does not exist")
			return
		}
		edgeModel.SourceNodeID = req.SourceNodeID
	}
	if req.TargetNodeID != "" {
		exists, ok := h.nodeExists(c, workflowUUID, req.TargetNodeID)
		if !ok {
			return
		}
		if !exists {
			respondError(c, http.StatusBadRequest, "target node does not exist")
			return
		}
		edgeModel.TargetNodeID = req.TargetNodeID
	}
	if edgeModel.SourceNodeID == edgeModel.TargetNodeID {
		respondError(c, http.StatusBadRequest, "self-loop edges are not allowed")
		return
	}
	if req.Condition != "" {
		edgeModel.Condition = req.Condition
	}
	if req.SourceHandle != "" {
		edgeModel.SourceHandle = req.SourceHandle
	}
	if req.Loop != nil {
		if req.Loop.MaxIterations <= 0 {
			respondError(c, http.StatusBadRequest, "loop max_iterations must be > 0")
			return
		}
		edgeModel.Loop = storagemodels.JSONBMap{"maxIterations": req.Loop.MaxIterations}
		edgeModel.Type = string(models.EdgeTypeLoop)
	}

	if err := h.workflowRepo.UpdateEdge(c.Request.Context(), edgeModel); err != nil {
		h.logger.Error("failed to update edge", "error", err, "workflow_id", workflowUUID, "edge_id", edgeID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, storagemodels.EdgeFromStorage(edgeModel))
}

// HandleDeleteEdge handles DELETE /api/v1/workflows/{workflow_id}/edges/{edgeId}
func (h *EdgeHandlers) HandleDeleteEdge(c *gin.Context) {
	workflowID := c.Param("workflow_id")
	edgeID := c.Param("edgeId")
	if workflowID == "" || edgeID == "" {
		respondError(c, http.StatusBadRequest, "workflow ID and edge ID are required")
		return
	}

	workflowUUID, err := uuid.Parse(workflowID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid workflow ID")
		return
	}

	edgeModel := h.findEdgeModel(c, workflowUUID, edgeID)
	if edgeModel == nil {
		return
	}

	if err := h.workflowRepo.DeleteEdge(c.Request.Context(), edgeModel.ID); err != nil {
		h.logger.Error("failed to delete edge", "error", err, "workflow_id", workflowUUID, "edge_id", edgeID)
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"message": "edge deleted successfully"})
}
