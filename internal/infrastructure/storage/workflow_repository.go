package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/uptrace/bun"
)

var _ repository.WorkflowRepository = (*WorkflowRepository)(nil)

// WorkflowRepository implements repository.WorkflowRepository using Bun ORM.
type WorkflowRepository struct {
	db *bun.DB
}

func NewWorkflowRepository(db *bun.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create creates a new workflow with its nodes and edges.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.WorkflowModel) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(workflow).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create workflow: %w", err)
		}

		if len(workflow.Nodes) > 0 {
			for _, node := range workflow.Nodes {
				node.WorkflowID = workflow.ID
				if node.ID == uuid.Nil {
					node.ID = uuid.New()
				}
			}
			if _, err := tx.NewInsert().Model(&workflow.Nodes).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create nodes: %w", err)
			}
		}

		if len(workflow.Edges) > 0 {
			for _, edge := range workflow.Edges {
				edge.WorkflowID = workflow.ID
				if edge.ID == uuid.Nil {
					edge.ID = uuid.New()
				}
			}
			if _, err := tx.NewInsert().Model(&workflow.Edges).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create edges: %w", err)
			}
		}

		return nil
	})
}

// Update updates an existing workflow using a smart merge strategy:
// existing nodes/edges (matched by logical id) preserve their UUID and are
// updated in place, new ones are inserted, and missing ones are deleted.
func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.WorkflowModel) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		workflow.UpdatedAt = time.Now()
		_, err := tx.NewUpdate().
			Model(workflow).
			Column("name", "creator", "status", "version", "settings", "permissions", "tags", "is_template", "updated_at").
			Where("id = ?", workflow.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update workflow: %w", err)
		}

		if err := r.syncNodes(ctx, tx, workflow.ID, workflow.Nodes); err != nil {
			return fmt.Errorf("failed to sync nodes: %w", err)
		}

		if err := r.syncEdges(ctx, tx, workflow.ID, workflow.Edges); err != nil {
			return fmt.Errorf("failed to sync edges: %w", err)
		}

		return nil
	})
}

func (r *WorkflowRepository) syncNodes(ctx context.Context, tx bun.Tx, workflowID uuid.UUID, nodes []*models.NodeModel) error {
	var existingNodes []*models.NodeModel
	err := tx.NewSelect().Model(&existingNodes).Where("workflow_id = ?", workflowID).Scan(ctx)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	existingMap := make(map[string]*models.NodeModel)
	for _, node := range existingNodes {
		existingMap[node.NodeID] = node
	}
	incomingMap := make(map[string]*models.NodeModel)
	for _, node := range nodes {
		incomingMap[node.NodeID] = node
	}

	for _, incoming := range nodes {
		if existing, exists := existingMap[incoming.NodeID]; exists {
			incoming.ID = existing.ID
			incoming.CreatedAt = existing.CreatedAt
			incoming.WorkflowID = workflowID
			_, err := tx.NewUpdate().
				Model(incoming).
				Column("name", "type", "input_configuration", "output_configuration", "execution_settings",
					"conditional_execution", "disabled", "metadata", "updated_at").
				Where("id = ?", existing.ID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to update node %s: %w", incoming.NodeID, err)
			}
		} else {
			incoming.ID = uuid.New()
			incoming.WorkflowID = workflowID
			if _, err := tx.NewInsert().Model(incoming).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create node %s: %w", incoming.NodeID, err)
			}
		}
	}

	for nodeID, existing := range existingMap {
		if _, stillExists := incomingMap[nodeID]; !stillExists {
			if _, err := tx.NewDelete().Model((*models.NodeModel)(nil)).Where("id = ?", existing.ID).Exec(ctx); err != nil {
				return fmt.Errorf("failed to delete node %s: %w", nodeID, err)
			}
		}
	}

	return nil
}

func (r *WorkflowRepository) syncEdges(ctx context.Context, tx bun.Tx, workflowID uuid.UUID, edges []*models.EdgeModel) error {
	var existingEdges []*models.EdgeModel
	err := tx.NewSelect().Model(&existingEdges).Where("workflow_id = ?", workflowID).Scan(ctx)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	existingMap := make(map[string]*models.EdgeModel)
	for _, edge := range existingEdges {
		existingMap[edge.EdgeID] = edge
	}
	incomingMap := make(map[string]*models.EdgeModel)
	for _, edge := range edges {
		incomingMap[edge.EdgeID] = edge
	}

	for _, incoming := range edges {
		if existing, exists := existingMap[incoming.EdgeID]; exists {
			incoming.ID = existing.ID
			incoming.CreatedAt = existing.CreatedAt
			incoming.WorkflowID = workflowID
			_, err := tx.NewUpdate().
				Model(incoming).
				Column("source_node_id", "target_node_id", "source_output_name", "target_input_name",
					"edge_type", "source_handle", "condition", "transformation", "loop", "optional", "disabled", "updated_at").
				Where("id = ?", existing.ID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to update edge %s: %w", incoming.EdgeID, err)
			}
		} else {
			incoming.ID = uuid.New()
			incoming.WorkflowID = workflowID
			if _, err := tx.NewInsert().Model(incoming).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create edge %s: %w", incoming.EdgeID, err)
			}
		}
	}

	for edgeID, existing := range existingMap {
		if _, stillExists := incomingMap[edgeID]; !stillExists {
			if _, err := tx.NewDelete().Model((*models.EdgeModel)(nil)).Where("id = ?", existing.ID).Exec(ctx); err != nil {
				return fmt.Errorf("failed to delete edge %s: %w", edgeID, err)
			}
		}
	}

	return nil
}

// Delete removes a workflow definition (nodes/edges cascade via FK).
func (r *WorkflowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().Model((*models.WorkflowModel)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *WorkflowRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.WorkflowModel, error) {
	workflow := &models.WorkflowModel{}
	if err := r.db.NewSelect().Model(workflow).Where("w.id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return workflow, nil
}

func (r *WorkflowRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*models.WorkflowModel, error) {
	workflow := &models.WorkflowModel{}
	err := r.db.NewSelect().
		Model(workflow).
		Relation("Nodes").
		Relation("Edges").
		Where("w.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return workflow, nil
}

func (r *WorkflowRepository) FindByName(ctx context.Context, name string, version int) (*models.WorkflowModel, error) {
	workflow := &models.WorkflowModel{}
	err := r.db.NewSelect().
		Model(workflow).
		Where("name = ? AND version = ?", name, version).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return workflow, nil
}

func (r *WorkflowRepository) FindAllWithFilters(ctx context.Context, filters repository.WorkflowFilters, limit, offset int) ([]*models.WorkflowModel, error) {
	var workflows []*models.WorkflowModel
	q := r.db.NewSelect().Model(&workflows)
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.Creator != nil {
		q = q.Where("creator = ?", *filters.Creator)
	}
	if filters.IsTemplate != nil {
		q = q.Where("is_template = ?", *filters.IsTemplate)
	}
	err := q.Limit(limit).Offset(offset).Order("created_at DESC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return workflows, nil
}

func (r *WorkflowRepository) CountWithFilters(ctx context.Context, filters repository.WorkflowFilters) (int, error) {
	q := r.db.NewSelect().Model((*models.WorkflowModel)(nil))
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.Creator != nil {
		q = q.Where("creator = ?", *filters.Creator)
	}
	if filters.IsTemplate != nil {
		q = q.Where("is_template = ?", *filters.IsTemplate)
	}
	return q.Count(ctx)
}

func (r *WorkflowRepository) CreateNode(ctx context.Context, node *models.NodeModel) error {
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	_, err := r.db.NewInsert().Model(node).Exec(ctx)
	return err
}

func (r *WorkflowRepository) UpdateNode(ctx context.Context, node *models.NodeModel) error {
	_, err := r.db.NewUpdate().
		Model(node).
		Column("name", "type", "input_configuration", "output_configuration", "execution_settings",
			"conditional_execution", "disabled", "metadata", "updated_at").
		Where("workflow_id = ? AND node_id = ?", node.WorkflowID, node.NodeID).
		Exec(ctx)
	return err
}

func (r *WorkflowRepository) DeleteNode(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().Model((*models.NodeModel)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *WorkflowRepository) FindNodeByID(ctx context.Context, id uuid.UUID) (*models.NodeModel, error) {
	node := &models.NodeModel{}
	if err := r.db.NewSelect().Model(node).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return node, nil
}

func (r *WorkflowRepository) FindNodesByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]*models.NodeModel, error) {
	var nodes []*models.NodeModel
	if err := r.db.NewSelect().Model(&nodes).Where("workflow_id = ?", workflowID).Scan(ctx); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *WorkflowRepository) CreateEdge(ctx context.Context, edge *models.EdgeModel) error {
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}
	_, err := r.db.NewInsert().Model(edge).Exec(ctx)
	return err
}

func (r *WorkflowRepository) UpdateEdge(ctx context.Context, edge *models.EdgeModel) error {
	_, err := r.db.NewUpdate().
		Model(edge).
		Column("source_node_id", "target_node_id", "source_output_name", "target_input_name",
			"edge_type", "source_handle", "condition", "transformation", "loop", "optional", "disabled", "updated_at").
		Where("workflow_id = ? AND edge_id = ?", edge.WorkflowID, edge.EdgeID).
		Exec(ctx)
	return err
}

func (r *WorkflowRepository) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().Model((*models.EdgeModel)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *WorkflowRepository) FindEdgeByID(ctx context.Context, id uuid.UUID) (*models.EdgeModel, error) {
	edge := &models.EdgeModel{}
	if err := r.db.NewSelect().Model(edge).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return edge, nil
}

func (r *WorkflowRepository) FindEdgesByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]*models.EdgeModel, error) {
	var edges []*models.EdgeModel
	if err := r.db.NewSelect().Model(&edges).Where("workflow_id = ?", workflowID).Scan(ctx); err != nil {
		return nil, err
	}
	return edges, nil
}
