package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/uptrace/bun"
)

var _ repository.WorkflowExecutionRepository = (*WorkflowExecutionRepository)(nil)

// WorkflowExecutionRepository implements repository.WorkflowExecutionRepository
// using Bun ORM.
type WorkflowExecutionRepository struct {
	db *bun.DB
}

func NewWorkflowExecutionRepository(db *bun.DB) *WorkflowExecutionRepository {
	return &WorkflowExecutionRepository{db: db}
}

func (r *WorkflowExecutionRepository) Create(ctx context.Context, we *models.WorkflowExecutionModel) error {
	if we.ID == uuid.Nil {
		we.ID = uuid.New()
	}
	if _, err := r.db.NewInsert().Model(we).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create workflow execution: %w", err)
	}
	return nil
}

func (r *WorkflowExecutionRepository) Update(ctx context.Context, we *models.WorkflowExecutionModel) error {
	_, err := r.db.NewUpdate().
		Model(we).
		Column("status", "progress", "execution_context", "results", "error", "logs", "resource_usage", "completed_at").
		Where("id = ?", we.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update workflow execution: %w", err)
	}
	return nil
}

func (r *WorkflowExecutionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.WorkflowExecutionModel, error) {
	we := &models.WorkflowExecutionModel{}
	err := r.db.NewSelect().
		Model(we).
		Relation("NodeExecutions").
		Where("we.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return we, nil
}

func (r *WorkflowExecutionRepository) FindByWorkflowID(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*models.WorkflowExecutionModel, error) {
	var executions []*models.WorkflowExecutionModel
	err := r.db.NewSelect().
		Model(&executions).
		Where("workflow_id = ?", workflowID).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return executions, nil
}

func (r *WorkflowExecutionRepository) CreateNodeExecution(ctx context.Context, ne *models.NodeExecutionModel) error {
	if ne.ID == uuid.Nil {
		ne.ID = uuid.New()
	}
	_, err := r.db.NewInsert().Model(ne).Exec(ctx)
	return err
}

func (r *WorkflowExecutionRepository) UpdateNodeExecution(ctx context.Context, ne *models.NodeExecutionModel) error {
	_, err := r.db.NewUpdate().
		Model(ne).
		Column("status", "output", "error", "skip_reason", "retry_count", "program_execution_id", "started_at", "completed_at").
		Where("id = ?", ne.ID).
		Exec(ctx)
	return err
}

func (r *WorkflowExecutionRepository) FindNodeExecutionsByWorkflowExecutionID(ctx context.Context, workflowExecutionID uuid.UUID) ([]*models.NodeExecutionModel, error) {
	var nodeExecutions []*models.NodeExecutionModel
	err := r.db.NewSelect().
		Model(&nodeExecutions).
		Where("workflow_execution_id = ?", workflowExecutionID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return nodeExecutions, nil
}
