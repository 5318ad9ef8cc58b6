package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
)

// WorkflowFilters represents optional filters for workflow queries.
type WorkflowFilters struct {
	Status    *string
	Creator   *string
	IsTemplate *bool
}

// WorkflowRepository defines the interface for workflow definition persistence.
type WorkflowRepository interface {
	Create(ctx context.Context, workflow *models.WorkflowModel) error
	Update(ctx context.Context, workflow *models.WorkflowModel) error
	Delete(ctx context.Context, id uuid.UUID) error

	FindByID(ctx context.Context, id uuid.UUID) (*models.WorkflowModel, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*models.WorkflowModel, error)
	FindByName(ctx context.Context, name string, version int) (*models.WorkflowModel, error)

	FindAllWithFilters(ctx context.Context, filters WorkflowFilters, limit, offset int) ([]*models.WorkflowModel, error)
	CountWithFilters(ctx context.Context, filters WorkflowFilters) (int, error)

	CreateNode(ctx context.Context, node *models.NodeModel) error
	UpdateNode(ctx context.Context, node *models.NodeModel) error
	DeleteNode(ctx context.Context, id uuid.UUID) error
	FindNodeByID(ctx context.Context, id uuid.UUID) (*models.NodeModel, error)
	FindNodesByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]*models.NodeModel, error)

	CreateEdge(ctx context.Context, edge *models.EdgeModel) error
	UpdateEdge(ctx context.Context, edge *models.EdgeModel) error
	DeleteEdge(ctx context.Context, id uuid.UUID) error
	FindEdgeByID(ctx context.Context, id uuid.UUID) (*models.EdgeModel, error)
	FindEdgesByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]*models.EdgeModel, error)
}

// ProgramRepository defines the interface for Program/Version/UiComponent
// persistence.
type ProgramRepository interface {
	CreateProgram(ctx context.Context, p *models.ProgramModel) error
	UpdateProgram(ctx context.Context, p *models.ProgramModel) error
	FindProgramByID(ctx context.Context, id uuid.UUID) (*models.ProgramModel, error)
	FindAllPrograms(ctx context.Context, limit, offset int) ([]*models.ProgramModel, error)

	CreateVersion(ctx context.Context, v *models.VersionModel) error
	UpdateVersion(ctx context.Context, v *models.VersionModel) error
	FindVersionByID(ctx context.Context, id uuid.UUID) (*models.VersionModel, error)
	FindVersionsByProgramID(ctx context.Context, programID uuid.UUID) ([]*models.VersionModel, error)

	CreateUiComponent(ctx context.Context, c *models.UiComponentModel) error
	FindUiComponentsByVersionID(ctx context.Context, versionID uuid.UUID) ([]*models.UiComponentModel, error)
}

// ExecutionRepository defines the interface for program-execution persistence.
type ExecutionRepository interface {
	Create(ctx context.Context, e *models.ProgramExecutionModel) error
	Update(ctx context.Context, e *models.ProgramExecutionModel) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProgramExecutionModel, error)
	FindByProgramID(ctx context.Context, programID uuid.UUID, limit, offset int) ([]*models.ProgramExecutionModel, error)
}

// WorkflowExecutionRepository defines the interface for workflow-run
// persistence, including the per-node execution records it owns.
type WorkflowExecutionRepository interface {
	Create(ctx context.Context, we *models.WorkflowExecutionModel) error
	Update(ctx context.Context, we *models.WorkflowExecutionModel) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WorkflowExecutionModel, error)
	FindByWorkflowID(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*models.WorkflowExecutionModel, error)

	CreateNodeExecution(ctx context.Context, ne *models.NodeExecutionModel) error
	UpdateNodeExecution(ctx context.Context, ne *models.NodeExecutionModel) error
	FindNodeExecutionsByWorkflowExecutionID(ctx context.Context, workflowExecutionID uuid.UUID) ([]*models.NodeExecutionModel, error)
}

// UIInteractionRepository defines the interface for UI interaction persistence.
type UIInteractionRepository interface {
	Create(ctx context.Context, i *models.UIInteractionModel) error
	Update(ctx context.Context, i *models.UIInteractionModel) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.UIInteractionModel, error)
	FindPendingByWorkflowExecutionID(ctx context.Context, workflowExecutionID uuid.UUID) ([]*models.UIInteractionModel, error)
	FindExpired(ctx context.Context, before time.Time) ([]*models.UIInteractionModel, error)
}
