package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/uptrace/bun"
)

var _ repository.ExecutionRepository = (*ExecutionRepository)(nil)

// ExecutionRepository implements repository.ExecutionRepository using Bun
// ORM, persisting program (not workflow) executions.
type ExecutionRepository struct {
	db *bun.DB
}

func NewExecutionRepository(db *bun.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.ProgramExecutionModel) error {
	if execution.ID == uuid.Nil {
		execution.ID = uuid.New()
	}
	if _, err := r.db.NewInsert().Model(execution).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepository) Update(ctx context.Context, execution *models.ProgramExecutionModel) error {
	_, err := r.db.NewUpdate().
		Model(execution).
		Column("status", "exit_code", "output", "output_files", "error", "cpu_time_ms", "memory_used", "disk_used", "completed_at").
		Where("id = ?", execution.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProgramExecutionModel, error) {
	execution := &models.ProgramExecutionModel{}
	if err := r.db.NewSelect().Model(execution).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return execution, nil
}

func (r *ExecutionRepository) FindByProgramID(ctx context.Context, programID uuid.UUID, limit, offset int) ([]*models.ProgramExecutionModel, error) {
	var executions []*models.ProgramExecutionModel
	err := r.db.NewSelect().
		Model(&executions).
		Where("program_id = ?", programID).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return executions, nil
}
