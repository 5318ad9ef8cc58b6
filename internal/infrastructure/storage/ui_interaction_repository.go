package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/uptrace/bun"
)

var _ repository.UIInteractionRepository = (*UIInteractionRepository)(nil)

// UIInteractionRepository implements repository.UIInteractionRepository
// using Bun ORM.
type UIInteractionRepository struct {
	db *bun.DB
}

func NewUIInteractionRepository(db *bun.DB) *UIInteractionRepository {
	return &UIInteractionRepository{db: db}
}

func (r *UIInteractionRepository) Create(ctx context.Context, i *models.UIInteractionModel) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	_, err := r.db.NewInsert().Model(i).Exec(ctx)
	return err
}

func (r *UIInteractionRepository) Update(ctx context.Context, i *models.UIInteractionModel) error {
	_, err := r.db.NewUpdate().
		Model(i).
		Column("status", "output_data", "completed_at").
		Where("id = ?", i.ID).
		Exec(ctx)
	return err
}

func (r *UIInteractionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.UIInteractionModel, error) {
	i := &models.UIInteractionModel{}
	if err := r.db.NewSelect().Model(i).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return i, nil
}

func (r *UIInteractionRepository) FindPendingByWorkflowExecutionID(ctx context.Context, workflowExecutionID uuid.UUID) ([]*models.UIInteractionModel, error) {
	var interactions []*models.UIInteractionModel
	err := r.db.NewSelect().
		Model(&interactions).
		Where("workflow_execution_id = ?", workflowExecutionID).
		Where("status IN (?)", bun.In([]string{"Pending", "InProgress"})).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return interactions, nil
}

func (r *UIInteractionRepository) FindExpired(ctx context.Context, before time.Time) ([]*models.UIInteractionModel, error) {
	var interactions []*models.UIInteractionModel
	err := r.db.NewSelect().
		Model(&interactions).
		Where("status IN (?)", bun.In([]string{"Pending", "InProgress"})).
		Where("timeout_seconds IS NOT NULL").
		Where("created_at + (timeout_seconds || ' seconds')::interval < ?", before).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return interactions, nil
}
