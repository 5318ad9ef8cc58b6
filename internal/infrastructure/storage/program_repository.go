package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/uptrace/bun"
)

var _ repository.ProgramRepository = (*ProgramRepository)(nil)

// ProgramRepository implements repository.ProgramRepository using Bun ORM,
// covering Program, Version, and UiComponent persistence.
type ProgramRepository struct {
	db *bun.DB
}

func NewProgramRepository(db *bun.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

func (r *ProgramRepository) CreateProgram(ctx context.Context, p *models.ProgramModel) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.db.NewInsert().Model(p).Exec(ctx)
	return err
}

func (r *ProgramRepository) UpdateProgram(ctx context.Context, p *models.ProgramModel) error {
	_, err := r.db.NewUpdate().
		Model(p).
		Column("name", "language", "ui_type", "current_version_id", "permissions", "metadata", "updated_at").
		Where("id = ?", p.ID).
		Exec(ctx)
	return err
}

func (r *ProgramRepository) FindProgramByID(ctx context.Context, id uuid.UUID) (*models.ProgramModel, error) {
	p := &models.ProgramModel{}
	if err := r.db.NewSelect().Model(p).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProgramRepository) FindAllPrograms(ctx context.Context, limit, offset int) ([]*models.ProgramModel, error) {
	var programs []*models.ProgramModel
	err := r.db.NewSelect().Model(&programs).Order("created_at DESC").Limit(limit).Offset(offset).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return programs, nil
}

func (r *ProgramRepository) CreateVersion(ctx context.Context, v *models.VersionModel) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	_, err := r.db.NewInsert().Model(v).Exec(ctx)
	return err
}

func (r *ProgramRepository) UpdateVersion(ctx context.Context, v *models.VersionModel) error {
	_, err := r.db.NewUpdate().
		Model(v).
		Column("status", "files", "updated_at").
		Where("id = ?", v.ID).
		Exec(ctx)
	return err
}

func (r *ProgramRepository) FindVersionByID(ctx context.Context, id uuid.UUID) (*models.VersionModel, error) {
	v := &models.VersionModel{}
	if err := r.db.NewSelect().Model(v).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *ProgramRepository) FindVersionsByProgramID(ctx context.Context, programID uuid.UUID) ([]*models.VersionModel, error) {
	var versions []*models.VersionModel
	err := r.db.NewSelect().Model(&versions).Where("program_id = ?", programID).Order("number ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *ProgramRepository) CreateUiComponent(ctx context.Context, c *models.UiComponentModel) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.db.NewInsert().Model(c).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create ui component: %w", err)
	}
	return nil
}

func (r *ProgramRepository) FindUiComponentsByVersionID(ctx context.Context, versionID uuid.UUID) ([]*models.UiComponentModel, error) {
	var components []*models.UiComponentModel
	err := r.db.NewSelect().Model(&components).Where("version_id = ?", versionID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return components, nil
}
