package projects

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// Repo provides project persistence on top of gorm.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, p *models.Project) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repo) FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByEntity returns the entity's projects, unarchived first, newest
// within each group.
func (r *Repo) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.Project, error) {
	var rows []*models.Project
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("archived_at IS NOT NULL, created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListIDsByEntity returns just the ids of the entity's unarchived projects.
// Used when building wildcard grant sets.
func (r *Repo) ListIDsByEntity(ctx context.Context, entityID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("entity_id = ? AND archived_at IS NULL", entityID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repo) Update(ctx context.Context, p *models.Project) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// Archive stamps the project archived and moves it to the archived status.
func (r *Repo) Archive(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      enums.ProjectStatusArchived,
			"archived_at": at,
		}).Error
}
