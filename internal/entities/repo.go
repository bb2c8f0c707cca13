package entities

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
)

// Repository handles entity persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to entity operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new entity row.
func (r *Repository) Create(ctx context.Context, dto CreateEntityDTO) (*models.Entity, error) {
	entity := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return entity, nil
}

// CreateTx persists a new entity row inside the provided transaction.
func (r *Repository) CreateTx(tx *gorm.DB, dto CreateEntityDTO) (*models.Entity, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	entity := dto.ToModel()
	if err := tx.Create(entity).Error; err != nil {
		return nil, err
	}
	return entity, nil
}

// FindByID loads an entity by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Entity, error) {
	var entity models.Entity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

// FindByOwner returns all entities owned by the provided user.
func (r *Repository) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Entity, error) {
	var rows []models.Entity
	if err := r.db.WithContext(ctx).Where("owner = ?", ownerID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Update saves the provided entity.
func (r *Repository) Update(ctx context.Context, entity *models.Entity) error {
	if entity == nil {
		return fmt.Errorf("entity is required")
	}
	return r.db.WithContext(ctx).Save(entity).Error
}

// UpdateLastActiveAt stamps the entity's last_active_at column.
func (r *Repository) UpdateLastActiveAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Entity{}).
		Where("id = ?", id).
		UpdateColumn("last_active_at", at).Error
}
