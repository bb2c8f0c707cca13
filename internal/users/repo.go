package users

import (
	"context"
	"time"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	dbtypes "github.com/paramvora-capmatch/capmatch-backend/pkg/db/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// UpdateEntityIDs overwrites the user's entity_ids array.
func (r *Repository) UpdateEntityIDs(ctx context.Context, id uuid.UUID, entityIDs []uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("entity_ids", dbtypes.UUIDArray(entityIDs)).Error
}

// UpdateEntityIDsTx overwrites the user's entity_ids array inside the
// provided transaction.
func (r *Repository) UpdateEntityIDsTx(tx *gorm.DB, id uuid.UUID, entityIDs []uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("entity_ids", dbtypes.UUIDArray(entityIDs)).Error
}

// UpdatePasswordHash replaces the stored credential hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("password_hash", hash).Error
}

// CreateTx inserts a new user inside the provided transaction.
func (r *Repository) CreateTx(tx *gorm.DB, dto CreateUserDTO) (*models.User, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	user := dto.ToModel()
	if err := tx.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}
