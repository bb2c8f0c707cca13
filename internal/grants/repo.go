package grants

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// Repo provides grant persistence on top of gorm.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// ListByProjectUser returns every grant the user holds in the project.
func (r *Repo) ListByProjectUser(ctx context.Context, projectID, userID uuid.UUID) ([]*models.Grant, error) {
	var rows []*models.Grant
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByEntityUser returns every grant the user holds across the entity's
// projects.
func (r *Repo) ListByEntityUser(ctx context.Context, entityID, userID uuid.UUID) ([]*models.Grant, error) {
	var rows []*models.Grant
	err := r.db.WithContext(ctx).
		Where("entity_id = ? AND user_id = ?", entityID, userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) CreateManyTx(tx *gorm.DB, grants []*models.Grant) error {
	if len(grants) == 0 {
		return nil
	}
	return tx.Create(grants).Error
}

// DeleteAllForUserTx deletes every grant the user holds in the entity and
// reports how many rows went away. Used by the removal cascade.
func (r *Repo) DeleteAllForUserTx(tx *gorm.DB, entityID, userID uuid.UUID) (int64, error) {
	res := tx.Where("entity_id = ? AND user_id = ?", entityID, userID).Delete(&models.Grant{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// DeleteForProjectUserTx deletes every grant the user holds in one project.
func (r *Repo) DeleteForProjectUserTx(tx *gorm.DB, projectID, userID uuid.UUID) (int64, error) {
	res := tx.Where("project_id = ? AND user_id = ?", projectID, userID).Delete(&models.Grant{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// DeleteByPathsTx deletes the named grant paths for the user in one project.
func (r *Repo) DeleteByPathsTx(tx *gorm.DB, projectID, userID uuid.UUID, paths []string) (int64, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	res := tx.Where("project_id = ? AND user_id = ? AND path IN ?", projectID, userID, paths).Delete(&models.Grant{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// UserIsProjectOwner answers the tier-1 owner check as a single server-side
// predicate: does the user hold an active owner membership in the entity
// that owns the project. Keeping this in the store avoids a divergent
// client-side recomputation of the same rule.
func (r *Repo) UserIsProjectOwner(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("memberships").
		Joins("JOIN projects ON projects.entity_id = memberships.entity_id").
		Where("projects.id = ? AND memberships.user_id = ? AND memberships.status = ? AND memberships.role = ?",
			projectID, userID, enums.MembershipStatusActive, enums.MemberRoleOwner).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
