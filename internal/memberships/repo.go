package memberships

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// Repo provides membership persistence on top of gorm.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByIDTx re-reads a membership inside an open transaction. Mutations use
// it to validate against the row state the transaction will commit over,
// not the state an earlier read observed.
func (r *Repo) GetByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	if err := tx.First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetActiveByUser returns the live membership a user holds in an entity,
// or gorm.ErrRecordNotFound when none exists.
func (r *Repo) GetActiveByUser(ctx context.Context, entityID, userID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := r.db.WithContext(ctx).
		Where("entity_id = ? AND user_id = ? AND status = ?", entityID, userID, enums.MembershipStatusActive).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByEntity returns the active roster with user profile columns joined in.
func (r *Repo) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*EntityMemberDTO, error) {
	var rows []entityMemberRow
	err := r.db.WithContext(ctx).
		Table("memberships").
		Select(`memberships.id AS membership_id,
			memberships.entity_id,
			memberships.user_id,
			users.email,
			users.first_name,
			users.last_name,
			memberships.role,
			memberships.status,
			memberships.created_at,
			users.last_login_at`).
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.entity_id = ? AND memberships.status = ?", entityID, enums.MembershipStatusActive).
		Order("memberships.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*EntityMemberDTO, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDTO())
	}
	return out, nil
}

// ListPendingByEntity returns outstanding invitations for the entity.
func (r *Repo) ListPendingByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.Membership, error) {
	var rows []*models.Membership
	err := r.db.WithContext(ctx).
		Where("entity_id = ? AND status = ?", entityID, enums.MembershipStatusPending).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetMembershipsForUser returns every live membership the user holds,
// with entity metadata joined in.
func (r *Repo) GetMembershipsForUser(ctx context.Context, userID uuid.UUID) ([]*MembershipWithEntity, error) {
	var rows []membershipWithEntityRow
	err := r.db.WithContext(ctx).
		Table("memberships").
		Select(`memberships.id AS membership_id,
			memberships.entity_id,
			memberships.user_id,
			entities.name AS entity_name,
			entities.type AS entity_type,
			memberships.role,
			memberships.status,
			memberships.invited_by_user_id,
			memberships.created_at,
			memberships.updated_at`).
		Joins("JOIN entities ON entities.id = memberships.entity_id").
		Where("memberships.user_id = ? AND memberships.status = ?", userID, enums.MembershipStatusActive).
		Order("memberships.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*MembershipWithEntity, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDTO())
	}
	return out, nil
}

// CountActiveWithRolesTx counts live members of the entity holding any of
// the given roles. The last-owner check runs it inside the same transaction
// as the removal or demotion so two concurrent mutations cannot both
// observe a spare owner.
func (r *Repo) CountActiveWithRolesTx(tx *gorm.DB, entityID uuid.UUID, roles []enums.MemberRole) (int64, error) {
	var count int64
	err := tx.Model(&models.Membership{}).
		Where("entity_id = ? AND status = ? AND role IN ?", entityID, enums.MembershipStatusActive, roles).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repo) Create(ctx context.Context, m *models.Membership) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) CreateTx(tx *gorm.DB, m *models.Membership) error {
	return tx.Create(m).Error
}

// FindPendingByToken looks up a pending invitation by its raw token.
func (r *Repo) FindPendingByToken(ctx context.Context, token string) (*models.Membership, error) {
	var m models.Membership
	err := r.db.WithContext(ctx).
		Where("invite_token = ? AND status = ?", token, enums.MembershipStatusPending).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindPendingByEmail looks up a pending invitation for an email address in
// an entity. Emails are matched case-insensitively.
func (r *Repo) FindPendingByEmail(ctx context.Context, entityID uuid.UUID, email string) (*models.Membership, error) {
	var m models.Membership
	err := r.db.WithContext(ctx).
		Where("entity_id = ? AND lower(invited_email) = lower(?) AND status = ?", entityID, email, enums.MembershipStatusPending).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ActivateIfPending flips a pending invitation to active, binds it to the
// accepting user, and clears the token. The status guard in the WHERE
// clause makes concurrent accepts race safely: exactly one caller sees
// rowsAffected == 1.
func (r *Repo) ActivateIfPending(tx *gorm.DB, membershipID, userID uuid.UUID, acceptedAt time.Time) (int64, error) {
	res := tx.Model(&models.Membership{}).
		Where("id = ? AND status = ?", membershipID, enums.MembershipStatusPending).
		Updates(map[string]any{
			"user_id":      userID,
			"status":       enums.MembershipStatusActive,
			"invite_token": nil,
			"accepted_at":  acceptedAt,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// MarkRemovedTx transitions a membership to removed and clears any invite
// token so the row can never be accepted afterwards.
func (r *Repo) MarkRemovedTx(tx *gorm.DB, membershipID uuid.UUID, removedAt time.Time) error {
	return tx.Model(&models.Membership{}).
		Where("id = ?", membershipID).
		Updates(map[string]any{
			"status":       enums.MembershipStatusRemoved,
			"invite_token": nil,
			"removed_at":   removedAt,
		}).Error
}

// UserHasRole reports whether the user holds one of the given roles as a
// live member of the entity.
func (r *Repo) UserHasRole(ctx context.Context, entityID, userID uuid.UUID, roles []enums.MemberRole) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("entity_id = ? AND user_id = ? AND status = ? AND role IN ?", entityID, userID, enums.MembershipStatusActive, roles).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExpirePendingBefore tombstones pending invites whose deadline has passed,
// clearing the token so the row can never be redeemed. Returns the number
// of invites swept.
func (r *Repo) ExpirePendingBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	result := db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("status = ? AND invite_expires_at IS NOT NULL AND invite_expires_at < ?", enums.MembershipStatusPending, cutoff).
		Updates(map[string]any{
			"status":       enums.MembershipStatusRemoved,
			"invite_token": nil,
			"removed_at":   cutoff,
		})
	return result.RowsAffected, result.Error
}
