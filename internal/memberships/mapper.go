package memberships

import (
	"time"

	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// entityMemberRow is the scan target for the memberships-to-users join
// used by ListByEntity.
type entityMemberRow struct {
	MembershipID uuid.UUID              `gorm:"column:membership_id"`
	EntityID     uuid.UUID              `gorm:"column:entity_id"`
	UserID       uuid.UUID              `gorm:"column:user_id"`
	Email        string                 `gorm:"column:email"`
	FirstName    string                 `gorm:"column:first_name"`
	LastName     string                 `gorm:"column:last_name"`
	Role         enums.MemberRole       `gorm:"column:role"`
	Status       enums.MembershipStatus `gorm:"column:status"`
	CreatedAt    time.Time              `gorm:"column:created_at"`
	LastLoginAt  *time.Time             `gorm:"column:last_login_at"`
}

func (r *entityMemberRow) toDTO() *EntityMemberDTO {
	return &EntityMemberDTO{
		MembershipID: r.MembershipID,
		EntityID:     r.EntityID,
		UserID:       r.UserID,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Role:         r.Role,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		LastLoginAt:  r.LastLoginAt,
	}
}

// membershipWithEntityRow backs GetMembershipsForUser, joining the
// entities table so the client can render an entity switcher.
type membershipWithEntityRow struct {
	MembershipID    uuid.UUID              `gorm:"column:membership_id"`
	EntityID        uuid.UUID              `gorm:"column:entity_id"`
	UserID          uuid.UUID              `gorm:"column:user_id"`
	EntityName      string                 `gorm:"column:entity_name"`
	EntityType      enums.EntityType       `gorm:"column:entity_type"`
	Role            enums.MemberRole       `gorm:"column:role"`
	Status          enums.MembershipStatus `gorm:"column:status"`
	InvitedByUserID *uuid.UUID             `gorm:"column:invited_by_user_id"`
	CreatedAt       time.Time              `gorm:"column:created_at"`
	UpdatedAt       time.Time              `gorm:"column:updated_at"`
}

func (r *membershipWithEntityRow) toDTO() *MembershipWithEntity {
	return &MembershipWithEntity{
		MembershipID:    r.MembershipID,
		EntityID:        r.EntityID,
		UserID:          r.UserID,
		EntityName:      r.EntityName,
		EntityType:      r.EntityType,
		Role:            r.Role,
		Status:          r.Status,
		InvitedByUserID: r.InvitedByUserID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
