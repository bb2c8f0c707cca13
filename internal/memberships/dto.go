package memberships

import (
	"time"

	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// MembershipDTO is the transport shape for a raw membership record.
type MembershipDTO struct {
	ID              uuid.UUID              `json:"id"`
	EntityID        uuid.UUID              `json:"entity_id"`
	UserID          *uuid.UUID             `json:"user_id,omitempty"`
	Role            enums.MemberRole       `json:"role"`
	Status          enums.MembershipStatus `json:"status"`
	InvitedEmail    *string                `json:"invited_email,omitempty"`
	InvitedByUserID *uuid.UUID             `json:"invited_by_user_id,omitempty"`
	AcceptedAt      *time.Time             `json:"accepted_at,omitempty"`
	RemovedAt       *time.Time             `json:"removed_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// EntityMemberDTO mixes membership metadata with the associated user
// profile for entity administrators.
type EntityMemberDTO struct {
	MembershipID uuid.UUID              `json:"membership_id"`
	EntityID     uuid.UUID              `json:"entity_id"`
	UserID       uuid.UUID              `json:"user_id"`
	Email        string                 `json:"email"`
	FirstName    string                 `json:"first_name"`
	LastName     string                 `json:"last_name"`
	Role         enums.MemberRole       `json:"role"`
	Status       enums.MembershipStatus `json:"membership_status"`
	CreatedAt    time.Time              `json:"created_at"`
	LastLoginAt  *time.Time             `json:"last_login_at,omitempty"`
}

// PendingInviteDTO describes an outstanding invitation on the roster. The
// raw token is never returned here; only the invite metadata is.
type PendingInviteDTO struct {
	MembershipID    uuid.UUID        `json:"membership_id"`
	EntityID        uuid.UUID        `json:"entity_id"`
	InvitedEmail    string           `json:"invited_email"`
	Role            enums.MemberRole `json:"role"`
	InvitedByUserID *uuid.UUID       `json:"invited_by_user_id,omitempty"`
	ExpiresAt       *time.Time       `json:"expires_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// MembershipWithEntity includes basic entity metadata + membership info.
type MembershipWithEntity struct {
	MembershipID    uuid.UUID              `json:"membership_id"`
	EntityID        uuid.UUID              `json:"entity_id"`
	UserID          uuid.UUID              `json:"user_id"`
	EntityName      string                 `json:"entity_name"`
	EntityType      enums.EntityType       `json:"entity_type"`
	Role            enums.MemberRole       `json:"role"`
	Status          enums.MembershipStatus `json:"status"`
	InvitedByUserID *uuid.UUID             `json:"invited_by_user_id,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// ToDTO converts a model to the external DTO.
func ToDTO(m *models.Membership) *MembershipDTO {
	if m == nil {
		return nil
	}

	return &MembershipDTO{
		ID:              m.ID,
		EntityID:        m.EntityID,
		UserID:          copyUUIDPointer(m.UserID),
		Role:            m.Role,
		Status:          m.Status,
		InvitedEmail:    m.InvitedEmail,
		InvitedByUserID: copyUUIDPointer(m.InvitedByUserID),
		AcceptedAt:      m.AcceptedAt,
		RemovedAt:       m.RemovedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func copyUUIDPointer(src *uuid.UUID) *uuid.UUID {
	if src == nil {
		return nil
	}
	dst := *src
	return &dst
}
