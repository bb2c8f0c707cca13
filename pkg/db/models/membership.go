package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/paramvora-capmatch/capmatch-backend/pkg/db/types"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// Membership links a user with an entity and captures their role/status.
// A pending row is the invitation itself: UserID stays unset until the
// invite is accepted, and the token columns are cleared on acceptance so a
// token can never be redeemed twice.
type Membership struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EntityID        uuid.UUID              `gorm:"column:entity_id;type:uuid;not null;index"`
	UserID          *uuid.UUID             `gorm:"column:user_id;type:uuid;index"`
	Role            enums.MemberRole       `gorm:"column:role;type:member_role;not null"`
	Status          enums.MembershipStatus `gorm:"column:status;type:membership_status;not null"`
	InvitedEmail    *string                `gorm:"column:invited_email"`
	InviteToken     *string                `gorm:"column:invite_token;uniqueIndex"`
	InviteExpiresAt *time.Time             `gorm:"column:invite_expires_at"`
	InvitedByUserID *uuid.UUID             `gorm:"column:invited_by_user_id;type:uuid"`
	// GrantProjectIDs is the permission snapshot captured at invite time for
	// member-role invites; each listed project receives a wildcard folder
	// grant when the invite is accepted.
	GrantProjectIDs dbtypes.UUIDArray `gorm:"type:uuid[];column:grant_project_ids;not null"`
	AcceptedAt      *time.Time        `gorm:"column:accepted_at"`
	RemovedAt       *time.Time        `gorm:"column:removed_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
