package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// EntityCreatedEvent signals a new tenant entity with its founding owner.
type EntityCreatedEvent struct {
	EntityID   uuid.UUID        `json:"entity_id"`
	EntityType enums.EntityType `json:"entity_type"`
	OwnerID    uuid.UUID        `json:"owner_id"`
	Name       string           `json:"name"`
}

// InviteCreatedEvent is emitted whenever a pending membership is written.
type InviteCreatedEvent struct {
	MembershipID    uuid.UUID        `json:"membership_id"`
	EntityID        uuid.UUID        `json:"entity_id"`
	InvitedEmail    string           `json:"invited_email"`
	Role            enums.MemberRole `json:"role"`
	InvitedByUserID uuid.UUID        `json:"invited_by_user_id"`
	ExpiresAt       time.Time        `json:"expires_at"`
}

// InviteAcceptedEvent is emitted once an invite token is redeemed.
type InviteAcceptedEvent struct {
	MembershipID uuid.UUID        `json:"membership_id"`
	EntityID     uuid.UUID        `json:"entity_id"`
	UserID       uuid.UUID        `json:"user_id"`
	Role         enums.MemberRole `json:"role"`
	AcceptedAt   time.Time        `json:"accepted_at"`
}

// InviteCancelledEvent is emitted when a pending invite is withdrawn.
type InviteCancelledEvent struct {
	MembershipID      uuid.UUID  `json:"membership_id"`
	EntityID          uuid.UUID  `json:"entity_id"`
	InvitedEmail      string     `json:"invited_email"`
	CancelledByUserID *uuid.UUID `json:"cancelled_by_user_id,omitempty"`
}

// MemberRemovedEvent reports a membership tombstoned by an administrator,
// including how many grants the cascade deleted.
type MemberRemovedEvent struct {
	MembershipID    uuid.UUID        `json:"membership_id"`
	EntityID        uuid.UUID        `json:"entity_id"`
	UserID          uuid.UUID        `json:"user_id"`
	Role            enums.MemberRole `json:"role"`
	RemovedByUserID *uuid.UUID       `json:"removed_by_user_id,omitempty"`
	GrantsRevoked   int              `json:"grants_revoked"`
	ReinviteIssued  bool             `json:"reinvite_issued"`
	RemovedAt       time.Time        `json:"removed_at"`
}

// MemberPromotedEvent is emitted when a member or manager becomes an owner.
type MemberPromotedEvent struct {
	MembershipID uuid.UUID        `json:"membership_id"`
	EntityID     uuid.UUID        `json:"entity_id"`
	UserID       uuid.UUID        `json:"user_id"`
	PriorRole    enums.MemberRole `json:"prior_role"`
}

// MemberDemotedEvent is emitted when an owner is demoted; the grant set is
// reset, never merged, so the fresh grant count is carried for audit.
type MemberDemotedEvent struct {
	MembershipID  uuid.UUID `json:"membership_id"`
	EntityID      uuid.UUID `json:"entity_id"`
	UserID        uuid.UUID `json:"user_id"`
	GrantsCreated int       `json:"grants_created"`
}

// ProjectAccessGrantedEvent reports explicit grant rows written for a member.
type ProjectAccessGrantedEvent struct {
	EntityID  uuid.UUID `json:"entity_id"`
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
	Paths     []string  `json:"paths"`
}

// ProjectAccessRevokedEvent reports explicit grant rows deleted for a member.
type ProjectAccessRevokedEvent struct {
	EntityID  uuid.UUID `json:"entity_id"`
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
	Paths     []string  `json:"paths,omitempty"`
	All       bool      `json:"all,omitempty"`
}

// NotificationRequestedEvent tells downstream systems to alert a user, for
// example to deliver an invitation email with its acceptance link.
type NotificationRequestedEvent struct {
	EntityID   uuid.UUID `json:"entity_id"`
	Recipient  string    `json:"recipient"`
	Type       string    `json:"type"`
	AcceptLink string    `json:"accept_link,omitempty"`
}
