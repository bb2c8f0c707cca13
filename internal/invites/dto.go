package invites

import (
	"time"

	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// InviteMemberInput captures the data needed to invite someone into an
// entity. ProjectIDs is the permission snapshot for member-role invites;
// owner and manager roles carry implicit access and ignore it.
type InviteMemberInput struct {
	Email      string           `json:"email"`
	Role       enums.MemberRole `json:"role"`
	ProjectIDs []uuid.UUID      `json:"project_ids,omitempty"`
}

// InviteDTO is returned to the inviter. AcceptLink embeds the raw token and
// is the only place the token ever leaves the service.
type InviteDTO struct {
	MembershipID uuid.UUID        `json:"membership_id"`
	EntityID     uuid.UUID        `json:"entity_id"`
	Email        string           `json:"email"`
	Role         enums.MemberRole `json:"role"`
	ExpiresAt    time.Time        `json:"expires_at"`
	AcceptLink   string           `json:"accept_link"`
}

// InviteValidationDTO is the read-only preview of an invitation. Valid is
// false for unknown, consumed, or expired tokens; the remaining fields are
// only populated when Valid is true.
type InviteValidationDTO struct {
	Valid       bool              `json:"valid"`
	EntityName  string            `json:"entity_name,omitempty"`
	InviterName string            `json:"inviter_name,omitempty"`
	Email       string            `json:"email,omitempty"`
	Role        *enums.MemberRole `json:"role,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

// AcceptInviteInput identifies or provisions the accepting user. When
// AuthenticatedUserID is nil a new account is created from the invited
// email and the supplied profile and password.
type AcceptInviteInput struct {
	AuthenticatedUserID *uuid.UUID `json:"-"`
	FirstName           string     `json:"first_name,omitempty"`
	LastName            string     `json:"last_name,omitempty"`
	Password            string     `json:"password,omitempty"`
}

// AcceptInviteResultDTO reports the activated membership.
type AcceptInviteResultDTO struct {
	MembershipID    uuid.UUID        `json:"membership_id"`
	EntityID        uuid.UUID        `json:"entity_id"`
	UserID          uuid.UUID        `json:"user_id"`
	Role            enums.MemberRole `json:"role"`
	AcceptedAt      time.Time        `json:"accepted_at"`
	GrantsCreated   int              `json:"grants_created"`
	UserProvisioned bool             `json:"user_provisioned"`
}
