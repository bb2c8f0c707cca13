package invites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/internal/memberships"
	"github.com/paramvora-capmatch/capmatch-backend/internal/users"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/config"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	dbtypes "github.com/paramvora-capmatch/capmatch-backend/pkg/db/types"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/metrics"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox/payloads"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/security"
)

var inviteAdminRoles = []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleManager}

type membershipRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	GetActiveByUser(ctx context.Context, entityID, userID uuid.UUID) (*models.Membership, error)
	FindPendingByToken(ctx context.Context, token string) (*models.Membership, error)
	FindPendingByEmail(ctx context.Context, entityID uuid.UUID, email string) (*models.Membership, error)
	UserHasRole(ctx context.Context, entityID, userID uuid.UUID, roles []enums.MemberRole) (bool, error)
	CreateTx(tx *gorm.DB, m *models.Membership) error
	ActivateIfPending(tx *gorm.DB, membershipID, userID uuid.UUID, acceptedAt time.Time) (int64, error)
	MarkRemovedTx(tx *gorm.DB, membershipID uuid.UUID, removedAt time.Time) error
}

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	CreateTx(tx *gorm.DB, dto users.CreateUserDTO) (*models.User, error)
	UpdateEntityIDsTx(tx *gorm.DB, id uuid.UUID, entityIDs []uuid.UUID) error
}

type entityRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Entity, error)
}

type grantRepository interface {
	CreateManyTx(tx *gorm.DB, grants []*models.Grant) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the invitation lifecycle: pending rows are written with a
// single-use token, previewed read-only, and consumed exactly once.
type Service interface {
	InviteMember(ctx context.Context, actorID, entityID uuid.UUID, input InviteMemberInput) (*InviteDTO, error)
	ValidateInviteToken(ctx context.Context, token string) (*InviteValidationDTO, error)
	AcceptInvite(ctx context.Context, token string, input AcceptInviteInput) (*AcceptInviteResultDTO, error)
	CancelInvite(ctx context.Context, actorID, entityID, membershipID uuid.UUID) error
}

type service struct {
	memberships membershipRepository
	users       userRepository
	entities    entityRepository
	grants      grantRepository
	db          txRunner
	events      eventEmitter
	metrics     *metrics.AccessMetrics
	inviteCfg   config.InviteConfig
	passwordCfg config.PasswordConfig
}

// NewService builds an invite service. Metrics may be nil.
func NewService(
	membershipsRepo membershipRepository,
	usersRepo userRepository,
	entitiesRepo entityRepository,
	grantsRepo grantRepository,
	db txRunner,
	events eventEmitter,
	m *metrics.AccessMetrics,
	inviteCfg config.InviteConfig,
	passwordCfg config.PasswordConfig,
) (Service, error) {
	if membershipsRepo == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if entitiesRepo == nil {
		return nil, fmt.Errorf("entities repository required")
	}
	if grantsRepo == nil {
		return nil, fmt.Errorf("grant repository required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	return &service{
		memberships: membershipsRepo,
		users:       usersRepo,
		entities:    entitiesRepo,
		grants:      grantsRepo,
		db:          db,
		events:      events,
		metrics:     m,
		inviteCfg:   inviteCfg,
		passwordCfg: passwordCfg,
	}, nil
}

func (s *service) acceptLink(token string) string {
	return fmt.Sprintf("%s?token=%s", s.inviteCfg.AcceptBaseURL, token)
}

// InviteMember writes a pending membership carrying a fresh single-use
// token and returns the shareable acceptance link.
func (s *service) InviteMember(ctx context.Context, actorID, entityID uuid.UUID, input InviteMemberInput) (*InviteDTO, error) {
	ok, err := s.memberships.UserHasRole(ctx, entityID, actorID, inviteAdminRoles)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient entity role")
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if input.Role == enums.MemberRoleOwner {
		isOwner, err := s.memberships.UserHasRole(ctx, entityID, actorID, []enums.MemberRole{enums.MemberRoleOwner})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
		}
		if !isOwner {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only owners may invite owners")
		}
	}

	if _, err := s.memberships.FindPendingByEmail(ctx, entityID, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an invitation for this email is already pending")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending invites")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	if existing != nil {
		if _, err := s.memberships.GetActiveByUser(ctx, entityID, existing.ID); err == nil {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "user is already a member of this entity")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
		}
	}

	token, err := security.GenerateInviteToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate invite token")
	}
	expiresAt := time.Now().UTC().Add(s.inviteCfg.TokenTTL)

	// The project snapshot only matters for member-role invites; implicit
	// roles ignore it.
	var snapshot []uuid.UUID
	if input.Role == enums.MemberRoleMember {
		snapshot = input.ProjectIDs
	}

	membership := &models.Membership{
		EntityID:        entityID,
		Role:            input.Role,
		Status:          enums.MembershipStatusPending,
		InvitedEmail:    &email,
		InviteToken:     &token,
		InviteExpiresAt: &expiresAt,
		InvitedByUserID: &actorID,
		GrantProjectIDs: dbtypes.UUIDArray(snapshot),
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.memberships.CreateTx(tx, membership); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invite")
		}
		actor := &outbox.ActorRef{UserID: actorID, EntityID: &entityID}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInviteCreated,
			AggregateType: enums.AggregateInvite,
			AggregateID:   membership.ID,
			Actor:         actor,
			Data: payloads.InviteCreatedEvent{
				MembershipID:    membership.ID,
				EntityID:        entityID,
				InvitedEmail:    email,
				Role:            input.Role,
				InvitedByUserID: actorID,
				ExpiresAt:       expiresAt,
			},
			Version: 1,
		}); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateInvite,
			AggregateID:   membership.ID,
			Actor:         actor,
			Data: payloads.NotificationRequestedEvent{
				EntityID:   entityID,
				Recipient:  email,
				Type:       "invite_email",
				AcceptLink: s.acceptLink(token),
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncInvite("created")
	return &InviteDTO{
		MembershipID: membership.ID,
		EntityID:     entityID,
		Email:        email,
		Role:         input.Role,
		ExpiresAt:    expiresAt,
		AcceptLink:   s.acceptLink(token),
	}, nil
}

// lookupPending resolves a token to its pending membership, treating
// unknown, consumed, and expired tokens identically.
func (s *service) lookupPending(ctx context.Context, token string) (*models.Membership, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, gorm.ErrRecordNotFound
	}
	membership, err := s.memberships.FindPendingByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if membership.InviteExpiresAt == nil || !time.Now().Before(*membership.InviteExpiresAt) {
		return nil, gorm.ErrRecordNotFound
	}
	return membership, nil
}

// ValidateInviteToken is the read-only preview used by the acceptance page.
// It never mutates state and fails closed with {valid:false}.
func (s *service) ValidateInviteToken(ctx context.Context, token string) (*InviteValidationDTO, error) {
	membership, err := s.lookupPending(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &InviteValidationDTO{Valid: false}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate invite")
	}

	dto := &InviteValidationDTO{
		Valid:     true,
		Role:      &membership.Role,
		ExpiresAt: membership.InviteExpiresAt,
	}
	if membership.InvitedEmail != nil {
		dto.Email = *membership.InvitedEmail
	}

	if entity, err := s.entities.FindByID(ctx, membership.EntityID); err == nil {
		dto.EntityName = entity.Name
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entity")
	}
	if membership.InvitedByUserID != nil {
		if inviter, err := s.users.FindByID(ctx, *membership.InvitedByUserID); err == nil {
			dto.InviterName = strings.TrimSpace(inviter.FirstName + " " + inviter.LastName)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inviter")
		}
	}
	return dto, nil
}

func (s *service) resolveAcceptor(ctx context.Context, membership *models.Membership, input AcceptInviteInput) (*models.User, users.CreateUserDTO, bool, error) {
	if input.AuthenticatedUserID != nil {
		user, err := s.users.FindByID(ctx, *input.AuthenticatedUserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, users.CreateUserDTO{}, false, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown user")
			}
			return nil, users.CreateUserDTO{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		return user, users.CreateUserDTO{}, false, nil
	}

	email := ""
	if membership.InvitedEmail != nil {
		email = *membership.InvitedEmail
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, users.CreateUserDTO{}, false, pkgerrors.New(pkgerrors.CodeConflict, "an account with this email already exists; sign in to accept")
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, users.CreateUserDTO{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return nil, users.CreateUserDTO{}, false, pkgerrors.New(pkgerrors.CodeValidation, "first and last name are required")
	}
	if len(input.Password) < 8 {
		return nil, users.CreateUserDTO{}, false, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}
	hash, err := security.HashPassword(input.Password, s.passwordCfg)
	if err != nil {
		return nil, users.CreateUserDTO{}, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	dto := users.CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
	}
	return nil, dto, true, nil
}

// AcceptInvite consumes a token. The membership flip is a conditional
// update guarded by the pending status, so a double-accept race activates
// exactly one membership and materializes exactly one grant set.
func (s *service) AcceptInvite(ctx context.Context, token string, input AcceptInviteInput) (*AcceptInviteResultDTO, error) {
	membership, err := s.lookupPending(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInviteInvalid, "invitation is invalid or expired")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate invite")
	}

	user, createDTO, provision, err := s.resolveAcceptor(ctx, membership, input)
	if err != nil {
		return nil, err
	}

	acceptedAt := time.Now().UTC()
	var result *AcceptInviteResultDTO
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if provision {
			created, err := s.users.CreateTx(tx, createDTO)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
			}
			user = created
		}

		affected, err := s.memberships.ActivateIfPending(tx, membership.ID, user.ID, acceptedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate membership")
		}
		if affected == 0 {
			// Lost the race to a concurrent accept.
			return pkgerrors.New(pkgerrors.CodeInviteInvalid, "invitation is invalid or expired")
		}

		entityIDs := append([]uuid.UUID(nil), []uuid.UUID(user.EntityIDs)...)
		if !containsUUID(entityIDs, membership.EntityID) {
			entityIDs = append(entityIDs, membership.EntityID)
			if err := s.users.UpdateEntityIDsTx(tx, user.ID, entityIDs); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user entities")
			}
		}

		var grants []*models.Grant
		if membership.Role == enums.MemberRoleMember && len(membership.GrantProjectIDs) > 0 {
			grantedBy := user.ID
			if membership.InvitedByUserID != nil {
				grantedBy = *membership.InvitedByUserID
			}
			grants = memberships.WildcardGrants(membership.EntityID, user.ID, grantedBy, membership.GrantProjectIDs)
			if err := s.grants.CreateManyTx(tx, grants); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "materialize grants")
			}
		}

		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInviteAccepted,
			AggregateType: enums.AggregateInvite,
			AggregateID:   membership.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID, EntityID: &membership.EntityID},
			Data: payloads.InviteAcceptedEvent{
				MembershipID: membership.ID,
				EntityID:     membership.EntityID,
				UserID:       user.ID,
				Role:         membership.Role,
				AcceptedAt:   acceptedAt,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		result = &AcceptInviteResultDTO{
			MembershipID:    membership.ID,
			EntityID:        membership.EntityID,
			UserID:          user.ID,
			Role:            membership.Role,
			AcceptedAt:      acceptedAt,
			GrantsCreated:   len(grants),
			UserProvisioned: provision,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncInvite("accepted")
	return result, nil
}

// CancelInvite withdraws a pending invitation. Cancelling an invite that
// was already consumed or cancelled is a no-op, keeping the action
// idempotent for double-clicks.
func (s *service) CancelInvite(ctx context.Context, actorID, entityID, membershipID uuid.UUID) error {
	ok, err := s.memberships.UserHasRole(ctx, entityID, actorID, inviteAdminRoles)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient entity role")
	}

	membership, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "invitation not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invitation")
	}
	if membership.EntityID != entityID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "invitation not found")
	}
	if membership.Status != enums.MembershipStatusPending {
		return nil
	}

	removedAt := time.Now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.memberships.MarkRemovedTx(tx, membership.ID, removedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel invitation")
		}
		email := ""
		if membership.InvitedEmail != nil {
			email = *membership.InvitedEmail
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInviteCancelled,
			AggregateType: enums.AggregateInvite,
			AggregateID:   membership.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, EntityID: &entityID},
			Data: payloads.InviteCancelledEvent{
				MembershipID:      membership.ID,
				EntityID:          entityID,
				InvitedEmail:      email,
				CancelledByUserID: &actorID,
			},
			Version: 1,
		})
	})
	if err != nil {
		return err
	}

	s.metrics.IncInvite("cancelled")
	return nil
}

func containsUUID(list []uuid.UUID, target uuid.UUID) bool {
	for _, id := range list {
		if id == target {
			return true
		}
	}
	return false
}
