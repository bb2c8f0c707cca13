package memberships

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/config"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	dbtypes "github.com/paramvora-capmatch/capmatch-backend/pkg/db/types"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox/payloads"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/security"
)

var adminRoles = []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleManager}

type membershipRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	GetByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Membership, error)
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*EntityMemberDTO, error)
	ListPendingByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.Membership, error)
	GetMembershipsForUser(ctx context.Context, userID uuid.UUID) ([]*MembershipWithEntity, error)
	CountActiveWithRolesTx(tx *gorm.DB, entityID uuid.UUID, roles []enums.MemberRole) (int64, error)
	UserHasRole(ctx context.Context, entityID, userID uuid.UUID, roles []enums.MemberRole) (bool, error)
	CreateTx(tx *gorm.DB, m *models.Membership) error
	MarkRemovedTx(tx *gorm.DB, membershipID uuid.UUID, removedAt time.Time) error
}

type grantRepository interface {
	DeleteAllForUserTx(tx *gorm.DB, entityID, userID uuid.UUID) (int64, error)
	CreateManyTx(tx *gorm.DB, grants []*models.Grant) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type cacheInvalidator interface {
	InvalidateUser(userID uuid.UUID)
}

// Service exposes roster administration: listing members, removing them,
// and moving them between roles.
type Service interface {
	ListMembers(ctx context.Context, actorID, entityID uuid.UUID) ([]*EntityMemberDTO, error)
	ListPendingInvites(ctx context.Context, actorID, entityID uuid.UUID) ([]*PendingInviteDTO, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*MembershipWithEntity, error)
	RemoveMember(ctx context.Context, actorID, entityID, membershipID uuid.UUID) error
	PromoteToOwner(ctx context.Context, actorID, entityID, membershipID uuid.UUID) (*MembershipDTO, error)
	DemoteOwnerToMember(ctx context.Context, actorID, entityID, membershipID uuid.UUID, projectIDs []uuid.UUID) (*MembershipDTO, error)
	RemoveAndReinviteMember(ctx context.Context, actorID, entityID, membershipID uuid.UUID, newRole enums.MemberRole, projectIDs []uuid.UUID) (*MembershipDTO, error)
}

type service struct {
	repo      membershipRepository
	grants    grantRepository
	db        txRunner
	events    eventEmitter
	cache     cacheInvalidator
	inviteCfg config.InviteConfig
}

// NewService builds a membership service with the provided dependencies.
// The cache invalidator may be nil when no resolver cache is in play.
func NewService(repo membershipRepository, grants grantRepository, db txRunner, events eventEmitter, cache cacheInvalidator, inviteCfg config.InviteConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	if grants == nil {
		return nil, fmt.Errorf("grant repository required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	return &service{
		repo:      repo,
		grants:    grants,
		db:        db,
		events:    events,
		cache:     cache,
		inviteCfg: inviteCfg,
	}, nil
}

// invalidateUser drops the resolver's cached grants for the user after a
// committed mutation. Without this a removed or demoted member keeps
// answering access checks from stale cache entries.
func (s *service) invalidateUser(userID uuid.UUID) {
	if s.cache != nil {
		s.cache.InvalidateUser(userID)
	}
}

func (s *service) requireAdmin(ctx context.Context, entityID, actorID uuid.UUID) error {
	ok, err := s.repo.UserHasRole(ctx, entityID, actorID, adminRoles)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient entity role")
	}
	return nil
}

func (s *service) requireOwner(ctx context.Context, entityID, actorID uuid.UUID) error {
	ok, err := s.repo.UserHasRole(ctx, entityID, actorID, []enums.MemberRole{enums.MemberRoleOwner})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "owner role required")
	}
	return nil
}

func (s *service) loadActiveMembership(ctx context.Context, entityID, membershipID uuid.UUID) (*models.Membership, error) {
	membership, err := s.repo.GetByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
	}
	if membership.EntityID != entityID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	if membership.Status != enums.MembershipStatusActive || membership.UserID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "membership is not active")
	}
	return membership, nil
}

// reloadActiveTx re-reads the membership inside an open transaction and
// applies the same active-row validation as loadActiveMembership. Mutations
// validate against this row rather than the pre-transaction read, which may
// be stale by the time the transaction opens.
func (s *service) reloadActiveTx(tx *gorm.DB, entityID, membershipID uuid.UUID) (*models.Membership, error) {
	membership, err := s.repo.GetByIDTx(tx, membershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload membership")
	}
	if membership.EntityID != entityID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	if membership.Status != enums.MembershipStatusActive || membership.UserID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "membership is not active")
	}
	return membership, nil
}

// ensureSpareOwnerTx refuses a mutation that would leave the entity without
// an active owner. The count runs inside the mutating transaction so two
// concurrent removals cannot both observe a spare owner and commit.
func (s *service) ensureSpareOwnerTx(tx *gorm.DB, entityID uuid.UUID, msg string) error {
	count, err := s.repo.CountActiveWithRolesTx(tx, entityID, []enums.MemberRole{enums.MemberRoleOwner})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count owners")
	}
	if count <= 1 {
		return pkgerrors.New(pkgerrors.CodeInvariant, msg)
	}
	return nil
}

// roleTransitionRow builds the active replacement row for a role change.
// The roster never updates a role in place: the prior row is tombstoned and
// a fresh active membership with the target role is created in the same
// transaction, keeping the row history queryable.
func roleTransitionRow(prior *models.Membership, role enums.MemberRole, at time.Time) *models.Membership {
	return &models.Membership{
		EntityID:        prior.EntityID,
		UserID:          prior.UserID,
		Role:            role,
		Status:          enums.MembershipStatusActive,
		InvitedEmail:    prior.InvitedEmail,
		InvitedByUserID: prior.InvitedByUserID,
		AcceptedAt:      &at,
	}
}

func (s *service) ListMembers(ctx context.Context, actorID, entityID uuid.UUID) ([]*EntityMemberDTO, error) {
	if err := s.requireAdmin(ctx, entityID, actorID); err != nil {
		return nil, err
	}
	members, err := s.repo.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list entity members")
	}
	return members, nil
}

func (s *service) ListPendingInvites(ctx context.Context, actorID, entityID uuid.UUID) ([]*PendingInviteDTO, error) {
	if err := s.requireAdmin(ctx, entityID, actorID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListPendingByEntity(ctx, entityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending invites")
	}

	out := make([]*PendingInviteDTO, 0, len(rows))
	for _, row := range rows {
		email := ""
		if row.InvitedEmail != nil {
			email = *row.InvitedEmail
		}
		out = append(out, &PendingInviteDTO{
			MembershipID:    row.ID,
			EntityID:        row.EntityID,
			InvitedEmail:    email,
			Role:            row.Role,
			InvitedByUserID: row.InvitedByUserID,
			ExpiresAt:       row.InviteExpiresAt,
			CreatedAt:       row.CreatedAt,
		})
	}
	return out, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*MembershipWithEntity, error) {
	rows, err := s.repo.GetMembershipsForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list user memberships")
	}
	return rows, nil
}

// RemoveMember tombstones a membership and cascades away every explicit
// grant the member held in the entity. Removing the last owner is refused.
func (s *service) RemoveMember(ctx context.Context, actorID, entityID, membershipID uuid.UUID) error {
	if err := s.requireAdmin(ctx, entityID, actorID); err != nil {
		return err
	}

	membership, err := s.loadActiveMembership(ctx, entityID, membershipID)
	if err != nil {
		return err
	}

	if membership.Role == enums.MemberRoleOwner {
		if err := s.requireOwner(ctx, entityID, actorID); err != nil {
			return err
		}
	}

	removedAt := time.Now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.reloadActiveTx(tx, entityID, membership.ID)
		if err != nil {
			return err
		}
		if current.Role == enums.MemberRoleOwner {
			if err := s.ensureSpareOwnerTx(tx, entityID, "cannot remove the last owner"); err != nil {
				return err
			}
		}
		revoked, err := s.grants.DeleteAllForUserTx(tx, entityID, *current.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke grants")
		}
		if err := s.repo.MarkRemovedTx(tx, current.ID, removedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove membership")
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMemberRemoved,
			AggregateType: enums.AggregateMembership,
			AggregateID:   current.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, EntityID: &entityID},
			Data: payloads.MemberRemovedEvent{
				MembershipID:    current.ID,
				EntityID:        entityID,
				UserID:          *current.UserID,
				Role:            current.Role,
				RemovedByUserID: &actorID,
				GrantsRevoked:   int(revoked),
				RemovedAt:       removedAt,
			},
			Version: 1,
		})
	})
	if err != nil {
		return err
	}
	s.invalidateUser(*membership.UserID)
	return nil
}

// PromoteToOwner elevates an active member or manager to owner. Explicit
// grants become redundant under owner access and are cleared so a later
// demotion starts from a clean slate.
func (s *service) PromoteToOwner(ctx context.Context, actorID, entityID, membershipID uuid.UUID) (*MembershipDTO, error) {
	if err := s.requireOwner(ctx, entityID, actorID); err != nil {
		return nil, err
	}

	membership, err := s.loadActiveMembership(ctx, entityID, membershipID)
	if err != nil {
		return nil, err
	}
	if membership.Role == enums.MemberRoleOwner {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "membership already holds the owner role")
	}

	transitionAt := time.Now().UTC()
	var promoted *models.Membership
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.reloadActiveTx(tx, entityID, membership.ID)
		if err != nil {
			return err
		}
		if current.Role == enums.MemberRoleOwner {
			return pkgerrors.New(pkgerrors.CodeConflict, "membership already holds the owner role")
		}
		if _, err := s.grants.DeleteAllForUserTx(tx, entityID, *current.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear grants")
		}
		if err := s.repo.MarkRemovedTx(tx, current.ID, transitionAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire membership")
		}
		promoted = roleTransitionRow(current, enums.MemberRoleOwner, transitionAt)
		if err := s.repo.CreateTx(tx, promoted); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create owner membership")
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMemberPromoted,
			AggregateType: enums.AggregateMembership,
			AggregateID:   promoted.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, EntityID: &entityID},
			Data: payloads.MemberPromotedEvent{
				MembershipID: promoted.ID,
				EntityID:     entityID,
				UserID:       *current.UserID,
				PriorRole:    current.Role,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateUser(*membership.UserID)
	return ToDTO(promoted), nil
}

// DemoteOwnerToMember moves an owner down to the member role. The demoted
// user's grant set is reset, not merged: whatever they held before is
// deleted and replaced with a wildcard folder grant per listed project.
func (s *service) DemoteOwnerToMember(ctx context.Context, actorID, entityID, membershipID uuid.UUID, projectIDs []uuid.UUID) (*MembershipDTO, error) {
	if err := s.requireOwner(ctx, entityID, actorID); err != nil {
		return nil, err
	}

	membership, err := s.loadActiveMembership(ctx, entityID, membershipID)
	if err != nil {
		return nil, err
	}
	if membership.Role != enums.MemberRoleOwner {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "membership does not hold the owner role")
	}

	grants := WildcardGrants(entityID, *membership.UserID, actorID, projectIDs)
	transitionAt := time.Now().UTC()
	var demoted *models.Membership
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.reloadActiveTx(tx, entityID, membership.ID)
		if err != nil {
			return err
		}
		if current.Role != enums.MemberRoleOwner {
			return pkgerrors.New(pkgerrors.CodeConflict, "membership does not hold the owner role")
		}
		if err := s.ensureSpareOwnerTx(tx, entityID, "cannot demote the last owner"); err != nil {
			return err
		}
		if _, err := s.grants.DeleteAllForUserTx(tx, entityID, *current.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset grants")
		}
		if err := s.repo.MarkRemovedTx(tx, current.ID, transitionAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire membership")
		}
		demoted = roleTransitionRow(current, enums.MemberRoleMember, transitionAt)
		if err := s.repo.CreateTx(tx, demoted); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create member membership")
		}
		if len(grants) > 0 {
			if err := s.grants.CreateManyTx(tx, grants); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create grants")
			}
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMemberDemoted,
			AggregateType: enums.AggregateMembership,
			AggregateID:   demoted.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, EntityID: &entityID},
			Data: payloads.MemberDemotedEvent{
				MembershipID:  demoted.ID,
				EntityID:      entityID,
				UserID:        *current.UserID,
				GrantsCreated: len(grants),
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateUser(*membership.UserID)
	return ToDTO(demoted), nil
}

// RemoveAndReinviteMember performs a role change the only way the roster
// allows one: issue a fresh invitation with the new role, then remove the
// existing membership. Both halves commit together so the user is never
// left without a path back into the entity.
func (s *service) RemoveAndReinviteMember(ctx context.Context, actorID, entityID, membershipID uuid.UUID, newRole enums.MemberRole, projectIDs []uuid.UUID) (*MembershipDTO, error) {
	if err := s.requireAdmin(ctx, entityID, actorID); err != nil {
		return nil, err
	}
	if !newRole.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if newRole == enums.MemberRoleOwner {
		if err := s.requireOwner(ctx, entityID, actorID); err != nil {
			return nil, err
		}
	}

	membership, err := s.loadActiveMembership(ctx, entityID, membershipID)
	if err != nil {
		return nil, err
	}
	if membership.Role == newRole {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "membership already holds that role")
	}

	if membership.Role == enums.MemberRoleOwner {
		if err := s.requireOwner(ctx, entityID, actorID); err != nil {
			return nil, err
		}
	}

	if membership.InvitedEmail == nil || strings.TrimSpace(*membership.InvitedEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "membership has no invite email on record")
	}
	email := strings.ToLower(strings.TrimSpace(*membership.InvitedEmail))

	token, err := security.GenerateInviteToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate invite token")
	}
	expiresAt := time.Now().UTC().Add(s.inviteCfg.TokenTTL)

	snapshot := projectIDs
	if newRole != enums.MemberRoleMember {
		// Only member-role invites carry a project snapshot.
		snapshot = nil
	}

	reinvite := &models.Membership{
		EntityID:        entityID,
		Role:            newRole,
		Status:          enums.MembershipStatusPending,
		InvitedEmail:    &email,
		InviteToken:     &token,
		InviteExpiresAt: &expiresAt,
		InvitedByUserID: &actorID,
		GrantProjectIDs: dbtypes.UUIDArray(snapshot),
	}

	removedAt := time.Now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.reloadActiveTx(tx, entityID, membership.ID)
		if err != nil {
			return err
		}
		if current.Role == enums.MemberRoleOwner {
			if err := s.ensureSpareOwnerTx(tx, entityID, "cannot remove the last owner"); err != nil {
				return err
			}
		}
		if err := s.repo.CreateTx(tx, reinvite); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reinvite")
		}
		revoked, err := s.grants.DeleteAllForUserTx(tx, entityID, *current.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke grants")
		}
		if err := s.repo.MarkRemovedTx(tx, current.ID, removedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove membership")
		}

		actor := &outbox.ActorRef{UserID: actorID, EntityID: &entityID}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInviteCreated,
			AggregateType: enums.AggregateInvite,
			AggregateID:   reinvite.ID,
			Actor:         actor,
			Data: payloads.InviteCreatedEvent{
				MembershipID:    reinvite.ID,
				EntityID:        entityID,
				InvitedEmail:    email,
				Role:            newRole,
				InvitedByUserID: actorID,
				ExpiresAt:       expiresAt,
			},
			Version: 1,
		}); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMemberRemoved,
			AggregateType: enums.AggregateMembership,
			AggregateID:   membership.ID,
			Actor:         actor,
			Data: payloads.MemberRemovedEvent{
				MembershipID:    membership.ID,
				EntityID:        entityID,
				UserID:          *membership.UserID,
				Role:            membership.Role,
				RemovedByUserID: &actorID,
				GrantsRevoked:   int(revoked),
				ReinviteIssued:  true,
				RemovedAt:       removedAt,
			},
			Version: 1,
		}); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateInvite,
			AggregateID:   reinvite.ID,
			Actor:         actor,
			Data: payloads.NotificationRequestedEvent{
				EntityID:   entityID,
				Recipient:  email,
				Type:       "invite_email",
				AcceptLink: fmt.Sprintf("%s?token=%s", s.inviteCfg.AcceptBaseURL, token),
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateUser(*membership.UserID)
	return ToDTO(reinvite), nil
}

// WildcardGrants builds the folder grant rows that give a member full
// access to each listed project.
func WildcardGrants(entityID, userID, grantedBy uuid.UUID, projectIDs []uuid.UUID) []*models.Grant {
	grants := make([]*models.Grant, 0, len(projectIDs))
	for _, projectID := range projectIDs {
		grants = append(grants, &models.Grant{
			EntityID:        entityID,
			ProjectID:       projectID,
			UserID:          userID,
			Path:            "*",
			Kind:            enums.GrantKindFolder,
			GrantedByUserID: &grantedBy,
		})
	}
	return grants
}
