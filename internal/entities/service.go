package entities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/internal/memberships"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox/payloads"
)

type entityRepository interface {
	CreateTx(tx *gorm.DB, dto CreateEntityDTO) (*models.Entity, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Entity, error)
	Update(ctx context.Context, entity *models.Entity) error
}

type membershipRepository interface {
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*memberships.EntityMemberDTO, error)
	ListPendingByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.Membership, error)
	GetActiveByUser(ctx context.Context, entityID, userID uuid.UUID) (*models.Membership, error)
	UserHasRole(ctx context.Context, entityID, userID uuid.UUID, roles []enums.MemberRole) (bool, error)
	CreateTx(tx *gorm.DB, m *models.Membership) error
}

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateEntityIDsTx(tx *gorm.DB, id uuid.UUID, entityIDs []uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CreateEntityInput captures the fields accepted when founding an entity.
type CreateEntityInput struct {
	Type        enums.EntityType `json:"type"`
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Website     *string          `json:"website,omitempty"`
	Phone       *string          `json:"phone,omitempty"`
	Email       *string          `json:"email,omitempty"`
}

// UpdateEntityInput carries optional entity mutations.
type UpdateEntityInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Website     *string `json:"website,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty"`
}

// Service exposes entity operations.
type Service interface {
	Create(ctx context.Context, founderID uuid.UUID, input CreateEntityInput) (*EntityDTO, error)
	GetByID(ctx context.Context, id uuid.UUID) (*EntityDTO, error)
	Update(ctx context.Context, actorID, entityID uuid.UUID, input UpdateEntityInput) (*EntityDTO, error)
	LoadEntity(ctx context.Context, actorID, entityID uuid.UUID) (*EntityRosterDTO, error)
}

type service struct {
	repo        entityRepository
	memberships membershipRepository
	users       userRepository
	db          txRunner
	events      eventEmitter
}

// NewService builds an entity service with the provided dependencies.
func NewService(repo entityRepository, membershipsRepo membershipRepository, usersRepo userRepository, db txRunner, events eventEmitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("entity repository required")
	}
	if membershipsRepo == nil {
		return nil, fmt.Errorf("memberships repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	return &service{
		repo:        repo,
		memberships: membershipsRepo,
		users:       usersRepo,
		db:          db,
		events:      events,
	}, nil
}

// Create founds a new entity. The founding user becomes its sole initial
// owner membership in the same transaction.
func (s *service) Create(ctx context.Context, founderID uuid.UUID, input CreateEntityInput) (*EntityDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity name is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid entity type")
	}

	founder, err := s.users.FindByID(ctx, founderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	var entity *models.Entity
	now := time.Now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		entity, err = s.repo.CreateTx(tx, CreateEntityDTO{
			Type:        input.Type,
			Name:        name,
			Description: input.Description,
			Website:     input.Website,
			Phone:       input.Phone,
			Email:       input.Email,
			OwnerID:     founderID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create entity")
		}

		email := founder.Email
		membership := &models.Membership{
			EntityID:     entity.ID,
			UserID:       &founderID,
			Role:         enums.MemberRoleOwner,
			Status:       enums.MembershipStatusActive,
			InvitedEmail: &email,
			AcceptedAt:   &now,
		}
		if err := s.memberships.CreateTx(tx, membership); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create owner membership")
		}

		entityIDs := append([]uuid.UUID(nil), []uuid.UUID(founder.EntityIDs)...)
		entityIDs = append(entityIDs, entity.ID)
		if err := s.users.UpdateEntityIDsTx(tx, founderID, entityIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user entities")
		}

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEntityCreated,
			AggregateType: enums.AggregateEntity,
			AggregateID:   entity.ID,
			Actor:         &outbox.ActorRef{UserID: founderID, EntityID: &entity.ID, Role: string(enums.MemberRoleOwner)},
			Data: payloads.EntityCreatedEvent{
				EntityID:   entity.ID,
				EntityType: input.Type,
				OwnerID:    founderID,
				Name:       name,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return FromModel(entity), nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*EntityDTO, error) {
	entity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entity")
	}
	return FromModel(entity), nil
}

func (s *service) Update(ctx context.Context, actorID, entityID uuid.UUID, input UpdateEntityInput) (*EntityDTO, error) {
	allowed := []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleManager}
	ok, err := s.memberships.UserHasRole(ctx, entityID, actorID, allowed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient entity role")
	}

	entity, err := s.repo.FindByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entity")
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity name cannot be empty")
		}
		entity.Name = name
	}
	if input.Description != nil {
		entity.Description = cloneStringPtr(input.Description)
	}
	if input.Website != nil {
		entity.Website = cloneStringPtr(input.Website)
	}
	if input.Phone != nil {
		entity.Phone = cloneStringPtr(input.Phone)
	}
	if input.Email != nil {
		entity.Email = cloneStringPtr(input.Email)
	}

	if err := s.repo.Update(ctx, entity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update entity")
	}
	return FromModel(entity), nil
}

// LoadEntity returns the entity together with its roster. Callers without
// an administrative role get the entity and empty collections rather than
// an error.
func (s *service) LoadEntity(ctx context.Context, actorID, entityID uuid.UUID) (*EntityRosterDTO, error) {
	entity, err := s.repo.FindByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entity")
	}

	roster := &EntityRosterDTO{
		Entity:         *FromModel(entity),
		Members:        []*memberships.EntityMemberDTO{},
		PendingInvites: []*memberships.PendingInviteDTO{},
	}

	caller, err := s.memberships.GetActiveByUser(ctx, entityID, actorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return roster, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	roster.CallerIsOwner = caller.Role == enums.MemberRoleOwner

	members, err := s.memberships.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	roster.Members = members

	if caller.Role == enums.MemberRoleOwner || caller.Role == enums.MemberRoleManager {
		pending, err := s.memberships.ListPendingByEntity(ctx, entityID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending invites")
		}
		for _, row := range pending {
			email := ""
			if row.InvitedEmail != nil {
				email = *row.InvitedEmail
			}
			roster.PendingInvites = append(roster.PendingInvites, &memberships.PendingInviteDTO{
				MembershipID:    row.ID,
				EntityID:        row.EntityID,
				InvitedEmail:    email,
				Role:            row.Role,
				InvitedByUserID: row.InvitedByUserID,
				ExpiresAt:       row.InviteExpiresAt,
				CreatedAt:       row.CreatedAt,
			})
		}
	}
	return roster, nil
}

func cloneStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
