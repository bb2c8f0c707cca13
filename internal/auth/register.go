package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/paramvora-capmatch/capmatch-backend/internal/entities"
	"github.com/paramvora-capmatch/capmatch-backend/internal/memberships"
	"github.com/paramvora-capmatch/capmatch-backend/internal/users"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/config"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RegisterRequest contains the payload required for onboarding a new
// entity and its founding owner.
type RegisterRequest struct {
	FirstName   string           `json:"first_name" validate:"required"`
	LastName    string           `json:"last_name" validate:"required"`
	Email       string           `json:"email" validate:"required,email"`
	Password    string           `json:"password" validate:"required"`
	Phone       *string          `json:"phone,omitempty"`
	CompanyName string           `json:"company_name" validate:"required"`
	EntityType  enums.EntityType `json:"entity_type" validate:"required"`
	Website     *string          `json:"website,omitempty"`
	AcceptTOS   bool             `json:"accept_tos"`
}

// RegisterService handles the onboarding transaction.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) error
}

type registerUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	UpdateEntityIDsTx(tx *gorm.DB, id uuid.UUID, entityIDs []uuid.UUID) error
}

type registerEntityRepository interface {
	CreateTx(tx *gorm.DB, dto entities.CreateEntityDTO) (*models.Entity, error)
}

type registerMembershipRepository interface {
	CreateTx(tx *gorm.DB, m *models.Membership) error
}

type registerTxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type registerEventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
// Repositories are built per transaction so every write shares the tx.
type RegisterServiceParams struct {
	TxRunner              registerTxRunner
	Outbox                registerEventEmitter
	PasswordConfig        config.PasswordConfig
	UserRepoFactory       func(tx *gorm.DB) registerUserRepository
	EntityRepoFactory     func(tx *gorm.DB) registerEntityRepository
	MembershipRepoFactory func(tx *gorm.DB) registerMembershipRepository
}

type registerService struct {
	tx          registerTxRunner
	outbox      registerEventEmitter
	passwordCfg config.PasswordConfig
	userRepo    func(tx *gorm.DB) registerUserRepository
	entityRepo  func(tx *gorm.DB) registerEntityRepository
	memberRepo  func(tx *gorm.DB) registerMembershipRepository
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox required")
	}
	svc := &registerService{
		tx:          params.TxRunner,
		outbox:      params.Outbox,
		passwordCfg: params.PasswordConfig,
		userRepo:    params.UserRepoFactory,
		entityRepo:  params.EntityRepoFactory,
		memberRepo:  params.MembershipRepoFactory,
	}
	if svc.userRepo == nil {
		svc.userRepo = func(tx *gorm.DB) registerUserRepository { return users.NewRepository(tx) }
	}
	if svc.entityRepo == nil {
		svc.entityRepo = func(tx *gorm.DB) registerEntityRepository { return entities.NewRepository(tx) }
	}
	if svc.memberRepo == nil {
		svc.memberRepo = func(tx *gorm.DB) registerMembershipRepository { return memberships.NewRepo(tx) }
	}
	return svc, nil
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) error {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	companyName := strings.TrimSpace(req.CompanyName)
	if companyName == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "company_name is required")
	}
	if !req.EntityType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid entity type")
	}
	if !req.AcceptTOS {
		return pkgerrors.New(pkgerrors.CodeValidation, "accept_tos must be true")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.userRepo(tx)
		entityRepo := s.entityRepo(tx)
		memberRepo := s.memberRepo(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Phone:        req.Phone,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}

		entity, err := entityRepo.CreateTx(tx, entities.CreateEntityDTO{
			Type:    req.EntityType,
			Name:    companyName,
			Website: req.Website,
			OwnerID: user.ID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create entity")
		}

		now := time.Now().UTC()
		membership := &models.Membership{
			EntityID:     entity.ID,
			UserID:       &user.ID,
			Role:         enums.MemberRoleOwner,
			Status:       enums.MembershipStatusActive,
			InvitedEmail: &user.Email,
			AcceptedAt:   &now,
		}
		if err := memberRepo.CreateTx(tx, membership); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create membership")
		}

		if err := userRepo.UpdateEntityIDsTx(tx, user.ID, []uuid.UUID{entity.ID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "associate entity with user")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEntityCreated,
			AggregateType: enums.AggregateEntity,
			AggregateID:   entity.ID,
			Actor: &outbox.ActorRef{
				UserID:   user.ID,
				EntityID: &entity.ID,
				Role:     string(enums.MemberRoleOwner),
			},
			Data: map[string]any{
				"entity_id":   entity.ID,
				"entity_type": entity.Type,
				"name":        entity.Name,
				"owner_id":    user.ID,
			},
		})
	})
}
