package auth

import (
	"context"
	"testing"

	"github.com/paramvora-capmatch/capmatch-backend/internal/entities"
	"github.com/paramvora-capmatch/capmatch-backend/internal/users"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/config"
	pkgmodels "github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type stubRegisterTxRunner struct{}

func (s stubRegisterTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubRegisterEmitter struct {
	events []outbox.DomainEvent
}

func (s *stubRegisterEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubRegisterUserRepo struct {
	data      map[string]*pkgmodels.User
	created   *pkgmodels.User
	entityIDs []uuid.UUID
	createErr error
}

func newStubRegisterUserRepo() *stubRegisterUserRepo {
	return &stubRegisterUserRepo{data: map[string]*pkgmodels.User{}}
}

func (s *stubRegisterUserRepo) FindByEmail(ctx context.Context, email string) (*pkgmodels.User, error) {
	if user, ok := s.data[email]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRegisterUserRepo) Create(ctx context.Context, dto users.CreateUserDTO) (*pkgmodels.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	user := &pkgmodels.User{
		ID:           uuid.New(),
		Email:        dto.Email,
		FirstName:    dto.FirstName,
		LastName:     dto.LastName,
		PasswordHash: dto.PasswordHash,
		Phone:        dto.Phone,
		IsActive:     true,
	}
	s.data[dto.Email] = user
	s.created = user
	return user, nil
}

func (s *stubRegisterUserRepo) UpdateEntityIDsTx(tx *gorm.DB, id uuid.UUID, entityIDs []uuid.UUID) error {
	s.entityIDs = entityIDs
	return nil
}

type stubRegisterEntityRepo struct {
	created *pkgmodels.Entity
}

func (s *stubRegisterEntityRepo) CreateTx(tx *gorm.DB, dto entities.CreateEntityDTO) (*pkgmodels.Entity, error) {
	entity := dto.ToModel()
	entity.ID = uuid.New()
	s.created = entity
	return entity, nil
}

type stubRegisterMembershipRepo struct {
	created *pkgmodels.Membership
	err     error
}

func (s *stubRegisterMembershipRepo) CreateTx(tx *gorm.DB, m *pkgmodels.Membership) error {
	if s.err != nil {
		return s.err
	}
	m.ID = uuid.New()
	s.created = m
	return nil
}

type registerTestSetup struct {
	service    RegisterService
	userRepo   *stubRegisterUserRepo
	entityRepo *stubRegisterEntityRepo
	memberRepo *stubRegisterMembershipRepo
	emitter    *stubRegisterEmitter
}

func newRegisterTestSetup(t *testing.T) *registerTestSetup {
	t.Helper()
	userRepo := newStubRegisterUserRepo()
	entityRepo := &stubRegisterEntityRepo{}
	memberRepo := &stubRegisterMembershipRepo{}
	emitter := &stubRegisterEmitter{}
	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner:       stubRegisterTxRunner{},
		Outbox:         emitter,
		PasswordConfig: config.PasswordConfig{},
		UserRepoFactory: func(tx *gorm.DB) registerUserRepository {
			return userRepo
		},
		EntityRepoFactory: func(tx *gorm.DB) registerEntityRepository {
			return entityRepo
		},
		MembershipRepoFactory: func(tx *gorm.DB) registerMembershipRepository {
			return memberRepo
		},
	})
	if err != nil {
		t.Fatalf("new register service: %v", err)
	}
	return &registerTestSetup{
		service:    svc,
		userRepo:   userRepo,
		entityRepo: entityRepo,
		memberRepo: memberRepo,
		emitter:    emitter,
	}
}

func validRegisterRequest() RegisterRequest {
	return RegisterRequest{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "Ada@Example.com",
		Password:    "strong-password",
		CompanyName: "Acme Capital",
		EntityType:  enums.EntityTypeBorrower,
		AcceptTOS:   true,
	}
}

func TestRegisterCreatesFoundingOwner(t *testing.T) {
	setup := newRegisterTestSetup(t)

	if err := setup.service.Register(context.Background(), validRegisterRequest()); err != nil {
		t.Fatalf("register: %v", err)
	}

	user := setup.userRepo.created
	if user == nil {
		t.Fatalf("expected user to be created")
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}
	valid, err := security.VerifyPassword("strong-password", user.PasswordHash)
	if err != nil || !valid {
		t.Fatalf("expected stored hash to verify, valid=%v err=%v", valid, err)
	}

	entity := setup.entityRepo.created
	if entity == nil {
		t.Fatalf("expected entity to be created")
	}
	if entity.Name != "Acme Capital" || entity.Type != enums.EntityTypeBorrower {
		t.Fatalf("unexpected entity %+v", entity)
	}
	if entity.OwnerID != user.ID {
		t.Fatalf("expected entity owner %s, got %s", user.ID, entity.OwnerID)
	}

	membership := setup.memberRepo.created
	if membership == nil {
		t.Fatalf("expected membership to be created")
	}
	if membership.Role != enums.MemberRoleOwner || membership.Status != enums.MembershipStatusActive {
		t.Fatalf("expected active owner membership, got %s/%s", membership.Role, membership.Status)
	}
	if membership.UserID == nil || *membership.UserID != user.ID {
		t.Fatalf("expected membership bound to user")
	}
	if membership.AcceptedAt == nil {
		t.Fatalf("expected accepted_at to be stamped")
	}

	if len(setup.userRepo.entityIDs) != 1 || setup.userRepo.entityIDs[0] != entity.ID {
		t.Fatalf("expected entity id recorded on user, got %v", setup.userRepo.entityIDs)
	}

	if len(setup.emitter.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(setup.emitter.events))
	}
	if setup.emitter.events[0].EventType != enums.EventEntityCreated {
		t.Fatalf("expected entity_created event, got %s", setup.emitter.events[0].EventType)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	setup := newRegisterTestSetup(t)
	setup.userRepo.data["ada@example.com"] = &pkgmodels.User{ID: uuid.New(), Email: "ada@example.com"}

	err := setup.service.Register(context.Background(), validRegisterRequest())
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if setup.entityRepo.created != nil {
		t.Fatalf("expected no entity on duplicate email")
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	setup := newRegisterTestSetup(t)

	req := validRegisterRequest()
	req.EntityType = enums.EntityType("franchise")
	if err := setup.service.Register(context.Background(), req); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for entity type, got %v", err)
	}

	req = validRegisterRequest()
	req.AcceptTOS = false
	if err := setup.service.Register(context.Background(), req); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for tos, got %v", err)
	}

	req = validRegisterRequest()
	req.CompanyName = "   "
	if err := setup.service.Register(context.Background(), req); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for company name, got %v", err)
	}

	if setup.userRepo.created != nil {
		t.Fatalf("expected no user created by invalid requests")
	}
}

func TestRegisterMembershipFailureAborts(t *testing.T) {
	setup := newRegisterTestSetup(t)
	setup.memberRepo.err = gorm.ErrInvalidTransaction

	err := setup.service.Register(context.Background(), validRegisterRequest())
	if pkgerrors.As(err).Code() != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(setup.emitter.events) != 0 {
		t.Fatalf("expected no events when membership creation fails")
	}
}
