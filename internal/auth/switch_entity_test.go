package auth

import (
	"context"
	"testing"
	"time"

	pkgAuth "github.com/paramvora-capmatch/capmatch-backend/pkg/auth"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type stubSwitchMemberships struct {
	membership *models.Membership
	err        error
}

func (s stubSwitchMemberships) GetActiveByUser(ctx context.Context, entityID, userID uuid.UUID) (*models.Membership, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.membership, nil
}

type stubSwitchEntities struct {
	entity      *models.Entity
	lastActive  *uuid.UUID
	lastActErr  error
	findByIDErr error
}

func (s *stubSwitchEntities) FindByID(ctx context.Context, id uuid.UUID) (*models.Entity, error) {
	if s.findByIDErr != nil {
		return nil, s.findByIDErr
	}
	return s.entity, nil
}

func (s *stubSwitchEntities) UpdateLastActiveAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.lastActErr != nil {
		return s.lastActErr
	}
	s.lastActive = &id
	return nil
}

type stubSwitchSession struct{}

func (stubSwitchSession) RefreshToken(ctx context.Context, accessID string) (string, error) {
	return "refresh", nil
}

func (stubSwitchSession) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error) {
	return "new-access-id", "new-refresh", nil
}

func TestSwitchEntityIssuesScopedToken(t *testing.T) {
	userID := uuid.New()
	entityID := uuid.New()
	entityRepo := &stubSwitchEntities{
		entity: &models.Entity{ID: entityID, Name: "Acme Capital", Type: enums.EntityTypeAdvisor},
	}
	svc, err := NewSwitchEntityService(SwitchEntityServiceParams{
		MembershipsRepo: stubSwitchMemberships{membership: &models.Membership{
			EntityID: entityID,
			UserID:   &userID,
			Role:     enums.MemberRoleManager,
			Status:   enums.MembershipStatusActive,
		}},
		EntityRepo:     entityRepo,
		SessionManager: stubSwitchSession{},
		JWTConfig:      testJWTConfig(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.Switch(context.Background(), SwitchEntityInput{
		UserID:        userID,
		EntityID:      entityID,
		AccessTokenID: "old-access-id",
	})
	if err != nil {
		t.Fatalf("switch: %v", err)
	}

	if result.Entity.ID != entityID || result.Entity.Name != "Acme Capital" {
		t.Fatalf("unexpected entity summary %+v", result.Entity)
	}
	if result.RefreshToken != "new-refresh" {
		t.Fatalf("expected rotated refresh token")
	}
	if entityRepo.lastActive == nil || *entityRepo.lastActive != entityID {
		t.Fatalf("expected last_active_at update for entity")
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig(), result.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.ActiveEntityID == nil || *claims.ActiveEntityID != entityID {
		t.Fatalf("expected active entity claim %s", entityID)
	}
	if claims.Role != enums.MemberRoleManager {
		t.Fatalf("expected manager role, got %s", claims.Role)
	}
	if claims.EntityType == nil || *claims.EntityType != enums.EntityTypeAdvisor {
		t.Fatalf("expected advisor entity type, got %v", claims.EntityType)
	}
}

func TestSwitchEntityRequiresMembership(t *testing.T) {
	svc, err := NewSwitchEntityService(SwitchEntityServiceParams{
		MembershipsRepo: stubSwitchMemberships{err: gorm.ErrRecordNotFound},
		EntityRepo:      &stubSwitchEntities{},
		SessionManager:  stubSwitchSession{},
		JWTConfig:       testJWTConfig(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Switch(context.Background(), SwitchEntityInput{
		UserID:        uuid.New(),
		EntityID:      uuid.New(),
		AccessTokenID: "old-access-id",
	})
	if pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSwitchEntityRejectsInactiveMembership(t *testing.T) {
	entityID := uuid.New()
	svc, err := NewSwitchEntityService(SwitchEntityServiceParams{
		MembershipsRepo: stubSwitchMemberships{membership: &models.Membership{
			EntityID: entityID,
			Role:     enums.MemberRoleMember,
			Status:   enums.MembershipStatusRemoved,
		}},
		EntityRepo:     &stubSwitchEntities{},
		SessionManager: stubSwitchSession{},
		JWTConfig:      testJWTConfig(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Switch(context.Background(), SwitchEntityInput{
		UserID:        uuid.New(),
		EntityID:      entityID,
		AccessTokenID: "old-access-id",
	})
	if pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for removed membership, got %v", err)
	}
}
