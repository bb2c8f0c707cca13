package auth

import (
	"context"
	"errors"
	"time"

	pkgAuth "github.com/paramvora-capmatch/capmatch-backend/pkg/auth"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/auth/session"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/config"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SwitchEntityInput captures the data required to switch the active entity.
type SwitchEntityInput struct {
	UserID        uuid.UUID
	EntityID      uuid.UUID
	AccessTokenID string
}

// SwitchEntityResult returns the tokens issued after switching entities.
type SwitchEntityResult struct {
	AccessToken  string
	RefreshToken string
	Entity       EntitySummary
}

type switchMembershipsRepository interface {
	GetActiveByUser(ctx context.Context, entityID, userID uuid.UUID) (*models.Membership, error)
}

type switchEntityRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Entity, error)
	UpdateLastActiveAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

type switchSessionRotator interface {
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	RefreshToken(ctx context.Context, accessID string) (string, error)
}

type switchEntityService struct {
	memberships switchMembershipsRepository
	entities    switchEntityRepository
	session     switchSessionRotator
	jwtCfg      config.JWTConfig
}

// SwitchEntityServiceParams bundles dependencies for the switch flow.
type SwitchEntityServiceParams struct {
	MembershipsRepo switchMembershipsRepository
	EntityRepo      switchEntityRepository
	SessionManager  switchSessionRotator
	JWTConfig       config.JWTConfig
}

// NewSwitchEntityService constructs the service.
func NewSwitchEntityService(params SwitchEntityServiceParams) (SwitchEntityService, error) {
	if params.MembershipsRepo == nil {
		return nil, errors.New("memberships repository required")
	}
	if params.EntityRepo == nil {
		return nil, errors.New("entity repository required")
	}
	if params.SessionManager == nil {
		return nil, errors.New("session manager required")
	}
	return &switchEntityService{
		memberships: params.MembershipsRepo,
		entities:    params.EntityRepo,
		session:     params.SessionManager,
		jwtCfg:      params.JWTConfig,
	}, nil
}

// SwitchEntityService is the interface exposed to the controller.
type SwitchEntityService interface {
	Switch(ctx context.Context, input SwitchEntityInput) (*SwitchEntityResult, error)
}

func (s *switchEntityService) Switch(ctx context.Context, input SwitchEntityInput) (*SwitchEntityResult, error) {
	membership, err := s.memberships.GetActiveByUser(ctx, input.EntityID, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "entity membership required")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup membership")
	}
	if membership.Status != enums.MembershipStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "entity membership inactive")
	}

	entity, err := s.entities.FindByID(ctx, input.EntityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup entity")
	}

	if err := s.entities.UpdateLastActiveAt(ctx, entity.ID, time.Now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update entity last active")
	}

	refreshToken, err := s.session.RefreshToken(ctx, input.AccessTokenID)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load refresh token")
	}

	newAccessID, newRefreshToken, err := s.session.Rotate(ctx, input.AccessTokenID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rotate session")
	}

	entityType := entity.Type
	payload := pkgAuth.AccessTokenPayload{
		UserID:         input.UserID,
		ActiveEntityID: &input.EntityID,
		Role:           membership.Role,
		EntityType:     &entityType,
		JTI:            newAccessID,
	}

	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, time.Now().UTC(), payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}

	return &SwitchEntityResult{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		Entity: EntitySummary{
			ID:   entity.ID,
			Name: entity.Name,
			Type: entity.Type,
		},
	}, nil
}
