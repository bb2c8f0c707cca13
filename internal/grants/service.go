package grants

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox/payloads"
)

var grantAdminRoles = []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleManager}

type grantRepository interface {
	ListByProjectUser(ctx context.Context, projectID, userID uuid.UUID) ([]*models.Grant, error)
	ListByEntityUser(ctx context.Context, entityID, userID uuid.UUID) ([]*models.Grant, error)
	CreateManyTx(tx *gorm.DB, grants []*models.Grant) error
	DeleteForProjectUserTx(tx *gorm.DB, projectID, userID uuid.UUID) (int64, error)
	DeleteByPathsTx(tx *gorm.DB, projectID, userID uuid.UUID, paths []string) (int64, error)
}

type roleChecker interface {
	UserHasRole(ctx context.Context, entityID, userID uuid.UUID, roles []enums.MemberRole) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type cacheInvalidator interface {
	Invalidate(projectID, userID uuid.UUID)
}

// Service administers explicit grants: bulk granting and revoking document
// access for members on a project.
type Service interface {
	ListForProjectUser(ctx context.Context, actorID, entityID, projectID, userID uuid.UUID) ([]*GrantDTO, error)
	BulkGrant(ctx context.Context, actorID, entityID, projectID, targetUserID uuid.UUID, inputs []GrantInput) ([]*GrantDTO, error)
	BulkRevoke(ctx context.Context, actorID, entityID, projectID, targetUserID uuid.UUID, paths []string, all bool) (int64, error)
}

type service struct {
	repo        grantRepository
	memberships roleChecker
	db          txRunner
	events      eventEmitter
	cache       cacheInvalidator
}

// NewService builds a grant service. The cache invalidator may be nil when
// no resolver cache is in play.
func NewService(repo grantRepository, memberships roleChecker, db txRunner, events eventEmitter, cache cacheInvalidator) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("grant repository required")
	}
	if memberships == nil {
		return nil, fmt.Errorf("memberships repository required")
	}
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	return &service{
		repo:        repo,
		memberships: memberships,
		db:          db,
		events:      events,
		cache:       cache,
	}, nil
}

func (s *service) requireAdmin(ctx context.Context, entityID, actorID uuid.UUID) error {
	ok, err := s.memberships.UserHasRole(ctx, entityID, actorID, grantAdminRoles)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient entity role")
	}
	return nil
}

func (s *service) invalidate(projectID, userID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(projectID, userID)
	}
}

func (s *service) ListForProjectUser(ctx context.Context, actorID, entityID, projectID, userID uuid.UUID) ([]*GrantDTO, error) {
	if actorID != userID {
		if err := s.requireAdmin(ctx, entityID, actorID); err != nil {
			return nil, err
		}
	}
	rows, err := s.repo.ListByProjectUser(ctx, projectID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list grants")
	}
	return FromModels(rows), nil
}

// validateInputs checks every path up front so a bulk request fails whole,
// reporting each bad entry, before any row is written.
func validateInputs(inputs []GrantInput) error {
	var errs error
	for i, input := range inputs {
		path := strings.TrimSpace(input.Path)
		if path == "" {
			errs = multierr.Append(errs, fmt.Errorf("paths[%d]: path is required", i))
			continue
		}
		if !input.Kind.IsValid() {
			errs = multierr.Append(errs, fmt.Errorf("paths[%d]: invalid grant kind %q", i, input.Kind))
		}
		if path == WildcardPath && input.Kind != enums.GrantKindFolder {
			errs = multierr.Append(errs, fmt.Errorf("paths[%d]: wildcard grants must be folder-scoped", i))
		}
	}
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, errs, "invalid grant paths").
			WithDetails(map[string]any{"errors": multierrStrings(errs)})
	}
	return nil
}

func multierrStrings(err error) []string {
	flat := multierr.Errors(err)
	out := make([]string, 0, len(flat))
	for _, e := range flat {
		out = append(out, e.Error())
	}
	return out
}

// BulkGrant writes one grant row per input path, all inside a single
// transaction: either every path is granted or none are.
func (s *service) BulkGrant(ctx context.Context, actorID, entityID, projectID, targetUserID uuid.UUID, inputs []GrantInput) ([]*GrantDTO, error) {
	if err := s.requireAdmin(ctx, entityID, actorID); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one path is required")
	}
	if err := validateInputs(inputs); err != nil {
		return nil, err
	}

	rows := make([]*models.Grant, 0, len(inputs))
	paths := make([]string, 0, len(inputs))
	for _, input := range inputs {
		path := strings.TrimSpace(input.Path)
		paths = append(paths, path)
		rows = append(rows, &models.Grant{
			EntityID:        entityID,
			ProjectID:       projectID,
			UserID:          targetUserID,
			Path:            path,
			Kind:            input.Kind,
			GrantedByUserID: &actorID,
		})
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateManyTx(tx, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create grants")
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProjectAccessGranted,
			AggregateType: enums.AggregateGrant,
			AggregateID:   rows[0].ID,
			Actor:         &outbox.ActorRef{UserID: actorID, EntityID: &entityID},
			Data: payloads.ProjectAccessGrantedEvent{
				EntityID:  entityID,
				ProjectID: projectID,
				UserID:    targetUserID,
				Paths:     paths,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(projectID, targetUserID)
	return FromModels(rows), nil
}

// BulkRevoke deletes the named paths, or with all set, every grant the user
// holds in the project. A request naming paths that are not all present
// fails whole rather than partially applying.
func (s *service) BulkRevoke(ctx context.Context, actorID, entityID, projectID, targetUserID uuid.UUID, paths []string, all bool) (int64, error) {
	if err := s.requireAdmin(ctx, entityID, actorID); err != nil {
		return 0, err
	}
	if !all && len(paths) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "at least one path is required")
	}

	var revoked int64
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if all {
			revoked, err = s.repo.DeleteForProjectUserTx(tx, projectID, targetUserID)
		} else {
			revoked, err = s.repo.DeleteByPathsTx(tx, projectID, targetUserID, paths)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete grants")
		}
		if !all && revoked != int64(len(paths)) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "one or more grants not found").
				WithDetails(map[string]any{"requested": len(paths), "matched": revoked})
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProjectAccessRevoked,
			AggregateType: enums.AggregateGrant,
			AggregateID:   uuid.New(),
			Actor:         &outbox.ActorRef{UserID: actorID, EntityID: &entityID},
			Data: payloads.ProjectAccessRevokedEvent{
				EntityID:  entityID,
				ProjectID: projectID,
				UserID:    targetUserID,
				Paths:     paths,
				All:       all,
			},
			Version: 1,
		})
	})
	if err != nil {
		return 0, err
	}

	s.invalidate(projectID, targetUserID)
	return revoked, nil
}
