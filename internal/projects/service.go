package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
)

var projectAdminRoles = []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleManager}
var projectReadRoles = []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleManager, enums.MemberRoleMember}

type projectRepository interface {
	Create(ctx context.Context, p *models.Project) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	Archive(ctx context.Context, id uuid.UUID, at time.Time) error
}

type roleChecker interface {
	UserHasRole(ctx context.Context, entityID, userID uuid.UUID, roles []enums.MemberRole) (bool, error)
}

// Service exposes project CRUD scoped to an entity.
type Service interface {
	Create(ctx context.Context, actorID, entityID uuid.UUID, input CreateProjectInput) (*ProjectDTO, error)
	GetByID(ctx context.Context, actorID, entityID, projectID uuid.UUID) (*ProjectDTO, error)
	ListByEntity(ctx context.Context, actorID, entityID uuid.UUID) ([]*ProjectDTO, error)
	Update(ctx context.Context, actorID, entityID, projectID uuid.UUID, input UpdateProjectInput) (*ProjectDTO, error)
	Archive(ctx context.Context, actorID, entityID, projectID uuid.UUID) error
}

type service struct {
	repo        projectRepository
	memberships roleChecker
}

// NewService builds a project service.
func NewService(repo projectRepository, memberships roleChecker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("project repository required")
	}
	if memberships == nil {
		return nil, fmt.Errorf("memberships repository required")
	}
	return &service{repo: repo, memberships: memberships}, nil
}

func (s *service) requireRole(ctx context.Context, entityID, actorID uuid.UUID, roles []enums.MemberRole) error {
	ok, err := s.memberships.UserHasRole(ctx, entityID, actorID, roles)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient entity role")
	}
	return nil
}

func (s *service) loadScoped(ctx context.Context, entityID, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.repo.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	if project.EntityID != entityID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	return project, nil
}

func (s *service) Create(ctx context.Context, actorID, entityID uuid.UUID, input CreateProjectInput) (*ProjectDTO, error) {
	if err := s.requireRole(ctx, entityID, actorID, projectAdminRoles); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project name is required")
	}
	if input.TargetAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target amount cannot be negative")
	}

	project := &models.Project{
		EntityID:     entityID,
		Name:         name,
		Description:  input.Description,
		Status:       enums.ProjectStatusDraft,
		TargetAmount: input.TargetAmount,
		CreatedByID:  actorID,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create project")
	}
	return FromModel(project), nil
}

func (s *service) GetByID(ctx context.Context, actorID, entityID, projectID uuid.UUID) (*ProjectDTO, error) {
	if err := s.requireRole(ctx, entityID, actorID, projectReadRoles); err != nil {
		return nil, err
	}
	project, err := s.loadScoped(ctx, entityID, projectID)
	if err != nil {
		return nil, err
	}
	return FromModel(project), nil
}

func (s *service) ListByEntity(ctx context.Context, actorID, entityID uuid.UUID) ([]*ProjectDTO, error) {
	if err := s.requireRole(ctx, entityID, actorID, projectReadRoles); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list projects")
	}
	return FromModels(rows), nil
}

func (s *service) Update(ctx context.Context, actorID, entityID, projectID uuid.UUID, input UpdateProjectInput) (*ProjectDTO, error) {
	if err := s.requireRole(ctx, entityID, actorID, projectAdminRoles); err != nil {
		return nil, err
	}
	project, err := s.loadScoped(ctx, entityID, projectID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "project name cannot be empty")
		}
		project.Name = name
	}
	if input.Description != nil {
		desc := *input.Description
		project.Description = &desc
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid project status")
		}
		project.Status = *input.Status
	}
	if input.TargetAmount != nil {
		if input.TargetAmount.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "target amount cannot be negative")
		}
		project.TargetAmount = *input.TargetAmount
	}

	if err := s.repo.Update(ctx, project); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update project")
	}
	return FromModel(project), nil
}

func (s *service) Archive(ctx context.Context, actorID, entityID, projectID uuid.UUID) error {
	if err := s.requireRole(ctx, entityID, actorID, projectAdminRoles); err != nil {
		return err
	}
	project, err := s.loadScoped(ctx, entityID, projectID)
	if err != nil {
		return err
	}
	if project.ArchivedAt != nil {
		return nil
	}
	if err := s.repo.Archive(ctx, project.ID, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive project")
	}
	return nil
}
