package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paramvora-capmatch/capmatch-backend/api/responses"
	"github.com/paramvora-capmatch/capmatch-backend/api/validators"
	"github.com/paramvora-capmatch/capmatch-backend/internal/projects"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/logger"
)

type projectCreateRequest struct {
	Name         string  `json:"name" validate:"required,min=1"`
	Description  *string `json:"description,omitempty"`
	TargetAmount string  `json:"target_amount" validate:"required"`
}

// ProjectCreate opens a new draft project under the active entity.
func ProjectCreate(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		userID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body projectCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(body.TargetAmount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target_amount"))
			return
		}

		created, err := svc.Create(r.Context(), userID, entityID, projects.CreateProjectInput{
			Name:         body.Name,
			Description:  body.Description,
			TargetAmount: amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// ProjectList returns the active entity's projects, unarchived first.
func ProjectList(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		userID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByEntity(r.Context(), userID, entityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// ProjectDetail returns a single project scoped to the active entity.
func ProjectDetail(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		userID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := pathUUID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		project, err := svc.GetByID(r.Context(), userID, entityID, projectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, project)
	}
}

type projectUpdateRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Description  *string `json:"description,omitempty"`
	Status       *string `json:"status,omitempty"`
	TargetAmount *string `json:"target_amount,omitempty"`
}

// ProjectUpdate adjusts the mutable fields of a project.
func ProjectUpdate(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		userID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := pathUUID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body projectUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := projects.UpdateProjectInput{
			Name:        body.Name,
			Description: body.Description,
		}
		if body.Status != nil {
			status, err := enums.ParseProjectStatus(strings.TrimSpace(*body.Status))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}
		if body.TargetAmount != nil {
			amount, err := decimal.NewFromString(strings.TrimSpace(*body.TargetAmount))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target_amount"))
				return
			}
			input.TargetAmount = &amount
		}

		updated, err := svc.Update(r.Context(), userID, entityID, projectID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, updated)
	}
}

// ProjectArchive retires a project. Archiving twice is a no-op.
func ProjectArchive(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "project service unavailable"))
			return
		}

		userID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := pathUUID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Archive(r.Context(), userID, entityID, projectID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "archived"})
	}
}
