package controllers

import (
	"net/http"
	"strings"

	"github.com/paramvora-capmatch/capmatch-backend/api/responses"
	"github.com/paramvora-capmatch/capmatch-backend/api/validators"
	"github.com/paramvora-capmatch/capmatch-backend/internal/entities"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/logger"
)

type entityCreateRequest struct {
	Name        string  `json:"name" validate:"required,min=1"`
	Type        string  `json:"type" validate:"required"`
	Description *string `json:"description,omitempty"`
	Website     *string `json:"website,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
}

// EntityCreate provisions a new entity with the caller as founding owner.
func EntityCreate(svc entities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entity service unavailable"))
			return
		}

		userID, err := requestUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body entityCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entityType, err := enums.ParseEntityType(strings.TrimSpace(body.Type))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entity type"))
			return
		}

		created, err := svc.Create(r.Context(), userID, entities.CreateEntityInput{
			Name:        body.Name,
			Type:        entityType,
			Description: body.Description,
			Website:     body.Website,
			Phone:       body.Phone,
			Email:       body.Email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// EntityProfile returns the active entity's profile.
func EntityProfile(svc entities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entity service unavailable"))
			return
		}

		_, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.GetByID(r.Context(), entityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, profile)
	}
}

type entityUpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty"`
	Website     *string `json:"website,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
}

// EntityUpdate adjusts the mutable fields of the active entity.
func EntityUpdate(svc entities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entity service unavailable"))
			return
		}

		userID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body entityUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.Update(r.Context(), userID, entityID, entities.UpdateEntityInput{
			Name:        body.Name,
			Description: body.Description,
			Website:     body.Website,
			Phone:       body.Phone,
			Email:       body.Email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, updated)
	}
}

// EntityRoster returns the entity with its live member roster and, for
// admins, its outstanding invitations.
func EntityRoster(svc entities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entity service unavailable"))
			return
		}

		userID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		roster, err := svc.LoadEntity(r.Context(), userID, entityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, roster)
	}
}
