package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/api/responses"
	"github.com/paramvora-capmatch/capmatch-backend/api/validators"
	"github.com/paramvora-capmatch/capmatch-backend/internal/auth"
	pkgAuth "github.com/paramvora-capmatch/capmatch-backend/pkg/auth"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/config"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/logger"
)

// AuthLogin wires the login endpoint into the HTTP layer.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("X-CM-Token", result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}

type switchEntityRequest struct {
	EntityID string `json:"entity_id" validate:"required,uuid"`
}

// AuthSwitchEntity mints a new token that targets the requested entity.
func AuthSwitchEntity(svc auth.SwitchEntityService, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "switch entity service unavailable"))
			return
		}

		var body switchEntityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entityID, err := uuid.Parse(body.EntityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entity_id"))
			return
		}

		token, err := parseBearerToken(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		claims, err := pkgAuth.ParseAccessToken(cfg, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
			return
		}

		result, err := svc.Switch(r.Context(), auth.SwitchEntityInput{
			UserID:        claims.UserID,
			EntityID:      entityID,
			AccessTokenID: claims.ID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("X-CM-Token", result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}
