package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/api/middleware"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
)

// requestActor resolves the authenticated user and active entity from the
// request context. Handlers behind Auth + EntityContext can rely on both
// being present.
func requestActor(r *http.Request) (userID, entityID uuid.UUID, err error) {
	rawUser := middleware.UserIDFromContext(r.Context())
	if rawUser == "" {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err = uuid.Parse(rawUser)
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}

	rawEntity := middleware.EntityIDFromContext(r.Context())
	if rawEntity == "" {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "entity context missing")
	}
	entityID, err = uuid.Parse(rawEntity)
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entity id")
	}
	return userID, entityID, nil
}

// requestUser resolves only the authenticated user, for endpoints that do
// not require an active entity.
func requestUser(r *http.Request) (uuid.UUID, error) {
	rawUser := middleware.UserIDFromContext(r.Context())
	if rawUser == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return userID, nil
}

// pathUUID parses a uuid route parameter by name.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
