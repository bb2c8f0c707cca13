package controllers

import (
	"net/http"
	"strings"

	"github.com/paramvora-capmatch/capmatch-backend/api/responses"
	"github.com/paramvora-capmatch/capmatch-backend/api/validators"
	"github.com/paramvora-capmatch/capmatch-backend/internal/grants"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/logger"
)

type checkAccessRequest struct {
	DocumentPath string `json:"document_path" validate:"required,min=1"`
}

type checkAccessResponse struct {
	Allowed bool   `json:"allowed"`
	Tier    string `json:"tier"`
}

// CheckAccess answers whether the caller may open a document in the
// project. Denials are 200s with allowed=false, not errors.
func CheckAccess(resolver *grants.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resolver == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "access resolver unavailable"))
			return
		}

		userID, _, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := pathUUID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body checkAccessRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		decision, err := resolver.CheckAccess(r.Context(), projectID, userID, body.DocumentPath)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, checkAccessResponse{
			Allowed: decision.Allowed,
			Tier:    decision.Tier,
		})
	}
}

// GrantList returns the grants a user holds on a project. Members may read
// their own; admins may read anyone's.
func GrantList(svc grants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "grant service unavailable"))
			return
		}

		actorID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := pathUUID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForProjectUser(r.Context(), actorID, entityID, projectID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

type grantEntry struct {
	Path string `json:"path" validate:"required,min=1"`
	Kind string `json:"kind" validate:"required"`
}

type bulkGrantRequest struct {
	Grants []grantEntry `json:"grants" validate:"required,min=1,dive"`
}

// BulkGrant creates a batch of grants atomically.
func BulkGrant(svc grants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "grant service unavailable"))
			return
		}

		actorID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := pathUUID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body bulkGrantRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inputs := make([]grants.GrantInput, 0, len(body.Grants))
		for _, g := range body.Grants {
			kind, err := enums.ParseGrantKind(strings.TrimSpace(g.Kind))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid grant kind"))
				return
			}
			inputs = append(inputs, grants.GrantInput{Path: g.Path, Kind: kind})
		}

		created, err := svc.BulkGrant(r.Context(), actorID, entityID, projectID, userID, inputs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

type bulkRevokeRequest struct {
	Paths []string `json:"paths,omitempty"`
	All   bool     `json:"all,omitempty"`
}

// BulkRevoke deletes a batch of grants atomically. Requests listing paths
// that do not exist fail whole rather than partially applying.
func BulkRevoke(svc grants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "grant service unavailable"))
			return
		}

		actorID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := pathUUID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body bulkRevokeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !body.All && len(body.Paths) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "paths or all is required"))
			return
		}

		revoked, err := svc.BulkRevoke(r.Context(), actorID, entityID, projectID, userID, body.Paths, body.All)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]int64{"revoked": revoked})
	}
}
