package controllers

import (
	"net/http"
	"strings"

	"github.com/paramvora-capmatch/capmatch-backend/api/middleware"
	"github.com/paramvora-capmatch/capmatch-backend/api/responses"
	"github.com/paramvora-capmatch/capmatch-backend/api/validators"
	"github.com/paramvora-capmatch/capmatch-backend/internal/invites"
	"github.com/paramvora-capmatch/capmatch-backend/internal/memberships"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/logger"
	"github.com/google/uuid"
)

type inviteCreateRequest struct {
	Email      string   `json:"email" validate:"required,email"`
	Role       string   `json:"role" validate:"required"`
	ProjectIDs []string `json:"project_ids,omitempty" validate:"omitempty,dive,uuid"`
}

// InviteCreate issues a pending invitation for the active entity.
func InviteCreate(svc invites.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invite service unavailable"))
			return
		}

		userID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body inviteCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		role, err := enums.ParseMemberRole(strings.TrimSpace(body.Role))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
			return
		}

		projectIDs, err := parseUUIDList(body.ProjectIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invite, err := svc.InviteMember(r.Context(), userID, entityID, invites.InviteMemberInput{
			Email:      body.Email,
			Role:       role,
			ProjectIDs: projectIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, invite)
	}
}

// InviteList returns the entity's outstanding invitations.
func InviteList(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}

		userID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pending, err := svc.ListPendingInvites(r.Context(), userID, entityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, pending)
	}
}

// InviteCancel revokes a pending invitation. Cancelling an already consumed
// or cancelled invite is a no-op.
func InviteCancel(svc invites.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invite service unavailable"))
			return
		}

		userID, entityID, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		membershipID, err := pathUUID(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.CancelInvite(r.Context(), userID, entityID, membershipID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

// InviteValidate is the public pre-acceptance check. It always responds 200
// with a validity flag so token probing reveals nothing.
func InviteValidate(svc invites.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invite service unavailable"))
			return
		}

		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "token is required"))
			return
		}

		result, err := svc.ValidateInviteToken(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type inviteAcceptRequest struct {
	Token     string `json:"token" validate:"required"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Password  string `json:"password,omitempty"`
}

// InviteAccept consumes an invite token. Unauthenticated callers provision
// an account in the same transaction; signed-in callers bind the membership
// to their existing user.
func InviteAccept(svc invites.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invite service unavailable"))
			return
		}

		var body inviteAcceptRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := invites.AcceptInviteInput{
			FirstName: body.FirstName,
			LastName:  body.LastName,
			Password:  body.Password,
		}

		// Acceptance works with or without a session.
		if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
			authedID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
				return
			}
			input.AuthenticatedUserID = &authedID
		}

		result, err := svc.AcceptInvite(r.Context(), body.Token, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
