package controllers

import (
	"net/http"

	"github.com/paramvora-capmatch/capmatch-backend/api/middleware"
	"github.com/paramvora-capmatch/capmatch-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if entity := middleware.EntityIDFromContext(r.Context()); entity != "" {
			payload["entity_id"] = entity
		}
		responses.WriteSuccess(w, payload)
	}
}
