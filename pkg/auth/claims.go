package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID         uuid.UUID
	ActiveEntityID *uuid.UUID
	Role           enums.MemberRole
	EntityType     *enums.EntityType
	JTI            string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID         uuid.UUID         `json:"user_id"`
	ActiveEntityID *uuid.UUID        `json:"active_entity_id,omitempty"`
	Role           enums.MemberRole  `json:"role"`
	EntityType     *enums.EntityType `json:"entity_type,omitempty"`
	jwt.RegisteredClaims
}
