package auth

import (
	"github.com/paramvora-capmatch/capmatch-backend/internal/users"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	"github.com/google/uuid"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// EntitySummary describes the entity metadata returned after login.
type EntitySummary struct {
	ID   uuid.UUID        `json:"id"`
	Name string           `json:"name"`
	Type enums.EntityType `json:"type"`
}

// LoginResponse contains the tokens, user, and entity list produced by a
// successful login. The first entity in the list is the one the access
// token was minted for.
type LoginResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	Entities     []EntitySummary `json:"entities"`
	User         *users.UserDTO  `json:"user"`
}
