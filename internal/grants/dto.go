package grants

import (
	"time"

	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// GrantDTO is the transport shape for an explicit document grant.
type GrantDTO struct {
	ID              uuid.UUID       `json:"id"`
	EntityID        uuid.UUID       `json:"entity_id"`
	ProjectID       uuid.UUID       `json:"project_id"`
	UserID          uuid.UUID       `json:"user_id"`
	Path            string          `json:"path"`
	Kind            enums.GrantKind `json:"kind"`
	GrantedByUserID *uuid.UUID      `json:"granted_by_user_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// GrantInput names one path to grant in a bulk operation.
type GrantInput struct {
	Path string          `json:"path"`
	Kind enums.GrantKind `json:"kind"`
}

// FromModel converts a grant model to its DTO.
func FromModel(g *models.Grant) *GrantDTO {
	if g == nil {
		return nil
	}
	dto := &GrantDTO{
		ID:        g.ID,
		EntityID:  g.EntityID,
		ProjectID: g.ProjectID,
		UserID:    g.UserID,
		Path:      g.Path,
		Kind:      g.Kind,
		CreatedAt: g.CreatedAt,
	}
	if g.GrantedByUserID != nil {
		granted := *g.GrantedByUserID
		dto.GrantedByUserID = &granted
	}
	return dto
}

// FromModels converts a slice of grant models.
func FromModels(grants []*models.Grant) []*GrantDTO {
	out := make([]*GrantDTO, 0, len(grants))
	for _, g := range grants {
		out = append(out, FromModel(g))
	}
	return out
}
