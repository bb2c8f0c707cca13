package projects

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// ProjectDTO is the transport shape for a project.
type ProjectDTO struct {
	ID           uuid.UUID           `json:"id"`
	EntityID     uuid.UUID           `json:"entity_id"`
	Name         string              `json:"name"`
	Description  *string             `json:"description,omitempty"`
	Status       enums.ProjectStatus `json:"status"`
	TargetAmount decimal.Decimal     `json:"target_amount"`
	CreatedByID  uuid.UUID           `json:"created_by"`
	ArchivedAt   *time.Time          `json:"archived_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// CreateProjectInput captures the fields accepted when opening a project.
type CreateProjectInput struct {
	Name         string          `json:"name"`
	Description  *string         `json:"description,omitempty"`
	TargetAmount decimal.Decimal `json:"target_amount"`
}

// UpdateProjectInput carries optional mutations; nil fields are untouched.
type UpdateProjectInput struct {
	Name         *string              `json:"name,omitempty"`
	Description  *string              `json:"description,omitempty"`
	Status       *enums.ProjectStatus `json:"status,omitempty"`
	TargetAmount *decimal.Decimal     `json:"target_amount,omitempty"`
}

// FromModel converts a project model to its DTO.
func FromModel(p *models.Project) *ProjectDTO {
	if p == nil {
		return nil
	}
	dto := &ProjectDTO{
		ID:           p.ID,
		EntityID:     p.EntityID,
		Name:         p.Name,
		Status:       p.Status,
		TargetAmount: p.TargetAmount,
		CreatedByID:  p.CreatedByID,
		ArchivedAt:   p.ArchivedAt,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.Description != nil {
		desc := *p.Description
		dto.Description = &desc
	}
	return dto
}

// FromModels converts a slice of project models.
func FromModels(rows []*models.Project) []*ProjectDTO {
	out := make([]*ProjectDTO, 0, len(rows))
	for _, p := range rows {
		out = append(out, FromModel(p))
	}
	return out
}
