package entities

import (
	"time"

	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/internal/memberships"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// EntityDTO exposes safe tenant data in API responses.
type EntityDTO struct {
	ID           uuid.UUID        `json:"id"`
	Type         enums.EntityType `json:"type"`
	Name         string           `json:"name"`
	Description  *string          `json:"description,omitempty"`
	Website      *string          `json:"website,omitempty"`
	Phone        *string          `json:"phone,omitempty"`
	Email        *string          `json:"email,omitempty"`
	OwnerID      uuid.UUID        `json:"owner"`
	LastActiveAt *time.Time       `json:"last_active_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// CreateEntityDTO holds creation-time data for a new entity.
type CreateEntityDTO struct {
	Type        enums.EntityType
	Name        string
	Description *string
	Website     *string
	Phone       *string
	Email       *string
	OwnerID     uuid.UUID
}

// EntityRosterDTO is the loadEntity payload: the entity plus its live
// members, outstanding invitations, and whether the caller holds owner
// status. Members and invites come back empty, not as an error, when the
// caller has no administrative relationship to the entity.
type EntityRosterDTO struct {
	Entity         EntityDTO                       `json:"entity"`
	Members        []*memberships.EntityMemberDTO  `json:"members"`
	PendingInvites []*memberships.PendingInviteDTO `json:"pending_invites"`
	CallerIsOwner  bool                            `json:"caller_is_owner"`
}

// FromModel maps the persisted entity into a DTO.
func FromModel(m *models.Entity) *EntityDTO {
	if m == nil {
		return nil
	}

	return &EntityDTO{
		ID:           m.ID,
		Type:         m.Type,
		Name:         m.Name,
		Description:  m.Description,
		Website:      m.Website,
		Phone:        m.Phone,
		Email:        m.Email,
		OwnerID:      m.OwnerID,
		LastActiveAt: m.LastActiveAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ToModel prepares the GORM model from creation DTO.
func (c CreateEntityDTO) ToModel() *models.Entity {
	return &models.Entity{
		Type:        c.Type,
		Name:        c.Name,
		Description: c.Description,
		Website:     c.Website,
		Phone:       c.Phone,
		Email:       c.Email,
		OwnerID:     c.OwnerID,
	}
}
