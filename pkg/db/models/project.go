package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// Project is a capital raise owned by an entity. Document paths checked by
// the permission resolver are scoped to a project.
type Project struct {
	ID           uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EntityID     uuid.UUID           `gorm:"column:entity_id;type:uuid;not null;index"`
	Name         string              `gorm:"column:name;not null"`
	Description  *string             `gorm:"column:description"`
	Status       enums.ProjectStatus `gorm:"column:status;type:project_status;not null;default:'draft'"`
	TargetAmount decimal.Decimal     `gorm:"column:target_amount;type:numeric(18,2);not null;default:0"`
	CreatedByID  uuid.UUID           `gorm:"column:created_by;type:uuid;not null"`
	ArchivedAt   *time.Time          `gorm:"column:archived_at"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
