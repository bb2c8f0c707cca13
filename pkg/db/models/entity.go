package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// Entity represents the canonical tenant model: a borrower, advisor, or
// lender organization that owns projects and memberships.
type Entity struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Type         enums.EntityType `gorm:"column:type;type:entity_type;not null"`
	Name         string           `gorm:"column:name;not null"`
	Description  *string          `gorm:"column:description"`
	Website      *string          `gorm:"column:website"`
	Phone        *string          `gorm:"column:phone"`
	Email        *string          `gorm:"column:email"`
	OwnerID      uuid.UUID        `gorm:"column:owner;type:uuid;not null"`
	LastActiveAt *time.Time       `gorm:"column:last_active_at"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
