package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

// Grant is an explicit, path-scoped access record for a non-owner member.
// The literal path "*" covers every document in the project.
type Grant struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EntityID        uuid.UUID       `gorm:"column:entity_id;type:uuid;not null;index"`
	ProjectID       uuid.UUID       `gorm:"column:project_id;type:uuid;not null;index"`
	UserID          uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	Path            string          `gorm:"column:path;not null"`
	Kind            enums.GrantKind `gorm:"column:kind;type:grant_kind;not null"`
	GrantedByUserID *uuid.UUID      `gorm:"column:granted_by_user_id;type:uuid"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
