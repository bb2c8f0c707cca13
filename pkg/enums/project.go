package enums

import "fmt"

// ProjectStatus represents the canonical project_status enum in Postgres.
type ProjectStatus string

const (
	ProjectStatusDraft    ProjectStatus = "draft"
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusArchived ProjectStatus = "archived"
)

var validProjectStatuses = []ProjectStatus{
	ProjectStatusDraft,
	ProjectStatusActive,
	ProjectStatusArchived,
}

// String implements fmt.Stringer.
func (p ProjectStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProjectStatus.
func (p ProjectStatus) IsValid() bool {
	for _, candidate := range validProjectStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProjectStatus converts raw input into a ProjectStatus.
func ParseProjectStatus(value string) (ProjectStatus, error) {
	for _, candidate := range validProjectStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid project status %q", value)
}
