package enums

import "fmt"

// EntityType represents the canonical entity_type enum in Postgres.
type EntityType string

const (
	EntityTypeBorrower EntityType = "borrower"
	EntityTypeAdvisor  EntityType = "advisor"
	EntityTypeLender   EntityType = "lender"
)

var validEntityTypes = []EntityType{
	EntityTypeBorrower,
	EntityTypeAdvisor,
	EntityTypeLender,
}

// String implements fmt.Stringer.
func (e EntityType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EntityType.
func (e EntityType) IsValid() bool {
	for _, candidate := range validEntityTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEntityType converts raw input into an EntityType.
func ParseEntityType(value string) (EntityType, error) {
	for _, candidate := range validEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entity type %q", value)
}
