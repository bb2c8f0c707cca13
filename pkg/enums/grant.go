package enums

import "fmt"

// GrantKind distinguishes how a grant path is matched: file grants match the
// document path exactly, folder grants match any document under the path.
type GrantKind string

const (
	GrantKindFile   GrantKind = "file"
	GrantKindFolder GrantKind = "folder"
)

var validGrantKinds = []GrantKind{
	GrantKindFile,
	GrantKindFolder,
}

// String implements fmt.Stringer.
func (g GrantKind) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GrantKind.
func (g GrantKind) IsValid() bool {
	for _, candidate := range validGrantKinds {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGrantKind converts raw input into a GrantKind.
func ParseGrantKind(value string) (GrantKind, error) {
	for _, candidate := range validGrantKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid grant kind %q", value)
}
