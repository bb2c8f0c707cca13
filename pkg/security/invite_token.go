package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const inviteTokenBytes = 32

// GenerateInviteToken returns a URL-safe opaque token for invitation links.
// Tokens are unguessable and carry no embedded claims; validity lives in the
// membership row they are stored on.
func GenerateInviteToken() (string, error) {
	buf := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
