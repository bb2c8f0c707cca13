package security_test

import (
	"encoding/base64"
	"testing"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/security"
)

func TestGenerateInviteToken(t *testing.T) {
	token, err := security.GenerateInviteToken()
	if err != nil {
		t.Fatalf("GenerateInviteToken returned error: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not URL-safe base64: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 bytes of entropy, got %d", len(raw))
	}

	other, err := security.GenerateInviteToken()
	if err != nil {
		t.Fatalf("GenerateInviteToken returned error: %v", err)
	}
	if token == other {
		t.Fatal("two generated tokens should not collide")
	}
}
