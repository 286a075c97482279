package security_test

import (
	"errors"
	"testing"
	"time"

	"github.com/capitalize-ai/chat-console/internal/security"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := security.NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Issue("ana@x.com", "sess-1", "Member", time.Now())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "ana@x.com" || claims.SessionID != "sess-1" || claims.Role != "Member" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenRejected(t *testing.T) {
	issuer := security.NewTokenIssuer("test-secret", time.Hour)
	other := security.NewTokenIssuer("other-secret", time.Hour)

	forged, _ := other.Issue("ana@x.com", "sess-1", "Admin", time.Now())
	expired, _ := issuer.Issue("ana@x.com", "sess-1", "Member", time.Now().Add(-2*time.Hour))

	for name, token := range map[string]string{
		"forged":  forged,
		"expired": expired,
		"garbage": "abc.def.ghi",
	} {
		if _, err := issuer.Parse(token); !errors.Is(err, security.ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}
