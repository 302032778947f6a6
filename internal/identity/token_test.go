package identity

import (
	"testing"
	"time"

	"github.com/campovivo/platform/internal/shared/types"
)

const testSecret = "test-secret"

func testSession(ttl time.Duration) *Session {
	return &Session{
		ID:        types.NewID(),
		UserID:    types.NewID(),
		Email:     "joao@campovivo.example",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestTokenRoundTrip(t *testing.T) {
	session := testSession(time.Hour)

	token, err := IssueToken(testSecret, session, 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}

	if claims.Subject != session.UserID.String() {
		t.Errorf("subject = %q, want user id %q", claims.Subject, session.UserID)
	}
	if claims.SessionID != session.ID.String() {
		t.Errorf("session_id = %q, want %q", claims.SessionID, session.ID)
	}
	if claims.Email != session.Email {
		t.Errorf("email = %q, want %q", claims.Email, session.Email)
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	token, err := IssueToken(testSecret, testSession(time.Hour), 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := ParseToken("other-secret", token); err == nil {
		t.Error("token signed with a different secret was accepted")
	}
}

func TestTokenExpiryRejected(t *testing.T) {
	// Session already expired, so the token is capped into the past.
	session := testSession(-time.Minute)

	token, err := IssueToken(testSecret, session, 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := ParseToken(testSecret, token); err == nil {
		t.Error("expired token was accepted")
	}
}

func TestTokenLifetimeCappedAtSessionExpiry(t *testing.T) {
	session := testSession(5 * time.Minute)

	token, err := IssueToken(testSecret, session, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}

	if claims.ExpiresAt.Time.After(session.ExpiresAt.Add(time.Second)) {
		t.Errorf("token expiry %v outlives session expiry %v", claims.ExpiresAt.Time, session.ExpiresAt)
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	if _, err := ParseToken(testSecret, "not.a.token"); err == nil {
		t.Error("garbage token was accepted")
	}
}

func TestSessionIsActive(t *testing.T) {
	session := testSession(time.Hour)
	if !session.IsActive() {
		t.Error("fresh session reported inactive")
	}

	now := time.Now()
	session.RevokedAt = &now
	if session.IsActive() {
		t.Error("revoked session reported active")
	}

	expired := testSession(-time.Minute)
	if expired.IsActive() {
		t.Error("expired session reported active")
	}
}
