// Package identity implements the identity backend: credentials, sessions,
// role assignment rows, and scoped visibility grants, backed by postgres.
// Everything the authorization core reads about "who is this" comes through
// this package.
package identity

import (
	"time"

	"github.com/campovivo/platform/internal/shared/types"
)

// User is a provisioned identity
type User struct {
	ID          types.ID  `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Session represents an authenticated session. A session row outlives the
// short-lived access tokens issued against it; revoking the row ends the
// session regardless of outstanding tokens.
type Session struct {
	ID        types.ID   `json:"id"`
	UserID    types.ID   `json:"user_id"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// IsExpired checks if the session has passed its absolute lifetime
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsActive reports whether the session can still authenticate requests
func (s *Session) IsActive() bool {
	return s.RevokedAt == nil && !s.IsExpired()
}

// SessionEventType classifies session-change notifications
type SessionEventType string

const (
	SessionSignedIn  SessionEventType = "signed_in"
	SessionSignedOut SessionEventType = "signed_out"
	// SessionRevoked covers forced termination (password reset, expiry)
	SessionRevoked SessionEventType = "revoked"
)

// SessionEvent is pushed to OnSessionChange subscribers
type SessionEvent struct {
	Type    SessionEventType
	Session *Session
}

// RoleAssignment is the primary (user_id, role) row. Absence of a row is a
// valid state; the resolver falls back to the legacy lookup and then to the
// default.
type RoleAssignment struct {
	UserID    types.ID  `json:"user_id"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy types.ID  `json:"updated_by,omitempty"`
}
