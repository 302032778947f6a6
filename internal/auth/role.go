// Package auth implements identity resolution and role-based authorization
// for the dashboard: session tracking, two-tier role resolution with a
// legacy herd-book fallback, hierarchical permission checks, scoped
// visibility grants for viewers, and the route guard in front of protected
// surfaces.
package auth

import (
	"fmt"
	"strings"
)

// Role is the canonical in-app role. These three values are the only ones
// permission checks ever see; every stored representation is normalized
// into one of them first.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the three canonical roles
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEditor || r == RoleViewer
}

// level places the role in the admin > editor > viewer hierarchy.
// Unresolved or unknown values rank below viewer.
func (r Role) level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r sits at or above minimum in the hierarchy. An
// invalid r never passes; an unrecognized minimum is treated as the lowest
// tier, so any valid role passes it.
func (r Role) AtLeast(minimum Role) bool {
	return r.Valid() && r.level() >= minimum.level()
}

// ParseRole validates a caller-supplied role value
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// NormalizePrimary maps a primary role-assignment value to the canonical
// role. Matching is exact apart from surrounding whitespace: stored values
// are written by this system, so any other spelling or casing is an
// unrecognized value and lands on editor, never on admin. "user" is a
// historical alias for editor and falls through the default.
func NormalizePrimary(raw string) Role {
	switch strings.TrimSpace(raw) {
	case "admin":
		return RoleAdmin
	case "viewer":
		return RoleViewer
	default:
		return RoleEditor
	}
}

// NormalizeLegacy maps a herd-book role value to the canonical role. The
// herd book predates the dashboard and used uppercase Portuguese labels;
// only the exact values are honored. EDITOR, unrecognized and empty values
// all land on editor, never on admin.
func NormalizeLegacy(raw string) Role {
	switch strings.TrimSpace(raw) {
	case "ADM":
		return RoleAdmin
	case "VISUALIZADOR":
		return RoleViewer
	default:
		return RoleEditor
	}
}
