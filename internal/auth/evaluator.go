package auth

import (
	"github.com/campovivo/platform/internal/shared/types"
)

// Authorization is a snapshot of a principal's resolved authorization
// state. The zero value is fully locked down: until Resolved is set, every
// predicate returns false, so nothing renders optimistically while a role
// lookup is still in flight.
type Authorization struct {
	UserID    types.ID `json:"user_id"`
	SessionID types.ID `json:"session_id,omitempty"`
	Email     string   `json:"email,omitempty"`
	Role      Role     `json:"role,omitempty"`
	Resolved  bool     `json:"resolved"`
}

// IsAdmin reports whether the resolved role is admin
func (a Authorization) IsAdmin() bool {
	return a.Resolved && a.Role == RoleAdmin
}

// IsEditor reports whether the resolved role is editor
func (a Authorization) IsEditor() bool {
	return a.Resolved && a.Role == RoleEditor
}

// IsViewer reports whether the resolved role is viewer
func (a Authorization) IsViewer() bool {
	return a.Resolved && a.Role == RoleViewer
}

// CanEdit reports whether the resolved role may modify records
func (a Authorization) CanEdit() bool {
	return a.Resolved && (a.Role == RoleAdmin || a.Role == RoleEditor)
}

// HasAccessLevel reports whether the resolved role sits at or above the
// given minimum in the admin > editor > viewer hierarchy
func (a Authorization) HasAccessLevel(minimum Role) bool {
	return a.Resolved && a.Role.AtLeast(minimum)
}

// Requirement is a route-level authorization requirement
type Requirement int

const (
	// RequireNone admits any authenticated principal
	RequireNone Requirement = iota
	// AdminOnly admits only admins
	AdminOnly
	// EditorsOnly admits admins and editors
	EditorsOnly
	// NoViewers admits any role except viewer
	NoViewers
)

func (req Requirement) String() string {
	switch req {
	case AdminOnly:
		return "admin_only"
	case EditorsOnly:
		return "editors_only"
	case NoViewers:
		return "no_viewers"
	default:
		return "none"
	}
}

// Satisfies reports whether the authorization meets the requirement. An
// unresolved authorization satisfies nothing, including RequireNone.
func (a Authorization) Satisfies(req Requirement) bool {
	if !a.Resolved {
		return false
	}
	switch req {
	case AdminOnly:
		return a.Role == RoleAdmin
	case EditorsOnly:
		return a.Role == RoleAdmin || a.Role == RoleEditor
	case NoViewers:
		return a.Role != RoleViewer
	default:
		return true
	}
}
