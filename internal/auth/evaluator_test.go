package auth

import "testing"

// The zero-value Authorization must answer false to everything until a
// resolution completes, so a role still in flight can never unlock content.
func TestAuthorizationFailClosed(t *testing.T) {
	var a Authorization

	if a.IsAdmin() || a.IsEditor() || a.IsViewer() || a.CanEdit() {
		t.Error("unresolved authorization answered true to a predicate")
	}
	for _, min := range []Role{RoleAdmin, RoleEditor, RoleViewer} {
		if a.HasAccessLevel(min) {
			t.Errorf("unresolved authorization passed HasAccessLevel(%s)", min)
		}
	}
	for _, req := range []Requirement{RequireNone, AdminOnly, EditorsOnly, NoViewers} {
		if a.Satisfies(req) {
			t.Errorf("unresolved authorization satisfied %s", req)
		}
	}

	// Even with a role value present, Resolved gates everything.
	a.Role = RoleAdmin
	if a.IsAdmin() || a.Satisfies(AdminOnly) {
		t.Error("unresolved admin role was honored")
	}
}

func TestAuthorizationPredicates(t *testing.T) {
	tests := []struct {
		role              Role
		isAdmin, isEditor bool
		isViewer, canEdit bool
	}{
		{RoleAdmin, true, false, false, true},
		{RoleEditor, false, true, false, true},
		{RoleViewer, false, false, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			a := Authorization{Role: tt.role, Resolved: true}
			if a.IsAdmin() != tt.isAdmin {
				t.Errorf("IsAdmin() = %v", a.IsAdmin())
			}
			if a.IsEditor() != tt.isEditor {
				t.Errorf("IsEditor() = %v", a.IsEditor())
			}
			if a.IsViewer() != tt.isViewer {
				t.Errorf("IsViewer() = %v", a.IsViewer())
			}
			if a.CanEdit() != tt.canEdit {
				t.Errorf("CanEdit() = %v", a.CanEdit())
			}
		})
	}
}

func TestAuthorizationSatisfies(t *testing.T) {
	tests := []struct {
		role Role
		req  Requirement
		want bool
	}{
		{RoleAdmin, RequireNone, true},
		{RoleAdmin, AdminOnly, true},
		{RoleAdmin, EditorsOnly, true},
		{RoleAdmin, NoViewers, true},
		{RoleEditor, RequireNone, true},
		{RoleEditor, AdminOnly, false},
		{RoleEditor, EditorsOnly, true},
		{RoleEditor, NoViewers, true},
		{RoleViewer, RequireNone, true},
		{RoleViewer, AdminOnly, false},
		{RoleViewer, EditorsOnly, false},
		{RoleViewer, NoViewers, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"_"+tt.req.String(), func(t *testing.T) {
			a := Authorization{Role: tt.role, Resolved: true}
			if got := a.Satisfies(tt.req); got != tt.want {
				t.Errorf("Satisfies(%s) = %v, want %v", tt.req, got, tt.want)
			}
		})
	}
}
