package auth

import "testing"

func TestNormalizePrimary(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Role
	}{
		{"admin", "admin", RoleAdmin},
		{"admin uppercase is unrecognized", "ADMIN", RoleEditor},
		{"admin mixed case is unrecognized", "Admin", RoleEditor},
		{"viewer", "viewer", RoleViewer},
		{"editor", "editor", RoleEditor},
		{"user alias", "user", RoleEditor},
		{"empty", "", RoleEditor},
		{"whitespace", "  admin  ", RoleAdmin},
		{"garbage", "superuser", RoleEditor},
		{"sql-ish", "admin; drop table", RoleEditor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePrimary(tt.raw); got != tt.want {
				t.Errorf("NormalizePrimary(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeLegacy(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Role
	}{
		{"ADM", "ADM", RoleAdmin},
		{"adm lowercase is unrecognized", "adm", RoleEditor},
		{"VISUALIZADOR", "VISUALIZADOR", RoleViewer},
		{"visualizador lowercase is unrecognized", "visualizador", RoleEditor},
		{"EDITOR", "EDITOR", RoleEditor},
		{"empty", "", RoleEditor},
		{"unrecognized", "GERENTE", RoleEditor},
		{"whitespace", " ADM ", RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeLegacy(tt.raw); got != tt.want {
				t.Errorf("NormalizeLegacy(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// Unrecognized input must never produce admin, whatever the path.
func TestNormalizationNeverEscalates(t *testing.T) {
	inputs := []string{"", "root", "ADMIN1", "Admin ", "x", "VIEWER VISUALIZADOR", "null", "undefined"}

	for _, raw := range inputs {
		if NormalizePrimary(raw) == RoleAdmin && raw != "admin" {
			t.Errorf("NormalizePrimary(%q) escalated to admin", raw)
		}
		if NormalizeLegacy(raw) == RoleAdmin && raw != "ADM" {
			t.Errorf("NormalizeLegacy(%q) escalated to admin", raw)
		}
	}
}

func TestRoleAtLeast(t *testing.T) {
	// Full hierarchy grid: admin > editor > viewer.
	tests := []struct {
		role    Role
		minimum Role
		want    bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleEditor, true},
		{RoleAdmin, RoleViewer, true},
		{RoleEditor, RoleAdmin, false},
		{RoleEditor, RoleEditor, true},
		{RoleEditor, RoleViewer, true},
		{RoleViewer, RoleAdmin, false},
		{RoleViewer, RoleEditor, false},
		{RoleViewer, RoleViewer, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"_vs_"+string(tt.minimum), func(t *testing.T) {
			if got := tt.role.AtLeast(tt.minimum); got != tt.want {
				t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.role, tt.minimum, got, tt.want)
			}
		})
	}

	// An invalid role never passes any level; an unknown minimum is the
	// lowest tier, so any valid role passes it.
	if Role("").AtLeast(RoleViewer) {
		t.Error("empty role passed AtLeast(viewer)")
	}
	if !RoleViewer.AtLeast(Role("guest")) {
		t.Error("viewer failed AtLeast of an unknown minimum")
	}
}

func TestParseRole(t *testing.T) {
	if role, err := ParseRole(" Admin "); err != nil || role != RoleAdmin {
		t.Errorf("ParseRole(\" Admin \") = %q, %v", role, err)
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Error("ParseRole accepted an unknown role")
	}
	if _, err := ParseRole(""); err == nil {
		t.Error("ParseRole accepted an empty role")
	}
}
