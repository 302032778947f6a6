package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/campovivo/platform/internal/identity"
	"github.com/campovivo/platform/internal/shared/config"
	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/types"
)

type fakeSessionValidator struct {
	sessions map[string]*identity.Session
}

func (f *fakeSessionValidator) SessionFromToken(ctx context.Context, token string) (*identity.Session, error) {
	if session, ok := f.sessions[token]; ok {
		return session, nil
	}
	return nil, apperrors.Unauthorized("invalid or expired token")
}

func guardFixture(roles staticResolver, sessions map[string]*identity.Session) *Guard {
	return NewGuard(&fakeSessionValidator{sessions: sessions}, roles, config.AuthConfig{
		SignInURL:  "/signin",
		LandingURL: "/",
	})
}

func sessionFor(userID types.ID) *identity.Session {
	return &identity.Session{
		ID:        types.NewID(),
		UserID:    userID,
		Email:     "user@campovivo.example",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func protectedProbe(guard *Guard, req Requirement) (http.Handler, *Authorization) {
	var seen Authorization
	handler := guard.Protect(req)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seen
}

func TestGuardUnauthenticatedRedirectsToSignIn(t *testing.T) {
	guard := guardFixture(staticResolver{}, nil)
	handler, _ := protectedProbe(guard, RequireNone)

	req := httptest.NewRequest("GET", "/farms?species=cattle", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/signin?return_to=") {
		t.Errorf("Location = %q, want sign-in redirect", loc)
	}
	if !strings.Contains(loc, "%2Ffarms") {
		t.Errorf("Location %q does not preserve the requested path", loc)
	}
}

func TestGuardRejectsUnknownToken(t *testing.T) {
	guard := guardFixture(staticResolver{}, map[string]*identity.Session{})
	handler, _ := protectedProbe(guard, RequireNone)

	req := httptest.NewRequest("GET", "/farms", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestGuardForbiddenRedirectsToLanding(t *testing.T) {
	viewer := types.NewID()
	session := sessionFor(viewer)
	guard := guardFixture(staticResolver{viewer: RoleViewer}, map[string]*identity.Session{"tok": session})

	tests := []struct {
		name string
		req  Requirement
	}{
		{"admin only", AdminOnly},
		{"editors only", EditorsOnly},
		{"no viewers", NoViewers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := protectedProbe(guard, tt.req)

			req := httptest.NewRequest("GET", "/admin/users", nil)
			req.Header.Set("Authorization", "Bearer tok")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", rec.Code)
			}
			if rec.Header().Get("Location") != "/" {
				t.Errorf("Location = %q, want landing page", rec.Header().Get("Location"))
			}
		})
	}
}

func TestGuardAuthorizedAttachesAuthorization(t *testing.T) {
	adminID := types.NewID()
	session := sessionFor(adminID)
	guard := guardFixture(staticResolver{adminID: RoleAdmin}, map[string]*identity.Session{"tok": session})
	handler, seen := protectedProbe(guard, AdminOnly)

	req := httptest.NewRequest("GET", "/admin/users", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !seen.IsAdmin() {
		t.Error("handler did not receive a resolved admin authorization")
	}
	if seen.UserID != adminID || seen.SessionID != session.ID {
		t.Error("authorization identity does not match the session")
	}
}

func TestGuardViewerPassesRequireNone(t *testing.T) {
	viewer := types.NewID()
	session := sessionFor(viewer)
	guard := guardFixture(staticResolver{viewer: RoleViewer}, map[string]*identity.Session{"tok": session})
	handler, seen := protectedProbe(guard, RequireNone)

	req := httptest.NewRequest("GET", "/farms", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !seen.IsViewer() {
		t.Error("viewer authorization not attached")
	}
}

func TestGuardReadsSessionCookie(t *testing.T) {
	editor := types.NewID()
	session := sessionFor(editor)
	guard := guardFixture(staticResolver{editor: RoleEditor}, map[string]*identity.Session{"tok": session})
	handler, _ := protectedProbe(guard, EditorsOnly)

	req := httptest.NewRequest("GET", "/farms", nil)
	req.AddCookie(&http.Cookie{Name: "cv_session", Value: "tok"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
