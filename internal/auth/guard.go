package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/campovivo/platform/internal/identity"
	"github.com/campovivo/platform/internal/shared/config"
	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/metrics"
)

// SessionValidator authenticates a bearer token against the session store
type SessionValidator interface {
	SessionFromToken(ctx context.Context, token string) (*identity.Session, error)
}

// Guard enforces authentication and role requirements in front of protected
// route subtrees. Unauthenticated requests are pointed back at the sign-in
// page with the originally requested location preserved; authenticated but
// under-privileged requests are pointed at the landing page.
type Guard struct {
	sessions   SessionValidator
	resolver   RoleResolver
	signInURL  string
	landingURL string
	log        *logrus.Entry
}

// NewGuard creates a route guard
func NewGuard(sessions SessionValidator, resolver RoleResolver, cfg config.AuthConfig) *Guard {
	return &Guard{
		sessions:   sessions,
		resolver:   resolver,
		signInURL:  cfg.SignInURL,
		landingURL: cfg.LandingURL,
		log:        logrus.WithField("component", "guard"),
	}
}

type contextKey string

const authContextKey contextKey = "authorization"

// FromContext returns the Authorization the guard attached to the request
// context. The zero value (all predicates false) is returned for requests
// that never passed through the guard.
func FromContext(ctx context.Context) Authorization {
	auth, _ := ctx.Value(authContextKey).(Authorization)
	return auth
}

// WithAuthorization attaches an authorization to a context. Exported for
// handler tests.
func WithAuthorization(ctx context.Context, auth Authorization) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// Protect returns middleware enforcing the given requirement. The role is
// resolved before any authorization decision is made, so protected content
// is never served on a not-yet-resolved role.
func (g *Guard) Protect(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				g.unauthenticated(w, r, req)
				return
			}

			session, err := g.sessions.SessionFromToken(r.Context(), token)
			if err != nil {
				g.unauthenticated(w, r, req)
				return
			}

			auth := Authorization{
				UserID:    session.UserID,
				SessionID: session.ID,
				Email:     session.Email,
				Role:      g.resolver.Resolve(r.Context(), session.UserID),
				Resolved:  true,
			}

			if !auth.Satisfies(req) {
				metrics.RecordAuthorizationDecision(req.String(), false)
				g.forbidden(w, r, auth, req)
				return
			}

			metrics.RecordAuthorizationDecision(req.String(), true)
			next.ServeHTTP(w, r.WithContext(WithAuthorization(r.Context(), auth)))
		})
	}
}

func (g *Guard) unauthenticated(w http.ResponseWriter, r *http.Request, req Requirement) {
	metrics.RecordAuthorizationDecision(req.String(), false)
	w.Header().Set("Location", g.signInURL+"?return_to="+url.QueryEscape(r.URL.RequestURI()))
	writeError(w, apperrors.Unauthorized("authentication required"))
}

func (g *Guard) forbidden(w http.ResponseWriter, r *http.Request, auth Authorization, req Requirement) {
	g.log.WithFields(logrus.Fields{
		"user_id":     auth.UserID,
		"role":        auth.Role,
		"requirement": req.String(),
		"path":        r.URL.Path,
	}).Info("authorization denied")

	w.Header().Set("Location", g.landingURL)
	writeError(w, apperrors.Forbidden("insufficient role for this resource"))
}

// extractToken pulls the access token from the Authorization header or,
// failing that, the session cookie set for browser navigation.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("cv_session"); err == nil {
		return cookie.Value
	}
	return ""
}
