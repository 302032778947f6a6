package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/campovivo/platform/internal/identity"
	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/events"
)

// Handler provides the HTTP surface for sign-in, sign-up, sign-out,
// password reset and the current-authorization endpoint.
type Handler struct {
	store      *identity.Store
	resolver   *Resolver
	visibility *Visibility
	bus        *events.Bus
	log        *logrus.Entry
}

// NewHandler creates the auth handler. bus may be nil when the event store
// is disabled.
func NewHandler(store *identity.Store, resolver *Resolver, visibility *Visibility, bus *events.Bus) *Handler {
	return &Handler{
		store:      store,
		resolver:   resolver,
		visibility: visibility,
		bus:        bus,
		log:        logrus.WithField("component", "auth"),
	}
}

// Routes registers the auth routes. Credential endpoints stay open; the
// session-bound endpoints sit behind the guard with no role requirement.
func (h *Handler) Routes(guard *Guard) chi.Router {
	r := chi.NewRouter()

	r.Post("/signin", h.SignIn)
	r.Post("/signup", h.SignUp)
	r.Post("/password-reset", h.RequestPasswordReset)
	r.Post("/password-reset/complete", h.CompletePasswordReset)

	r.Group(func(r chi.Router) {
		r.Use(guard.Protect(RequireNone))
		r.Post("/signout", h.SignOut)
		r.Get("/me", h.Me)
	})

	return r
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn authenticates credentials and returns a session access token
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	session, token, err := h.store.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	role := h.resolver.Resolve(r.Context(), session.UserID)
	h.publish(r.Context(), events.NewEvent("auth.signed_in", "auth", map[string]any{
		"session_id": session.ID,
	}).WithActor(session.UserID, string(role)))

	writeJSON(w, http.StatusOK, map[string]any{
		"token":   token,
		"session": session,
		"role":    role,
	})
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// SignUp provisions a new identity with the default role assignment
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	user, err := h.store.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), events.NewEvent("auth.signed_up", "auth", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	}))

	writeJSON(w, http.StatusCreated, user)
}

// SignOut revokes the caller's session
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	auth := FromContext(r.Context())

	if err := h.store.SignOut(r.Context(), auth.SessionID); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), events.NewEvent("auth.signed_out", "auth", map[string]any{
		"session_id": auth.SessionID,
	}).WithActor(auth.UserID, string(auth.Role)))

	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset issues a reset token. The response is identical for
// known and unknown emails.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	// Token delivery happens out of band (email); the handler only confirms
	// the request was accepted.
	if _, err := h.store.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset requested"})
}

type completeResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// CompletePasswordReset consumes a reset token and revokes every session of
// the affected user, forcing re-authentication.
func (h *Handler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req completeResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	if err := h.store.CompletePasswordReset(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), events.NewEvent("auth.password_reset", "auth", nil))

	writeJSON(w, http.StatusOK, map[string]string{"status": "password reset"})
}

// Me returns the caller's identity, resolved role and visible farm
// accounts. visible_accounts is the string "all" for non-viewers and the
// explicit grant list for viewers.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	auth := FromContext(r.Context())

	user, err := h.store.GetUser(r.Context(), auth.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	ids, all, err := h.visibility.VisibleAccountIDs(r.Context(), auth.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	var visible any = ids
	if all {
		visible = "all"
	} else if ids == nil {
		visible = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":             user,
		"role":             auth.Role,
		"is_admin":         auth.IsAdmin(),
		"can_edit":         auth.CanEdit(),
		"visible_accounts": visible,
	})
}

func (h *Handler) publish(ctx context.Context, event events.Event) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(ctx, event); err != nil {
		h.log.WithError(err).WithField("event_type", event.Type).Warn("failed to publish event")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*apperrors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
