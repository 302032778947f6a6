// Package admin exposes the role administration surface: listing every
// identity with its resolved role, changing role assignments and managing a
// viewer's scoped visibility grants. The admin-only restriction is enforced
// by the route guard in front of these routes, not re-checked per handler.
package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/campovivo/platform/internal/auth"
	"github.com/campovivo/platform/internal/identity"
	"github.com/campovivo/platform/internal/shared/config"
	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/events"
	"github.com/campovivo/platform/internal/shared/metrics"
	"github.com/campovivo/platform/internal/shared/types"
)

// Directory is the identity-backend surface the admin handlers write to
type Directory interface {
	ListUsers(ctx context.Context) ([]identity.User, error)
	GetUser(ctx context.Context, id types.ID) (*identity.User, error)
	SetRoleAssignment(ctx context.Context, userID types.ID, role string, actor types.ID) error
	SetScopedGrants(ctx context.Context, userID types.ID, accountIDs []types.ID) error
}

// RoleService resolves roles and invalidates cached resolutions after a
// role change
type RoleService interface {
	Resolve(ctx context.Context, userID types.ID) auth.Role
	Invalidate(userID types.ID)
}

// GrantService is the viewer-checked grant surface
type GrantService interface {
	ListGrants(ctx context.Context, userID types.ID) ([]types.ID, error)
	SetGrants(ctx context.Context, userID types.ID, accountIDs []types.ID) error
}

// Publisher publishes audit events
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Handler provides the admin HTTP handlers
type Handler struct {
	directory  Directory
	roles      RoleService
	visibility GrantService
	bus        Publisher
	cfg        config.AuthConfig
	log        *logrus.Entry
}

// NewHandler creates the admin handler. bus may be nil.
func NewHandler(directory Directory, roles RoleService, visibility GrantService, bus Publisher, cfg config.AuthConfig) *Handler {
	return &Handler{
		directory:  directory,
		roles:      roles,
		visibility: visibility,
		bus:        bus,
		cfg:        cfg,
		log:        logrus.WithField("component", "admin"),
	}
}

// Routes registers the admin routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/users", h.ListUsers)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Put("/role", h.ChangeRole)
		r.Get("/grants", h.ListGrants)
		r.Put("/grants", h.SetGrants)
	})

	return r
}

// UserWithRole pairs an identity with its resolved canonical role, using
// the same resolution the route guard uses, so the admin view and the
// runtime guard never disagree.
type UserWithRole struct {
	identity.User
	Role auth.Role `json:"role"`
}

// ListUsers returns every identity with its resolved role
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	result := make([]UserWithRole, 0, len(users))
	for _, u := range users {
		result = append(result, UserWithRole{
			User: u,
			Role: h.roles.Resolve(r.Context(), u.ID),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  result,
		"total": len(result),
	})
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// ChangeRole writes the primary role assignment for a user. Existing scoped
// grants are preserved on demotion away from viewer unless the deployment
// opts into clearing them.
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid user ID"))
		return
	}

	var req changeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, apperrors.Validation("invalid role", map[string]string{"role": "must be admin, editor or viewer"}))
		return
	}

	actor := auth.FromContext(r.Context())
	if err := h.directory.SetRoleAssignment(r.Context(), userID, string(role), actor.UserID); err != nil {
		writeError(w, err)
		return
	}
	h.roles.Invalidate(userID)

	if h.cfg.ClearGrantsOnDemotion && role != auth.RoleViewer {
		// The grant service would reject this write for a non-viewer, so
		// the clear goes straight to the store.
		if err := h.directory.SetScopedGrants(r.Context(), userID, nil); err != nil {
			h.log.WithError(err).WithField("user_id", userID).Warn("failed to clear grants on demotion")
		}
	}

	metrics.RecordRoleChange(string(role))
	h.publish(r.Context(), events.NewEvent("role.changed", "admin", map[string]any{
		"user_id":  userID,
		"new_role": role,
	}).WithActor(actor.UserID, string(actor.Role)))

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"role":    role,
	})
}

// ListGrants returns a user's scoped visibility grants
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid user ID"))
		return
	}

	ids, err := h.visibility.ListGrants(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []types.ID{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"account_ids": ids,
	})
}

type setGrantsRequest struct {
	AccountIDs []string `json:"account_ids"`
}

// SetGrants replaces a viewer's scoped visibility grant set. Rejected for
// users not currently resolved as viewer.
func (h *Handler) SetGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid user ID"))
		return
	}

	var req setGrantsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	accountIDs := make([]types.ID, 0, len(req.AccountIDs))
	for _, raw := range req.AccountIDs {
		id, err := types.ParseID(raw)
		if err != nil {
			writeError(w, apperrors.Validation("invalid account ID", map[string]string{"account_ids": raw}))
			return
		}
		accountIDs = append(accountIDs, id)
	}

	if err := h.visibility.SetGrants(r.Context(), userID, accountIDs); err != nil {
		writeError(w, err)
		return
	}

	actor := auth.FromContext(r.Context())
	h.publish(r.Context(), events.NewEvent("grants.updated", "admin", map[string]any{
		"user_id":     userID,
		"account_ids": accountIDs,
	}).WithActor(actor.UserID, string(actor.Role)))

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"account_ids": accountIDs,
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
