package auth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/metrics"
	"github.com/campovivo/platform/internal/shared/types"
)

// RoleStore is the primary role-assignment source. A missing row must be
// reported as a not found error, distinct from lookup failures.
type RoleStore interface {
	GetRoleAssignment(ctx context.Context, userID types.ID) (string, error)
}

// LegacyRoleSource is the herd-book fallback path. Deployments without the
// legacy database run without one.
type LegacyRoleSource interface {
	UserRole(ctx context.Context, userID types.ID) (string, error)
}

// Resolver determines the canonical role for a user. The primary assignment
// row always wins; the legacy herd-book value is consulted only on a true
// "no row" result. Accounts provisioned before the dashboard existed may
// only have the legacy representation populated, which is why the
// precedence matters.
type Resolver struct {
	primary RoleStore
	legacy  LegacyRoleSource
	cache   *expirable.LRU[types.ID, Role]
	log     *logrus.Entry
}

// NewResolver creates a resolver. legacy may be nil when the herd-book
// database is not deployed; the fallback chain then skips straight to the
// default.
func NewResolver(primary RoleStore, legacy LegacyRoleSource, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		primary: primary,
		legacy:  legacy,
		cache:   expirable.NewLRU[types.ID, Role](4096, nil, cacheTTL),
		log:     logrus.WithField("component", "resolver"),
	}
}

// Resolve returns the canonical role for the user. It never fails: hard
// lookup errors degrade to editor, the least-privileged non-viewer default,
// and are logged. Degraded results are not cached so a recovered backend
// takes effect on the next resolution.
func (r *Resolver) Resolve(ctx context.Context, userID types.ID) Role {
	if role, ok := r.cache.Get(userID); ok {
		metrics.RecordRoleResolution("cache", string(role))
		return role
	}

	role, cacheable := r.resolve(ctx, userID)
	if cacheable {
		r.cache.Add(userID, role)
	}
	return role
}

func (r *Resolver) resolve(ctx context.Context, userID types.ID) (Role, bool) {
	raw, err := r.primary.GetRoleAssignment(ctx, userID)
	if err == nil {
		role := NormalizePrimary(raw)
		metrics.RecordRoleResolution("primary", string(role))
		return role, true
	}
	if !apperrors.IsNotFound(err) {
		r.log.WithError(err).WithField("user_id", userID).Warn("primary role lookup failed, defaulting to editor")
		metrics.RecordRoleResolution("error", string(RoleEditor))
		return RoleEditor, false
	}

	if r.legacy != nil {
		raw, err := r.legacy.UserRole(ctx, userID)
		if err == nil {
			role := NormalizeLegacy(raw)
			metrics.RecordRoleResolution("legacy", string(role))
			return role, true
		}
		if !apperrors.IsNotFound(err) {
			r.log.WithError(err).WithField("user_id", userID).Warn("legacy role lookup failed, defaulting to editor")
			metrics.RecordRoleResolution("error", string(RoleEditor))
			return RoleEditor, false
		}
	}

	metrics.RecordRoleResolution("default", string(RoleEditor))
	return RoleEditor, true
}

// Invalidate drops the cached role for a user. Called after an admin role
// change so the new assignment takes effect immediately instead of at cache
// expiry.
func (r *Resolver) Invalidate(userID types.ID) {
	r.cache.Remove(userID)
}
