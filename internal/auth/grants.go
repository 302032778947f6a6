package auth

import (
	"context"

	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/types"
)

// GrantStore is the persistence surface for scoped visibility grants
type GrantStore interface {
	GetScopedGrants(ctx context.Context, userID types.ID) ([]types.ID, error)
	SetScopedGrants(ctx context.Context, userID types.ID, accountIDs []types.ID) error
}

// Visibility enforces the viewer-only discipline around scoped grants.
// Grants are an explicit allow-list for viewers; every other role sees all
// farm accounts and must never accumulate grant rows.
type Visibility struct {
	grants   GrantStore
	resolver RoleResolver
}

// NewVisibility creates the visibility service
func NewVisibility(grants GrantStore, resolver RoleResolver) *Visibility {
	return &Visibility{grants: grants, resolver: resolver}
}

// ListGrants returns the explicit grant set for a user. An empty set for a
// viewer means the viewer sees nothing, not everything.
func (v *Visibility) ListGrants(ctx context.Context, userID types.ID) ([]types.ID, error) {
	return v.grants.GetScopedGrants(ctx, userID)
}

// SetGrants replaces a viewer's grant set. The write is rejected when the
// target's current resolved role is not viewer, so grants can never
// silently persist for elevated roles and resurface on a later demotion.
func (v *Visibility) SetGrants(ctx context.Context, userID types.ID, accountIDs []types.ID) error {
	role := v.resolver.Resolve(ctx, userID)
	if role != RoleViewer {
		return apperrors.Validation("scoped grants apply only to viewers", map[string]string{
			"user_id": "target role is " + string(role) + ", not viewer",
		})
	}
	return v.grants.SetScopedGrants(ctx, userID, accountIDs)
}

// VisibleAccountIDs returns the farm accounts the user may see. Non-viewers
// see everything (all = true, ids nil); viewers see exactly their grant
// set, which may be empty.
func (v *Visibility) VisibleAccountIDs(ctx context.Context, userID types.ID) (ids []types.ID, all bool, err error) {
	role := v.resolver.Resolve(ctx, userID)
	if role != RoleViewer {
		return nil, true, nil
	}
	ids, err = v.grants.GetScopedGrants(ctx, userID)
	return ids, false, err
}
