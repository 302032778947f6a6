package auth

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/types"
)

// staticResolver maps users to fixed roles; unknown users resolve to editor
// like the real resolver's default.
type staticResolver map[types.ID]Role

func (s staticResolver) Resolve(ctx context.Context, userID types.ID) Role {
	if role, ok := s[userID]; ok {
		return role
	}
	return RoleEditor
}

type memoryGrantStore struct {
	grants map[types.ID][]types.ID
	writes int
}

func newMemoryGrantStore() *memoryGrantStore {
	return &memoryGrantStore{grants: make(map[types.ID][]types.ID)}
}

func (m *memoryGrantStore) GetScopedGrants(ctx context.Context, userID types.ID) ([]types.ID, error) {
	return m.grants[userID], nil
}

func (m *memoryGrantStore) SetScopedGrants(ctx context.Context, userID types.ID, accountIDs []types.ID) error {
	m.writes++
	m.grants[userID] = accountIDs
	return nil
}

func TestVisibilityViewerSeesExactlyGrants(t *testing.T) {
	viewer := types.NewID()
	acctA, acctC := types.NewID(), types.NewID()

	store := newMemoryGrantStore()
	v := NewVisibility(store, staticResolver{viewer: RoleViewer})

	if err := v.SetGrants(context.Background(), viewer, []types.ID{acctA, acctC}); err != nil {
		t.Fatalf("SetGrants: %v", err)
	}

	ids, all, err := v.VisibleAccountIDs(context.Background(), viewer)
	if err != nil {
		t.Fatalf("VisibleAccountIDs: %v", err)
	}
	if all {
		t.Error("viewer reported as seeing all accounts")
	}
	if len(ids) != 2 || ids[0] != acctA || ids[1] != acctC {
		t.Errorf("visible ids = %v, want [%s %s]", ids, acctA, acctC)
	}
}

func TestVisibilityViewerWithNoGrantsSeesNothing(t *testing.T) {
	viewer := types.NewID()
	v := NewVisibility(newMemoryGrantStore(), staticResolver{viewer: RoleViewer})

	ids, all, err := v.VisibleAccountIDs(context.Background(), viewer)
	if err != nil {
		t.Fatalf("VisibleAccountIDs: %v", err)
	}
	if all {
		t.Error("grantless viewer reported as seeing all accounts")
	}
	if len(ids) != 0 {
		t.Errorf("grantless viewer sees %v", ids)
	}
}

func TestVisibilityNonViewerSeesAll(t *testing.T) {
	admin, editor := types.NewID(), types.NewID()
	store := newMemoryGrantStore()
	// Leftover grant rows for a non-viewer must not narrow their view.
	store.grants[editor] = []types.ID{types.NewID()}

	v := NewVisibility(store, staticResolver{admin: RoleAdmin, editor: RoleEditor})

	for _, id := range []types.ID{admin, editor} {
		ids, all, err := v.VisibleAccountIDs(context.Background(), id)
		if err != nil {
			t.Fatalf("VisibleAccountIDs: %v", err)
		}
		if !all {
			t.Errorf("non-viewer %s not reported as seeing all", id)
		}
		if ids != nil {
			t.Errorf("non-viewer %s got explicit ids %v", id, ids)
		}
	}
}

func TestVisibilitySetGrantsRejectedForNonViewer(t *testing.T) {
	editor := types.NewID()
	store := newMemoryGrantStore()
	v := NewVisibility(store, staticResolver{editor: RoleEditor})

	err := v.SetGrants(context.Background(), editor, []types.ID{types.NewID()})
	if err == nil {
		t.Fatal("SetGrants accepted a non-viewer target")
	}
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("rejection kind = %v, want validation", err)
	}
	if store.writes != 0 {
		t.Error("grant store mutated despite rejection")
	}
}

func TestVisibilityClearGrants(t *testing.T) {
	viewer := types.NewID()
	store := newMemoryGrantStore()
	v := NewVisibility(store, staticResolver{viewer: RoleViewer})

	if err := v.SetGrants(context.Background(), viewer, []types.ID{types.NewID()}); err != nil {
		t.Fatalf("SetGrants: %v", err)
	}
	if err := v.SetGrants(context.Background(), viewer, nil); err != nil {
		t.Fatalf("SetGrants clear: %v", err)
	}

	ids, all, err := v.VisibleAccountIDs(context.Background(), viewer)
	if err != nil {
		t.Fatalf("VisibleAccountIDs: %v", err)
	}
	if all || len(ids) != 0 {
		t.Errorf("cleared viewer sees ids=%v all=%v, want empty set", ids, all)
	}
}
