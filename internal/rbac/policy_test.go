package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

type fakeSource struct {
	perms  map[int64][]string
	supers map[int64]bool
}

func (f *fakeSource) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return f.perms[userID], nil
}

func (f *fakeSource) IsSuperuser(ctx context.Context, userID int64) (bool, error) {
	return f.supers[userID], nil
}

func TestPolicyAuthorize(t *testing.T) {
	source := &fakeSource{
		perms:  map[int64][]string{7: {"requests.view", "Requests.Approve"}},
		supers: map[int64]bool{9: true},
	}
	policy := NewPolicy(source)
	ctx := context.Background()

	require.NoError(t, policy.Authorize(ctx, 7, shared.PermRequestsView))
	// Comparison ignores case on both sides.
	require.NoError(t, policy.Authorize(ctx, 7, "requests.approve"))
	require.ErrorIs(t, policy.Authorize(ctx, 7, shared.PermRequestsEdit), shared.ErrPermissionDenied)

	// Superusers hold everything.
	require.NoError(t, policy.Authorize(ctx, 9, shared.PermProcurementEdit))

	// Anonymous actors hold nothing.
	require.ErrorIs(t, policy.Authorize(ctx, 0, shared.PermRequestsView), shared.ErrPermissionDenied)
}

func TestPermissionMatching(t *testing.T) {
	granted := []string{"catalog.view", "Catalog.Edit"}

	require.True(t, hasAnyPermission(granted, normalizePermissions([]string{"catalog.edit", "missing"})))
	require.False(t, hasAnyPermission(granted, normalizePermissions([]string{"missing"})))
	require.True(t, hasAllPermissions(granted, normalizePermissions([]string{"catalog.view", "catalog.edit"})))
	require.False(t, hasAllPermissions(granted, normalizePermissions([]string{"catalog.view", "missing"})))
}
