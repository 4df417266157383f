package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/origin"
	"github.com/gatewarden/gatewarden/internal/shared"
)

func TestDisambiguate(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Edit", "Edi1t"},
		{"Foo", "Fo1o"},
		{"Foo_2", "Foo_3"},
		{"Foo_9", "Foo_10"},
		{"reports_view_3", "reports_view_4"},
		{"Foo_bar", "Foo_ba1r"},
		{"A", "1A"},
	}
	for _, tc := range cases {
		if got := disambiguate(tc.in); got != tc.want {
			t.Fatalf("disambiguate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func newSeededStore(t *testing.T) *MemStore {
	t.Helper()
	store := NewMemStore()
	require.NoError(t, store.InitialConfiguration(context.Background()))
	return store
}

func TestFindPermissionAbsent(t *testing.T) {
	store := newSeededStore(t)

	perm, err := store.FindPermission(context.Background(), "never.created", 0, false)
	require.NoError(t, err)
	require.Nil(t, perm)
}

func TestFindPermissionEmptyName(t *testing.T) {
	store := newSeededStore(t)

	_, err := store.FindPermission(context.Background(), "", 0, false)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestCreateGrantsAdministrator(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	perm, err := store.CreatePermission(ctx, CreateParams{Name: "reports.view", Origin: 5})
	require.NoError(t, err)
	require.NotEmpty(t, perm.Roles, "created permission must not be ungranted")

	roles, err := store.RolesForPermission(ctx, perm)
	require.NoError(t, err)
	require.Contains(t, roles, RoleAdministrator)
	require.NotContains(t, roles, RoleUser)
}

func TestCreateCollisionInsertsDigit(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()
	params := CreateParams{Name: "Edit", Origin: 5}

	first, err := store.CreatePermission(ctx, params)
	require.NoError(t, err)
	require.Equal(t, "Edit", first.Name)

	second, err := store.CreatePermission(ctx, params)
	require.NoError(t, err)
	require.Equal(t, "Edi1t", second.Name)
	require.NotEqual(t, first.ID, second.ID)
}

func TestCreateCollisionIncrementsSuffix(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()
	params := CreateParams{Name: "Foo_2", Origin: 9}

	first, err := store.CreatePermission(ctx, params)
	require.NoError(t, err)
	require.Equal(t, "Foo_2", first.Name)

	second, err := store.CreatePermission(ctx, params)
	require.NoError(t, err)
	require.Equal(t, "Foo_3", second.Name)
}

func TestCreateZeroOriginForcesGlobal(t *testing.T) {
	store := newSeededStore(t)

	perm, err := store.CreatePermission(context.Background(), CreateParams{Name: "system.task"})
	require.NoError(t, err)
	require.True(t, perm.Global)
	require.Zero(t, perm.Origin)
}

func TestCreateRecordsRouteProvenance(t *testing.T) {
	store := newSeededStore(t)
	route := &origin.Route{Area: "Admin", Controller: "Users", Action: "List"}

	perm, err := store.CreatePermission(context.Background(), CreateParams{
		Name:   "users.list",
		Origin: origin.EncodeRoute(*route),
		Route:  route,
	})
	require.NoError(t, err)
	require.Equal(t, "Admin", perm.AreaName)
	require.Equal(t, "Users", perm.ControllerName)
	require.Equal(t, "List", perm.ActionName)
	require.False(t, perm.Global)
}

func TestScopeSeparatesGlobalFromLocal(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	local, err := store.CreatePermission(ctx, CreateParams{Name: "Edit", Origin: 5})
	require.NoError(t, err)
	global, err := store.CreatePermission(ctx, CreateParams{Name: "Edit", Global: true})
	require.NoError(t, err)

	// Same name lives in both scopes without disambiguation.
	require.Equal(t, "Edit", local.Name)
	require.Equal(t, "Edit", global.Name)

	found, err := store.FindPermission(ctx, "Edit", 5, false)
	require.NoError(t, err)
	require.Equal(t, local.ID, found.ID)

	found, err = store.FindPermission(ctx, "Edit", 0, true)
	require.NoError(t, err)
	require.Equal(t, global.ID, found.ID)
}

func TestDeletePermission(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	err := store.DeletePermission(ctx, 12345)
	require.ErrorIs(t, err, shared.ErrNotFound)

	perm, err := store.CreatePermission(ctx, CreateParams{Name: "gone.soon", Origin: 3})
	require.NoError(t, err)
	require.NoError(t, store.DeletePermission(ctx, perm.ID))

	found, err := store.FindPermission(ctx, "gone.soon", 3, false)
	require.NoError(t, err)
	require.Nil(t, found)

	_, err = store.GetPermission(ctx, perm.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRolesForUserPrefersClaims(t *testing.T) {
	store := newSeededStore(t)

	principal := &identity.Principal{
		UserID:        "77",
		Authenticated: true,
		RoleClaims:    []string{"Auditor", "Operator"},
	}
	roles, err := store.RolesForUser(context.Background(), 77, principal)
	require.NoError(t, err)
	require.Equal(t, []string{"Auditor", "Operator"}, roles)
}

func TestRolesForUserMembershipQuery(t *testing.T) {
	store := newSeededStore(t)

	userID := store.AddUser("casey", "casey@example.com")
	require.NoError(t, store.AssignRole(userID, RoleUser))

	roles, err := store.RolesForUser(context.Background(), userID, nil)
	require.NoError(t, err)
	require.Equal(t, []string{RoleUser}, roles)
}

func TestRolesForUserInvalidArgument(t *testing.T) {
	store := newSeededStore(t)

	_, err := store.RolesForUser(context.Background(), 0, nil)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestInitialConfigurationIdempotent(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.InitialConfiguration(ctx))
	require.NoError(t, store.InitialConfiguration(ctx))

	if len(store.users) != 1 {
		t.Fatalf("expected exactly one bootstrap user, got %d", len(store.users))
	}
	if len(store.roles) != 2 {
		t.Fatalf("expected exactly two seed roles, got %d", len(store.roles))
	}
}

func TestGrantRepairRoundTrip(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	perm, err := store.CreatePermission(ctx, CreateParams{Name: "broken.grant", Origin: 8})
	require.NoError(t, err)

	store.RevokeGrants(perm.ID)

	ungranted, err := store.UngrantedPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, ungranted, 1)
	require.Equal(t, perm.ID, ungranted[0].ID)

	require.NoError(t, store.GrantAdministrator(ctx, perm.ID))
	// Re-granting is a no-op.
	require.NoError(t, store.GrantAdministrator(ctx, perm.ID))

	ungranted, err = store.UngrantedPermissions(ctx)
	require.NoError(t, err)
	require.Empty(t, ungranted)
}

func TestGrantAdministratorRequiresSeedRole(t *testing.T) {
	store := NewMemStore()

	err := store.GrantAdministrator(context.Background(), 1)
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected seed-role error, got %v", err)
	}
}
