package permission

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/origin"
	"github.com/gatewarden/gatewarden/internal/shared"
)

func newTestManager(t *testing.T) (*Manager, *MemStore) {
	t.Helper()
	store := newSeededStore(t)
	return NewManager(store, nil), store
}

func TestOrigin(t *testing.T) {
	manager, _ := newTestManager(t)

	if got := manager.Origin(nil); got != 0 {
		t.Fatalf("nil route must yield origin 0, got %d", got)
	}
	if got := manager.Origin(&origin.Route{}); got != 0 {
		t.Fatalf("empty route must yield origin 0, got %d", got)
	}
	route := &origin.Route{Area: "Admin", Controller: "Users", Action: "List"}
	if got, want := manager.Origin(route), origin.Encode("AdminUsersList"); got != want {
		t.Fatalf("origin mismatch: %d != %d", got, want)
	}
}

func TestCheckAdministratorGrantedImmediately(t *testing.T) {
	manager, _ := newTestManager(t)

	granted, err := manager.Check(context.Background(), "reports.view",
		[]string{RoleAdministrator}, CheckOptions{})
	require.NoError(t, err)
	require.True(t, granted, "administrator must pass right after implicit creation")
}

func TestCheckUserDeniedOnFreshPermission(t *testing.T) {
	manager, _ := newTestManager(t)

	granted, err := manager.Check(context.Background(), "reports.view",
		[]string{RoleUser}, CheckOptions{})
	require.NoError(t, err)
	require.False(t, granted, "only the administrator role is auto-granted")
}

func TestCheckEmptyNameInvalid(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.Check(context.Background(), "", []string{RoleAdministrator}, CheckOptions{})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestCheckCreatesOncePerOrigin(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	opts := CheckOptions{Route: &origin.Route{Controller: "Reports", Action: "View"}}

	for i := 0; i < 3; i++ {
		_, err := manager.Check(ctx, "reports.view", []string{RoleUser}, opts)
		require.NoError(t, err)
	}

	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, 1, "repeated checks must reuse the registered permission")
	require.Equal(t, origin.Encode("ReportsView"), perms[0].Origin)
}

func TestCheckDistinctOriginsRegisterSeparately(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()

	_, err := manager.Check(ctx, "edit", []string{RoleUser},
		CheckOptions{Route: &origin.Route{Controller: "Orders", Action: "Edit"}})
	require.NoError(t, err)
	_, err = manager.Check(ctx, "edit", []string{RoleUser},
		CheckOptions{Route: &origin.Route{Controller: "Invoices", Action: "Edit"}})
	require.NoError(t, err)

	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, 2, "same name at different call sites is two permissions")
}

func TestAuthorizeUnauthenticatedDeniesWithoutError(t *testing.T) {
	manager, _ := newTestManager(t)

	granted, err := manager.Authorize(context.Background(), "reports.view", CheckOptions{})
	require.NoError(t, err)
	require.False(t, granted)

	ctx := identity.ContextWithPrincipal(context.Background(), identity.Anonymous())
	granted, err = manager.Authorize(ctx, "reports.view", CheckOptions{})
	require.NoError(t, err)
	require.False(t, granted)
}

func TestAuthorizeMissingUserID(t *testing.T) {
	manager, _ := newTestManager(t)

	ctx := identity.ContextWithPrincipal(context.Background(),
		&identity.Principal{Authenticated: true})
	_, err := manager.Authorize(ctx, "reports.view", CheckOptions{})
	require.ErrorIs(t, err, shared.ErrAuthenticationRequired)

	ctx = identity.ContextWithPrincipal(context.Background(),
		&identity.Principal{Authenticated: true, UserID: "not-a-number"})
	_, err = manager.Authorize(ctx, "reports.view", CheckOptions{})
	require.ErrorIs(t, err, shared.ErrAuthenticationRequired)
}

func TestAuthorizeWithRoleClaims(t *testing.T) {
	manager, _ := newTestManager(t)

	ctx := identity.ContextWithPrincipal(context.Background(), &identity.Principal{
		UserID:        "41",
		Authenticated: true,
		RoleClaims:    []string{RoleAdministrator},
	})
	granted, err := manager.Authorize(ctx, "reports.view", CheckOptions{})
	require.NoError(t, err)
	require.True(t, granted)
}

func TestAuthorizeViaStoreMembership(t *testing.T) {
	manager, store := newTestManager(t)

	userID := store.AddUser("rae", "rae@example.com")
	require.NoError(t, store.AssignRole(userID, RoleUser))

	ctx := identity.ContextWithPrincipal(context.Background(), &identity.Principal{
		UserID:        strconv.FormatInt(userID, 10),
		Authenticated: true,
	})
	granted, err := manager.Authorize(ctx, "reports.view", CheckOptions{})
	require.NoError(t, err)
	require.False(t, granted, "plain user is not granted a fresh permission")

	require.NoError(t, store.AssignRole(userID, RoleAdministrator))
	granted, err = manager.Authorize(ctx, "reports.view", CheckOptions{})
	require.NoError(t, err)
	require.True(t, granted)
}
