package permission

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/internal/origin"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Manager orchestrates permission authorization on top of a Store. It
// holds no per-request state and is safe to share across in-flight
// requests; construct one at startup and inject it explicitly.
type Manager struct {
	store   Store
	metrics *observability.Metrics
}

// CheckOptions carries the optional inputs of a permission check.
type CheckOptions struct {
	Description string
	Global      bool
	Route       *origin.Route
}

// NewManager constructs a Manager. metrics may be nil.
func NewManager(store Store, metrics *observability.Metrics) *Manager {
	return &Manager{store: store, metrics: metrics}
}

// Origin hashes the route into the call-site identifier; a nil or empty
// route yields 0, the outside-routing-scope origin.
func (m *Manager) Origin(route *origin.Route) int64 {
	if route == nil {
		return 0
	}
	return origin.EncodeRoute(*route)
}

// Check is the authorization predicate: it resolves the origin, finds or
// lazily creates the permission, and grants access iff the caller's
// roles intersect the permission's granted roles.
func (m *Manager) Check(ctx context.Context, name string, callerRoles []string, opts CheckOptions) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("permission name: %w", shared.ErrInvalidArgument)
	}

	org := m.Origin(opts.Route)
	perm, err := m.store.FindPermission(ctx, name, org, opts.Global)
	if err != nil {
		return false, err
	}
	if perm == nil {
		perm, err = m.store.CreatePermission(ctx, CreateParams{
			Name:        name,
			Origin:      org,
			Description: opts.Description,
			Global:      opts.Global,
			Route:       opts.Route,
		})
		if err != nil {
			return false, err
		}
		m.metrics.PermissionAutoCreated()
	}

	granted, err := m.store.RolesForPermission(ctx, perm)
	if err != nil {
		return false, err
	}
	for _, role := range granted {
		if slices.Contains(callerRoles, role) {
			return true, nil
		}
	}
	return false, nil
}

// Authorize checks the named permission against the ambient caller
// identity. Unauthenticated callers are denied without error; an
// authenticated principal without a resolvable user id is an
// authentication failure.
func (m *Manager) Authorize(ctx context.Context, name string, opts CheckOptions) (bool, error) {
	principal := identity.PrincipalFromContext(ctx)
	if principal == nil || !principal.Authenticated {
		return false, nil
	}

	rawID := strings.TrimSpace(principal.UserID)
	if rawID == "" {
		return false, fmt.Errorf("principal user id: %w", shared.ErrAuthenticationRequired)
	}
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("principal user id %q: %w", rawID, shared.ErrAuthenticationRequired)
	}

	roles, err := m.store.RolesForUser(ctx, userID, principal)
	if err != nil {
		return false, err
	}
	return m.Check(ctx, name, roles, opts)
}

// Find looks a permission up by (name, origin, global scope).
func (m *Manager) Find(ctx context.Context, name string, org int64, global bool) (*Permission, error) {
	return m.store.FindPermission(ctx, name, org, global)
}

// Create registers a permission explicitly.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*Permission, error) {
	return m.store.CreatePermission(ctx, params)
}

// Get fetches a permission by ID.
func (m *Manager) Get(ctx context.Context, id int64) (*Permission, error) {
	return m.store.GetPermission(ctx, id)
}

// Delete removes a permission by ID.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	return m.store.DeletePermission(ctx, id)
}

// List returns all permissions.
func (m *Manager) List(ctx context.Context) ([]Permission, error) {
	return m.store.ListPermissions(ctx)
}

// PermissionRoles returns the role names granted the permission.
func (m *Manager) PermissionRoles(ctx context.Context, perm *Permission) ([]string, error) {
	return m.store.RolesForPermission(ctx, perm)
}

// UserRoles returns the caller's role names.
func (m *Manager) UserRoles(ctx context.Context, userID int64, principal *identity.Principal) ([]string, error) {
	return m.store.RolesForUser(ctx, userID, principal)
}

// InitialConfiguration runs the store bootstrap.
func (m *Manager) InitialConfiguration(ctx context.Context) error {
	return m.store.InitialConfiguration(ctx)
}
