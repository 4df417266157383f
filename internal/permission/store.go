package permission

import (
	"context"
	"strconv"
	"strings"

	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/origin"
)

// CreateParams collects the inputs for permission creation. Route, when
// set, is recorded as provenance metadata only and never used in lookup.
type CreateParams struct {
	Name        string
	Origin      int64
	Description string
	Global      bool
	Route       *origin.Route
}

// Store defines persistence operations for permissions and the role
// memberships behind every authorization decision.
//
// FindPermission treats absence as a valid outcome and returns a nil
// permission without error. CreatePermission owns the uniqueness policy:
// a create that collides with an existing name produces a renamed
// sibling, never an overwrite, and every created permission carries the
// Administrator grant before it is returned.
type Store interface {
	FindPermission(ctx context.Context, name string, org int64, global bool) (*Permission, error)
	CreatePermission(ctx context.Context, params CreateParams) (*Permission, error)
	GetPermission(ctx context.Context, id int64) (*Permission, error)
	DeletePermission(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)

	// RolesForUser returns the caller's role names. Role claims carried
	// by the principal short-circuit the store query.
	RolesForUser(ctx context.Context, userID int64, principal *identity.Principal) ([]string, error)
	// RolesForPermission returns the names of roles granted the permission.
	RolesForPermission(ctx context.Context, perm *Permission) ([]string, error)

	// UngrantedPermissions surfaces permissions left without any role
	// link by the create/grant partial-failure window; GrantAdministrator
	// re-attaches the Administrator grant idempotently.
	UngrantedPermissions(ctx context.Context) ([]Permission, error)
	GrantAdministrator(ctx context.Context, permissionID int64) error

	// InitialConfiguration seeds the well-known roles and ensures an
	// Administrator member exists. Safe to call repeatedly.
	InitialConfiguration(ctx context.Context) error
}

// disambiguate derives a sibling name for a colliding create request.
// A trailing "_<n>" suffix is incremented; otherwise the digit 1 is
// inserted just before the last character. The result stays loosely
// traceable to the permission it collided with.
func disambiguate(name string) string {
	segments := strings.Split(name, "_")
	last := segments[len(segments)-1]
	if n, err := strconv.Atoi(last); err == nil && n != 0 {
		segments[len(segments)-1] = strconv.Itoa(n + 1)
		return strings.Join(segments, "_")
	}
	runes := []rune(name)
	if len(runes) < 2 {
		return "1" + name
	}
	return string(runes[:len(runes)-1]) + "1" + string(runes[len(runes)-1:])
}
