// Package permission implements origin-scoped permission authorization:
// permissions are registered lazily at their first check, bound to the
// Administrator role, and evaluated against the caller's role set.
package permission

// Permission represents a named capability tied to the call site that
// first registered it. Origin 0 means outside routing scope and forces
// the permission global.
type Permission struct {
	ID             int64
	Name           string
	Description    string
	Origin         int64
	Global         bool
	AreaName       string
	ControllerName string
	ActionName     string
	Roles          []RolePermissionLink
}

// RolePermissionLink grants a permission to a role. The pair is the
// identity; there is no surrogate key.
type RolePermissionLink struct {
	RoleID       int64
	PermissionID int64
}

// Role represents a high-level permission grouping.
type Role struct {
	ID    int64
	Name  string
	Title string
}

// Seed roles guaranteed to exist after InitialConfiguration.
const (
	RoleAdministrator = "Administrator"
	RoleUser          = "User"
)

const (
	roleAdministratorTitle = "Super Administrator"
	roleUserTitle          = "General User"
)

// PermManagePermissions guards the permission admin API.
const PermManagePermissions = "permissions.manage"
