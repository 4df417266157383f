package permission

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// MemStore is an in-memory Store. It backs tests and lets callers build
// a fresh manager without a database. All operations take a single lock,
// so the find-then-create window that exists across two database commits
// does not occur here.
type MemStore struct {
	mu sync.Mutex

	nextPermissionID int64
	nextRoleID       int64
	nextUserID       int64

	permissions map[int64]*Permission
	roles       map[int64]*Role
	rolesByName map[string]int64
	userRoles   map[int64]map[int64]struct{} // userID -> role IDs
	permRoles   map[int64]map[int64]struct{} // permissionID -> role IDs
	users       map[int64]*memUser

	bootstrap BootstrapAdmin
}

type memUser struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
}

// NewMemStore constructs an empty in-memory store with the default
// bootstrap administrator credential.
func NewMemStore() *MemStore {
	return &MemStore{
		permissions: make(map[int64]*Permission),
		roles:       make(map[int64]*Role),
		rolesByName: make(map[string]int64),
		userRoles:   make(map[int64]map[int64]struct{}),
		permRoles:   make(map[int64]map[int64]struct{}),
		users:       make(map[int64]*memUser),
		bootstrap:   BootstrapAdmin{Username: "Admin", Email: "Admin@here.com", Password: "Admin@123"},
	}
}

// FindPermission returns the first in-scope match by ascending ID, or
// nil without error when absent.
func (s *MemStore) FindPermission(ctx context.Context, name string, org int64, global bool) (*Permission, error) {
	if name == "" {
		return nil, fmt.Errorf("permission name: %w", shared.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if perm := s.findLocked(name, org, global); perm != nil {
		return s.cloneLocked(perm), nil
	}
	return nil, nil
}

func (s *MemStore) findLocked(name string, org int64, global bool) *Permission {
	for _, id := range s.sortedPermissionIDs() {
		perm := s.permissions[id]
		if perm.Name != name {
			continue
		}
		if global || org == 0 {
			if perm.Global {
				return perm
			}
			continue
		}
		if !perm.Global && perm.Origin == org {
			return perm
		}
	}
	return nil
}

// CreatePermission inserts a permission, renaming on collision, and
// grants the Administrator role before returning.
func (s *MemStore) CreatePermission(ctx context.Context, params CreateParams) (*Permission, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("permission name: %w", shared.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	global := params.Global || params.Origin == 0
	name := params.Name
	for s.findLocked(name, params.Origin, global) != nil {
		name = disambiguate(name)
	}

	s.nextPermissionID++
	perm := &Permission{
		ID:          s.nextPermissionID,
		Name:        name,
		Description: params.Description,
		Origin:      params.Origin,
		Global:      global,
	}
	if params.Route != nil {
		perm.AreaName = params.Route.Area
		perm.ControllerName = params.Route.Controller
		perm.ActionName = params.Route.Action
	}
	s.permissions[perm.ID] = perm

	if err := s.grantAdministratorLocked(perm.ID); err != nil {
		return nil, err
	}
	return s.cloneLocked(perm), nil
}

// GetPermission fetches a permission by ID.
func (s *MemStore) GetPermission(ctx context.Context, id int64) (*Permission, error) {
	if id == 0 {
		return nil, fmt.Errorf("permission id: %w", shared.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.permissions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return s.cloneLocked(perm), nil
}

// DeletePermission removes the permission and its role links.
func (s *MemStore) DeletePermission(ctx context.Context, id int64) error {
	if id == 0 {
		return fmt.Errorf("permission id: %w", shared.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.permissions, id)
	delete(s.permRoles, id)
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (s *MemStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perms := make([]Permission, 0, len(s.permissions))
	for _, id := range s.sortedPermissionIDs() {
		perms = append(perms, *s.cloneLocked(s.permissions[id]))
	}
	sort.SliceStable(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

// RolesForUser returns the caller's role names, preferring principal
// role claims.
func (s *MemStore) RolesForUser(ctx context.Context, userID int64, principal *identity.Principal) ([]string, error) {
	if userID == 0 && principal == nil {
		return nil, fmt.Errorf("user id: %w", shared.ErrInvalidArgument)
	}
	if principal != nil && len(principal.RoleClaims) > 0 {
		roles := make([]string, len(principal.RoleClaims))
		copy(roles, principal.RoleClaims)
		return roles, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for roleID := range s.userRoles[userID] {
		if role, ok := s.roles[roleID]; ok {
			names = append(names, role.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// RolesForPermission returns names of roles linked to the permission.
func (s *MemStore) RolesForPermission(ctx context.Context, perm *Permission) ([]string, error) {
	if perm == nil || perm.ID == 0 {
		return nil, fmt.Errorf("permission: %w", shared.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for roleID := range s.permRoles[perm.ID] {
		if role, ok := s.roles[roleID]; ok {
			names = append(names, role.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// UngrantedPermissions returns permissions with no role link.
func (s *MemStore) UngrantedPermissions(ctx context.Context) ([]Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var perms []Permission
	for _, id := range s.sortedPermissionIDs() {
		if len(s.permRoles[id]) == 0 {
			perms = append(perms, *s.cloneLocked(s.permissions[id]))
		}
	}
	return perms, nil
}

// GrantAdministrator attaches the Administrator role idempotently.
func (s *MemStore) GrantAdministrator(ctx context.Context, permissionID int64) error {
	if permissionID == 0 {
		return fmt.Errorf("permission id: %w", shared.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantAdministratorLocked(permissionID)
}

func (s *MemStore) grantAdministratorLocked(permissionID int64) error {
	roleID, ok := s.rolesByName[RoleAdministrator]
	if !ok {
		return fmt.Errorf("role %q not seeded: %w", RoleAdministrator, shared.ErrNotFound)
	}
	if s.permRoles[permissionID] == nil {
		s.permRoles[permissionID] = make(map[int64]struct{})
	}
	s.permRoles[permissionID][roleID] = struct{}{}
	return nil
}

// InitialConfiguration seeds the well-known roles and the default
// administrator account. Idempotent.
func (s *MemStore) InitialConfiguration(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seed := range []Role{
		{Name: RoleAdministrator, Title: roleAdministratorTitle},
		{Name: RoleUser, Title: roleUserTitle},
	} {
		if _, ok := s.rolesByName[seed.Name]; ok {
			continue
		}
		s.nextRoleID++
		role := seed
		role.ID = s.nextRoleID
		s.roles[role.ID] = &role
		s.rolesByName[role.Name] = role.ID
	}

	adminRoleID := s.rolesByName[RoleAdministrator]
	for _, roleIDs := range s.userRoles {
		if _, ok := roleIDs[adminRoleID]; ok {
			return nil
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.bootstrap.Password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.nextUserID++
	admin := &memUser{
		ID:           s.nextUserID,
		Username:     s.bootstrap.Username,
		Email:        s.bootstrap.Email,
		PasswordHash: string(hash),
	}
	s.users[admin.ID] = admin
	s.userRoles[admin.ID] = map[int64]struct{}{adminRoleID: {}}
	return nil
}

// AddUser registers a user account and returns its ID. Test seam.
func (s *MemStore) AddUser(username, email string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	s.users[s.nextUserID] = &memUser{ID: s.nextUserID, Username: username, Email: email}
	return s.nextUserID
}

// AssignRole adds the named role to the user's memberships.
func (s *MemStore) AssignRole(userID int64, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	roleID, ok := s.rolesByName[roleName]
	if !ok {
		return fmt.Errorf("role %q: %w", roleName, shared.ErrNotFound)
	}
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[int64]struct{})
	}
	s.userRoles[userID][roleID] = struct{}{}
	return nil
}

// RevokeGrants detaches every role from the permission, recreating the
// ungranted state the repair job looks for. Test seam.
func (s *MemStore) RevokeGrants(permissionID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.permRoles, permissionID)
}

func (s *MemStore) sortedPermissionIDs() []int64 {
	ids := make([]int64, 0, len(s.permissions))
	for id := range s.permissions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemStore) cloneLocked(perm *Permission) *Permission {
	clone := *perm
	clone.Roles = nil
	for roleID := range s.permRoles[perm.ID] {
		clone.Roles = append(clone.Roles, RolePermissionLink{RoleID: roleID, PermissionID: perm.ID})
	}
	sort.Slice(clone.Roles, func(i, j int) bool { return clone.Roles[i].RoleID < clone.Roles[j].RoleID })
	return &clone
}

var _ Store = (*MemStore)(nil)
