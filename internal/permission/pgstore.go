package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/platform/db"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// BootstrapAdmin holds the default administrator account created when no
// user carries the Administrator role. A documented configuration
// default; override before any production deployment.
type BootstrapAdmin struct {
	Username string
	Email    string
	Password string
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool      *pgxpool.Pool
	bootstrap BootstrapAdmin
}

// NewPGStore constructs a PostgreSQL store.
func NewPGStore(pool *pgxpool.Pool, bootstrap BootstrapAdmin) *PGStore {
	return &PGStore{pool: pool, bootstrap: bootstrap}
}

const permissionColumns = `id, name, description, origin, is_global, area_name, controller_name, action_name`

// FindPermission looks a permission up within its scope. Global lookups
// (explicit or origin 0) match global rows by name; local lookups match
// non-global rows by name and origin. Absence returns nil, nil.
func (s *PGStore) FindPermission(ctx context.Context, name string, org int64, global bool) (*Permission, error) {
	if name == "" {
		return nil, fmt.Errorf("permission name: %w", shared.ErrInvalidArgument)
	}

	var row pgx.Row
	if global || org == 0 {
		row = s.pool.QueryRow(ctx,
			`SELECT `+permissionColumns+` FROM permissions WHERE name = $1 AND is_global ORDER BY id LIMIT 1`, name)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT `+permissionColumns+` FROM permissions WHERE name = $1 AND origin = $2 AND NOT is_global ORDER BY id LIMIT 1`,
			name, org)
	}

	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return perm, nil
}

const maxCreateAttempts = 10

// CreatePermission inserts a permission, renaming on collision, then
// grants the Administrator role as a second commit point. A failure
// between the two commits leaves the permission persisted but ungranted;
// the grant-repair job heals that window.
func (s *PGStore) CreatePermission(ctx context.Context, params CreateParams) (*Permission, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("permission name: %w", shared.ErrInvalidArgument)
	}

	global := params.Global || params.Origin == 0
	name := params.Name

	existing, err := s.FindPermission(ctx, name, params.Origin, global)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Name == name {
		name = disambiguate(existing.Name)
	}

	var perm *Permission
	for attempt := 0; ; attempt++ {
		perm, err = s.insertPermission(ctx, name, params, global)
		if err == nil {
			break
		}
		if isUniqueViolation(err) && attempt < maxCreateAttempts {
			name = disambiguate(name)
			continue
		}
		return nil, err
	}

	if err := s.GrantAdministrator(ctx, perm.ID); err != nil {
		return nil, fmt.Errorf("%w: permission %d persisted without administrator grant: %v",
			shared.ErrPartialWrite, perm.ID, err)
	}

	roles, err := s.rolePermissionLinks(ctx, perm.ID)
	if err != nil {
		return nil, err
	}
	perm.Roles = roles
	return perm, nil
}

func (s *PGStore) insertPermission(ctx context.Context, name string, params CreateParams, global bool) (*Permission, error) {
	perm := &Permission{
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

	err := s.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, description, origin, is_global, area_name, controller_name, action_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		perm.Name,
		nullableText(perm.Description),
		perm.Origin,
		perm.Global,
		nullableText(perm.AreaName),
		nullableText(perm.ControllerName),
		nullableText(perm.ActionName),
	).Scan(&perm.ID)
	if err != nil {
		return nil, err
	}
	return perm, nil
}

// GetPermission fetches a permission by ID.
func (s *PGStore) GetPermission(ctx context.Context, id int64) (*Permission, error) {
	if id == 0 {
		return nil, fmt.Errorf("permission id: %w", shared.ErrInvalidArgument)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	roles, err := s.rolePermissionLinks(ctx, perm.ID)
	if err != nil {
		return nil, err
	}
	perm.Roles = roles
	return perm, nil
}

// DeletePermission removes a permission; role links cascade.
func (s *PGStore) DeletePermission(ctx context.Context, id int64) error {
	if id == 0 {
		return fmt.Errorf("permission id: %w", shared.ErrInvalidArgument)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *perm)
	}
	return perms, rows.Err()
}

// RolesForUser returns the caller's role names, preferring role claims
// already carried by the principal over a membership query.
func (s *PGStore) RolesForUser(ctx context.Context, userID int64, principal *identity.Principal) ([]string, error) {
	if userID == 0 && principal == nil {
		return nil, fmt.Errorf("user id: %w", shared.ErrInvalidArgument)
	}
	if principal != nil && len(principal.RoleClaims) > 0 {
		roles := make([]string, len(principal.RoleClaims))
		copy(roles, principal.RoleClaims)
		return roles, nil
	}
	return s.queryRoleNames(ctx,
		`SELECT r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id = $1 ORDER BY r.name`,
		userID)
}

// RolesForPermission returns names of roles linked to the permission.
func (s *PGStore) RolesForPermission(ctx context.Context, perm *Permission) ([]string, error) {
	if perm == nil || perm.ID == 0 {
		return nil, fmt.Errorf("permission: %w", shared.ErrInvalidArgument)
	}
	return s.queryRoleNames(ctx,
		`SELECT r.name FROM roles r JOIN role_permissions rp ON rp.role_id = r.id WHERE rp.permission_id = $1 ORDER BY r.name`,
		perm.ID)
}

// UngrantedPermissions returns permissions with no role link at all.
func (s *PGStore) UngrantedPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+permissionColumns+` FROM permissions p
		 WHERE NOT EXISTS (SELECT 1 FROM role_permissions rp WHERE rp.permission_id = p.id)
		 ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *perm)
	}
	return perms, rows.Err()
}

// GrantAdministrator attaches the Administrator role to the permission.
// Idempotent: re-granting an existing link is a no-op.
func (s *PGStore) GrantAdministrator(ctx context.Context, permissionID int64) error {
	if permissionID == 0 {
		return fmt.Errorf("permission id: %w", shared.ErrInvalidArgument)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id)
		 SELECT r.id, $1 FROM roles r WHERE r.name = $2
		 ON CONFLICT DO NOTHING`,
		permissionID, RoleAdministrator)
	return err
}

// InitialConfiguration seeds the two well-known roles and ensures at
// least one user holds the Administrator role, creating the default
// administrator account otherwise. Existence-checked throughout so that
// racing first requests both calling it stay harmless.
func (s *PGStore) InitialConfiguration(ctx context.Context) error {
	for _, seed := range []Role{
		{Name: RoleAdministrator, Title: roleAdministratorTitle},
		{Name: RoleUser, Title: roleUserTitle},
	} {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, seed.Name).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO roles (name, title) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			seed.Name, seed.Title); err != nil {
			return err
		}
	}

	var hasAdmin bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE r.name = $1
		)`, RoleAdministrator).Scan(&hasAdmin); err != nil {
		return err
	}
	if hasAdmin {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.bootstrap.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var userID int64
		err := tx.QueryRow(ctx,
			`SELECT id FROM users WHERE username = $1`, s.bootstrap.Username).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.QueryRow(ctx,
				`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id`,
				s.bootstrap.Username, s.bootstrap.Email, string(hash)).Scan(&userID)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id)
			 SELECT $1, r.id FROM roles r WHERE r.name = $2
			 ON CONFLICT DO NOTHING`,
			userID, RoleAdministrator)
		return err
	})
}

func (s *PGStore) queryRoleNames(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PGStore) rolePermissionLinks(ctx context.Context, permissionID int64) ([]RolePermissionLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role_id, permission_id FROM role_permissions WHERE permission_id = $1 ORDER BY role_id`,
		permissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []RolePermissionLink
	for rows.Next() {
		var link RolePermissionLink
		if err := rows.Scan(&link.RoleID, &link.PermissionID); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func scanPermission(row pgx.Row) (*Permission, error) {
	var (
		perm                     Permission
		description              pgtype.Text
		area, controller, action pgtype.Text
	)
	if err := row.Scan(&perm.ID, &perm.Name, &description, &perm.Origin, &perm.Global,
		&area, &controller, &action); err != nil {
		return nil, err
	}
	perm.Description = description.String
	perm.AreaName = area.String
	perm.ControllerName = controller.String
	perm.ActionName = action.String
	return &perm, nil
}

func nullableText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*PGStore)(nil)
