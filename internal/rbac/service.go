package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrDuplicate indicates a name collision on role or permission.
	ErrDuplicate = errors.New("rbac: duplicate name")
)

// Service orchestrates role and permission operations.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const roleSelect = `SELECT id, name, COALESCE(description,''), created_at, updated_at FROM roles`

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx, roleSelect+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, roleSelect+` WHERE id=$1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	var role Role
	err := s.pool.QueryRow(ctx, `INSERT INTO roles (name, description, created_at, updated_at)
VALUES ($1,$2,NOW(),NOW()) RETURNING id, name, COALESCE(description,''), created_at, updated_at`,
		name, strings.TrimSpace(description)).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, translateErr(err)
	}
	return role, nil
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	var role Role
	err := s.pool.QueryRow(ctx, `UPDATE roles SET name=$1, description=$2, updated_at=NOW()
WHERE id=$3 RETURNING id, name, COALESCE(description,''), created_at, updated_at`,
		name, strings.TrimSpace(description), id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, translateErr(err)
	}
	return role, nil
}

// DeleteRole removes a role by ID. Returns ErrNotFound if nothing was deleted.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, COALESCE(description,'') FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// EnsurePermission upserts a permission ensuring description is stored.
func (s *Service) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := s.pool.QueryRow(ctx, `INSERT INTO permissions (name, description)
VALUES ($1,$2) ON CONFLICT (name) DO UPDATE SET description=EXCLUDED.description
RETURNING id, name, COALESCE(description,'')`,
		strings.TrimSpace(name), strings.TrimSpace(description)).
		Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// SeedPermissions ensures every warehouse capability exists as a row.
func (s *Service) SeedPermissions(ctx context.Context) error {
	for _, scope := range shared.WarehouseScopes() {
		if _, err := s.EnsurePermission(ctx, scope, ""); err != nil {
			return err
		}
	}
	return nil
}

// SetRolePermissions replaces permissions for a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id=$1`, roleID); err != nil {
		return err
	}
	for _, id := range permissionIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id, created_at)
VALUES ($1,$2,NOW()) ON CONFLICT DO NOTHING`, roleID, id); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AssignRole assigns a role to the given user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, created_at)
VALUES ($1,$2,NOW()) ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id=$1 AND role_id=$2`, userID, roleID)
	return err
}

// EffectivePermissions returns deduplicated permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT p.name FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
JOIN user_roles ur ON ur.role_id = rp.role_id
WHERE ur.user_id=$1 ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

// IsSuperuser reports whether the user bypasses permission checks.
func (s *Service) IsSuperuser(ctx context.Context, userID int64) (bool, error) {
	var super bool
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(is_superuser,false) FROM users WHERE id=$1`, userID).Scan(&super)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return super, nil
}

func translateErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
