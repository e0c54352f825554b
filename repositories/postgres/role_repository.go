package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/repositories"
	"go.uber.org/zap"
)

// RoleRepository implements the repositories.RoleRepository interface
type RoleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB, logger *zap.Logger) repositories.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

func scanRole(row rowScanner) (*models.Role, error) {
	var (
		role        models.Role
		description sql.NullString
	)
	if err := row.Scan(&role.ID, &role.RoleName, &description); err != nil {
		return nil, err
	}
	role.Description = description.String
	return &role, nil
}

// Create creates a new role
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	query := `INSERT INTO roles (id, role_name, description) VALUES ($1, $2, $3)`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, role.ID, role.RoleName, role.Description)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", classifyError(err))
	}

	r.logger.Debug("role created", zap.String("id", role.ID.String()), zap.String("role_name", role.RoleName))
	return nil
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	return r.getOne(ctx, `SELECT id, role_name, description FROM roles WHERE id = $1`, id)
}

// GetByName retrieves a role by name
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	return r.getOne(ctx, `SELECT id, role_name, description FROM roles WHERE role_name = $1`, name)
}

func (r *RoleRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Role, error) {
	role, err := scanRole(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// List returns every role ordered by name
func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, `SELECT id, role_name, description FROM roles ORDER BY role_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	roles := []*models.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}
	return roles, nil
}

// Delete removes a role and its permission links
func (r *RoleRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete role: %w", classifyError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// AttachPermission links a permission to a role
func (r *RoleRepository) AttachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	query := `
		INSERT INTO roles_permissions (id, role_id, permission_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, uuid.New(), roleID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to attach permission: %w", classifyError(err))
	}
	return nil
}

// DetachPermission unlinks a permission from a role
func (r *RoleRepository) DetachPermission(ctx context.Context, roleID, permissionID uuid.UUID) (bool, error) {
	query := `DELETE FROM roles_permissions WHERE role_id = $1 AND permission_id = $2`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, roleID, permissionID)
	if err != nil {
		return false, fmt.Errorf("failed to detach permission: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListPermissions returns the permissions bundled in a role
func (r *RoleRepository) ListPermissions(ctx context.Context, roleID uuid.UUID) ([]*models.Permission, error) {
	query := `
		SELECT p.id, p.permission_name, p.description
		FROM permissions p
		JOIN roles_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.permission_name
	`
	return listPermissions(ctx, GetExecutor(ctx, r.db), query, roleID)
}
