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

const userRoleColumns = `id, user_id, role_id, target_user_id, created_at, updated_at`

// UserRoleRepository implements the repositories.UserRoleRepository interface
type UserRoleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRoleRepository creates a new user role repository
func NewUserRoleRepository(db *DB, logger *zap.Logger) repositories.UserRoleRepository {
	return &UserRoleRepository{
		db:     db,
		logger: logger,
	}
}

func scanUserRole(row rowScanner) (*models.UserRole, error) {
	var (
		ur     models.UserRole
		target uuid.NullUUID
	)
	if err := row.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &target, &ur.CreatedAt, &ur.UpdatedAt); err != nil {
		return nil, err
	}
	ur.TargetUserID = uuidPtr(target)
	ur.CreatedAt = ur.CreatedAt.UTC()
	ur.UpdatedAt = ur.UpdatedAt.UTC()
	return &ur, nil
}

// Find returns the assignment matching (user, role, target) exactly
func (r *UserRoleRepository) Find(ctx context.Context, userID, roleID uuid.UUID, target *uuid.UUID) (*models.UserRole, error) {
	query := `SELECT ` + userRoleColumns + ` FROM users_roles WHERE user_id = $1 AND role_id = $2 AND target_user_id IS NULL`
	args := []interface{}{userID, roleID}
	if target != nil {
		query = `SELECT ` + userRoleColumns + ` FROM users_roles WHERE user_id = $1 AND role_id = $2 AND target_user_id = $3`
		args = append(args, *target)
	}

	ur, err := scanUserRole(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user role: %w", err)
	}
	return ur, nil
}

// Create inserts an assignment
func (r *UserRoleRepository) Create(ctx context.Context, ur *models.UserRole) error {
	query := `
		INSERT INTO users_roles (` + userRoleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		ur.ID,
		ur.UserID,
		ur.RoleID,
		nullUUID(ur.TargetUserID),
		ur.CreatedAt.UTC(),
		ur.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create user role: %w", classifyError(err))
	}

	r.logger.Debug("user role created",
		zap.String("user_id", ur.UserID.String()),
		zap.String("role_id", ur.RoleID.String()),
		zap.Bool("scoped", ur.IsScoped()))
	return nil
}

// Delete removes an assignment by id
func (r *UserRoleRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM users_roles WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListByUser returns every assignment held by a user, oldest first
func (r *UserRoleRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.UserRole, error) {
	query := `SELECT ` + userRoleColumns + ` FROM users_roles WHERE user_id = $1 ORDER BY created_at`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	out := []*models.UserRole{}
	for rows.Next() {
		ur, err := scanUserRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		out = append(out, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user role rows: %w", err)
	}
	return out, nil
}

// HasPermission walks user -> users_roles -> roles_permissions in one query
func (r *UserRoleRepository) HasPermission(ctx context.Context, userID, permissionID uuid.UUID, target *uuid.UUID) (bool, error) {
	query := `
		SELECT COUNT(1)
		FROM users_roles ur
		JOIN roles_permissions rp ON rp.role_id = ur.role_id
		WHERE ur.user_id = $1 AND rp.permission_id = $2 AND ur.target_user_id IS NULL
	`
	args := []interface{}{userID, permissionID}
	if target != nil {
		query = `
		SELECT COUNT(1)
		FROM users_roles ur
		JOIN roles_permissions rp ON rp.role_id = ur.role_id
		WHERE ur.user_id = $1 AND rp.permission_id = $2 AND ur.target_user_id = $3
	`
		args = append(args, *target)
	}

	var count int
	if err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return count > 0, nil
}
