package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/repositories"
	"go.uber.org/zap"
)

// PermissionRepository implements the repositories.PermissionRepository interface
type PermissionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *DB, logger *zap.Logger) repositories.PermissionRepository {
	return &PermissionRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureCatalogEntry inserts a catalog entry unless the title already exists
func (r *PermissionRepository) EnsureCatalogEntry(ctx context.Context, entry models.PermissionCatalogEntry) error {
	query := `
		INSERT INTO enums_permission_names (title, description)
		VALUES ($1, $2)
		ON CONFLICT (title) DO NOTHING
	`

	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, string(entry.Title), entry.Description); err != nil {
		return fmt.Errorf("failed to ensure catalog entry %s: %w", entry.Title, err)
	}
	return nil
}

// ListCatalog returns every catalog entry
func (r *PermissionRepository) ListCatalog(ctx context.Context) ([]models.PermissionCatalogEntry, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, `SELECT title, description FROM enums_permission_names ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to query permission catalog: %w", err)
	}
	defer rows.Close()

	entries := []models.PermissionCatalogEntry{}
	for rows.Next() {
		var (
			entry       models.PermissionCatalogEntry
			description sql.NullString
		)
		if err := rows.Scan(&entry.Title, &description); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		entry.Description = description.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog rows: %w", err)
	}
	return entries, nil
}

// Create inserts a permission. A title missing from the catalog yields repositories.ErrReferenced.
func (r *PermissionRepository) Create(ctx context.Context, permission *models.Permission) error {
	query := `INSERT INTO permissions (id, permission_name, description) VALUES ($1, $2, $3)`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		permission.ID,
		string(permission.PermissionName),
		permission.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", classifyError(err))
	}
	return nil
}

// GetByName returns the permission row for a catalog title
func (r *PermissionRepository) GetByName(ctx context.Context, name models.PermissionName) (*models.Permission, error) {
	query := `SELECT id, permission_name, description FROM permissions WHERE permission_name = $1`

	permission, err := scanPermission(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, string(name)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return permission, nil
}

// List returns every permission row
func (r *PermissionRepository) List(ctx context.Context) ([]*models.Permission, error) {
	query := `SELECT id, permission_name, description FROM permissions ORDER BY permission_name`
	return listPermissions(ctx, GetExecutor(ctx, r.db), query)
}

func scanPermission(row rowScanner) (*models.Permission, error) {
	var (
		permission  models.Permission
		description sql.NullString
	)
	if err := row.Scan(&permission.ID, &permission.PermissionName, &description); err != nil {
		return nil, err
	}
	permission.Description = description.String
	return &permission, nil
}

func listPermissions(ctx context.Context, executor Executor, query string, args ...interface{}) ([]*models.Permission, error) {
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	permissions := []*models.Permission{}
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission rows: %w", err)
	}
	return permissions, nil
}
