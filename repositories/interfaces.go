package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/user-auth-api/models"
)

// Storage-level sentinels. Implementations translate driver errors into these
// so callers never inspect driver codes.
var (
	// ErrNotFound is returned by mutations that matched no row. Lookups
	// report absence as a nil result instead.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")

	// ErrReferenced is returned when a row cannot be removed because other
	// rows still point at it
	ErrReferenced = errors.New("record is still referenced")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository is the credential store for user accounts.
// Lookups return (nil, nil) when no user matches.
type UserRepository interface {
	// Create inserts a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByIDs retrieves every user whose id is in ids; unknown ids are skipped
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error)

	// ListCreatedBetween returns users created in (after, before), oldest first
	ListCreatedBetween(ctx context.Context, after, before time.Time) ([]*models.User, error)

	// Update persists username, email, password fields and updated_at
	Update(ctx context.Context, user *models.User) error

	// UpdateLastLogin sets last_login for a user
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// Delete removes a user; false when no user matched
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// RoleRepository handles roles and their permission bundles
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	List(ctx context.Context) ([]*models.Role, error)

	// Delete removes a role. Returns ErrReferenced while users hold it.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// AttachPermission links a permission to a role; linking twice is a no-op
	AttachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error

	// DetachPermission unlinks a permission; false when it was not linked
	DetachPermission(ctx context.Context, roleID, permissionID uuid.UUID) (bool, error)

	// ListPermissions returns the permissions bundled in a role
	ListPermissions(ctx context.Context, roleID uuid.UUID) ([]*models.Permission, error)
}

// PermissionRepository handles the permission catalog and permission rows
type PermissionRepository interface {
	// EnsureCatalogEntry inserts a catalog entry unless its title exists
	EnsureCatalogEntry(ctx context.Context, entry models.PermissionCatalogEntry) error

	// ListCatalog returns every catalog entry ordered by title
	ListCatalog(ctx context.Context) ([]models.PermissionCatalogEntry, error)

	// Create inserts a permission referencing a catalog title
	Create(ctx context.Context, permission *models.Permission) error

	// GetByName returns the permission row for a catalog title
	GetByName(ctx context.Context, name models.PermissionName) (*models.Permission, error)

	// List returns every permission row
	List(ctx context.Context) ([]*models.Permission, error)
}

// UserRoleRepository handles role assignments and the permission traversal
type UserRoleRepository interface {
	// Find returns the assignment for (user, role, target); a nil target
	// matches only the unscoped assignment
	Find(ctx context.Context, userID, roleID uuid.UUID, target *uuid.UUID) (*models.UserRole, error)

	// Create inserts an assignment
	Create(ctx context.Context, userRole *models.UserRole) error

	// Delete removes an assignment by id; false when it did not exist
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// ListByUser returns every assignment held by a user
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.UserRole, error)

	// HasPermission reports whether any assignment of the user grants the
	// permission. A nil target counts only unscoped assignments; a non-nil
	// target counts only assignments scoped to exactly that user.
	HasPermission(ctx context.Context, userID, permissionID uuid.UUID, target *uuid.UUID) (bool, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListByActor returns entries recorded for an acting user, newest first
	ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories groups every repository built on one connection
type Repositories struct {
	Users       UserRepository
	Roles       RoleRepository
	Permissions PermissionRepository
	UserRoles   UserRoleRepository
	AuditLogs   AuditRepository
}
