package models

import (
	"time"

	"github.com/google/uuid"
)

// PermissionName is an entry of the permission catalog
type PermissionName string

const (
	PermissionShadowUser       PermissionName = "ShadowUser"
	PermissionAdminSeeAllUsers PermissionName = "AdminSeeAllUsers"
	PermissionAdminManageRoles PermissionName = "AdminManageRoles"
)

// AdminRoleName is the role seeded with every catalog permission
const AdminRoleName = "Admin"

// PermissionCatalogEntry is a row of the permission catalog
type PermissionCatalogEntry struct {
	Title       PermissionName `json:"title" db:"title"`
	Description string         `json:"description" db:"description"`
}

// DefaultPermissionCatalog returns the catalog seeded at install time
func DefaultPermissionCatalog() []PermissionCatalogEntry {
	return []PermissionCatalogEntry{
		{Title: PermissionShadowUser, Description: "Can Shadow a user as admin"},
		{Title: PermissionAdminSeeAllUsers, Description: "Can get all users as admin"},
		{Title: PermissionAdminManageRoles, Description: "Can create roles and grant them to users"},
	}
}

// Role is a named bundle of permissions
type Role struct {
	ID          uuid.UUID `json:"id" db:"id"`
	RoleName    string    `json:"role_name" db:"role_name"`
	Description string    `json:"description,omitempty" db:"description"`
}

// TableName returns the table name for the Role model
func (Role) TableName() string {
	return "roles"
}

// NewRole creates a new Role instance
func NewRole(name, description string) *Role {
	return &Role{
		ID:          uuid.New(),
		RoleName:    name,
		Description: description,
	}
}

// Permission references a catalog entry
type Permission struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	PermissionName PermissionName `json:"permission_name" db:"permission_name"`
	Description    string         `json:"description,omitempty" db:"description"`
}

// TableName returns the table name for the Permission model
func (Permission) TableName() string {
	return "permissions"
}

// NewPermission creates a new Permission instance
func NewPermission(name PermissionName, description string) *Permission {
	return &Permission{
		ID:             uuid.New(),
		PermissionName: name,
		Description:    description,
	}
}

// RolePermission links a role to a permission
type RolePermission struct {
	ID           uuid.UUID `json:"id" db:"id"`
	RoleID       uuid.UUID `json:"role_id" db:"role_id"`
	PermissionID uuid.UUID `json:"permission_id" db:"permission_id"`
}

// UserRole assigns a role to a user. A non-nil TargetUserID scopes the
// assignment to actions against that one user.
type UserRole struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UserID       uuid.UUID  `json:"user_id" db:"user_id"`
	RoleID       uuid.UUID  `json:"role_id" db:"role_id"`
	TargetUserID *uuid.UUID `json:"target_user_id,omitempty" db:"target_user_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the UserRole model
func (UserRole) TableName() string {
	return "users_roles"
}

// NewUserRole creates a new UserRole instance
func NewUserRole(userID, roleID uuid.UUID, target *uuid.UUID) *UserRole {
	now := time.Now().UTC()
	return &UserRole{
		ID:           uuid.New(),
		UserID:       userID,
		RoleID:       roleID,
		TargetUserID: target,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsScoped reports whether the assignment applies to a single target user
func (ur *UserRole) IsScoped() bool {
	return ur.TargetUserID != nil
}
