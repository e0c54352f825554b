package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/repositories"
	"github.com/upb/user-auth-api/services/audit"
	"github.com/upb/user-auth-api/utils"
	"go.uber.org/zap"
)

// RoleDetail is a role together with the permissions it bundles
type RoleDetail struct {
	*models.Role
	Permissions []*models.Permission `json:"permissions"`
}

// RBACService answers permission questions and manages roles and grants
type RBACService struct {
	users       repositories.UserRepository
	roles       repositories.RoleRepository
	permissions repositories.PermissionRepository
	userRoles   repositories.UserRoleRepository
	txMgr       repositories.TransactionManager
	audit       *audit.AuditService
	logger      *zap.Logger
}

// NewRBACService creates an RBAC service. auditService may be nil.
func NewRBACService(repos *repositories.Repositories, txMgr repositories.TransactionManager, auditService *audit.AuditService, logger *zap.Logger) *RBACService {
	return &RBACService{
		users:       repos.Users,
		roles:       repos.Roles,
		permissions: repos.Permissions,
		userRoles:   repos.UserRoles,
		txMgr:       txMgr,
		audit:       auditService,
		logger:      logger,
	}
}

// HasPermission reports whether user holds permission through any role.
// With a nil target only unscoped assignments count; otherwise only
// assignments scoped to exactly that target count. Unknown permissions and
// store failures deny.
func (s *RBACService) HasPermission(ctx context.Context, user *models.User, name models.PermissionName, target *uuid.UUID) bool {
	if user == nil {
		return false
	}

	permission, err := s.permissions.GetByName(ctx, name)
	if err != nil {
		s.logger.Error("permission lookup failed", zap.String("permission", string(name)), zap.Error(err))
		return false
	}
	if permission == nil {
		s.logger.Warn("unknown permission checked", zap.String("permission", string(name)))
		return false
	}

	ok, err := s.userRoles.HasPermission(ctx, user.ID, permission.ID, target)
	if err != nil {
		s.logger.Error("permission check failed",
			zap.String("user_id", user.ID.String()),
			zap.String("permission", string(name)),
			zap.Error(err))
		return false
	}
	return ok
}

// HasPermissionFor reports whether user may act on target, either through an
// unscoped grant or one scoped to target
func (s *RBACService) HasPermissionFor(ctx context.Context, user *models.User, name models.PermissionName, target uuid.UUID) bool {
	return s.HasPermission(ctx, user, name, nil) || s.HasPermission(ctx, user, name, &target)
}

// CreateRole creates an empty role
func (s *RBACService) CreateRole(ctx context.Context, name, description string) (*models.Role, error) {
	name = strings.TrimSpace(name)
	if err := utils.ValidateRequired(name, "role_name"); err != nil {
		return nil, ErrInvalidInput.WithDetail("role_name", err.Error())
	}

	role := models.NewRole(name, description)
	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrRoleExists
		}
		return nil, WrapInternal("failed to create role", err)
	}

	s.logger.Info("role created", zap.String("role_id", role.ID.String()), zap.String("role_name", name))
	return role, nil
}

// ListRoles returns every role with its permissions
func (s *RBACService) ListRoles(ctx context.Context) ([]*RoleDetail, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, WrapInternal("failed to list roles", err)
	}

	details := make([]*RoleDetail, 0, len(roles))
	for _, role := range roles {
		perms, err := s.roles.ListPermissions(ctx, role.ID)
		if err != nil {
			return nil, WrapInternal("failed to list role permissions", err)
		}
		details = append(details, &RoleDetail{Role: role, Permissions: perms})
	}
	return details, nil
}

// DeleteRole removes a role that nobody holds
func (s *RBACService) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	deleted, err := s.roles.Delete(ctx, roleID)
	if err != nil {
		if errors.Is(err, repositories.ErrReferenced) {
			return ErrRoleInUse
		}
		return WrapInternal("failed to delete role", err)
	}
	if !deleted {
		return ErrRoleNotFound
	}
	return nil
}

// AttachPermission adds a catalog permission to a role
func (s *RBACService) AttachPermission(ctx context.Context, roleID uuid.UUID, name models.PermissionName) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return WrapInternal("failed to get role", err)
	}
	if role == nil {
		return ErrRoleNotFound
	}

	permission, err := s.permissions.GetByName(ctx, name)
	if err != nil {
		return WrapInternal("failed to get permission", err)
	}
	if permission == nil {
		return ErrPermissionNotFound
	}

	if err := s.roles.AttachPermission(ctx, role.ID, permission.ID); err != nil {
		return WrapInternal("failed to attach permission", err)
	}
	return nil
}

// DetachPermission removes a permission from a role. Detaching a permission
// the role does not bundle is ErrPermissionNotFound.
func (s *RBACService) DetachPermission(ctx context.Context, roleID uuid.UUID, name models.PermissionName) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return WrapInternal("failed to get role", err)
	}
	if role == nil {
		return ErrRoleNotFound
	}

	permission, err := s.permissions.GetByName(ctx, name)
	if err != nil {
		return WrapInternal("failed to get permission", err)
	}
	if permission == nil {
		return ErrPermissionNotFound
	}

	detached, err := s.roles.DetachPermission(ctx, role.ID, permission.ID)
	if err != nil {
		return WrapInternal("failed to detach permission", err)
	}
	if !detached {
		return ErrPermissionNotFound
	}
	return nil
}

// ListPermissionCatalog returns the permission names roles may bundle
func (s *RBACService) ListPermissionCatalog(ctx context.Context) ([]models.PermissionCatalogEntry, error) {
	catalog, err := s.permissions.ListCatalog(ctx)
	if err != nil {
		return nil, WrapInternal("failed to list permission catalog", err)
	}
	return catalog, nil
}

// GrantRole assigns a role, optionally scoped to target. Granting an
// assignment that already exists returns it unchanged. actor is nil for
// grants made by tooling; otherwise it needs an unscoped AdminManageRoles grant.
func (s *RBACService) GrantRole(ctx context.Context, actor *models.User, userID, roleID uuid.UUID, target *uuid.UUID) (*models.UserRole, error) {
	if err := s.requireManager(ctx, actor); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	if target != nil {
		if err := s.requireUser(ctx, *target); err != nil {
			return nil, err
		}
	}
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, WrapInternal("failed to get role", err)
	}
	if role == nil {
		return nil, ErrRoleNotFound
	}

	existing, err := s.userRoles.Find(ctx, userID, roleID, target)
	if err != nil {
		return nil, WrapInternal("failed to look up assignment", err)
	}
	if existing != nil {
		return existing, nil
	}

	assignment := models.NewUserRole(userID, roleID, target)
	if err := s.userRoles.Create(ctx, assignment); err != nil {
		if !errors.Is(err, repositories.ErrDuplicate) {
			return nil, WrapInternal("failed to grant role", err)
		}
		// lost a race with a concurrent grant
		existing, findErr := s.userRoles.Find(ctx, userID, roleID, target)
		if findErr != nil || existing == nil {
			return nil, WrapInternal("failed to grant role", err)
		}
		return existing, nil
	}

	if actor != nil {
		s.audit.LogRoleGranted(ctx, actor.ID, assignment)
	}
	s.logger.Info("role granted",
		zap.String("user_id", userID.String()),
		zap.String("role", role.RoleName),
		zap.Bool("scoped", target != nil))
	return assignment, nil
}

// RevokeRole removes an assignment. It reports false when there was none.
func (s *RBACService) RevokeRole(ctx context.Context, actor *models.User, userID, roleID uuid.UUID, target *uuid.UUID) (bool, error) {
	if err := s.requireManager(ctx, actor); err != nil {
		return false, err
	}
	existing, err := s.userRoles.Find(ctx, userID, roleID, target)
	if err != nil {
		return false, WrapInternal("failed to look up assignment", err)
	}
	if existing == nil {
		return false, nil
	}

	deleted, err := s.userRoles.Delete(ctx, existing.ID)
	if err != nil {
		return false, WrapInternal("failed to revoke role", err)
	}

	if deleted && actor != nil {
		s.audit.LogRoleRevoked(ctx, actor.ID, userID, roleID, target)
	}
	return deleted, nil
}

// ListUserRoles returns the assignments held by a user
func (s *RBACService) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]*models.UserRole, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	assignments, err := s.userRoles.ListByUser(ctx, userID)
	if err != nil {
		return nil, WrapInternal("failed to list user roles", err)
	}
	return assignments, nil
}

// SeedDefaults installs the permission catalog, a permission row per catalog
// entry and the Admin role bundling all of them. Running it again changes nothing.
func (s *RBACService) SeedDefaults(ctx context.Context) (*models.Role, error) {
	return WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) (*models.Role, error) {
		admin, err := s.roles.GetByName(ctx, models.AdminRoleName)
		if err != nil {
			return nil, WrapInternal("failed to get admin role", err)
		}
		if admin == nil {
			admin = models.NewRole(models.AdminRoleName, "Administrator role")
			if err := s.roles.Create(ctx, admin); err != nil {
				return nil, WrapInternal("failed to create admin role", err)
			}
		}

		for _, entry := range models.DefaultPermissionCatalog() {
			if err := s.permissions.EnsureCatalogEntry(ctx, entry); err != nil {
				return nil, WrapInternal("failed to seed permission catalog", err)
			}

			permission, err := s.permissions.GetByName(ctx, entry.Title)
			if err != nil {
				return nil, WrapInternal("failed to get permission", err)
			}
			if permission == nil {
				permission = models.NewPermission(entry.Title, entry.Description)
				if err := s.permissions.Create(ctx, permission); err != nil {
					return nil, WrapInternal("failed to create permission", err)
				}
			}

			if err := s.roles.AttachPermission(ctx, admin.ID, permission.ID); err != nil {
				return nil, WrapInternal("failed to attach permission", err)
			}
		}

		s.logger.Info("rbac defaults seeded", zap.String("admin_role_id", admin.ID.String()))
		return admin, nil
	})
}

func (s *RBACService) requireUser(ctx context.Context, id uuid.UUID) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return WrapInternal("failed to get user", err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	return nil
}

// requireManager lets tooling (nil actor) through and checks everyone else
func (s *RBACService) requireManager(ctx context.Context, actor *models.User) error {
	if actor == nil || s.HasPermission(ctx, actor, models.PermissionAdminManageRoles, nil) {
		return nil
	}
	s.logger.Warn("role change refused", zap.String("actor_id", actor.ID.String()))
	return ErrPermissionDenied
}
