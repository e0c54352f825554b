package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/user-auth-api/middleware"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/services"
	"github.com/upb/user-auth-api/tokens"
	"github.com/upb/user-auth-api/utils"
	"go.uber.org/zap"
)

const (
	defaultListLookback  = 14 * 24 * time.Hour
	defaultListLookahead = 24 * time.Hour
	dateLayout           = "2006-01-02"
)

// UserDirectory is the part of the user service the admin endpoints need
type UserDirectory interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsersCreatedBetween(ctx context.Context, actor *models.User, after, before time.Time) ([]*models.User, error)
	GetUsers(ctx context.Context, ids []uuid.UUID) ([]*models.User, error)
}

// RoleManager manages roles and grants
type RoleManager interface {
	PermissionChecker
	HasPermissionFor(ctx context.Context, user *models.User, name models.PermissionName, target uuid.UUID) bool
	ListRoles(ctx context.Context) ([]*services.RoleDetail, error)
	CreateRole(ctx context.Context, name, description string) (*models.Role, error)
	DeleteRole(ctx context.Context, roleID uuid.UUID) error
	AttachPermission(ctx context.Context, roleID uuid.UUID, name models.PermissionName) error
	DetachPermission(ctx context.Context, roleID uuid.UUID, name models.PermissionName) error
	ListPermissionCatalog(ctx context.Context) ([]models.PermissionCatalogEntry, error)
	GrantRole(ctx context.Context, actor *models.User, userID, roleID uuid.UUID, target *uuid.UUID) (*models.UserRole, error)
	RevokeRole(ctx context.Context, actor *models.User, userID, roleID uuid.UUID, target *uuid.UUID) (bool, error)
	ListUserRoles(ctx context.Context, userID uuid.UUID) ([]*models.UserRole, error)
}

// ShadowIssuer issues a login token for another user
type ShadowIssuer interface {
	IssueShadowSession(ctx context.Context, actor, target *models.User) (*tokens.IssuedToken, error)
}

// AuditHistory reads recorded audit entries
type AuditHistory interface {
	ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// LoginCookieSetter writes the login cookie alone
type LoginCookieSetter interface {
	SetLogin(w http.ResponseWriter, token *tokens.IssuedToken)
}

// CreateRoleRequest is the body of POST /roles/admin/roles
type CreateRoleRequest struct {
	RoleName    string `json:"role_name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1024"`
}

// AttachPermissionRequest is the body of POST /roles/admin/roles/{id}/permissions
type AttachPermissionRequest struct {
	PermissionName models.PermissionName `json:"permission_name" validate:"required"`
}

// GrantRoleRequest is the body of POST /roles/admin/users/{id}/roles
type GrantRoleRequest struct {
	RoleID       uuid.UUID  `json:"role_id" validate:"required"`
	TargetUserID *uuid.UUID `json:"target_user_id,omitempty"`
}

// LookupUsersRequest is the body of POST /roles/admin/users/lookup
type LookupUsersRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" validate:"max=500"`
}

// AdminHandler handles the /roles/admin endpoints
type AdminHandler struct {
	users   UserDirectory
	rbac    RoleManager
	shadow  ShadowIssuer
	history AuditHistory
	cookies LoginCookieSetter
	logger  *zap.Logger
	now     func() time.Time
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(users UserDirectory, rbac RoleManager, shadow ShadowIssuer, history AuditHistory, cookies LoginCookieSetter, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		users:   users,
		rbac:    rbac,
		shadow:  shadow,
		history: history,
		cookies: cookies,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleShadowUser handles GET /roles/admin/shadow-user/{username}. The
// caller's login cookie is replaced by one for the target; the secure cookie
// is left alone.
func (h *AdminHandler) HandleShadowUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.UserFromContext(ctx)
	if actor == nil {
		HandleServiceError(w, services.ErrNotAuthenticated, h.logger)
		return
	}

	target, err := h.users.GetUserByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		// only admins with a global grant learn whether the account exists
		if services.IsNotFoundError(err) && !h.rbac.HasPermission(ctx, actor, models.PermissionShadowUser, nil) {
			err = services.ErrPermissionDenied
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	if !h.rbac.HasPermissionFor(ctx, actor, models.PermissionShadowUser, target.ID) {
		h.logger.Warn("shadow user denied",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.String("actor_id", actor.ID.String()),
			zap.String("target_id", target.ID.String()))
		HandleServiceError(w, services.ErrPermissionDenied, h.logger)
		return
	}

	login, err := h.shadow.IssueShadowSession(ctx, actor, target)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.cookies.SetLogin(w, login)
	_ = utils.WriteMessage(w, "Authentication successful. Cookie set.")
}

// HandleAllUsers handles GET /roles/admin/all-users
func (h *AdminHandler) HandleAllUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.UserFromContext(ctx)

	now := h.now().UTC()
	after, err := parseTimeParam(r, "created_after", now.Add(-defaultListLookback))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	before, err := parseTimeParam(r, "created_before", now.Add(defaultListLookahead))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	users, err := h.users.ListUsersCreatedBetween(ctx, actor, after, before)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{"users": users})
}

// HandleLookupUsers handles POST /roles/admin/users/lookup
func (h *AdminHandler) HandleLookupUsers(w http.ResponseWriter, r *http.Request) {
	var req LookupUsersRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	users, err := h.users.GetUsers(r.Context(), req.UserIDs)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{"users": users})
}

// HandleListRoles handles GET /roles/admin/roles
func (h *AdminHandler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.rbac.ListRoles(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{"roles": roles})
}

// HandleCreateRole handles POST /roles/admin/roles
func (h *AdminHandler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	role, err := h.rbac.CreateRole(r.Context(), req.RoleName, req.Description)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, role)
}

// HandleDeleteRole handles DELETE /roles/admin/roles/{id}
func (h *AdminHandler) HandleDeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if err := h.rbac.DeleteRole(r.Context(), roleID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleAttachPermission handles POST /roles/admin/roles/{id}/permissions
func (h *AdminHandler) HandleAttachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	var req AttachPermissionRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.rbac.AttachPermission(r.Context(), roleID, req.PermissionName); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleDetachPermission handles DELETE /roles/admin/roles/{id}/permissions/{permission_name}
func (h *AdminHandler) HandleDetachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	name := models.PermissionName(chi.URLParam(r, "permission_name"))
	if err := h.rbac.DetachPermission(r.Context(), roleID, name); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleListPermissionCatalog handles GET /roles/admin/permissions
func (h *AdminHandler) HandleListPermissionCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.rbac.ListPermissionCatalog(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{"permissions": catalog})
}

// HandleUserAudit handles GET /roles/admin/users/{id}/audit?limit=&offset=
func (h *AdminHandler) HandleUserAudit(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	limit, err := parseIntParam(r, "limit")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	offset, err := parseIntParam(r, "offset")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	logs, err := h.history.ListByActor(r.Context(), userID, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{"entries": logs})
}

// HandleListUserRoles handles GET /roles/admin/users/{id}/roles
func (h *AdminHandler) HandleListUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	assignments, err := h.rbac.ListUserRoles(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{"roles": assignments})
}

// HandleGrantRole handles POST /roles/admin/users/{id}/roles
func (h *AdminHandler) HandleGrantRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	var req GrantRoleRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	assignment, err := h.rbac.GrantRole(r.Context(), middleware.UserFromContext(r.Context()), userID, req.RoleID, req.TargetUserID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, assignment)
}

// HandleRevokeRole handles DELETE /roles/admin/users/{id}/roles?role_id=&target_user_id=
func (h *AdminHandler) HandleRevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	query := r.URL.Query()
	roleID, err := uuid.Parse(query.Get("role_id"))
	if err != nil {
		HandleServiceError(w, services.ErrInvalidInput.WithDetail("role_id", "must be a UUID"), h.logger)
		return
	}

	var target *uuid.UUID
	if raw := query.Get("target_user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			HandleServiceError(w, services.ErrInvalidInput.WithDetail("target_user_id", "must be a UUID"), h.logger)
			return
		}
		target = &id
	}

	revoked, err := h.rbac.RevokeRole(r.Context(), middleware.UserFromContext(r.Context()), userID, roleID, target)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]bool{"revoked": revoked})
}

// parseTimeParam reads an RFC3339 or YYYY-MM-DD query parameter
func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, services.ErrInvalidInput.WithDetail(name, "must be RFC3339 or YYYY-MM-DD")
}

func parseIntParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, services.ErrInvalidInput.WithDetail(name, "must be a non-negative integer")
	}
	return n, nil
}
