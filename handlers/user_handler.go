package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/user-auth-api/middleware"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/services"
	"github.com/upb/user-auth-api/utils"
	"go.uber.org/zap"
)

// UserManager is the part of the user service the user endpoints need
type UserManager interface {
	CreateUser(ctx context.Context, in services.CreateUserInput) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	DeleteUser(ctx context.Context, actor *models.User, id uuid.UUID) error
}

// PermissionChecker answers RBAC questions
type PermissionChecker interface {
	HasPermission(ctx context.Context, user *models.User, name models.PermissionName, target *uuid.UUID) bool
}

// CookieClearer expires the session cookies
type CookieClearer interface {
	Clear(w http.ResponseWriter)
}

// MeResponse is the public view of an account
type MeResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func newMeResponse(user *models.User) MeResponse {
	return MeResponse{
		ID:       user.ID.String(),
		Username: user.Username,
		Email:    user.EmailValue(),
	}
}

// UserHandler handles the /users endpoints
type UserHandler struct {
	users   UserManager
	perms   PermissionChecker
	cookies CookieClearer
	logger  *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserManager, perms PermissionChecker, cookies CookieClearer, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:   users,
		perms:   perms,
		cookies: cookies,
		logger:  logger,
	}
}

// HandleCreate handles POST /users/
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in services.CreateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.users.CreateUser(r.Context(), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, newMeResponse(user))
}

// HandleMe handles GET /users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		HandleServiceError(w, services.ErrNotAuthenticated, h.logger)
		return
	}
	_ = utils.WriteOK(w, newMeResponse(user))
}

// HandleGet handles GET /users/{id}. Users may read themselves; anyone else
// needs AdminSeeAllUsers.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := middleware.UserFromContext(ctx)
	if current == nil {
		HandleServiceError(w, services.ErrNotAuthenticated, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if id == current.ID {
		_ = utils.WriteOK(w, current)
		return
	}
	if !h.perms.HasPermission(ctx, current, models.PermissionAdminSeeAllUsers, nil) {
		HandleServiceError(w, services.ErrPermissionDenied, h.logger)
		return
	}

	user, err := h.users.GetUser(ctx, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, user)
}

// HandleDeleteMe handles DELETE /users/me and ends the session
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		HandleServiceError(w, services.ErrNotAuthenticated, h.logger)
		return
	}

	if err := h.users.DeleteUser(r.Context(), user, user.ID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.cookies.Clear(w)
	_ = utils.WriteMessage(w, "Success")
}
