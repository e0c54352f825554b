package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/user-auth-api/middleware"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/services"
	"github.com/upb/user-auth-api/tokens"
)

// MockUserService implements UserManager and UserDirectory
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) CreateUser(ctx context.Context, in services.CreateUserInput) (*models.User, error) {
	args := m.Called(ctx, in)
	return userResult(args)
}

func (m *MockUserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	return userResult(args)
}

func (m *MockUserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	return userResult(args)
}

func (m *MockUserService) DeleteUser(ctx context.Context, actor *models.User, id uuid.UUID) error {
	args := m.Called(ctx, actor, id)
	return args.Error(0)
}

func (m *MockUserService) ListUsersCreatedBetween(ctx context.Context, actor *models.User, after, before time.Time) ([]*models.User, error) {
	args := m.Called(ctx, actor, after, before)
	return usersResult(args)
}

func (m *MockUserService) GetUsers(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	args := m.Called(ctx, ids)
	return usersResult(args)
}

func userResult(args mock.Arguments) (*models.User, error) {
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func usersResult(args mock.Arguments) ([]*models.User, error) {
	if u := args.Get(0); u != nil {
		return u.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRBAC implements RoleManager
type MockRBAC struct {
	mock.Mock
}

func (m *MockRBAC) HasPermission(ctx context.Context, user *models.User, name models.PermissionName, target *uuid.UUID) bool {
	return m.Called(ctx, user, name, target).Bool(0)
}

func (m *MockRBAC) HasPermissionFor(ctx context.Context, user *models.User, name models.PermissionName, target uuid.UUID) bool {
	return m.Called(ctx, user, name, target).Bool(0)
}

func (m *MockRBAC) ListRoles(ctx context.Context) ([]*services.RoleDetail, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.([]*services.RoleDetail), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRBAC) CreateRole(ctx context.Context, name, description string) (*models.Role, error) {
	args := m.Called(ctx, name, description)
	if r := args.Get(0); r != nil {
		return r.(*models.Role), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRBAC) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	return m.Called(ctx, roleID).Error(0)
}

func (m *MockRBAC) AttachPermission(ctx context.Context, roleID uuid.UUID, name models.PermissionName) error {
	return m.Called(ctx, roleID, name).Error(0)
}

func (m *MockRBAC) DetachPermission(ctx context.Context, roleID uuid.UUID, name models.PermissionName) error {
	return m.Called(ctx, roleID, name).Error(0)
}

func (m *MockRBAC) ListPermissionCatalog(ctx context.Context) ([]models.PermissionCatalogEntry, error) {
	args := m.Called(ctx)
	if c := args.Get(0); c != nil {
		return c.([]models.PermissionCatalogEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRBAC) GrantRole(ctx context.Context, actor *models.User, userID, roleID uuid.UUID, target *uuid.UUID) (*models.UserRole, error) {
	args := m.Called(ctx, actor, userID, roleID, target)
	if r := args.Get(0); r != nil {
		return r.(*models.UserRole), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRBAC) RevokeRole(ctx context.Context, actor *models.User, userID, roleID uuid.UUID, target *uuid.UUID) (bool, error) {
	args := m.Called(ctx, actor, userID, roleID, target)
	return args.Bool(0), args.Error(1)
}

func (m *MockRBAC) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]*models.UserRole, error) {
	args := m.Called(ctx, userID)
	if r := args.Get(0); r != nil {
		return r.([]*models.UserRole), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockShadowIssuer implements ShadowIssuer
type MockShadowIssuer struct {
	mock.Mock
}

func (m *MockShadowIssuer) IssueShadowSession(ctx context.Context, actor, target *models.User) (*tokens.IssuedToken, error) {
	args := m.Called(ctx, actor, target)
	if t := args.Get(0); t != nil {
		return t.(*tokens.IssuedToken), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockAuditHistory implements AuditHistory
type MockAuditHistory struct {
	mock.Mock
}

func (m *MockAuditHistory) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, actorID, limit, offset)
	if l := args.Get(0); l != nil {
		return l.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingCookies records which cookie writes a handler made
type recordingCookies struct {
	cleared bool
	login   *tokens.IssuedToken
}

func (c *recordingCookies) Clear(http.ResponseWriter) { c.cleared = true }

func (c *recordingCookies) SetLogin(_ http.ResponseWriter, token *tokens.IssuedToken) {
	c.login = token
}

// asUser injects user into the request context the way RequireAuth does
func asUser(user *models.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user != nil {
				r = r.WithContext(middleware.WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}
