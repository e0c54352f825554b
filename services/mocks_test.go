package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/tokens"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	args := m.Called(ctx, ids)
	if u := args.Get(0); u != nil {
		return u.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) ListCreatedBetween(ctx context.Context, after, before time.Time) ([]*models.User, error) {
	args := m.Called(ctx, after, before)
	if u := args.Get(0); u != nil {
		return u.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockPermissionRepository is a mock implementation of PermissionRepository
type MockPermissionRepository struct {
	mock.Mock
}

func (m *MockPermissionRepository) EnsureCatalogEntry(ctx context.Context, entry models.PermissionCatalogEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockPermissionRepository) ListCatalog(ctx context.Context) ([]models.PermissionCatalogEntry, error) {
	args := m.Called(ctx)
	if c := args.Get(0); c != nil {
		return c.([]models.PermissionCatalogEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPermissionRepository) Create(ctx context.Context, permission *models.Permission) error {
	return m.Called(ctx, permission).Error(0)
}

func (m *MockPermissionRepository) GetByName(ctx context.Context, name models.PermissionName) (*models.Permission, error) {
	args := m.Called(ctx, name)
	if p := args.Get(0); p != nil {
		return p.(*models.Permission), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPermissionRepository) List(ctx context.Context) ([]*models.Permission, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.([]*models.Permission), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockUserRoleRepository is a mock implementation of UserRoleRepository
type MockUserRoleRepository struct {
	mock.Mock
}

func (m *MockUserRoleRepository) Find(ctx context.Context, userID, roleID uuid.UUID, target *uuid.UUID) (*models.UserRole, error) {
	args := m.Called(ctx, userID, roleID, target)
	if ur := args.Get(0); ur != nil {
		return ur.(*models.UserRole), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRoleRepository) Create(ctx context.Context, userRole *models.UserRole) error {
	return m.Called(ctx, userRole).Error(0)
}

func (m *MockUserRoleRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRoleRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.UserRole, error) {
	args := m.Called(ctx, userID)
	if ur := args.Get(0); ur != nil {
		return ur.([]*models.UserRole), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRoleRepository) HasPermission(ctx context.Context, userID, permissionID uuid.UUID, target *uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, permissionID, target)
	return args.Bool(0), args.Error(1)
}

// MockTokenIssuer is a mock implementation of TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Issue(subject string, tier tokens.Tier, ttl time.Duration) (*tokens.IssuedToken, error) {
	args := m.Called(subject, tier, ttl)
	if t := args.Get(0); t != nil {
		return t.(*tokens.IssuedToken), args.Error(1)
	}
	return nil, args.Error(1)
}

// plainHasher keeps tests fast; "hashed:" + password
type plainHasher struct {
	err error
}

func (h plainHasher) Hash(password string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + password, nil
}

func (h plainHasher) Verify(password, hash string) bool {
	return hash == "hashed:"+password
}
