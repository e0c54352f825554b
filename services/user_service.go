package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/repositories"
	"github.com/upb/user-auth-api/services/audit"
	"github.com/upb/user-auth-api/utils"
	"go.uber.org/zap"
)

// CreateUserInput is a sign-up request
type CreateUserInput struct {
	Username string `json:"username" validate:"required,min=1,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// MaxLookupIDs bounds GetUsers
const MaxLookupIDs = 500

// UserService manages user accounts
type UserService struct {
	users  repositories.UserRepository
	hasher PasswordHasher
	audit  *audit.AuditService
	logger *zap.Logger
}

// NewUserService creates a user service. auditService may be nil.
func NewUserService(users repositories.UserRepository, hasher PasswordHasher, auditService *audit.AuditService, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
		audit:  auditService,
		logger: logger,
	}
}

// CreateUser registers a new account
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := utils.ValidateStruct(&in); err != nil {
		if fields := utils.GetValidationFields(err); fields != nil {
			return nil, ErrInvalidInput.WithDetail("fields", fields)
		}
		return nil, ErrInvalidInput.Wrap(err)
	}
	if err := utils.ValidateEmail(in.Email); err != nil {
		return nil, ErrInvalidEmail.Wrap(err)
	}

	if err := s.checkAvailable(ctx, in.Email, in.Username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(in.Username, in.Email, hash)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			// a concurrent sign-up took the email or username
			if availErr := s.checkAvailable(ctx, in.Email, in.Username); availErr != nil {
				return nil, availErr
			}
			return nil, ErrDuplicateUsername
		}
		return nil, WrapInternal("failed to create user", err)
	}

	s.audit.LogUserCreated(ctx, nil, user)
	s.logger.Info("user created", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *UserService) checkAvailable(ctx context.Context, email, username string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return WrapInternal("failed to check email", err)
	}
	if existing != nil {
		return ErrDuplicateEmail
	}

	existing, err = s.users.GetByUsername(ctx, username)
	if err != nil {
		return WrapInternal("failed to check username", err)
	}
	if existing != nil {
		return ErrDuplicateUsername
	}
	return nil
}

// GetUser returns a user by id
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, WrapInternal("failed to get user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetUserByUsername returns a user by username
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, WrapInternal("failed to get user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// DeleteUser removes an account. Accounts that are the target of someone
// else's scoped role cannot be removed until that grant is revoked.
func (s *UserService) DeleteUser(ctx context.Context, actor *models.User, id uuid.UUID) error {
	deleted, err := s.users.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrReferenced) {
			return ErrUserReferenced
		}
		return WrapInternal("failed to delete user", err)
	}
	if !deleted {
		return ErrUserNotFound
	}

	if actor != nil {
		s.audit.LogUserDeleted(ctx, actor.ID, id)
	}
	s.logger.Info("user deleted", zap.String("user_id", id.String()))
	return nil
}

// ListUsersCreatedBetween returns users created strictly inside (after, before)
func (s *UserService) ListUsersCreatedBetween(ctx context.Context, actor *models.User, after, before time.Time) ([]*models.User, error) {
	if !after.Before(before) {
		return nil, ErrInvalidInput.WithDetail("created_after", "must be before created_before")
	}

	users, err := s.users.ListCreatedBetween(ctx, after, before)
	if err != nil {
		return nil, WrapInternal("failed to list users", err)
	}

	if actor != nil {
		s.audit.LogListedAllUsers(ctx, actor.ID, after, before, len(users))
	}
	return users, nil
}

// GetUsers returns the users among ids; unknown ids are skipped
func (s *UserService) GetUsers(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	if len(ids) > MaxLookupIDs {
		return nil, ErrInvalidInput.WithDetail("user_ids", "too many ids")
	}
	if len(ids) == 0 {
		return []*models.User{}, nil
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, WrapInternal("failed to get users", err)
	}
	return users, nil
}
