package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/repositories"
	"github.com/upb/user-auth-api/services/audit"
	"github.com/upb/user-auth-api/tokens"
	"github.com/upb/user-auth-api/utils"
	"go.uber.org/zap"
)

// TokenIssuer signs session tokens
type TokenIssuer interface {
	Issue(subject string, tier tokens.Tier, ttl time.Duration) (*tokens.IssuedToken, error)
}

// SessionTokens is the pair handed out on login
type SessionTokens struct {
	Login  *tokens.IssuedToken
	Secure *tokens.IssuedToken
}

// LoginAndUpdateInput carries the credentials to check and the replacement
// email and password
type LoginAndUpdateInput struct {
	Identifier  string
	Password    string
	NewPassword string
	NewEmail    string
}

// SessionService authenticates users and issues their session tokens
type SessionService struct {
	users  repositories.UserRepository
	txMgr  repositories.TransactionManager
	issuer TokenIssuer
	hasher PasswordHasher
	audit  *audit.AuditService
	logger *zap.Logger
	now    func() time.Time
}

// NewSessionService creates a session service. auditService may be nil.
func NewSessionService(
	users repositories.UserRepository,
	txMgr repositories.TransactionManager,
	issuer TokenIssuer,
	hasher PasswordHasher,
	auditService *audit.AuditService,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		users:  users,
		txMgr:  txMgr,
		issuer: issuer,
		hasher: hasher,
		audit:  auditService,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate resolves identifier and checks password. An email-shaped
// identifier is looked up by email only, anything else by username only.
// Unknown users, wrong passwords and lapsed temporary passwords produce the
// same error.
func (s *SessionService) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	if identifier == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		user *models.User
		err  error
	)
	if utils.IsEmail(identifier) {
		user, err = s.users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		s.logger.Error("credential lookup failed", zap.Error(err))
		return nil, WrapInternal("failed to look up user", err)
	}

	if user == nil || !s.hasher.Verify(password, user.HashedPassword) {
		s.audit.LogLoginFailed(ctx, identifier)
		return nil, ErrInvalidCredentials
	}
	if user.PasswordExpired(s.now()) {
		s.logger.Info("temporary password expired", zap.String("user_id", user.ID.String()))
		s.audit.LogLoginFailed(ctx, identifier)
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Login authenticates, records the login time and issues both tokens.
// Accounts without an email are refused until one is added.
func (s *SessionService) Login(ctx context.Context, identifier, password string) (*models.User, *SessionTokens, error) {
	user, err := s.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, nil, err
	}
	if !user.HasEmail() {
		return nil, nil, ErrMissingEmail
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Error("failed to record last login", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil, nil, WrapInternal("failed to record login", err)
	}
	user.LastLogin = &now

	session, err := s.IssueSession(user)
	if err != nil {
		return nil, nil, err
	}

	s.audit.LogLogin(ctx, user.ID)
	s.logger.Info("user logged in", zap.String("user_id", user.ID.String()))
	return user, session, nil
}

// LoginAndUpdate authenticates, then replaces email and password and records
// the login in one transaction before issuing tokens. Every check runs
// before anything is written.
func (s *SessionService) LoginAndUpdate(ctx context.Context, in LoginAndUpdateInput) (*models.User, *SessionTokens, error) {
	user, err := s.Authenticate(ctx, in.Identifier, in.Password)
	if err != nil {
		return nil, nil, err
	}

	newEmail := strings.TrimSpace(in.NewEmail)
	if err := utils.ValidateEmail(newEmail); err != nil {
		return nil, nil, ErrInvalidEmail.Wrap(err)
	}
	// bcrypt ignores everything past 72 bytes
	if err := utils.ValidateStringLength(in.NewPassword, "new_password", 1, 72); err != nil {
		return nil, nil, ErrInvalidPassword.Wrap(err)
	}

	owner, err := s.users.GetByEmail(ctx, newEmail)
	if err != nil {
		return nil, nil, WrapInternal("failed to check email", err)
	}
	if owner != nil && owner.ID != user.ID {
		return nil, nil, ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return nil, nil, WrapInternal("failed to hash password", err)
	}

	emailChanged := user.EmailValue() != newEmail
	now := s.now()
	updated := *user
	updated.SetEmail(newEmail)
	updated.HashedPassword = hash
	updated.PasswordExpiresAt = nil
	updated.UpdatedAt = now
	updated.LastLogin = &now

	err = WithTransaction(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) error {
		if err := s.users.Update(ctx, &updated); err != nil {
			return err
		}
		return s.users.UpdateLastLogin(ctx, updated.ID, now)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, nil, ErrDuplicateEmail
		}
		s.logger.Error("failed to update credentials", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil, nil, WrapInternal("failed to update credentials", err)
	}

	session, err := s.IssueSession(&updated)
	if err != nil {
		return nil, nil, err
	}

	s.audit.LogLoginAndUpdate(ctx, updated.ID, emailChanged)
	return &updated, session, nil
}

// IssueSession issues a login token and a secure token for user
func (s *SessionService) IssueSession(user *models.User) (*SessionTokens, error) {
	subject := user.ID.String()

	login, err := s.issuer.Issue(subject, tokens.TierLogin, 0)
	if err != nil {
		return nil, WrapInternal("failed to issue login token", err)
	}
	secure, err := s.issuer.Issue(subject, tokens.TierSecure, 0)
	if err != nil {
		return nil, WrapInternal("failed to issue secure token", err)
	}

	return &SessionTokens{Login: login, Secure: secure}, nil
}

// IssueShadowSession issues a login token for target on behalf of actor.
// No secure token is issued, so the actor keeps their own secure context.
// Callers check the ShadowUser permission first.
func (s *SessionService) IssueShadowSession(ctx context.Context, actor, target *models.User) (*tokens.IssuedToken, error) {
	login, err := s.issuer.Issue(target.ID.String(), tokens.TierLogin, 0)
	if err != nil {
		return nil, WrapInternal("failed to issue login token", err)
	}

	s.audit.LogShadowUser(ctx, actor.ID, target.ID)
	s.logger.Info("shadow session issued",
		zap.String("actor_id", actor.ID.String()),
		zap.String("target_id", target.ID.String()))
	return login, nil
}

// Logout records the end of a session. Cookies are cleared by the caller.
func (s *SessionService) Logout(ctx context.Context, user *models.User) {
	s.audit.LogLogout(ctx, user.ID)
}
