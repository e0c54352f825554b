package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/services"
	"github.com/upb/user-auth-api/tokens"
	"github.com/upb/user-auth-api/utils"
	"go.uber.org/zap"
)

// TokenVerifier checks a signed token against a tier
type TokenVerifier interface {
	Verify(token string, tier tokens.Tier, expectedSubject string) (*tokens.Claims, error)
}

// UserLookup loads the user a token names
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// PermissionChecker answers RBAC questions
type PermissionChecker interface {
	HasPermission(ctx context.Context, user *models.User, name models.PermissionName, target *uuid.UUID) bool
}

// CookieNames are the names of the login and secure cookies
type CookieNames struct {
	Login  string
	Secure string
}

// AuthMiddleware resolves the session cookies of a request into a user
type AuthMiddleware struct {
	verifier    TokenVerifier
	users       UserLookup
	permissions PermissionChecker
	cookies     CookieNames
	upgrader    *websocket.Upgrader
	logger      *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. upgrader is used to reject
// WebSocket handshakes and may be nil for a default one.
func NewAuthMiddleware(
	verifier TokenVerifier,
	users UserLookup,
	permissions PermissionChecker,
	cookies CookieNames,
	upgrader *websocket.Upgrader,
	logger *zap.Logger,
) *AuthMiddleware {
	if upgrader == nil {
		upgrader = NewUpgrader(nil)
	}
	return &AuthMiddleware{
		verifier:    verifier,
		users:       users,
		permissions: permissions,
		cookies:     cookies,
		upgrader:    upgrader,
		logger:      logger,
	}
}

// ResolveUser returns the user named by the login cookie.
// The cookie value must be "Bearer <token>".
func (m *AuthMiddleware) ResolveUser(ctx context.Context, src CookieSource) (*models.User, error) {
	raw, ok := src.Cookie(m.cookies.Login)
	if !ok || raw == "" {
		return nil, services.ErrNotAuthenticated
	}

	token, ok := bearerParam(raw)
	if !ok {
		return nil, services.ErrNotAuthenticated
	}

	claims, err := m.verifier.Verify(token, tokens.TierLogin, "")
	if err != nil {
		m.logVerificationFailure(ctx, tokens.TierLogin, err)
		return nil, services.ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		m.logger.Debug("login token subject is not a user id",
			zap.String("request_id", GetRequestIDFromContext(ctx)))
		return nil, services.ErrTokenInvalid
	}

	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, services.WrapInternal("failed to load session user", err)
	}
	if user == nil {
		return nil, services.ErrUserNotFound
	}
	return user, nil
}

// RequireSecureContext checks that the secure cookie holds a secure token
// issued to user
func (m *AuthMiddleware) RequireSecureContext(ctx context.Context, src CookieSource, user *models.User) error {
	if user == nil {
		return services.ErrNotAuthenticated
	}

	raw, ok := src.Cookie(m.cookies.Secure)
	if !ok || raw == "" {
		return services.ErrTokenInvalid
	}

	if _, err := m.verifier.Verify(raw, tokens.TierSecure, user.ID.String()); err != nil {
		m.logVerificationFailure(ctx, tokens.TierSecure, err)
		return services.ErrTokenInvalid
	}
	return nil
}

// RequireAuth rejects requests without a valid login cookie and stores the
// resolved user in the request context
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src := CookieSourceFor(r)

		user, err := m.ResolveUser(r.Context(), src)
		if err != nil {
			m.reject(w, r, src, err)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.String("user_id", user.ID.String()))

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireSecure additionally requires the secure cookie. Use after RequireAuth.
func (m *AuthMiddleware) RequireSecure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src := CookieSourceFor(r)

		if err := m.RequireSecureContext(r.Context(), src, UserFromContext(r.Context())); err != nil {
			m.reject(w, r, src, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission requires an unscoped grant of name. Use after RequireAuth.
func (m *AuthMiddleware) RequirePermission(name models.PermissionName) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			user := UserFromContext(ctx)
			if user == nil {
				m.reject(w, r, CookieSourceFor(r), services.ErrNotAuthenticated)
				return
			}

			if !m.permissions.HasPermission(ctx, user, name, nil) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", GetRequestIDFromContext(ctx)),
					zap.String("user_id", user.ID.String()),
					zap.String("required_permission", string(name)))
				m.reject(w, r, CookieSourceFor(r), services.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// reject reports err in the form the transport understands. HTTP gets a
// JSON error; a WebSocket handshake is accepted and closed with 4001.
func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, src CookieSource, err error) {
	requestID := GetRequestIDFromContext(r.Context())

	if services.IsInternalError(err) {
		m.logger.Error("session resolution failed", zap.String("request_id", requestID), zap.Error(err))
	} else {
		m.logger.Info("request rejected",
			zap.String("request_id", requestID),
			zap.String("transport", string(src.Transport())),
			zap.String("reason", string(services.GetErrorType(err))))
	}

	if src.Transport() == TransportWebSocket {
		m.closeHandshake(w, r, err)
		return
	}
	writeAuthError(w, err)
}

func (m *AuthMiddleware) closeHandshake(w http.ResponseWriter, r *http.Request, err error) {
	conn, upErr := m.upgrader.Upgrade(w, r, nil)
	if upErr != nil {
		m.logger.Warn("websocket upgrade failed", zap.Error(upErr))
		return
	}
	defer conn.Close()

	msg := websocket.FormatCloseMessage(CloseNotAuthenticated, clientMessage(err))
	if wErr := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); wErr != nil {
		m.logger.Debug("failed to send close frame", zap.Error(wErr))
	}
}

func (m *AuthMiddleware) logVerificationFailure(ctx context.Context, tier tokens.Tier, err error) {
	fields := []zap.Field{
		zap.String("request_id", GetRequestIDFromContext(ctx)),
		zap.String("tier", string(tier)),
	}
	var verr *tokens.VerificationError
	if errors.As(err, &verr) {
		fields = append(fields, zap.NamedError("cause", verr.Cause()))
	}
	m.logger.Debug("token verification failed", fields...)
}

func writeAuthError(w http.ResponseWriter, err error) {
	msg := clientMessage(err)
	switch {
	case services.IsUnauthorizedError(err):
		_ = utils.WriteUnauthorized(w, msg)
	case services.IsForbiddenError(err):
		_ = utils.WriteForbidden(w, msg)
	case services.IsNotFoundError(err):
		_ = utils.WriteNotFound(w, msg)
	default:
		_ = utils.WriteInternalServerError(w, "")
	}
}

func clientMessage(err error) string {
	var de *services.DomainError
	if errors.As(err, &de) && de.Type != services.ErrorTypeInternal {
		return de.Message
	}
	return "internal server error"
}

// bearerParam splits "Bearer <token>", matching the scheme case-insensitively
func bearerParam(value string) (string, bool) {
	scheme, param, found := strings.Cut(value, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	param = strings.TrimSpace(param)
	return param, param != ""
}
