package auth

import (
	"context"
	"net/http"

	"github.com/upb/user-auth-api/handlers"
	"github.com/upb/user-auth-api/middleware"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/services"
	"github.com/upb/user-auth-api/utils"
	"go.uber.org/zap"
)

const (
	loginSuccessMessage  = "Authentication successful. Cookie set."
	logoutSuccessMessage = "Logout successful. Cookie deleted."
)

// SessionManager authenticates users and issues session tokens
type SessionManager interface {
	Login(ctx context.Context, identifier, password string) (*models.User, *services.SessionTokens, error)
	LoginAndUpdate(ctx context.Context, in services.LoginAndUpdateInput) (*models.User, *services.SessionTokens, error)
	Logout(ctx context.Context, user *models.User)
}

// Handler serves the password login, login-and-update and logout endpoints.
// Login requests are form encoded with username and password fields.
type Handler struct {
	sessions SessionManager
	cookies  *CookieWriter
	logger   *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(sessions SessionManager, cookies *CookieWriter, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		cookies:  cookies,
		logger:   logger,
	}
}

// HandleLogin handles POST /login/access-token
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid form body", nil)
		return
	}

	_, session, err := h.sessions.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.cookies.SetSession(w, session)
	_ = utils.WriteMessage(w, loginSuccessMessage)
}

// HandleLoginAndUpdate handles POST /login-and-update. Besides the
// credentials it takes new_password and new_email.
func (h *Handler) HandleLoginAndUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid form body", nil)
		return
	}

	_, session, err := h.sessions.LoginAndUpdate(r.Context(), services.LoginAndUpdateInput{
		Identifier:  r.PostForm.Get("username"),
		Password:    r.PostForm.Get("password"),
		NewPassword: r.PostForm.Get("new_password"),
		NewEmail:    r.PostForm.Get("new_email"),
	})
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.cookies.SetSession(w, session)
	_ = utils.WriteMessage(w, loginSuccessMessage)
}

// HandleLogout handles GET /logout. Runs behind RequireAuth.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		handlers.HandleServiceError(w, services.ErrNotAuthenticated, h.logger)
		return
	}

	h.sessions.Logout(r.Context(), user)
	h.cookies.Clear(w)
	_ = utils.WriteMessage(w, logoutSuccessMessage)
}
