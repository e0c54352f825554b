package auth

import (
	"net/http"
	"time"

	"github.com/upb/user-auth-api/config"
	"github.com/upb/user-auth-api/services"
	"github.com/upb/user-auth-api/tokens"
)

// CookieWriter sets and clears the session cookies
type CookieWriter struct {
	loginName  string
	secureName string
	secure     bool
}

// NewCookieWriter creates a cookie writer from the auth configuration
func NewCookieWriter(cfg config.AuthConfig) *CookieWriter {
	return &CookieWriter{
		loginName:  cfg.LoginCookieName,
		secureName: cfg.SecureCookieName,
		secure:     cfg.CookieSecure,
	}
}

// SetSession writes both session cookies
func (c *CookieWriter) SetSession(w http.ResponseWriter, session *services.SessionTokens) {
	c.SetLogin(w, session.Login)
	http.SetCookie(w, &http.Cookie{
		Name:     c.secureName,
		Value:    session.Secure.Token,
		Path:     "/",
		MaxAge:   maxAge(session.Secure.TTL),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// SetLogin writes the login cookie only
func (c *CookieWriter) SetLogin(w http.ResponseWriter, login *tokens.IssuedToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.loginName,
		Value:    "Bearer " + login.Token,
		Path:     "/",
		MaxAge:   maxAge(login.TTL),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires both session cookies
func (c *CookieWriter) Clear(w http.ResponseWriter) {
	for _, name := range []string{c.loginName, c.secureName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.secure,
		})
	}
}

func maxAge(ttl time.Duration) int {
	return int(ttl / time.Second)
}
