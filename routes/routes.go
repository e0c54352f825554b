package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/upb/user-auth-api/app"
	"github.com/upb/user-auth-api/middleware"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	authMW := deps.AuthMiddleware

	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecureHeaders(cfg.IsProduction(), deps.Logger))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	r.Route(cfg.Server.APIPrefix, func(r chi.Router) {
		// Session stream; kept out of the request timeout
		r.With(authMW.RequireAuth, authMW.RequireSecure).Get("/ws/session", deps.SessionStream.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))
			registerAPI(r, deps)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

func registerAPI(r chi.Router, deps *app.Dependencies) {
	cfg := deps.Config
	authMW := deps.AuthMiddleware

	// Login endpoints
	r.Group(func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			r.Use(loginLimiter(cfg.RateLimit.LoginPerMinute))
		}
		r.Post("/login/access-token", deps.AuthHandler.HandleLogin)
		r.Post("/login-and-update", deps.AuthHandler.HandleLoginAndUpdate)
	})
	r.With(authMW.RequireAuth).Get("/logout", deps.AuthHandler.HandleLogout)

	// User management
	r.Route("/users", func(r chi.Router) {
		r.Post("/", deps.UserHandler.HandleCreate)

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)
			r.Get("/me", deps.UserHandler.HandleMe)
			r.With(authMW.RequireSecure).Delete("/me", deps.UserHandler.HandleDeleteMe)
			r.Get("/{id}", deps.UserHandler.HandleGet)
		})
	})

	// Admin endpoints
	r.Route("/roles/admin", func(r chi.Router) {
		r.Use(authMW.RequireAuth)
		r.Use(authMW.RequireSecure)

		// scoped grants are checked by the handler
		r.Get("/shadow-user/{username}", deps.AdminHandler.HandleShadowUser)

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequirePermission(models.PermissionAdminSeeAllUsers))
			r.Get("/all-users", deps.AdminHandler.HandleAllUsers)
			r.Post("/users/lookup", deps.AdminHandler.HandleLookupUsers)
			r.Get("/roles", deps.AdminHandler.HandleListRoles)
			r.Get("/permissions", deps.AdminHandler.HandleListPermissionCatalog)
			r.Get("/users/{id}/roles", deps.AdminHandler.HandleListUserRoles)
			r.Get("/users/{id}/audit", deps.AdminHandler.HandleUserAudit)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequirePermission(models.PermissionAdminManageRoles))
			r.Post("/roles", deps.AdminHandler.HandleCreateRole)
			r.Delete("/roles/{id}", deps.AdminHandler.HandleDeleteRole)
			r.Post("/roles/{id}/permissions", deps.AdminHandler.HandleAttachPermission)
			r.Delete("/roles/{id}/permissions/{permission_name}", deps.AdminHandler.HandleDetachPermission)
			r.Post("/users/{id}/roles", deps.AdminHandler.HandleGrantRole)
			r.Delete("/users/{id}/roles", deps.AdminHandler.HandleRevokeRole)
		})
	})
}

// loginLimiter throttles login attempts per client IP
func loginLimiter(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			_ = utils.WriteTooManyRequests(w, "too many login attempts")
		}),
	)
}
