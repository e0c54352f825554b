package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/upb/user-auth-api/auth"
	"github.com/upb/user-auth-api/config"
	"github.com/upb/user-auth-api/handlers"
	"github.com/upb/user-auth-api/middleware"
	"github.com/upb/user-auth-api/repositories"
	"github.com/upb/user-auth-api/repositories/postgres"
	"github.com/upb/user-auth-api/services"
	"github.com/upb/user-auth-api/services/audit"
	"github.com/upb/user-auth-api/tokens"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repositories *repositories.Repositories
	TxManager    repositories.TransactionManager

	// Services
	Tokens   *tokens.Service
	Audit    *audit.AuditService
	Sessions *services.SessionService
	Users    *services.UserService
	RBAC     *services.RBACService

	// HTTP
	Upgrader       *websocket.Upgrader
	AuthMiddleware *middleware.AuthMiddleware
	AuthHandler    *auth.Handler
	Cookies        *auth.CookieWriter
	UserHandler    *handlers.UserHandler
	AdminHandler   *handlers.AdminHandler
	HealthHandler  *handlers.HealthHandler
	SessionStream  *handlers.SessionStreamHandler
}

// NewDependencies opens the configured database and wires every component on top of it
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithFactory(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires every component on top of an existing
// repository factory
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initHTTP()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase checks the connection and creates the schema when enabled
func (d *Dependencies) initDatabase(ctx context.Context) error {
	if err := d.DB.HealthCheck(ctx); err != nil {
		return err
	}

	if d.Config.Database.AutoMigrate {
		if err := d.RepoFactory.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		d.Logger.Info("database schema ensured")
	}
	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.Repositories = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()
	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() error {
	cfg := d.Config.Auth

	issuer, err := tokens.NewService(tokens.Config{
		Login: tokens.TierConfig{
			Secret:     []byte(cfg.LoginTokenKey),
			DefaultTTL: cfg.LoginTokenTTL,
			MaxTTL:     cfg.LoginTokenMaxTTL,
		},
		Secure: tokens.TierConfig{
			Secret:     []byte(cfg.SecureTokenKey),
			DefaultTTL: cfg.SecureTokenTTL,
			MaxTTL:     cfg.SecureTokenMaxTTL,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}
	d.Tokens = issuer

	d.Audit = audit.NewAuditService(d.Repositories.AuditLogs, d.Logger, audit.Config{
		BufferSize:  d.Config.Audit.BufferSize,
		WorkerCount: d.Config.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	hasher := services.NewBcryptHasher(cfg.BcryptCost)
	d.Sessions = services.NewSessionService(d.Repositories.Users, d.TxManager, issuer, hasher, d.Audit, d.Logger)
	d.Users = services.NewUserService(d.Repositories.Users, hasher, d.Audit, d.Logger)
	d.RBAC = services.NewRBACService(d.Repositories, d.TxManager, d.Audit, d.Logger)

	d.Logger.Info("services initialized",
		zap.Duration("login_ttl", cfg.LoginTokenTTL),
		zap.Duration("secure_ttl", cfg.SecureTokenTTL))
	return nil
}

func (d *Dependencies) initHTTP() {
	cfg := d.Config

	d.Upgrader = middleware.NewUpgrader(cfg.CORS.AllowedOrigins)
	d.AuthMiddleware = middleware.NewAuthMiddleware(
		d.Tokens,
		d.Repositories.Users,
		d.RBAC,
		middleware.CookieNames{Login: cfg.Auth.LoginCookieName, Secure: cfg.Auth.SecureCookieName},
		d.Upgrader,
		d.Logger,
	)

	d.Cookies = auth.NewCookieWriter(cfg.Auth)
	d.AuthHandler = auth.NewHandler(d.Sessions, d.Cookies, d.Logger)
	d.UserHandler = handlers.NewUserHandler(d.Users, d.RBAC, d.Cookies, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Users, d.RBAC, d.Sessions, d.Audit, d.Cookies, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.Audit, d.Logger)
	d.SessionStream = handlers.NewSessionStreamHandler(d.Upgrader, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain audit events before the pool goes away
	if d.Audit != nil {
		timeout := d.Config.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
