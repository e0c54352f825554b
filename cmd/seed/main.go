// Command seed installs the permission catalog and the Admin role, and
// optionally grants Admin to a user. With -create a missing admin account is
// created with a temporary password that must be replaced through
// login-and-update before it expires.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/upb/user-auth-api/config"
	"github.com/upb/user-auth-api/internal/observability"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/repositories/postgres"
	"github.com/upb/user-auth-api/services"
	"go.uber.org/zap"
)

const temporaryPasswordLength = 20

type options struct {
	adminUsername string
	create        bool
	passwordTTL   time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.adminUsername, "admin", "", "username to grant the Admin role to")
	flag.BoolVar(&opts.create, "create", false, "create the admin account with a temporary password if it does not exist")
	flag.DurationVar(&opts.passwordTTL, "password-ttl", 72*time.Hour, "lifetime of the temporary password")
	flag.Parse()

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer factory.Close()

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	hasher := services.NewBcryptHasher(cfg.Auth.BcryptCost)
	return seed(ctx, factory, hasher, opts, os.Stdout, logger)
}

func seed(ctx context.Context, factory *postgres.RepositoryFactory, hasher services.PasswordHasher, opts options, out io.Writer, logger *zap.Logger) error {
	repos := factory.NewRepositories()
	rbac := services.NewRBACService(repos, factory.GetTransactionManager(), nil, logger)

	admin, err := rbac.SeedDefaults(ctx)
	if err != nil {
		return err
	}

	if opts.adminUsername == "" {
		return nil
	}

	users := services.NewUserService(repos.Users, nil, nil, logger)
	user, err := users.GetUserByUsername(ctx, opts.adminUsername)
	if errors.Is(err, services.ErrUserNotFound) && opts.create {
		user, err = createAdmin(ctx, factory, hasher, opts, out)
	}
	if err != nil {
		return fmt.Errorf("admin user %q: %w", opts.adminUsername, err)
	}

	if _, err := rbac.GrantRole(ctx, nil, user.ID, admin.ID, nil); err != nil {
		return err
	}

	logger.Info("admin role granted", zap.String("username", user.Username))
	return nil
}

// createAdmin stores an account without an email. Login refuses it until
// login-and-update sets an email and a real password.
func createAdmin(ctx context.Context, factory *postgres.RepositoryFactory, hasher services.PasswordHasher, opts options, out io.Writer) (*models.User, error) {
	password, hash, err := services.GenerateTemporaryPassword(hasher, temporaryPasswordLength)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(opts.adminUsername, "", hash)
	if opts.passwordTTL > 0 {
		expires := user.CreatedAt.Add(opts.passwordTTL)
		user.PasswordExpiresAt = &expires
	}
	if err := factory.NewRepositories().Users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	fmt.Fprintf(out, "created %s with temporary password %s\n", user.Username, password)
	return user, nil
}
