package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/user-auth-api/config"
	"go.uber.org/zap"
)

// schema is shared by both drivers; column types are substituted per dialect.
// SQLite needs TIMESTAMP as the declared type so go-sqlite3 scans time.Time.
const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id {{uuid}} PRIMARY KEY,
		username VARCHAR(255) NOT NULL UNIQUE,
		email VARCHAR(255) UNIQUE,
		hashed_password VARCHAR(255) NOT NULL,
		created_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
		password_expires_at {{timestamp}},
		last_login {{timestamp}}
	);

	CREATE TABLE IF NOT EXISTS enums_permission_names (
		title VARCHAR(100) PRIMARY KEY,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS roles (
		id {{uuid}} PRIMARY KEY,
		role_name VARCHAR(100) NOT NULL UNIQUE,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS permissions (
		id {{uuid}} PRIMARY KEY,
		permission_name VARCHAR(100) NOT NULL UNIQUE
			REFERENCES enums_permission_names(title) ON DELETE RESTRICT ON UPDATE CASCADE,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS roles_permissions (
		id {{uuid}} PRIMARY KEY,
		role_id {{uuid}} NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id {{uuid}} NOT NULL REFERENCES permissions(id) ON DELETE RESTRICT,
		UNIQUE(role_id, permission_id)
	);

	CREATE TABLE IF NOT EXISTS users_roles (
		id {{uuid}} PRIMARY KEY,
		user_id {{uuid}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role_id {{uuid}} NOT NULL REFERENCES roles(id) ON DELETE RESTRICT,
		target_user_id {{uuid}} REFERENCES users(id) ON DELETE RESTRICT,
		created_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id {{uuid}} PRIMARY KEY,
		actor_user_id {{uuid}},
		target_user_id {{uuid}},
		action VARCHAR(100) NOT NULL,
		details TEXT,
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(255),
		created_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS uq_users_roles_unscoped
		ON users_roles(user_id, role_id) WHERE target_user_id IS NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS uq_users_roles_scoped
		ON users_roles(user_id, role_id, target_user_id) WHERE target_user_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);
	CREATE INDEX IF NOT EXISTS idx_users_roles_user_id ON users_roles(user_id);
	CREATE INDEX IF NOT EXISTS idx_users_roles_target_user_id ON users_roles(target_user_id);
	CREATE INDEX IF NOT EXISTS idx_roles_permissions_permission_id ON roles_permissions(permission_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_actor_user_id ON audit_logs(actor_user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
`

// SchemaSQL renders the schema for a driver
func SchemaSQL(driver string) string {
	r := strings.NewReplacer("{{uuid}}", "UUID", "{{timestamp}}", "TIMESTAMPTZ")
	if driver == config.DriverSQLite {
		r = strings.NewReplacer("{{uuid}}", "TEXT", "{{timestamp}}", "TIMESTAMP")
	}
	return r.Replace(schema)
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, SchemaSQL(db.driver)); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully", zap.String("driver", db.driver))
	return nil
}
