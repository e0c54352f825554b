package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/upb/user-auth-api/config"
	"github.com/upb/user-auth-api/models"
	"go.uber.org/zap"
)

// testDB creates a temporary SQLite database with the schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *DB {
	t.Helper()

	f, err := os.CreateTemp("", "users-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	sqlDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	db := WrapDB(sqlDB, config.DriverSQLite, zap.NewNop())
	require.NoError(t, db.InitSchema(context.Background()))
	return db
}

func createUser(t *testing.T, db *DB, username, email string) *models.User {
	t.Helper()
	user := models.NewUser(username, email, "hash-"+username)
	require.NoError(t, NewUserRepository(db, zap.NewNop()).Create(context.Background(), user))
	return user
}

// createRoleWithPermission seeds a catalog entry, a permission row and a role bundling it
func createRoleWithPermission(t *testing.T, db *DB, roleName string, name models.PermissionName) (*models.Role, *models.Permission) {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	perms := NewPermissionRepository(db, logger)
	require.NoError(t, perms.EnsureCatalogEntry(ctx, models.PermissionCatalogEntry{Title: name, Description: string(name)}))

	permission, err := perms.GetByName(ctx, name)
	require.NoError(t, err)
	if permission == nil {
		permission = models.NewPermission(name, string(name))
		require.NoError(t, perms.Create(ctx, permission))
	}

	roles := NewRoleRepository(db, logger)
	role := models.NewRole(roleName, "")
	require.NoError(t, roles.Create(ctx, role))
	require.NoError(t, roles.AttachPermission(ctx, role.ID, permission.ID))
	return role, permission
}
