package services

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/upb/user-auth-api/config"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/repositories"
	"github.com/upb/user-auth-api/repositories/postgres"
	"go.uber.org/zap"
)

// sqliteStack opens a temporary SQLite database with the schema applied and
// returns repositories and a transaction manager over it
func sqliteStack(t *testing.T) (*repositories.Repositories, repositories.TransactionManager) {
	t.Helper()

	f, err := os.CreateTemp("", "services-test-*.db")
	require.NoError(t, err)
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	sqlDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	db := postgres.WrapDB(sqlDB, config.DriverSQLite, zap.NewNop())
	require.NoError(t, db.InitSchema(context.Background()))

	factory := postgres.NewRepositoryFactoryFromDB(db, zap.NewNop())
	return factory.NewRepositories(), factory.GetTransactionManager()
}

func storeUser(t *testing.T, repos *repositories.Repositories, username, email string) *models.User {
	t.Helper()
	user := models.NewUser(username, email, "hashed:pw")
	require.NoError(t, repos.Users.Create(context.Background(), user))
	return user
}
