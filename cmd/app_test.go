package main

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"docmanager/internal/config"
)

// stubDatabase подменяет подключение и миграции, записывая порядок шагов
func stubDatabase(t *testing.T, migrateErr error) (*[]string, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	var steps []string
	origConnect, origMigrate := connectDB, migrateDB
	t.Cleanup(func() {
		connectDB, migrateDB = origConnect, origMigrate
	})

	connectDB = func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*sqlx.DB, error) {
		steps = append(steps, "connect")
		return sqlx.NewDb(db, "postgres"), nil
	}
	migrateDB = func(cfg *config.Config, logger *zap.Logger) error {
		steps = append(steps, "migrate")
		return migrateErr
	}
	return &steps, mock
}

func postgresConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_HOST", "localhost")
	t.Setenv("DATABASE_USER", "docmanager")
	t.Setenv("DATABASE_NAME", "docmanager")
	t.Setenv("STORE_DRIVER", config.StoreDriverPostgres)
	t.Setenv("STORAGE_DRIVER", config.StorageDriverFS)
	t.Setenv("STORAGE_ROOT", t.TempDir())

	cfg, err := config.NewConfig("")
	require.NoError(t, err)
	return cfg
}

func TestOpenDatabaseConnectsBeforeMigrating(t *testing.T) {
	steps, _ := stubDatabase(t, nil)

	db, err := openDatabase(context.Background(), postgresConfig(t), zaptest.NewLogger(t), true)
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.Equal(t, []string{"connect", "migrate"}, *steps)
}

func TestOpenDatabaseWithoutMigrations(t *testing.T) {
	steps, _ := stubDatabase(t, nil)

	_, err := openDatabase(context.Background(), postgresConfig(t), zaptest.NewLogger(t), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"connect"}, *steps)
}

func TestOpenDatabaseClosesOnMigrationFailure(t *testing.T) {
	steps, mock := stubDatabase(t, errors.New("dirty database"))
	mock.ExpectClose()

	db, err := openDatabase(context.Background(), postgresConfig(t), zaptest.NewLogger(t), true)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Equal(t, []string{"connect", "migrate"}, *steps)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewAppPostgresMigratesAfterConnect(t *testing.T) {
	steps, mock := stubDatabase(t, nil)
	mock.ExpectClose()

	a, err := newApp(context.Background(), postgresConfig(t), zaptest.NewLogger(t), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"connect", "migrate"}, *steps)
	assert.NotNil(t, a.db)
	assert.NotNil(t, a.ledger)

	a.close()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForShutdown(t *testing.T) {
	t.Run("server failure is returned", func(t *testing.T) {
		errCh := make(chan error, 1)
		errCh <- errors.New("failed to serve gRPC: listener closed")

		stopped := false
		err := waitForShutdown(context.Background(), errCh, func() { stopped = true }, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listener closed")
		assert.True(t, stopped)
	})

	t.Run("signal exits cleanly", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		stopped := false
		err := waitForShutdown(ctx, make(chan error), func() { stopped = true }, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.True(t, stopped)
	})
}
