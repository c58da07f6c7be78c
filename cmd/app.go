package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"docmanager/internal/catalog"
	"docmanager/internal/config"
	"docmanager/internal/idgen"
	"docmanager/internal/metrics"
	"docmanager/internal/repository"
	"docmanager/internal/repository/memstore"
	"docmanager/internal/service"
	"docmanager/internal/service/blobfs"
	"docmanager/internal/service/s3"
)

// app собранные зависимости одного процесса
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	db       *sqlx.DB

	documents service.DocumentStore
	versions  service.VersionStore
	ownerRows service.OwnerStore
	catalog   service.Catalog
	blobs     service.BlobStore

	owners  *service.OwnerService
	ledger  *service.VersionLedger
	docs    *service.DocumentService
	cleanup *service.CleanupService
}

// connectWithRetry подключается к базе, при необходимости создавая ее
func connectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxAttempts int, delay time.Duration, logger *zap.Logger) (*sqlx.DB, error) {
	// Сначала подключаемся к системной базе postgres, которая всегда существует
	system := cfg
	system.Name = "postgres"
	if pgDB, err := sqlx.ConnectContext(ctx, "postgres", system.GetDSN()); err == nil {
		var exists bool
		err = pgDB.GetContext(ctx, &exists, `SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)`, cfg.Name)
		if err == nil && !exists {
			logger.Info("database does not exist, creating", zap.String("database", cfg.Name))
			if _, err := pgDB.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(cfg.Name)); err != nil {
				pgDB.Close()
				return nil, fmt.Errorf("failed to create database: %w", err)
			}
		}
		pgDB.Close()
	}

	var (
		db  *sqlx.DB
		err error
	)
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.ConnectContext(ctx, "postgres", cfg.GetDSN())
		if err == nil {
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
			return db, nil
		}

		logger.Warn("failed to connect to database",
			zap.Int("attempt", i+1), zap.Int("max_attempts", maxAttempts), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func newMigrate(cfg *config.Config) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.MigrateURL())
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// runMigrations применяет все миграции; грязное состояние сбрасывается на текущую версию
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		logger.Warn("found dirty migration state, forcing version", zap.Uint("version", version))
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// шаги подготовки базы, подменяются в тестах
var (
	connectDB = func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*sqlx.DB, error) {
		return connectWithRetry(ctx, cfg, 5, 5*time.Second, logger)
	}
	migrateDB = runMigrations
)

// openDatabase подключается к базе (создавая ее при отсутствии) и только затем применяет миграции
func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger, applyMigrations bool) (*sqlx.DB, error) {
	db, err := connectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if !applyMigrations {
		return db, nil
	}
	if err := migrateDB(cfg, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newApp собирает хранилища и сервисы по конфигурации
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, applyMigrations bool) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := openDatabase(ctx, cfg, logger, applyMigrations)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.documents = repository.NewDocumentRepository(db)
		a.versions = repository.NewVersionRepository(db, cfg.Ledger.LockTimeout)
		a.ownerRows = repository.NewOwnerRepository(db)
		a.catalog = repository.NewDocumentTypeRepository(db, cfg.Catalog.DefaultCode)
	case config.StoreDriverMemory:
		registry, err := catalog.LoadFile(cfg.Catalog.Path, cfg.Catalog.DefaultCode)
		if err != nil {
			return nil, err
		}
		store := memstore.New()
		a.documents = store
		a.versions = store
		a.ownerRows = store
		a.catalog = registry
	}

	switch cfg.Storage.Driver {
	case config.StorageDriverS3:
		client, err := s3.NewClient(ctx, cfg.Storage.S3())
		if err != nil {
			a.close()
			return nil, err
		}
		a.blobs = client
	case config.StorageDriverFS:
		store, err := blobfs.New(cfg.Storage.Root)
		if err != nil {
			a.close()
			return nil, err
		}
		a.blobs = store
	}

	kinds, err := service.NewOwnerRegistry(cfg.Owners...)
	if err != nil {
		a.close()
		return nil, err
	}

	m := metrics.New(a.registry)
	ids := idgen.NewGenerator()

	a.owners, err = service.NewOwnerService(a.ownerRows, kinds, ids, logger, m)
	if err != nil {
		a.close()
		return nil, err
	}
	a.ledger = service.NewVersionLedger(a.documents, a.versions, a.catalog, a.blobs, ids, logger, m)
	a.docs = service.NewDocumentService(a.documents, a.owners, a.catalog, a.ledger, ids, logger, m)
	a.cleanup = service.NewCleanupService(a.documents, logger)
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("error closing database connection", zap.Error(err))
		}
	}
	a.logger.Sync()
}
