package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"docmanager/internal/domain"
	"docmanager/internal/service/s3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	StorageDriverS3 = "s3"
	StorageDriverFS = "fs"
)

type Config struct {
	Server   ServerConfig       `mapstructure:"Server"`
	Database DatabaseConfig     `mapstructure:"Database"`
	Store    StoreConfig        `mapstructure:"Store"`
	Storage  StorageConfig      `mapstructure:"Storage"`
	Ledger   LedgerConfig       `mapstructure:"Ledger"`
	Catalog  CatalogConfig      `mapstructure:"Catalog"`
	Owners   []domain.OwnerKind `mapstructure:"Owners"`
	Cleanup  CleanupConfig      `mapstructure:"Cleanup"`
	Log      LogConfig          `mapstructure:"Log"`
}

type ServerConfig struct {
	Port        string `mapstructure:"Port"`
	GRPCPort    string `mapstructure:"GRPCPort"`
	Environment string `mapstructure:"Environment"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"Host"`
	Port           string `mapstructure:"Port"`
	User           string `mapstructure:"User"`
	Password       string `mapstructure:"Password"`
	Name           string `mapstructure:"Name"`
	SSLMode        string `mapstructure:"SSLMode"`
	MigrationsPath string `mapstructure:"MigrationsPath"`
}

// StoreConfig выбирает хранилище метаданных: postgres или memory
type StoreConfig struct {
	Driver string `mapstructure:"Driver"`
}

// StorageConfig хранилище содержимого файлов: s3 или локальный каталог
type StorageConfig struct {
	Driver          string `mapstructure:"Driver"`
	Bucket          string `mapstructure:"Bucket"`
	Endpoint        string `mapstructure:"Endpoint"`
	Region          string `mapstructure:"Region"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	Root            string `mapstructure:"Root"`
}

type LedgerConfig struct {
	LockTimeout time.Duration `mapstructure:"LockTimeout"`
}

type CatalogConfig struct {
	Path        string `mapstructure:"Path"`
	DefaultCode string `mapstructure:"DefaultCode"`
}

type CleanupConfig struct {
	Interval time.Duration `mapstructure:"Interval"`
	Days     int           `mapstructure:"Days"`
}

type LogConfig struct {
	Level string `mapstructure:"Level"`
}

var envBindings = map[string]string{
	"Server.Port":             "HTTP_PORT",
	"Server.GRPCPort":         "GRPC_PORT",
	"Server.Environment":      "APP_ENV",
	"Database.Host":           "DATABASE_HOST",
	"Database.Port":           "DATABASE_PORT",
	"Database.User":           "DATABASE_USER",
	"Database.Password":       "DATABASE_PASSWORD",
	"Database.Name":           "DATABASE_NAME",
	"Database.SSLMode":        "DATABASE_SSLMODE",
	"Database.MigrationsPath": "DATABASE_MIGRATIONS_PATH",
	"Store.Driver":            "STORE_DRIVER",
	"Storage.Driver":          "STORAGE_DRIVER",
	"Storage.Bucket":          "S3_BUCKET",
	"Storage.Endpoint":        "S3_ENDPOINT",
	"Storage.Region":          "S3_REGION",
	"Storage.AccessKeyID":     "S3_ACCESS_KEY_ID",
	"Storage.SecretAccessKey": "S3_SECRET_ACCESS_KEY",
	"Storage.Root":            "STORAGE_ROOT",
	"Ledger.LockTimeout":      "LEDGER_LOCK_TIMEOUT",
	"Catalog.Path":            "CATALOG_PATH",
	"Catalog.DefaultCode":     "CATALOG_DEFAULT_CODE",
	"Cleanup.Interval":        "CLEANUP_INTERVAL",
	"Cleanup.Days":            "CLEANUP_DAYS",
	"Log.Level":               "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.Environment", "development")
	v.SetDefault("Database.Port", "5432")
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Database.MigrationsPath", "migrations")
	v.SetDefault("Store.Driver", StoreDriverPostgres)
	v.SetDefault("Storage.Driver", StorageDriverFS)
	v.SetDefault("Storage.Root", "./data/blobs")
	v.SetDefault("Ledger.LockTimeout", 5*time.Second)
	v.SetDefault("Catalog.Path", "data/document_types.yaml")
	v.SetDefault("Catalog.DefaultCode", "generic")
	v.SetDefault("Cleanup.Interval", 24*time.Hour)
	v.SetDefault("Cleanup.Days", 30)
	v.SetDefault("Log.Level", "info")
}

// NewConfig читает конфигурацию из файла и переменных окружения.
// Пустой path означает конфигурацию только из окружения.
func NewConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot read config from %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Owners) == 0 {
		cfg.Owners = []domain.OwnerKind{{Name: "organization", Table: "organizations", KeyColumn: "name", Columns: []string{"display_name"}}}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность выбранных драйверов
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		var missing []string
		if c.Database.Host == "" {
			missing = append(missing, "host")
		}
		if c.Database.User == "" {
			missing = append(missing, "user")
		}
		if c.Database.Name == "" {
			missing = append(missing, "name")
		}
		if len(missing) > 0 {
			return fmt.Errorf("database configuration is incomplete: missing %s", strings.Join(missing, ", "))
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Storage.Driver {
	case StorageDriverS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for s3 driver")
		}
	case StorageDriverFS:
		if c.Storage.Root == "" {
			return fmt.Errorf("storage root is required for fs driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Ledger.LockTimeout <= 0 {
		return fmt.Errorf("ledger lock timeout must be positive")
	}
	if c.Cleanup.Days < 0 {
		return fmt.Errorf("cleanup days must not be negative")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// MigrateURL адрес базы в формате golang-migrate
func (c *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// S3 возвращает настройки клиента объектного хранилища
func (c *StorageConfig) S3() *s3.Config {
	return &s3.Config{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		Bucket:          c.Bucket,
		Endpoint:        c.Endpoint,
		Region:          c.Region,
	}
}
