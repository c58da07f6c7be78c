package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docmanager/internal/config"
	"docmanager/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "docmanager",
	Short: "Document ownership and versioning service",
	Long: `docmanager stores owner documents with an append-only version ledger.

Configuration is read from the file given by --config and from environment
variables (DATABASE_HOST, HTTP_PORT, STORAGE_DRIVER, ...).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (yaml or env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(ownersCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(catalogCmd)
}

// loadConfig читает конфигурацию и создает логгер
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Server.Environment, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
