package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docmanager/internal/catalog"
	"docmanager/internal/config"
	"docmanager/internal/repository"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Document type catalog",
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upsert document types from the catalog file into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.Driver != config.StoreDriverPostgres {
			return fmt.Errorf("catalog sync requires the postgres store")
		}

		a, err := newApp(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.close()

		n, err := syncCatalog(cmd.Context(), a)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d document types synced\n", n)
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogSyncCmd)
}

// syncCatalog загружает YAML-каталог в таблицу document_types
func syncCatalog(ctx context.Context, a *app) (int, error) {
	registry, err := catalog.LoadFile(a.cfg.Catalog.Path, a.cfg.Catalog.DefaultCode)
	if err != nil {
		return 0, err
	}

	types := registry.Types()
	repo := repository.NewDocumentTypeRepository(a.db, a.cfg.Catalog.DefaultCode)
	if err := repo.Upsert(ctx, types); err != nil {
		return 0, err
	}
	a.logger.Info("document catalog synced",
		zap.String("path", a.cfg.Catalog.Path), zap.Int("types", len(types)))
	return len(types), nil
}
