package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	populateKind      string
	populateBatchSize int
	populateDryRun    bool
)

var ownersCmd = &cobra.Command{
	Use:   "owners",
	Short: "Owner identifier maintenance",
}

var ownersPopulateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Assign identifiers to owner rows that do not have one yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.close()

		kinds := a.owners.Kinds()
		if populateKind != "" {
			kinds = []string{populateKind}
		}

		for _, kind := range kinds {
			result, err := a.owners.PopulateMissing(cmd.Context(), kind, populateBatchSize, populateDryRun)
			if err != nil {
				return fmt.Errorf("failed to populate %s identifiers: %w", kind, err)
			}
			logger.Info("owner identifiers populated",
				zap.String("kind", result.Kind),
				zap.Bool("dry_run", populateDryRun),
				zap.Int("missing", result.Missing),
				zap.Int("updated", result.Updated),
				zap.Int("failed", result.Failed),
				zap.Int("remaining", result.Remaining))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: missing=%d updated=%d failed=%d remaining=%d\n",
				result.Kind, result.Missing, result.Updated, result.Failed, result.Remaining)
		}
		return nil
	},
}

func init() {
	ownersPopulateCmd.Flags().StringVar(&populateKind, "kind", "", "Owner kind to process (default: all configured kinds)")
	ownersPopulateCmd.Flags().IntVar(&populateBatchSize, "batch-size", 100, "Rows per batch")
	ownersPopulateCmd.Flags().BoolVar(&populateDryRun, "dry-run", false, "Only count rows without identifiers")

	ownersCmd.AddCommand(ownersPopulateCmd)
}
