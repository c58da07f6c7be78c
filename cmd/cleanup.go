package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cleanupDays   int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Soft-delete documents that expired more than N days ago",
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

		days := cfg.Cleanup.Days
		if cmd.Flags().Changed("days") {
			days = cleanupDays
		}

		report, err := a.cleanup.Run(cmd.Context(), days, cleanupDryRun)
		if err != nil {
			return err
		}
		if report.DryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "%d documents expired before %s would be deleted\n",
				len(report.Found), report.Cutoff.Format("2006-01-02"))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d documents deleted\n", report.Deleted)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Grace period after expiration, in days")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Only list documents that would be deleted")
}
