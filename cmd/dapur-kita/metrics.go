package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	usageDays   int
	cleanupDays int
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show recipe store call statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		usage, err := application.Usage(cmd.Context(), usageDays)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Store calls in the last %d days", usageDays)))
		if len(usage) == 0 {
			fmt.Fprintln(out, metaStyle.Render("No calls recorded."))
			return nil
		}
		for _, u := range usage {
			fmt.Fprintf(out, "%s  %-8s %5d calls  %5d failed  %8.1f ms avg\n",
				metaStyle.Render(u.Date), u.Operation, u.Calls, u.Failures, u.AvgLatencyMS)
		}
		return nil
	},
}

var metricsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old metric records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		affected, err := metricsStore.Cleanup(cmd.Context(), cleanupDays)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully removed %d old metric records.\n", affected)
		return nil
	},
}

func init() {
	metricsCmd.Flags().IntVar(&usageDays, "days", 7, "Number of days to report")
	metricsCleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Keep records for the last N days")
	metricsCmd.AddCommand(metricsCleanupCmd)
}
