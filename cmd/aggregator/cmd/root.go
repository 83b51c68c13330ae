package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "aggregator",
		Short: "Rescue dog listing aggregator",
		Long: `aggregator scrapes rescue organization listing pages, reconciles them
against previously stored animals, and maintains a running availability
picture across sources.

The batch driver runs every enabled organization's scraper on a bound
degree of parallelism, applies stale-detection transitions atomically per
organization, and reports a run summary (JSON with --json) suitable for
cron/CI consumption.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd.RunE(cmd, args)
		},
	}
)

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(qualityCmd)
	rootCmd.AddCommand(versionCmd)
}

// argError marks a usage/argument mistake, distinct from a run failure, so
// Execute can map it to exit code 2 (spec §6).
type argError struct{ err error }

func (e argError) Error() string { return e.err.Error() }
func (e argError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if _, ok := err.(argError); ok {
		return 2
	}
	return 1
}
