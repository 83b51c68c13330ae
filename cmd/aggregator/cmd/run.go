package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rescuedogs/aggregator/internal/config"
	"github.com/rescuedogs/aggregator/internal/orchestrator"
	"github.com/rescuedogs/aggregator/internal/orgconfig"
)

var (
	runOrg    string
	runDryRun bool
	runList   bool
	runJSON   bool
)

// runCmd implements the batch driver's CLI surface (spec §6): run-cron is
// the default command, wired into rootCmd.RunE so invoking the binary with
// no subcommand runs it.
var runCmd = &cobra.Command{
	Use:   "run-cron",
	Short: "Run every enabled organization's scraper",
	Long: `run-cron lists enabled organizations, runs each one's scrape under a
per-scraper timeout, bounded to a configurable degree of parallelism, and
prints a run summary on stdout (a table, or JSON with --json).

Examples:
  aggregator run-cron
  aggregator run-cron --org pets-in-turkey
  aggregator run-cron --dry-run
  aggregator run-cron --list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := config.NewLogger(cfg.Logging)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch, gw, err := newOrchestrator(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer gw.Close()

		configs, err := loadConfigs(ctx, gw, cfg)
		if err != nil {
			return err
		}

		if runOrg != "" {
			configs = filterByConfigID(configs, runOrg)
			if len(configs) == 0 {
				return argError{fmt.Errorf("no organization config found for %q", runOrg)}
			}
		}

		if runList {
			printOrganizationList(configs)
			return nil
		}

		if runDryRun {
			printOrganizationList(configs)
			fmt.Println("(dry run: no scrapes executed)")
			return nil
		}

		if err := orch.SyncOrganizations(ctx, configs); err != nil {
			return err
		}

		summary := orch.RunAll(ctx, configs)

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
		} else {
			printSummary(summary)
		}

		if summary.ExitCode() != 0 {
			return fmt.Errorf("batch run completed with failures: %v", summary.FailedOrgs)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runOrg, "org", "", "run only this organization's config_id")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "list organizations that would run and exit")
	runCmd.Flags().BoolVar(&runList, "list", false, "print the enabled/disabled organization table")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run summary as JSON")
}

func filterByConfigID(configs []orgconfig.OrganizationConfig, configID string) []orgconfig.OrganizationConfig {
	for _, cfg := range configs {
		if cfg.ConfigID == configID {
			return []orgconfig.OrganizationConfig{cfg}
		}
	}
	return nil
}

func printOrganizationList(configs []orgconfig.OrganizationConfig) {
	fmt.Printf("%-30s %-10s %-30s %s\n", "CONFIG_ID", "ENABLED", "ADAPTER", "NAME")
	for _, cfg := range configs {
		enabled := "disabled"
		if cfg.Active {
			enabled = "enabled"
		}
		fmt.Printf("%-30s %-10s %-30s %s\n", cfg.ConfigID, enabled, cfg.Adapter, cfg.Name)
	}
}

// printSummary prints a human-readable run summary, in the style of the
// batch driver's per-source result table.
func printSummary(summary orchestrator.Summary) {
	fmt.Printf("%-10s %-10s %-10s %-10s\n", "ORGS", "OK", "FAILED", "DOGS_FOUND")
	fmt.Printf("%-10d %-10d %-10d %-10d\n", summary.TotalOrgs, summary.Successful, summary.Failed, summary.TotalDogsFound)
	fmt.Printf("duration: %.1fs\n", summary.DurationSeconds)
	if len(summary.FailedOrgs) > 0 {
		fmt.Printf("failed: %v\n", summary.FailedOrgs)
	}
}
