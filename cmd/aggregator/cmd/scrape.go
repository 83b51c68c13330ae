package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rescuedogs/aggregator/internal/config"
	"github.com/rescuedogs/aggregator/internal/orgconfig"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run or inspect a single organization's scraper",
}

var scrapeOneCmd = &cobra.Command{
	Use:   "one <config_id>",
	Short: "Run a single organization's scraper outside the batch driver",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configID := args[0]

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
		matched := filterByConfigID(configs, configID)
		if len(matched) == 0 {
			return argError{fmt.Errorf("no organization config found for %q", configID)}
		}

		if err := orch.SyncOrganizations(ctx, matched); err != nil {
			return err
		}

		result := orch.RunOne(ctx, matched[0])
		fmt.Printf("config_id=%s success=%v dogs_found=%d\n", result.ConfigID, result.Success, result.DogsFound)
		if result.Error != "" {
			return fmt.Errorf("%s", result.Error)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect organization configuration files",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate every organization config file in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		configs, err := orgconfig.LoadDir(dir)
		if err != nil {
			return argError{err}
		}

		invalid := 0
		for _, cfg := range configs {
			if err := cfg.Validate(); err != nil {
				fmt.Printf("%-30s INVALID: %v\n", cfg.ConfigID, err)
				invalid++
				continue
			}
			fmt.Printf("%-30s ok\n", cfg.ConfigID)
		}

		if invalid > 0 {
			return fmt.Errorf("%d invalid config(s)", invalid)
		}
		return nil
	},
}

func init() {
	scrapeCmd.AddCommand(scrapeOneCmd)
	configCmd.AddCommand(configValidateCmd)
}
