package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescuedogs/aggregator/internal/config"
	qualitypkg "github.com/rescuedogs/aggregator/internal/quality"
	"github.com/rescuedogs/aggregator/internal/storage/postgres"
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Offline data quality reporting",
}

var qualityReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Score every organization's stored animals and print a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx := context.Background()
		gw, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer gw.Close()

		orgs, err := gw.Organizations().ListEnabled(ctx)
		if err != nil {
			return err
		}

		monitor := qualitypkg.New(gw.Quality())
		reports := make([]qualitypkg.OrganizationReport, 0, len(orgs))
		for _, org := range orgs {
			report, err := monitor.OrganizationReport(ctx, org.ID, org.Name)
			if err != nil {
				return fmt.Errorf("score organization %q: %w", org.ConfigID, err)
			}
			reports = append(reports, report)
		}

		fmt.Print(qualitypkg.Render(reports))
		return nil
	},
}

func init() {
	qualityCmd.AddCommand(qualityReportCmd)
}
