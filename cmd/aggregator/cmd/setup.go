package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rescuedogs/aggregator/internal/adapters/jsonldadapter"
	"github.com/rescuedogs/aggregator/internal/adapters/jsrendered"
	"github.com/rescuedogs/aggregator/internal/adapters/statichtml"
	"github.com/rescuedogs/aggregator/internal/config"
	"github.com/rescuedogs/aggregator/internal/orchestrator"
	"github.com/rescuedogs/aggregator/internal/orgconfig"
	"github.com/rescuedogs/aggregator/internal/scraperframework"
	"github.com/rescuedogs/aggregator/internal/storage/postgres"
)

// adapterRegistry wires every example adapter this repository ships against
// the orgconfig.OrganizationConfig.Adapter name an operator's YAML file
// selects.
func adapterRegistry(logger zerolog.Logger) orchestrator.Registry {
	return orchestrator.Registry{
		"static-html": func(cfg orgconfig.OrganizationConfig) (scraperframework.Adapter, error) {
			return statichtml.New(logger, cfg)
		},
		"json-ld": func(cfg orgconfig.OrganizationConfig) (scraperframework.Adapter, error) {
			return jsonldadapter.New(cfg)
		},
		"js-rendered": func(cfg orgconfig.OrganizationConfig) (scraperframework.Adapter, error) {
			return jsrendered.New(cfg)
		},
	}
}

// loadConfigs applies the DB-first/YAML-fallback organization config loader
// against an already-open gateway.
func loadConfigs(ctx context.Context, gw *postgres.Gateway, cfg config.Config) ([]orgconfig.OrganizationConfig, error) {
	configs, err := orgconfig.LoadDBFirst(ctx, gw.OrganizationConfigs(), cfg.Orchestrator.ConfigsDir)
	if err != nil {
		return nil, fmt.Errorf("load organization configs: %w", err)
	}
	return configs, nil
}

// newOrchestrator opens the database gateway and builds an Orchestrator
// wired against every registered adapter, per cfg.
func newOrchestrator(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*orchestrator.Orchestrator, *postgres.Gateway, error) {
	gw, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	orch := orchestrator.New(gw, adapterRegistry(logger), cfg.Orchestrator.ScraperTimeout, cfg.Orchestrator.MaxParallelScrapers, logger)
	return orch, gw, nil
}
