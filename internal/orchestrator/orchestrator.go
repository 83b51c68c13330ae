// Package orchestrator implements the Cron Driver (spec §4.7): the single
// entry point for a scheduled batch run. It lists enabled organizations,
// runs each one's scrape under its own timeout and isolated failure domain,
// fans out with a bounded degree of parallelism, and aggregates a run
// summary whose exit code and JSON shape mirror the teacher's
// scrapeAllCmd/printAllResults convention.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rescuedogs/aggregator/internal/domain/organizations"
	"github.com/rescuedogs/aggregator/internal/orgconfig"
	"github.com/rescuedogs/aggregator/internal/scraperframework"
	"github.com/rescuedogs/aggregator/internal/session"
	"github.com/rescuedogs/aggregator/internal/storage/postgres"
)

// AdapterFactory builds a concrete scraperframework.Adapter for one
// organization's configuration. Registered by adapter name (the
// OrganizationConfig.Adapter field), e.g. "static-html", "json-ld",
// "js-rendered".
type AdapterFactory func(cfg orgconfig.OrganizationConfig) (scraperframework.Adapter, error)

// Registry maps an adapter name to its factory. An unknown name fails only
// that organization's run: RunOne records it as the RunResult error and the
// other organizations still run.
type Registry map[string]AdapterFactory

// RunResult is the outcome of one organization's run_one call (spec §4.7):
// it never escapes as an error to the caller, only as a field on this
// struct.
type RunResult struct {
	ConfigID  string
	OrgName   string
	Success   bool
	DogsFound int
	Error     string
	Summary   scraperframework.RunSummary
}

// Orchestrator holds the collaborators run_one/run_all need: the database
// gateway, the adapter registry, and the per-scraper timeout/parallelism
// bounds (spec §5).
type Orchestrator struct {
	gw          *postgres.Gateway
	registry    Registry
	logger      zerolog.Logger
	timeout     time.Duration
	maxParallel int
}

// New returns an Orchestrator. timeout is the per-scraper deadline (spec §5
// default ~20 minutes); maxParallel bounds concurrent scrapes (spec §5
// typical 3-8).
func New(gw *postgres.Gateway, registry Registry, timeout time.Duration, maxParallel int, logger zerolog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Orchestrator{gw: gw, registry: registry, logger: logger, timeout: timeout, maxParallel: maxParallel}
}

// SyncOrganizations upserts every loaded config into the organizations
// table, so the database reflects whatever config set was just loaded
// before any scrape references an organization row. It does not delete rows
// for configs that disappeared — an operator removing a YAML file does not
// retroactively erase that organization's animal history.
func (o *Orchestrator) SyncOrganizations(ctx context.Context, configs []orgconfig.OrganizationConfig) error {
	for _, cfg := range configs {
		org := organizations.Organization{
			ConfigID:       cfg.ConfigID,
			Name:           cfg.Name,
			Website:        cfg.Metadata.WebsiteURL,
			Country:        cfg.Metadata.Country,
			ScraperAdapter: cfg.Adapter,
			Enabled:        cfg.Active,
		}
		if _, err := o.gw.Organizations().Upsert(ctx, org); err != nil {
			return fmt.Errorf("orchestrator: sync organization %q: %w", cfg.ConfigID, err)
		}
	}
	return nil
}

// ListEnabledOrganizations returns every organization currently marked
// active in the database.
func (o *Orchestrator) ListEnabledOrganizations(ctx context.Context) ([]organizations.Organization, error) {
	return o.gw.Organizations().ListEnabled(ctx)
}

// RunOne runs a single organization's scrape under its own timeout,
// capturing any failure (including an adapter panic) into RunResult rather
// than letting it propagate — spec §4.7: "Never raises to the caller."
func (o *Orchestrator) RunOne(ctx context.Context, cfg orgconfig.OrganizationConfig) RunResult {
	result := RunResult{ConfigID: cfg.ConfigID, OrgName: cfg.Name}

	org, err := o.gw.Organizations().GetByConfigID(ctx, cfg.ConfigID)
	if err != nil {
		result.Error = fmt.Sprintf("resolve organization: %v", err)
		return result
	}

	factory, ok := o.registry[cfg.Adapter]
	if !ok {
		result.Error = fmt.Sprintf("no adapter registered for %q", cfg.Adapter)
		return result
	}
	adapter, err := factory(cfg)
	if err != nil {
		result.Error = fmt.Sprintf("build adapter: %v", err)
		return result
	}

	timeout := o.timeout
	if cfg.Scraper.Timeout > 0 {
		timeout = time.Duration(cfg.Scraper.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	summary, runErr := o.runGuarded(runCtx, org, adapter, toFrameworkConfig(cfg))
	result.Summary = summary
	result.DogsFound = summary.DogsFound
	if runErr != nil {
		result.Error = runErr.Error()
		return result
	}
	result.Success = true
	return result
}

// runGuarded wraps scraperframework.Run so a panicking Adapter.CollectData
// implementation surfaces as a RunResult error instead of crashing the
// orchestrator (spec §7: "Adapters MAY NOT raise out of collect_data; the
// framework wraps it in a guard and translates to failure").
func (o *Orchestrator) runGuarded(ctx context.Context, org organizations.Organization, adapter scraperframework.Adapter, cfg scraperframework.Config) (summary scraperframework.RunSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return scraperframework.Run(ctx, o.gw, org, adapter, cfg, o.logger)
}

func toFrameworkConfig(cfg orgconfig.OrganizationConfig) scraperframework.Config {
	return scraperframework.Config{
		RateLimitDelay:      time.Duration(cfg.Scraper.RateLimitDelay * float64(time.Second)),
		BatchSize:           cfg.Scraper.BatchSize,
		MaxRetries:          cfg.Scraper.MaxRetries,
		SkipExistingAnimals: cfg.Scraper.SkipExistingAnimals,
		GuardConfig:         session.GuardConfig{},
	}
}

// RunAll runs every enabled config concurrently, bounded by maxParallel, and
// returns the aggregated summary (spec §4.7/§6).
func (o *Orchestrator) RunAll(ctx context.Context, configs []orgconfig.OrganizationConfig) Summary {
	started := time.Now()

	var enabled []orgconfig.OrganizationConfig
	for _, cfg := range configs {
		if cfg.Active {
			enabled = append(enabled, cfg)
		}
	}

	jobs := make([]func(context.Context) RunResult, len(enabled))
	for i, cfg := range enabled {
		cfg := cfg
		jobs[i] = func(jobCtx context.Context) RunResult { return o.RunOne(jobCtx, cfg) }
	}

	results := runBounded(ctx, o.maxParallel, jobs)
	return aggregate(results, started)
}

// runBounded runs every job concurrently with at most maxParallel in flight
// at once, returning results in the same order as jobs. A job's own context
// cancellation or panic is already contained by the caller (RunOne); this
// helper only bounds concurrency.
func runBounded(ctx context.Context, maxParallel int, jobs []func(context.Context) RunResult) []RunResult {
	results := make([]RunResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	sem := make(chan struct{}, maxParallel)
	g, gCtx := errgroup.WithContext(ctx)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = job(gCtx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Summary is the run-summary shape emitted as JSON on stdout (spec §6).
type Summary struct {
	BatchComplete   bool      `json:"batch_complete"`
	Timestamp       time.Time `json:"timestamp"`
	TotalOrgs       int       `json:"total_orgs"`
	Successful      int       `json:"successful"`
	Failed          int       `json:"failed"`
	TotalDogsFound  int       `json:"total_dogs_found"`
	DurationSeconds float64   `json:"duration_seconds"`
	FailedOrgs      []string  `json:"failed_orgs"`
	OverallSuccess  bool      `json:"overall_success"`
}

// ExitCode maps a Summary to the CLI exit code (spec §6): 0 when every
// scraper succeeded, 1 otherwise. Argument errors (exit 2) are the CLI
// layer's concern, not the orchestrator's.
func (s Summary) ExitCode() int {
	if s.OverallSuccess {
		return 0
	}
	return 1
}

// aggregate is run_all's database-free core: given the RunResults already
// collected, compute the summary. Kept pure and separate from RunAll's
// concurrency/IO so the aggregation scenario (spec §8) is tested without a
// database or real adapters.
func aggregate(results []RunResult, started time.Time) Summary {
	s := Summary{
		BatchComplete: true,
		Timestamp:     time.Now(),
		TotalOrgs:     len(results),
	}
	for _, r := range results {
		if r.Success {
			s.Successful++
		} else {
			s.Failed++
			s.FailedOrgs = append(s.FailedOrgs, r.ConfigID)
		}
		s.TotalDogsFound += r.DogsFound
	}
	s.DurationSeconds = time.Since(started).Seconds()
	s.OverallSuccess = s.Failed == 0
	return s
}
