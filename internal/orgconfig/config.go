// Package orgconfig loads and validates per-organization declarative YAML
// configuration (spec §6), one file per source, grounded on the scraper
// framework's source-config loader idiom: a flat directory of YAML files,
// parsed with gopkg.in/yaml.v3 and validated before any scrape can use them.
package orgconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AdoptionCheckConfig controls the optional adoption-status re-check pass.
type AdoptionCheckConfig struct {
	MaxChecksPerRun    int `yaml:"max_checks_per_run"`
	CheckIntervalHours int `yaml:"check_interval_hours"`
}

// SelectorConfig maps one listing card's CSS selectors to RawAnimal fields,
// consumed by the CSS-selector-based example adapters (static HTML,
// JS-rendered).
type SelectorConfig struct {
	ItemList    string `yaml:"item_list"`
	Name        string `yaml:"name"`
	Breed       string `yaml:"breed"`
	Age         string `yaml:"age"`
	Sex         string `yaml:"sex"`
	Size        string `yaml:"size"`
	AdoptionURL string `yaml:"adoption_url"`
	Image       string `yaml:"image"`
	Pagination  string `yaml:"pagination"`
}

// SourceConfig parameterizes the listing page an adapter scrapes.
type SourceConfig struct {
	URL       string         `yaml:"url"`
	MaxPages  int            `yaml:"max_pages"`
	Selectors SelectorConfig `yaml:"selectors"`
}

// ScraperSettings holds the per-organization scraper tuning knobs (spec §6).
type ScraperSettings struct {
	RateLimitDelay         float64             `yaml:"rate_limit_delay"`
	BatchSize              int                 `yaml:"batch_size"`
	MaxRetries             int                 `yaml:"max_retries"`
	Timeout                int                 `yaml:"timeout"`
	SkipExistingAnimals    bool                `yaml:"skip_existing_animals"`
	CheckAdoptionStatus    bool                `yaml:"check_adoption_status"`
	AdoptionCheckThreshold int                 `yaml:"adoption_check_threshold"`
	AdoptionCheckConfig    AdoptionCheckConfig `yaml:"adoption_check_config"`
}

// Metadata holds descriptive, non-behavioral organization attributes.
type Metadata struct {
	WebsiteURL string `yaml:"website_url"`
	Country    string `yaml:"country"`
}

// OrganizationConfig is one organization's declarative configuration, loaded
// from a single YAML file; the file name is not checked against ConfigID.
type OrganizationConfig struct {
	ConfigID string          `yaml:"config_id"`
	Name     string          `yaml:"name"`
	Active   bool            `yaml:"active"`
	Adapter  string          `yaml:"adapter"`
	Metadata Metadata        `yaml:"metadata"`
	Scraper  ScraperSettings `yaml:"scraper"`
	Source   SourceConfig    `yaml:"source"`
}

// defaults applied when the YAML document omits a field, matching the
// scraper framework's documented fallbacks so a minimal config file is valid.
const (
	defaultRateLimitDelay = 1.0
	defaultBatchSize      = 25
	defaultMaxRetries     = 3
	defaultTimeout        = 1200 // ~20 minutes, per spec §5 cancellation/timeouts
)

func (c *OrganizationConfig) applyDefaults() {
	if c.Scraper.RateLimitDelay <= 0 {
		c.Scraper.RateLimitDelay = defaultRateLimitDelay
	}
	if c.Scraper.BatchSize <= 0 {
		c.Scraper.BatchSize = defaultBatchSize
	}
	if c.Scraper.MaxRetries <= 0 {
		c.Scraper.MaxRetries = defaultMaxRetries
	}
	if c.Scraper.Timeout <= 0 {
		c.Scraper.Timeout = defaultTimeout
	}
}

// Validate checks the required fields and value ranges for one config.
func (c OrganizationConfig) Validate() error {
	var problems []string

	if strings.TrimSpace(c.ConfigID) == "" {
		problems = append(problems, "config_id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(c.Adapter) == "" {
		problems = append(problems, "adapter is required")
	}
	if c.Scraper.RateLimitDelay < 0 {
		problems = append(problems, "scraper.rate_limit_delay must be >= 0")
	}
	if c.Scraper.BatchSize < 1 {
		problems = append(problems, "scraper.batch_size must be >= 1")
	}
	if c.Scraper.MaxRetries < 0 {
		problems = append(problems, "scraper.max_retries must be >= 0")
	}
	if c.Scraper.Timeout < 1 {
		problems = append(problems, "scraper.timeout must be >= 1")
	}
	if c.Scraper.CheckAdoptionStatus && c.Scraper.AdoptionCheckThreshold < 0 {
		problems = append(problems, "scraper.adoption_check_threshold must be >= 0")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid organization config %q: %s", c.ConfigID, strings.Join(problems, "; "))
	}
	return nil
}

// Load reads and validates a single organization config file.
func Load(path string) (OrganizationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return OrganizationConfig{}, fmt.Errorf("reading organization config %q: %w", path, err)
	}

	var cfg OrganizationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return OrganizationConfig{}, fmt.Errorf("parsing organization config %q: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return OrganizationConfig{}, err
	}
	return cfg, nil
}

// LoadDir reads every *.yaml/*.yml file in dir and returns the validated
// configs sorted by ConfigID, so orchestrator runs are deterministic. A
// single invalid file aborts the whole load with an aggregated error — a
// `fatal_setup` condition per spec §7, since the orchestrator must not start
// any scrape with a partially-loaded config set.
func LoadDir(dir string) ([]OrganizationConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading organization config directory %q: %w", dir, err)
	}

	var (
		configs []OrganizationConfig
		errs    []string
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		cfg, loadErr := Load(filepath.Join(dir, name))
		if loadErr != nil {
			errs = append(errs, loadErr.Error())
			continue
		}
		configs = append(configs, cfg)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("organization config errors:\n%s", strings.Join(errs, "\n"))
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].ConfigID < configs[j].ConfigID })
	return configs, nil
}

// DBLister is the database-backed half of the DB-first/YAML-fallback loader.
// Satisfied by internal/storage/postgres.OrganizationConfigRepository.
type DBLister interface {
	List(ctx context.Context) ([]OrganizationConfig, error)
}

// LoadDBFirst merges database-stored configs with the YAML directory: a
// ConfigID present in the database wins outright; a ConfigID found only in
// the YAML directory is kept as a fallback. This lets an operator manage the
// bulk of sources as files while overriding or adding individual ones from
// the database without a redeploy.
func LoadDBFirst(ctx context.Context, db DBLister, yamlDir string) ([]OrganizationConfig, error) {
	dbConfigs, err := db.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading organization configs from database: %w", err)
	}

	byID := make(map[string]OrganizationConfig, len(dbConfigs))
	for _, cfg := range dbConfigs {
		cfg.applyDefaults()
		byID[cfg.ConfigID] = cfg
	}

	yamlConfigs, err := LoadDir(yamlDir)
	if err != nil {
		return nil, err
	}
	for _, cfg := range yamlConfigs {
		if _, ok := byID[cfg.ConfigID]; ok {
			continue
		}
		byID[cfg.ConfigID] = cfg
	}

	merged := make([]OrganizationConfig, 0, len(byID))
	for _, cfg := range byID {
		merged = append(merged, cfg)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ConfigID < merged[j].ConfigID })
	return merged, nil
}
