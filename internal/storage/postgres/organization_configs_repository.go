package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rescuedogs/aggregator/internal/orgconfig"
)

// OrganizationConfigRepository persists per-organization scraper configuration
// in the database, mirroring internal/orgconfig's YAML schema so a deployment
// can manage sources without redeploying config files (spec §9, grounded on
// the teacher's scraper_sources table + dual-source loader).
type OrganizationConfigRepository struct {
	q querier
}

var _ orgconfig.DBLister = (*OrganizationConfigRepository)(nil)

// ErrConfigNotFound is returned by Get when config_id has no database row —
// the caller should fall back to the YAML directory, not treat this as fatal.
var ErrConfigNotFound = errors.New("postgres: organization config not found")

// Get returns the database-stored config for configID, or ErrConfigNotFound.
func (r *OrganizationConfigRepository) Get(ctx context.Context, configID string) (orgconfig.OrganizationConfig, error) {
	row := r.q.QueryRow(ctx, `
		SELECT config_id, name, active, adapter, metadata, scraper
		FROM organization_configs
		WHERE config_id = $1`, configID)

	cfg, err := scanOrganizationConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return orgconfig.OrganizationConfig{}, ErrConfigNotFound
	}
	if err != nil {
		return orgconfig.OrganizationConfig{}, fmt.Errorf("postgres: get organization config: %w", err)
	}
	return cfg, nil
}

// List returns every database-stored organization config, satisfying
// orgconfig.DBLister for the DB-first/YAML-fallback loader.
func (r *OrganizationConfigRepository) List(ctx context.Context) ([]orgconfig.OrganizationConfig, error) {
	rows, err := r.q.Query(ctx, `
		SELECT config_id, name, active, adapter, metadata, scraper
		FROM organization_configs
		ORDER BY config_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list organization configs: %w", err)
	}
	defer rows.Close()

	var out []orgconfig.OrganizationConfig
	for rows.Next() {
		cfg, err := scanOrganizationConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan organization config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// Upsert writes cfg, inserting a new row or replacing the existing one by
// ConfigID.
func (r *OrganizationConfigRepository) Upsert(ctx context.Context, cfg orgconfig.OrganizationConfig) error {
	metadata, err := json.Marshal(cfg.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal organization config metadata: %w", err)
	}
	scraper, err := json.Marshal(cfg.Scraper)
	if err != nil {
		return fmt.Errorf("postgres: marshal organization config scraper settings: %w", err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO organization_configs (config_id, name, active, adapter, metadata, scraper)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (config_id) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			adapter = EXCLUDED.adapter,
			metadata = EXCLUDED.metadata,
			scraper = EXCLUDED.scraper,
			updated_at = now()`,
		cfg.ConfigID, cfg.Name, cfg.Active, cfg.Adapter, metadata, scraper,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert organization config: %w", err)
	}
	return nil
}

func scanOrganizationConfig(row rowScanner) (orgconfig.OrganizationConfig, error) {
	var cfg orgconfig.OrganizationConfig
	var metadata, scraper []byte

	if err := row.Scan(&cfg.ConfigID, &cfg.Name, &cfg.Active, &cfg.Adapter, &metadata, &scraper); err != nil {
		return orgconfig.OrganizationConfig{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &cfg.Metadata); err != nil {
			return orgconfig.OrganizationConfig{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(scraper) > 0 {
		if err := json.Unmarshal(scraper, &cfg.Scraper); err != nil {
			return orgconfig.OrganizationConfig{}, fmt.Errorf("unmarshal scraper settings: %w", err)
		}
	}
	return cfg, nil
}
