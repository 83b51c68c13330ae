package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rescuedogs/aggregator/internal/domain/organizations"
)

// OrganizationRepository implements organizations.Repository.
type OrganizationRepository struct {
	q querier
}

var _ organizations.Repository = (*OrganizationRepository)(nil)

func (r *OrganizationRepository) GetByConfigID(ctx context.Context, configID string) (organizations.Organization, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, config_id, name, website, country, scraper_adapter, active,
		       active_animal_count, total_animal_count, last_scraped_at, created_at, updated_at
		FROM organizations
		WHERE config_id = $1`, configID)

	org, err := scanOrganization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return organizations.Organization{}, organizations.ErrNotFound
	}
	if err != nil {
		return organizations.Organization{}, fmt.Errorf("postgres: get organization by config_id: %w", err)
	}
	return org, nil
}

func (r *OrganizationRepository) Upsert(ctx context.Context, org organizations.Organization) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO organizations (config_id, name, website, country, scraper_adapter, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (config_id) DO UPDATE SET
			name = EXCLUDED.name,
			website = EXCLUDED.website,
			country = EXCLUDED.country,
			scraper_adapter = EXCLUDED.scraper_adapter,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING id`,
		org.ConfigID, org.Name, org.Website, org.Country, org.ScraperAdapter, org.Enabled,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: upsert organization: %w", err)
	}
	return id, nil
}

func (r *OrganizationRepository) ListEnabled(ctx context.Context) ([]organizations.Organization, error) {
	return r.list(ctx, true)
}

func (r *OrganizationRepository) List(ctx context.Context) ([]organizations.Organization, error) {
	return r.list(ctx, false)
}

func (r *OrganizationRepository) list(ctx context.Context, enabledOnly bool) ([]organizations.Organization, error) {
	query := `
		SELECT id, config_id, name, website, country, scraper_adapter, active,
		       active_animal_count, total_animal_count, last_scraped_at, created_at, updated_at
		FROM organizations`
	if enabledOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY config_id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list organizations: %w", err)
	}
	defer rows.Close()

	var out []organizations.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan organization: %w", err)
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (r *OrganizationRepository) UpdateScrapeStamp(ctx context.Context, id int64, activeCount, totalCount int, scrapedAt time.Time) error {
	_, err := r.q.Exec(ctx, `
		UPDATE organizations
		SET active_animal_count = $2, total_animal_count = $3, last_scraped_at = $4, updated_at = now()
		WHERE id = $1`, id, activeCount, totalCount, scrapedAt)
	if err != nil {
		return fmt.Errorf("postgres: update scrape stamp: %w", err)
	}
	return nil
}

// rowScanner abstracts pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (organizations.Organization, error) {
	var org organizations.Organization
	err := row.Scan(
		&org.ID, &org.ConfigID, &org.Name, &org.Website, &org.Country, &org.ScraperAdapter, &org.Enabled,
		&org.ActiveAnimalCount, &org.TotalAnimalCount, &org.LastScrapedAt, &org.CreatedAt, &org.UpdatedAt,
	)
	return org, err
}
