// Package organizations defines the Organization aggregate: a single rescue
// or shelter whose listings the aggregator scrapes.
package organizations

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an organization lookup finds no match.
var ErrNotFound = errors.New("organization: not found")

// Organization is one rescue/shelter source the aggregator knows how to scrape.
type Organization struct {
	ID               int64
	ConfigID         string // stable slug from the YAML config, e.g. "pets-in-turkey"
	Name             string
	Website          string
	Country          string
	ScraperAdapter   string // registered adapter name, e.g. "static-html"
	Enabled          bool
	ActiveAnimalCount int
	TotalAnimalCount int
	LastScrapedAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Repository persists and retrieves organizations.
type Repository interface {
	// GetByConfigID returns the organization with the given config slug.
	GetByConfigID(ctx context.Context, configID string) (Organization, error)

	// Upsert inserts a new organization or updates an existing one by ConfigID,
	// returning the (possibly newly assigned) ID.
	Upsert(ctx context.Context, org Organization) (int64, error)

	// ListEnabled returns every organization with Enabled == true, in a stable
	// order so repeated cron runs iterate organizations deterministically.
	ListEnabled(ctx context.Context) ([]Organization, error)

	// List returns every organization regardless of enabled state.
	List(ctx context.Context) ([]Organization, error)

	// UpdateScrapeStamp records that a scrape just completed for org, updating
	// LastScrapedAt and the cached animal counts.
	UpdateScrapeStamp(ctx context.Context, id int64, activeCount, totalCount int, scrapedAt time.Time) error
}
