// Package statichtml is an example Adapter (spec §4.4, §9) that scrapes a
// static-HTML listing page with CSS selectors, demonstrating how a concrete
// source plugs into the Scraper Framework without ever touching storage.
package statichtml

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	scraper "github.com/rescuedogs/aggregator/internal/adapters/shared"
	"github.com/rescuedogs/aggregator/internal/domain/animals"
	"github.com/rescuedogs/aggregator/internal/orgconfig"
)

// Adapter implements scraperframework.Adapter over one organization's
// CSS-selector listing-page configuration.
type Adapter struct {
	extractor *scraper.CollyExtractor
	source    scraper.SourceConfig
}

// New builds an Adapter from an organization's declarative config. It
// returns an error if the config carries no source URL or item-list
// selector, since those are the two things this adapter cannot infer.
func New(logger zerolog.Logger, cfg orgconfig.OrganizationConfig) (*Adapter, error) {
	if cfg.Source.URL == "" {
		return nil, fmt.Errorf("statichtml: organization %q has no source.url", cfg.ConfigID)
	}
	if cfg.Source.Selectors.ItemList == "" {
		return nil, fmt.Errorf("statichtml: organization %q has no source.selectors.item_list", cfg.ConfigID)
	}

	return &Adapter{
		extractor: scraper.NewCollyExtractor(logger),
		source: scraper.SourceConfig{
			URL:      cfg.Source.URL,
			MaxPages: cfg.Source.MaxPages,
			Selectors: scraper.Selectors{
				ItemList:    cfg.Source.Selectors.ItemList,
				Name:        cfg.Source.Selectors.Name,
				Breed:       cfg.Source.Selectors.Breed,
				Age:         cfg.Source.Selectors.Age,
				Sex:         cfg.Source.Selectors.Sex,
				Size:        cfg.Source.Selectors.Size,
				AdoptionURL: cfg.Source.Selectors.AdoptionURL,
				Image:       cfg.Source.Selectors.Image,
				Pagination:  cfg.Source.Selectors.Pagination,
			},
		},
	}, nil
}

// CollectData scrapes the configured listing (and its pagination) and
// streams every discovered animal on the returned channel, closing it when
// collection finishes or ctx is cancelled.
func (a *Adapter) CollectData(ctx context.Context) (<-chan animals.RawAnimal, error) {
	raw, err := a.extractor.ScrapeWithSelectors(ctx, a.source)
	if err != nil {
		return nil, fmt.Errorf("statichtml: scrape %q: %w", a.source.URL, err)
	}

	ch := make(chan animals.RawAnimal, len(raw))
	for _, item := range raw {
		ch <- item
	}
	close(ch)
	return ch, nil
}
