// Package jsonldadapter is an example Adapter that reads schema.org
// structured data (spec §4.4, §9) instead of CSS selectors, for shelter sites
// that publish one JSON-LD Product per adoptable animal for SEO purposes.
package jsonldadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	scraper "github.com/rescuedogs/aggregator/internal/adapters/shared"
	"github.com/rescuedogs/aggregator/internal/domain/animals"
	"github.com/rescuedogs/aggregator/internal/orgconfig"
)

// Adapter implements scraperframework.Adapter over one organization's
// JSON-LD listing page.
type Adapter struct {
	url string
}

// New builds an Adapter for the organization's configured source URL.
func New(cfg orgconfig.OrganizationConfig) (*Adapter, error) {
	if cfg.Source.URL == "" {
		return nil, fmt.Errorf("jsonldadapter: organization %q has no source.url", cfg.ConfigID)
	}
	return &Adapter{url: cfg.Source.URL}, nil
}

// product is the subset of schema.org's Product shape this adapter maps onto
// a RawAnimal. Shelters vary in which of these they populate; anything
// missing is simply left blank for the Standardizer to default.
type product struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Image       any    `json:"image"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Offers      struct {
		URL string `json:"url"`
	} `json:"offers"`
	AdditionalProperty []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"additionalProperty"`
}

// CollectData fetches the configured page, extracts every schema.org Product
// block, and maps it onto a RawAnimal.
func (a *Adapter) CollectData(ctx context.Context) (<-chan animals.RawAnimal, error) {
	items, err := scraper.FetchAndExtractJSONLD(ctx, a.url)
	if err != nil {
		return nil, fmt.Errorf("jsonldadapter: fetch %q: %w", a.url, err)
	}

	ch := make(chan animals.RawAnimal, len(items))
	for _, raw := range items {
		animal, ok := toRawAnimal(raw)
		if !ok {
			continue
		}
		ch <- animal
	}
	close(ch)
	return ch, nil
}

func toRawAnimal(raw json.RawMessage) (animals.RawAnimal, bool) {
	var p product
	if err := json.Unmarshal(raw, &p); err != nil {
		return animals.RawAnimal{}, false
	}

	adoptionURL := p.URL
	if adoptionURL == "" {
		adoptionURL = p.Offers.URL
	}
	if p.Name == "" || adoptionURL == "" {
		return animals.RawAnimal{}, false
	}

	out := animals.RawAnimal{
		ExternalID:      externalID(p),
		Name:            p.Name,
		AdoptionURL:     adoptionURL,
		PrimaryImageURL: firstImageURL(p.Image),
		Breed:           p.Category,
		Properties:      map[string]any{},
	}
	if p.Description != "" {
		out.Properties["description"] = p.Description
	}
	for _, prop := range p.AdditionalProperty {
		switch strings.ToLower(prop.Name) {
		case "age":
			out.Age = prop.Value
		case "sex", "gender":
			out.Sex = prop.Value
		case "size":
			out.Size = prop.Value
		default:
			out.Properties[prop.Name] = prop.Value
		}
	}
	return out, true
}

func externalID(p product) string {
	if p.SKU != "" {
		return p.SKU
	}
	return p.URL
}

// firstImageURL normalizes schema.org's permissive `image` field, which may
// be a bare string URL, an ImageObject, or an array of either.
func firstImageURL(image any) string {
	switch v := image.(type) {
	case string:
		return v
	case map[string]any:
		if url, ok := v["url"].(string); ok {
			return url
		}
	case []any:
		for _, elem := range v {
			if url := firstImageURL(elem); url != "" {
				return url
			}
		}
	}
	return ""
}
