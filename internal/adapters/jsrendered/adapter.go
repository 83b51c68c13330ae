// Package jsrendered is an example Adapter for listing pages that only
// populate their DOM via client-side JavaScript (spec §9: "Selenium/
// headless-browser adapters modeled as a scoped-lifetime handle ... opened
// once per scrape and closed via defer on every exit path, never shared
// across scrapes"). It drives a real Chromium instance through go-rod,
// launched with the stealth patches so shelter sites that fingerprint
// headless browsers still render their listings.
package jsrendered

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"

	"github.com/rescuedogs/aggregator/internal/domain/animals"
	"github.com/rescuedogs/aggregator/internal/orgconfig"
)

const (
	defaultPageTimeout = 30 * time.Second
	waitStableDuration = 2 * time.Second
)

// Adapter implements scraperframework.Adapter over one organization's
// JS-rendered listing page.
type Adapter struct {
	url       string
	maxPages  int
	selectors orgconfig.SelectorConfig
}

// New builds an Adapter from the organization's declarative config.
func New(cfg orgconfig.OrganizationConfig) (*Adapter, error) {
	if cfg.Source.URL == "" {
		return nil, fmt.Errorf("jsrendered: organization %q has no source.url", cfg.ConfigID)
	}
	if cfg.Source.Selectors.ItemList == "" {
		return nil, fmt.Errorf("jsrendered: organization %q has no source.selectors.item_list", cfg.ConfigID)
	}

	maxPages := cfg.Source.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}
	return &Adapter{url: cfg.Source.URL, maxPages: maxPages, selectors: cfg.Source.Selectors}, nil
}

// CollectData launches a fresh, stealth-patched browser for this scrape,
// navigates the configured listing page and any "next page" links it finds
// up to maxPages, and closes the browser on every exit path before
// returning.
func (a *Adapter) CollectData(ctx context.Context) (<-chan animals.RawAnimal, error) {
	browser := rod.New().Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("jsrendered: launch browser: %w", err)
	}
	defer browser.MustClose()

	var results []animals.RawAnimal
	pageURL := a.url

	for page := 0; page < a.maxPages && pageURL != ""; page++ {
		if err := ctx.Err(); err != nil {
			return toChannel(results), err
		}

		items, next, err := a.scrapePage(browser, pageURL)
		if err != nil {
			return toChannel(results), fmt.Errorf("jsrendered: scrape page %q: %w", pageURL, err)
		}
		results = append(results, items...)
		pageURL = next
	}

	return toChannel(results), nil
}

func (a *Adapter) scrapePage(browser *rod.Browser, pageURL string) ([]animals.RawAnimal, string, error) {
	stealthPage, err := stealth.Page(browser)
	if err != nil {
		return nil, "", fmt.Errorf("open stealth page: %w", err)
	}
	defer stealthPage.MustClose()

	page := stealthPage.Timeout(defaultPageTimeout)
	if err := page.Navigate(pageURL); err != nil {
		return nil, "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitStable(waitStableDuration); err != nil {
		return nil, "", fmt.Errorf("wait for page to settle: %w", err)
	}

	cards, err := page.Elements(a.selectors.ItemList)
	if err != nil {
		return nil, "", fmt.Errorf("select item list: %w", err)
	}

	var items []animals.RawAnimal
	for _, card := range cards {
		item := a.extractCard(card)
		if item.Name == "" || item.AdoptionURL == "" {
			continue
		}
		items = append(items, item)
	}

	var nextURL string
	if a.selectors.Pagination != "" {
		if next, err := page.Element(a.selectors.Pagination); err == nil && next != nil {
			if href, err := next.Attribute("href"); err == nil && href != nil {
				nextURL = *href
			}
		}
	}

	return items, nextURL, nil
}

func (a *Adapter) extractCard(card *rod.Element) animals.RawAnimal {
	raw := animals.RawAnimal{Properties: map[string]any{}}

	raw.Name = textOf(card, a.selectors.Name)
	raw.Breed = textOf(card, a.selectors.Breed)
	raw.Age = textOf(card, a.selectors.Age)
	raw.Sex = textOf(card, a.selectors.Sex)
	raw.Size = textOf(card, a.selectors.Size)
	raw.AdoptionURL = attrOf(card, a.selectors.AdoptionURL, "href")
	raw.PrimaryImageURL = attrOf(card, a.selectors.Image, "src")

	if raw.AdoptionURL != "" {
		raw.ExternalID = externalIDFromURL(raw.AdoptionURL)
	}
	return raw
}

func textOf(card *rod.Element, selector string) string {
	if selector == "" {
		return ""
	}
	el, err := card.Element(selector)
	if err != nil || el == nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func attrOf(card *rod.Element, selector, attr string) string {
	if selector == "" {
		return ""
	}
	el, err := card.Element(selector)
	if err != nil || el == nil {
		return ""
	}
	value, err := el.Attribute(attr)
	if err != nil || value == nil {
		return ""
	}
	return *value
}

func externalIDFromURL(adoptionURL string) string {
	trimmed := strings.TrimSuffix(adoptionURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return adoptionURL
	}
	return trimmed[idx+1:]
}

func toChannel(items []animals.RawAnimal) <-chan animals.RawAnimal {
	ch := make(chan animals.RawAnimal, len(items))
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return ch
}
