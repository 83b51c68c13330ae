// Package scraper holds the HTTP/HTML plumbing shared by concrete Adapter
// implementations (spec §4.4): a CSS-selector extractor built on
// gocolly/colly/v2, a JSON-LD extractor built on PuerkitoBio/goquery, and a
// robots.txt checker. Adapters compose these helpers; neither helper knows
// about the Scraper Framework's Template-Method driver.
package scraper

import (
	"context"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"

	"github.com/rescuedogs/aggregator/internal/domain/animals"
)

// Selectors maps one listing card's CSS selectors to RawAnimal fields. A
// selector left empty is simply not extracted.
type Selectors struct {
	ItemList    string // selector matching one dog's card/row
	Name        string
	Breed       string
	Age         string
	Sex         string
	Size        string
	AdoptionURL string // anchor whose href is the adoption page
	Image       string // img whose src is the primary photo
	Pagination  string // selector for a "next page" link
}

// SourceConfig parameterizes one CollyExtractor run against one listing page.
type SourceConfig struct {
	URL       string
	MaxPages  int
	Selectors Selectors
}

// CollyExtractor performs CSS-selector-based scraping of a static HTML
// listing page, following pagination up to MaxPages.
type CollyExtractor struct {
	userAgent string
	rateLimit time.Duration
	logger    zerolog.Logger
}

// NewCollyExtractor returns a CollyExtractor with the aggregator's standard
// User-Agent and a 1-second per-domain rate limit.
func NewCollyExtractor(logger zerolog.Logger) *CollyExtractor {
	return &CollyExtractor{
		userAgent: "RescueDogsAggregator/0.1 (+https://github.com/rescuedogs/aggregator)",
		rateLimit: time.Second,
		logger:    logger,
	}
}

// ScrapeWithSelectors fetches config.URL and all linked pages (up to
// config.MaxPages), applying the CSS selectors in config.Selectors to collect
// RawAnimals. It respects robots.txt (enabled explicitly, since a colly v2
// collector ignores robots.txt by default) and applies per-domain
// rate limiting. If ctx is cancelled before scraping completes, the function
// returns whatever animals were collected up to that point.
func (e *CollyExtractor) ScrapeWithSelectors(ctx context.Context, config SourceConfig) ([]animals.RawAnimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allowedDomain, err := extractDomain(config.URL)
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		results   []animals.RawAnimal
		pagesSeen int
	)

	maxPages := config.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	c := colly.NewCollector(
		colly.UserAgent(e.userAgent),
		colly.AllowedDomains(allowedDomain),
	)
	// colly v2 collectors start with IgnoreRobotsTxt set; turn robots.txt checks on.
	c.IgnoreRobotsTxt = false

	if err := c.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      e.rateLimit,
	}); err != nil {
		e.logger.Warn().Err(err).Msg("colly: failed to set rate limit rule")
	}

	// OnHTML: extract one animal from each matching listing card.
	c.OnHTML(config.Selectors.ItemList, func(h *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}

		raw := animals.RawAnimal{Properties: map[string]any{}}

		if config.Selectors.Name != "" {
			raw.Name = strings.TrimSpace(h.ChildText(config.Selectors.Name))
		}
		if config.Selectors.Breed != "" {
			raw.Breed = strings.TrimSpace(h.ChildText(config.Selectors.Breed))
		}
		if config.Selectors.Age != "" {
			raw.Age = strings.TrimSpace(h.ChildText(config.Selectors.Age))
		}
		if config.Selectors.Sex != "" {
			raw.Sex = strings.TrimSpace(h.ChildText(config.Selectors.Sex))
		}
		if config.Selectors.Size != "" {
			raw.Size = strings.TrimSpace(h.ChildText(config.Selectors.Size))
		}
		if config.Selectors.AdoptionURL != "" {
			href := h.ChildAttr(config.Selectors.AdoptionURL, "href")
			if href != "" {
				raw.AdoptionURL = h.Request.AbsoluteURL(href)
			}
		}
		if config.Selectors.Image != "" {
			src := h.ChildAttr(config.Selectors.Image, "src")
			if src != "" {
				raw.PrimaryImageURL = h.Request.AbsoluteURL(src)
			}
		}

		if raw.Name == "" || raw.AdoptionURL == "" {
			return
		}
		raw.ExternalID = externalIDFromURL(raw.AdoptionURL)

		mu.Lock()
		results = append(results, raw)
		mu.Unlock()
	})

	// OnHTML: follow pagination links if configured.
	if config.Selectors.Pagination != "" {
		c.OnHTML(config.Selectors.Pagination, func(h *colly.HTMLElement) {
			if ctx.Err() != nil {
				return
			}

			mu.Lock()
			current := pagesSeen
			mu.Unlock()

			if current >= maxPages {
				return
			}

			href := h.Attr("href")
			if href == "" {
				href = h.ChildAttr("a", "href")
			}
			if href == "" {
				return
			}

			nextURL := h.Request.AbsoluteURL(href)
			if nextURL == "" {
				return
			}

			if err := c.Visit(nextURL); err != nil {
				e.logger.Warn().Err(err).Str("url", nextURL).Msg("colly: failed to queue pagination URL")
			}
		})
	}

	// Track pages visited.
	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		pagesSeen++
		reachedMax := pagesSeen > maxPages
		mu.Unlock()

		if reachedMax {
			r.Abort()
			return
		}

		e.logger.Debug().
			Str("url", r.URL.String()).
			Int("page", pagesSeen).
			Msg("colly: visiting page")
	})

	c.OnError(func(r *colly.Response, err error) {
		if ctx.Err() != nil {
			return
		}
		e.logger.Warn().
			Str("url", r.Request.URL.String()).
			Int("status", r.StatusCode).
			Err(err).
			Msg("colly: request error")
	})

	// Start crawl — c.Visit is synchronous with async callbacks.
	if err := c.Visit(config.URL); err != nil {
		if ctx.Err() != nil {
			return results, nil
		}
		return nil, err
	}

	c.Wait()

	return results, nil
}

// extractDomain parses rawURL and returns just the hostname (no port).
func extractDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

// externalIDFromURL derives a stable per-source id from an adoption URL's
// final path segment, used when a listing page exposes no separate id field.
func externalIDFromURL(adoptionURL string) string {
	u, err := url.Parse(adoptionURL)
	if err != nil {
		return adoptionURL
	}
	segment := path.Base(strings.TrimSuffix(u.Path, "/"))
	if segment == "" || segment == "." || segment == "/" {
		return adoptionURL
	}
	return segment
}
