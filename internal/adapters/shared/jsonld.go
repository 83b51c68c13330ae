package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/temoto/robotstxt"
)

const (
	scraperUserAgent = "RescueDogsAggregator/0.1 (+https://github.com/rescuedogs/aggregator)"
	fetchTimeout     = 30 * time.Second
	robotsTimeout    = 10 * time.Second
)

// defaultItemTypes are the schema.org @type values FetchAndExtractJSONLD
// looks for when the caller doesn't specify its own set. Shelter sites that
// publish structured data for SEO purposes typically describe one adoptable
// animal as a Product (name, image, description), occasionally nested under
// an ItemList of a full litter or listing page.
var defaultItemTypes = []string{"Product"}

// FetchAndExtractJSONLD fetches the page at rawURL, parses all JSON-LD script
// blocks, and returns every object whose @type matches one of acceptTypes
// (defaultItemTypes if none given).
func FetchAndExtractJSONLD(ctx context.Context, rawURL string, acceptTypes ...string) ([]json.RawMessage, error) {
	if len(acceptTypes) == 0 {
		acceptTypes = defaultItemTypes
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: missing scheme or host", rawURL)
	}

	allowed, robotsErr := RobotsAllowed(ctx, rawURL, scraperUserAgent)
	if robotsErr != nil {
		zerolog.Ctx(ctx).Warn().Err(robotsErr).Str("url", rawURL).Msg("scraper: robots.txt check failed, proceeding as allowed")
		allowed = true
	}
	if !allowed {
		return nil, fmt.Errorf("scraping disallowed by robots.txt for %q", rawURL)
	}

	// Redirects are disabled to prevent SSRF via redirect chains to
	// internal/private addresses.
	client := &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", scraperUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %q", resp.StatusCode, rawURL)
	}

	limitedBody := io.LimitReader(resp.Body, 10*1024*1024) // 10 MiB
	doc, err := goquery.NewDocumentFromReader(limitedBody)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML from %q: %w", rawURL, err)
	}

	return extractFromDocument(doc, acceptTypes)
}

// extractFromDocument extracts matching objects from every JSON-LD script tag
// in the parsed document.
func extractFromDocument(doc *goquery.Document, acceptTypes []string) ([]json.RawMessage, error) {
	var items []json.RawMessage

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}

		// A single malformed script tag shouldn't discard every other item on
		// the page, so a parse failure here is skipped, not propagated.
		extracted, err := extractItems([]byte(raw), acceptTypes)
		if err != nil {
			return
		}
		items = append(items, extracted...)
	})

	return items, nil
}

// extractItems inspects a single JSON-LD block and returns every object
// matching acceptTypes found within it, handling the following shapes:
//
//   - Single top-level object
//   - Top-level JSON array of objects
//   - Object with an @graph array
//   - ItemList with itemListElement containing ListItem→item objects
func extractItems(data []byte, acceptTypes []string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		return extractFromArray(data, acceptTypes)
	}
	return extractFromObject(data, acceptTypes)
}

func extractFromArray(data []byte, acceptTypes []string) ([]json.RawMessage, error) {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(data, &rawItems); err != nil {
		return nil, err
	}

	var items []json.RawMessage
	for _, item := range rawItems {
		extracted, err := extractFromObject(item, acceptTypes)
		if err != nil {
			return nil, err
		}
		items = append(items, extracted...)
	}
	return items, nil
}

// extractFromObject handles a single JSON object, dispatching to the
// appropriate shape handler based on @type and presence of @graph /
// itemListElement.
func extractFromObject(data []byte, acceptTypes []string) ([]json.RawMessage, error) {
	var envelope struct {
		Type            json.RawMessage   `json:"@type"`
		Graph           []json.RawMessage `json:"@graph"`
		ItemListElement []json.RawMessage `json:"itemListElement"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	if len(envelope.Graph) > 0 {
		return extractFromGraphArray(envelope.Graph, acceptTypes)
	}

	typStr := jsonTypeString(envelope.Type)

	if typStr == "ItemList" && len(envelope.ItemListElement) > 0 {
		return extractFromItemList(envelope.ItemListElement, acceptTypes)
	}

	if matchesAcceptedType(typStr, acceptTypes) {
		return []json.RawMessage{json.RawMessage(data)}, nil
	}

	return nil, nil
}

func extractFromGraphArray(items []json.RawMessage, acceptTypes []string) ([]json.RawMessage, error) {
	var matched []json.RawMessage
	for _, item := range items {
		extracted, err := extractFromObject(item, acceptTypes)
		if err != nil {
			return nil, err
		}
		matched = append(matched, extracted...)
	}
	return matched, nil
}

func extractFromItemList(elements []json.RawMessage, acceptTypes []string) ([]json.RawMessage, error) {
	var matched []json.RawMessage
	for _, elem := range elements {
		var listItem struct {
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(elem, &listItem); err != nil {
			return nil, err
		}
		if len(listItem.Item) == 0 {
			continue
		}
		extracted, err := extractFromObject(listItem.Item, acceptTypes)
		if err != nil {
			return nil, err
		}
		matched = append(matched, extracted...)
	}
	return matched, nil
}

// jsonTypeString returns the string value of a @type field, handling both a
// plain string ("Product") and a single-element JSON array (["Product"]).
func jsonTypeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return stripSchemaPrefix(s)
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return stripSchemaPrefix(arr[0])
	}
	return ""
}

// stripSchemaPrefix removes an optional "https://schema.org/" or
// "http://schema.org/" prefix from a type string.
func stripSchemaPrefix(s string) string {
	for _, prefix := range []string{"https://schema.org/", "http://schema.org/"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			return after
		}
	}
	return s
}

func matchesAcceptedType(typStr string, acceptTypes []string) bool {
	for _, want := range acceptTypes {
		if typStr == want {
			return true
		}
	}
	return false
}

// RobotsAllowed checks whether the given user agent is permitted to fetch
// rawURL according to the site's robots.txt. A missing (404) robots.txt is
// treated as "allow all". Network errors fetching robots.txt are returned as
// errors; callers should typically treat them as allowed.
func RobotsAllowed(ctx context.Context, rawURL string, userAgent string) (bool, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parsing URL %q: %w", rawURL, err)
	}
	robotsURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
		Path:   "/robots.txt",
	}

	client := &http.Client{
		Timeout: robotsTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return false, fmt.Errorf("building robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetching robots.txt from %q: %w", robotsURL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return true, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("reading robots.txt body: %w", err)
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		// Malformed robots.txt — treat as allow.
		return true, nil
	}

	return data.TestAgent(parsedURL.Path, userAgent), nil
}
