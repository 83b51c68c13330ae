package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestExtractor returns a CollyExtractor with zero rate limit for fast tests.
func newTestExtractor() *CollyExtractor {
	return &CollyExtractor{
		userAgent: "TestBot/1.0",
		rateLimit: 0,
		logger:    zerolog.Nop(),
	}
}

func TestScrapeWithSelectors_Basic(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><body>
<div class="dogs">
  <div class="dog-card">
    <h2 class="name">Rex</h2>
    <span class="breed">Labrador Mix</span>
    <span class="age">2 years</span>
    <span class="sex">male</span>
    <a class="link" href="/dogs/rex">Adopt</a>
    <img class="img" src="/images/rex.jpg" />
  </div>
  <div class="dog-card">
    <h2 class="name">Bella</h2>
    <span class="breed">Beagle</span>
    <span class="age">1 year</span>
    <a class="link" href="/dogs/bella">Adopt</a>
  </div>
  <div class="dog-card">
    <h2 class="name">Max</h2>
    <span class="breed">Mixed Breed</span>
    <a class="link" href="/dogs/max">Adopt</a>
  </div>
</div>
</body></html>`)
	}))
	defer ts.Close()

	cfg := SourceConfig{
		URL:      ts.URL,
		MaxPages: 5,
		Selectors: Selectors{
			ItemList:    "div.dog-card",
			Name:        "h2.name",
			Breed:       "span.breed",
			Age:         "span.age",
			Sex:         "span.sex",
			AdoptionURL: "a.link",
			Image:       "img.img",
		},
	}

	extractor := newTestExtractor()
	items, err := extractor.ScrapeWithSelectors(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Rex", items[0].Name)
	assert.Equal(t, "Labrador Mix", items[0].Breed)
	assert.Equal(t, "2 years", items[0].Age)
	assert.Equal(t, "male", items[0].Sex)
	assert.True(t, strings.HasSuffix(items[0].AdoptionURL, "/dogs/rex"))
	assert.True(t, strings.HasSuffix(items[0].PrimaryImageURL, "/images/rex.jpg"))
	assert.Equal(t, "rex", items[0].ExternalID)

	assert.Equal(t, "Bella", items[1].Name)
	assert.Equal(t, "Beagle", items[1].Breed)

	assert.Equal(t, "Max", items[2].Name)
}

func TestScrapeWithSelectors_SkipsCardsMissingRequiredFields(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><body>
<div class="dogs">
  <div class="dog-card">
    <h2 class="name">Valid Dog</h2>
    <a class="link" href="/dogs/valid-dog">Adopt</a>
  </div>
  <div class="dog-card">
    <!-- No name element — should be skipped -->
    <a class="link" href="/dogs/no-name">Adopt</a>
  </div>
  <div class="dog-card">
    <h2 class="name">  </h2>
    <a class="link" href="/dogs/blank-name">Adopt</a>
  </div>
  <div class="dog-card">
    <h2 class="name">No URL Dog</h2>
  </div>
  <div class="dog-card">
    <h2 class="name">Another Valid Dog</h2>
    <a class="link" href="/dogs/another-valid-dog">Adopt</a>
  </div>
</div>
</body></html>`)
	}))
	defer ts.Close()

	cfg := SourceConfig{
		URL:      ts.URL,
		MaxPages: 5,
		Selectors: Selectors{
			ItemList:    "div.dog-card",
			Name:        "h2.name",
			AdoptionURL: "a.link",
		},
	}

	extractor := newTestExtractor()
	items, err := extractor.ScrapeWithSelectors(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, items, 2, "expected only cards with both a name and an adoption URL")

	assert.Equal(t, "Valid Dog", items[0].Name)
	assert.Equal(t, "Another Valid Dog", items[1].Name)
}

func TestScrapeWithSelectors_Pagination(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "2" {
			fmt.Fprint(w, `<!DOCTYPE html><html><body>
<div class="dogs">
  <div class="dog-card"><h2 class="name">Page 2 Dog A</h2><a class="link" href="/dogs/p2a">Adopt</a></div>
  <div class="dog-card"><h2 class="name">Page 2 Dog B</h2><a class="link" href="/dogs/p2b">Adopt</a></div>
</div>
</body></html>`)
			return
		}
		fmt.Fprint(w, `<!DOCTYPE html><html><body>
<div class="dogs">
  <div class="dog-card"><h2 class="name">Page 1 Dog A</h2><a class="link" href="/dogs/p1a">Adopt</a></div>
  <div class="dog-card"><h2 class="name">Page 1 Dog B</h2><a class="link" href="/dogs/p1b">Adopt</a></div>
</div>
<a class="next-page" href="?page=2">Next</a>
</body></html>`)
	})

	ts := httptest.NewServer(handler)
	defer ts.Close()

	cfg := SourceConfig{
		URL:      ts.URL + "/dogs",
		MaxPages: 5,
		Selectors: Selectors{
			ItemList:    "div.dog-card",
			Name:        "h2.name",
			AdoptionURL: "a.link",
			Pagination:  "a.next-page",
		},
	}

	extractor := newTestExtractor()
	items, err := extractor.ScrapeWithSelectors(context.Background(), cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(items), 3, "expected dogs from at least 2 pages")

	names := make(map[string]bool)
	for _, item := range items {
		names[item.Name] = true
	}
	assert.True(t, names["Page 1 Dog A"])
	assert.True(t, names["Page 1 Dog B"])
	assert.True(t, names["Page 2 Dog A"])
}

func TestScrapeWithSelectors_ContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><body>
<div class="dog-card"><h2 class="name">Dog</h2><a class="link" href="/dogs/dog">Adopt</a></div>
</body></html>`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := SourceConfig{
		URL:      ts.URL,
		MaxPages: 5,
		Selectors: Selectors{
			ItemList:    "div.dog-card",
			Name:        "h2.name",
			AdoptionURL: "a.link",
		},
	}

	extractor := newTestExtractor()
	_, err := extractor.ScrapeWithSelectors(ctx, cfg)
	// Should return a context error or nil (partial results) — never panic.
	_ = err
}

func TestExternalIDFromURL_UsesFinalPathSegment(t *testing.T) {
	assert.Equal(t, "rex", externalIDFromURL("https://example.org/dogs/rex"))
	assert.Equal(t, "rex", externalIDFromURL("https://example.org/dogs/rex/"))
	assert.Equal(t, "https://example.org/", externalIDFromURL("https://example.org/"))
}
