package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureServer starts a test HTTP server that serves files from testdata/.
func fixtureServer(t *testing.T) (*httptest.Server, func(string) string) {
	t.Helper()
	srv := httptest.NewServer(http.FileServer(http.Dir("testdata")))
	t.Cleanup(srv.Close)
	return srv, func(name string) string {
		return srv.URL + "/" + name
	}
}

// ---- FetchAndExtractJSONLD tests (via httptest) -----------------------------------------

func TestFetchAndExtractJSONLD_Fixtures(t *testing.T) {
	_, urlFor := fixtureServer(t)

	tests := []struct {
		name      string
		fixture   string
		wantCount int
	}{
		{name: "single product", fixture: "single_product.html", wantCount: 1},
		{name: "graph with mixed types", fixture: "graph_products.html", wantCount: 2},
		{name: "top-level array of products", fixture: "array_products.html", wantCount: 2},
		{name: "itemlist wrapping products", fixture: "itemlist_products.html", wantCount: 2},
		{name: "no json-ld at all", fixture: "no_jsonld.html", wantCount: 0},
		{name: "malformed json-ld is skipped, not fatal", fixture: "malformed_jsonld.html", wantCount: 0},
		{name: "product with plain description", fixture: "string_description.html", wantCount: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			items, err := FetchAndExtractJSONLD(context.Background(), urlFor(tc.fixture))
			require.NoError(t, err)
			assert.Len(t, items, tc.wantCount)
		})
	}
}

func TestFetchAndExtractJSONLD_AcceptTypesOverridesDefault(t *testing.T) {
	_, urlFor := fixtureServer(t)

	items, err := FetchAndExtractJSONLD(context.Background(), urlFor("graph_products.html"), "Organization")
	require.NoError(t, err)
	require.Len(t, items, 1)
}

// ---- extractItems unit tests -------------------------------------------------------------

func TestExtractItems_SingleProduct(t *testing.T) {
	input := `{"@context":"https://schema.org","@type":"Product","name":"Rex"}`
	items, err := extractItems([]byte(input), defaultItemTypes)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assertItemName(t, items[0], "Rex")
}

func TestExtractItems_NonMatchingTypeSkipped(t *testing.T) {
	input := `{"@context":"https://schema.org","@type":"Organization","name":"ACME Corp"}`
	items, err := extractItems([]byte(input), defaultItemTypes)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExtractItems_TopLevelArray(t *testing.T) {
	input := `[
		{"@context":"https://schema.org","@type":"Product","name":"Alpha"},
		{"@context":"https://schema.org","@type":"Product","name":"Beta"},
		{"@context":"https://schema.org","@type":"Organization","name":"Skip Me"}
	]`
	items, err := extractItems([]byte(input), defaultItemTypes)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestExtractItems_GraphContainer(t *testing.T) {
	input := `{
		"@context":"https://schema.org",
		"@graph":[
			{"@type":"Organization","name":"Org"},
			{"@type":"Product","name":"Graph Dog A"},
			{"@type":"Product","name":"Graph Dog B"}
		]
	}`
	items, err := extractItems([]byte(input), defaultItemTypes)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestExtractItems_ItemList(t *testing.T) {
	input := `{
		"@context":"https://schema.org",
		"@type":"ItemList",
		"itemListElement":[
			{"@type":"ListItem","position":1,"item":{"@type":"Product","name":"Workshop"}},
			{"@type":"ListItem","position":2,"item":{"@type":"Product","name":"Seminar"}},
			{"@type":"ListItem","position":3,"item":{"@type":"Organization","name":"Skip"}}
		]
	}`
	items, err := extractItems([]byte(input), defaultItemTypes)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestExtractItems_StringDescription(t *testing.T) {
	input := `{"@context":"https://schema.org","@type":"Product","name":"Reading","description":"A quiet rescue dog."}`
	items, err := extractItems([]byte(input), defaultItemTypes)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestExtractItems_InvalidJSON(t *testing.T) {
	input := `{this is not valid json`
	_, err := extractItems([]byte(input), defaultItemTypes)
	require.Error(t, err)
}

func TestExtractItems_EmptyInput(t *testing.T) {
	items, err := extractItems([]byte(""), defaultItemTypes)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExtractItems_SchemaOrgPrefixedType(t *testing.T) {
	input := `{"@context":"https://schema.org","@type":"https://schema.org/Product","name":"Prefixed"}`
	items, err := extractItems([]byte(input), defaultItemTypes)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestExtractItems_CustomAcceptTypes(t *testing.T) {
	input := `{"@context":"https://schema.org","@type":"AnimalShelter","name":"Custom Type"}`
	items, err := extractItems([]byte(input), []string{"AnimalShelter"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// ---- RobotsAllowed tests ---------------------------------------------------------------

func TestRobotsAllowed_NoRobotsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	allowed, err := RobotsAllowed(context.Background(), srv.URL+"/dogs", scraperUserAgent)
	require.NoError(t, err)
	assert.True(t, allowed, "missing robots.txt should allow all")
}

func TestRobotsAllowed_AllowAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	allowed, err := RobotsAllowed(context.Background(), srv.URL+"/dogs", scraperUserAgent)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRobotsAllowed_DisallowAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	allowed, err := RobotsAllowed(context.Background(), srv.URL+"/dogs", scraperUserAgent)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRobotsAllowed_DisallowSpecificAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("User-agent: RescueDogsAggregator\nDisallow: /\n\nUser-agent: *\nAllow: /\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	allowed, err := RobotsAllowed(context.Background(), srv.URL+"/dogs", scraperUserAgent)
	require.NoError(t, err)
	assert.False(t, allowed)
}

// ---- Fixture-file sanity tests ---------------------------------------------------------

func TestFixtureFilesExist(t *testing.T) {
	fixtures := []string{
		"single_product.html",
		"graph_products.html",
		"array_products.html",
		"itemlist_products.html",
		"no_jsonld.html",
		"malformed_jsonld.html",
		"string_description.html",
	}
	for _, f := range fixtures {
		path := filepath.Join("testdata", f)
		_, err := os.Stat(path)
		assert.NoError(t, err, "fixture file should exist: %s", path)
	}
}

// ---- helpers ---------------------------------------------------------------------------

func assertItemName(t *testing.T, raw json.RawMessage, want string) {
	t.Helper()
	var obj struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.Equal(t, want, obj.Name)
}
