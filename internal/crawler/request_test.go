package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphQLTemplate() map[string]any {
	return map[string]any{
		"operationName": "SearchQuery",
		"variables": map[string]any{
			"fullText": "{product_name}",
			"first":    10,
			"selectedFacets": []any{
				map[string]any{"key": "category-1", "value": "{product_category}"},
				map[string]any{"key": "channel", "value": `{"salesChannel":"1"}`},
			},
			"category": "{product_category}",
		},
		"extensions": map[string]any{
			"persistedQuery": map[string]any{"version": 1, "sha256Hash": "abc123"},
		},
	}
}

func TestBuildPayloadWithoutCategory(t *testing.T) {
	payload := buildPayload(graphQLTemplate(), SearchQuery{SearchTerm: "iPhone 15"})

	variables := payload["variables"].(map[string]any)
	assert.Equal(t, "iPhone 15", variables["fullText"])
	assert.NotContains(t, variables, "category")

	facets := variables["selectedFacets"].([]any)
	require.Len(t, facets, 1)
	assert.Equal(t, "channel", facets[0].(map[string]any)["key"])

	// The template itself is untouched
	template := graphQLTemplate()
	buildPayload(template, SearchQuery{SearchTerm: "x"})
	assert.Equal(t, "{product_name}", template["variables"].(map[string]any)["fullText"])
}

func TestBuildPayloadMixedCategoryString(t *testing.T) {
	payload := buildPayload(map[string]any{
		"q": "{product_name} {product_category}",
		"variables": map[string]any{
			"fullText": "{product_name}",
			"cat":      "{product_category}",
		},
	}, SearchQuery{SearchTerm: "Lavadora LG"})

	assert.Equal(t, "Lavadora LG", payload["q"])
	variables := payload["variables"].(map[string]any)
	assert.Equal(t, "Lavadora LG", variables["fullText"])
	assert.NotContains(t, variables, "cat")

	payload = buildPayload(map[string]any{
		"q": "{product_name} {product_category}",
	}, SearchQuery{SearchTerm: "Lavadora LG", Category: "lavadoras"})
	assert.Equal(t, "Lavadora LG lavadoras", payload["q"])
}

func TestBuildPayloadWithCategory(t *testing.T) {
	payload := buildPayload(graphQLTemplate(), SearchQuery{SearchTerm: "iPhone 15", Category: "celulares"})

	variables := payload["variables"].(map[string]any)
	assert.Equal(t, "celulares", variables["category"])

	facets := variables["selectedFacets"].([]any)
	require.Len(t, facets, 2)
	assert.Equal(t, "celulares", facets[0].(map[string]any)["value"])
}

func TestBuildQueryParams(t *testing.T) {
	params := buildQueryParams(map[string]any{
		"q":     "{product_name}",
		"cat":   "{product_category}",
		"page":  2,
		"empty": nil,
	}, SearchQuery{SearchTerm: "Nevera Haceb", Category: "neveras"})

	assert.Equal(t, "Nevera Haceb", params.Get("q"))
	assert.Equal(t, "neveras", params.Get("cat"))
	assert.Equal(t, "2", params.Get("page"))
	assert.Equal(t, "", params.Get("empty"))
}

func TestBuildQueryParamsWithoutCategory(t *testing.T) {
	params := buildQueryParams(map[string]any{
		"q":   "{product_name} {product_category}",
		"cat": "{product_category}",
	}, SearchQuery{SearchTerm: "Nevera Haceb"})

	assert.Equal(t, "Nevera Haceb", params.Get("q"))
	_, ok := params["cat"]
	assert.False(t, ok)
}

func TestAppendQuery(t *testing.T) {
	params := url.Values{"q": {"tv 55"}}
	assert.Equal(t, "https://a.test/s?q=tv+55", appendQuery("https://a.test/s", params))
	assert.Equal(t, "https://a.test/s?lang=es&q=tv+55", appendQuery("https://a.test/s?lang=es", params))
	assert.Equal(t, "https://a.test/s", appendQuery("https://a.test/s", url.Values{}))
}

func TestEmbedVariables(t *testing.T) {
	payload := buildPayload(graphQLTemplate(), SearchQuery{SearchTerm: "iPhone 15"})

	raw, err := embedVariables("https://api.tienda.test/graphql", payload)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/graphql", u.Path)

	q := u.Query()
	assert.Equal(t, "SearchQuery", q.Get("operationName"))
	assert.Equal(t,
		`{"first":10,"fullText":"iPhone 15","selectedFacets":[{"key":"channel","value":"{\"salesChannel\":\"1\"}"}]}`,
		q.Get("variables"))
	assert.JSONEq(t, `{"persistedQuery":{"sha256Hash":"abc123","version":1}}`, q.Get("extensions"))
}

func TestEmbedVariablesWithoutVariables(t *testing.T) {
	raw, err := embedVariables("https://api.tienda.test/graphql", map[string]any{"operationName": "Ping"})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "{}", u.Query().Get("variables"))
}

func TestResolveProductURL(t *testing.T) {
	site := SiteConfig{Endpoint: "https://www.tienda.test/api/search?x=1"}

	assert.Equal(t, "https://www.tienda.test/p/123", resolveProductURL(site, "/p/123", "req"))
	assert.Equal(t, "https://cdn.test/p/1", resolveProductURL(site, "https://cdn.test/p/1", "req"))
	assert.Equal(t, "https://cdn.test/p/1", resolveProductURL(site, "//cdn.test/p/1", "req"))
	assert.Equal(t, "req", resolveProductURL(site, "  ", "req"))

	site.BaseProductURL = "https://www.tienda.test/"
	site.URLSuffix = "/p"
	assert.Equal(t, "https://www.tienda.test/lavadora-lg-wt17/p", resolveProductURL(site, "lavadora-lg-wt17", "req"))
}

func TestSiteOrigin(t *testing.T) {
	assert.Equal(t, "https://www.tienda.test", siteOrigin(SiteConfig{Endpoint: "https://www.tienda.test/api/graphql"}))
	assert.Equal(t, "https://shop.test", siteOrigin(SiteConfig{Endpoint: "https://api.test", Origin: "https://shop.test/"}))
	assert.Equal(t, "", siteOrigin(SiteConfig{Endpoint: "not a url"}))
}
