package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sjsage522/pricecompare/internal/pathexpr"
	"sjsage522/pricecompare/pkg/errors"
)

// FetchMethod selects how a site is queried
type FetchMethod string

const (
	// FetchDocument queries a site returning HTML markup
	FetchDocument FetchMethod = "document"
	// FetchStructuredAPI queries a site returning JSON (GraphQL or REST)
	FetchStructuredAPI FetchMethod = "structured_api"
)

// ParseFetchMethod maps the configured method name onto a FetchMethod.
// An empty name means document.
func ParseFetchMethod(name string) (FetchMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "html", "document":
		return FetchDocument, nil
	case "graphql", "api", "structured_api", "structuredapi":
		return FetchStructuredAPI, nil
	default:
		return "", fmt.Errorf("unknown fetch method %q", name)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names are kept
// verbatim so the dispatcher can report them per site.
func (m *FetchMethod) UnmarshalText(text []byte) error {
	parsed, err := ParseFetchMethod(string(text))
	if err != nil {
		*m = FetchMethod(text)
		return nil
	}
	*m = parsed
	return nil
}

// SiteConfig describes how to query and parse one upstream catalog
type SiteConfig struct {
	Name                     string         `json:"name" yaml:"name"`
	FetchMethod              FetchMethod    `json:"fetch_method" yaml:"fetch_method"`
	Endpoint                 string         `json:"url" yaml:"url"`
	RequestTemplate          map[string]any `json:"params" yaml:"params"`
	UsesURLEmbeddedVariables bool           `json:"requires_url_variables" yaml:"requires_url_variables"`
	TitlePath                string         `json:"title_path" yaml:"title_path"`
	PricePath                string         `json:"price_path,omitempty" yaml:"price_path"`
	URLPath                  string         `json:"url_path,omitempty" yaml:"url_path"`
	BaseProductURL           string         `json:"base_product_url,omitempty" yaml:"base_product_url"`
	URLSuffix                string         `json:"url_suffix,omitempty" yaml:"url_suffix"`
	Origin                   string         `json:"origin,omitempty" yaml:"origin"`
	Disabled                 bool           `json:"disabled,omitempty" yaml:"disabled"`
}

// Validate reports a configuration error for sites that cannot be matched
func (s *SiteConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.NewConfiguration("", "site name is required", nil)
	}
	if strings.TrimSpace(s.Endpoint) == "" {
		return errors.NewConfiguration(s.Name, "url is required", nil)
	}
	if strings.TrimSpace(s.TitlePath) == "" {
		return errors.NewConfiguration(s.Name, "title_path is required", nil)
	}
	method, err := ParseFetchMethod(string(s.FetchMethod))
	if err != nil {
		return errors.NewConfiguration(s.Name, "unsupported fetch method", err)
	}
	if method == FetchStructuredAPI {
		paths := [][2]string{{"title_path", s.TitlePath}, {"price_path", s.PricePath}, {"url_path", s.URLPath}}
		for _, p := range paths {
			if p[1] != "" && !pathexpr.Valid(p[1]) {
				return errors.NewConfiguration(s.Name, fmt.Sprintf("malformed %s %q", p[0], p[1]), nil)
			}
		}
	}
	return nil
}

// SearchQuery is one lookup request
type SearchQuery struct {
	SearchTerm string
	Category   string
}

// Candidate is one extracted title/price pair with its relevance score
type Candidate struct {
	Title string
	Price string
	URL   string
	Score int
}

// ScrapeResult is the winning candidate of a lookup against one site
type ScrapeResult struct {
	SiteName    string    `json:"site"`
	SearchTerm  string    `json:"search_term"`
	Category    string    `json:"category,omitempty"`
	Title       string    `json:"title"`
	Price       string    `json:"price,omitempty"`
	ResolvedURL string    `json:"url"`
	Score       int       `json:"score"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Strategy resolves a price for a query against one site.
// A nil result with a nil error means no relevant match was found.
type Strategy interface {
	Resolve(ctx context.Context, site SiteConfig, query SearchQuery) (*ScrapeResult, error)
}

func newResult(site SiteConfig, query SearchQuery, c Candidate) *ScrapeResult {
	return &ScrapeResult{
		SiteName:    site.Name,
		SearchTerm:  query.SearchTerm,
		Category:    query.Category,
		Title:       c.Title,
		Price:       c.Price,
		ResolvedURL: c.URL,
		Score:       c.Score,
		ScrapedAt:   time.Now().UTC(),
	}
}
