package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sjsage522/pricecompare/internal/metrics"
	"sjsage522/pricecompare/logger"
	"sjsage522/pricecompare/pkg/errors"
)

// Dispatcher routes a lookup to the strategy matching the site's fetch method
type Dispatcher struct {
	strategies map[FetchMethod]Strategy
}

// NewDispatcher creates a dispatcher with the document and structured API strategies
func NewDispatcher(base *BaseFetcher) *Dispatcher {
	return &Dispatcher{
		strategies: map[FetchMethod]Strategy{
			FetchDocument:      NewDocumentStrategy(base),
			FetchStructuredAPI: NewStructuredStrategy(base),
		},
	}
}

// Register replaces the strategy used for method
func (d *Dispatcher) Register(method FetchMethod, strategy Strategy) {
	d.strategies[method] = strategy
}

// LookupPrice resolves the best match for query on site. A nil result with a
// nil error means the site had no relevant match.
func (d *Dispatcher) LookupPrice(ctx context.Context, site SiteConfig, query SearchQuery) (*ScrapeResult, error) {
	start := time.Now()
	result, err := d.lookup(ctx, site, query)
	metrics.ObserveLookup(site.Name, outcome(result, err), time.Since(start))
	return result, err
}

func (d *Dispatcher) lookup(ctx context.Context, site SiteConfig, query SearchQuery) (*ScrapeResult, error) {
	if err := site.Validate(); err != nil {
		logger.ForSite(site.Name).Warn().Err(err).Msg("Skipping misconfigured site")
		return nil, err
	}
	if strings.TrimSpace(query.SearchTerm) == "" {
		return nil, errors.NewValidation(site.Name, "search term is empty")
	}

	method, _ := ParseFetchMethod(string(site.FetchMethod))
	strategy, ok := d.strategies[method]
	if !ok {
		err := errors.NewConfiguration(site.Name, fmt.Sprintf("no strategy for fetch method %q", site.FetchMethod), nil)
		logger.ForSite(site.Name).Warn().Err(err).Msg("Skipping misconfigured site")
		return nil, err
	}

	return strategy.Resolve(ctx, site, query)
}

func outcome(result *ScrapeResult, err error) string {
	switch {
	case err != nil:
		if t := errors.TypeOf(err); t != "" {
			return string(t)
		}
		return "error"
	case result == nil:
		return "no_match"
	default:
		return "match"
	}
}
