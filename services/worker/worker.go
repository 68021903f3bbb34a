package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"sjsage522/pricecompare/internal/crawler"
	"sjsage522/pricecompare/internal/metrics"
	"sjsage522/pricecompare/internal/scheduler"
	"sjsage522/pricecompare/internal/textmatch"
	"sjsage522/pricecompare/logger"
	"sjsage522/pricecompare/pkg/errors"
	"sjsage522/pricecompare/services/publisher"
)

// ProductSource lists tracked products
type ProductSource interface {
	ListRefreshStates(ctx context.Context) ([]scheduler.ProductRefreshState, error)
	FindProduct(ctx context.Context, name string) (*scheduler.ProductRefreshState, error)
}

// SnapshotSink persists lookup outcomes
type SnapshotSink interface {
	AddPriceSnapshot(ctx context.Context, productID int64, result *crawler.ScrapeResult) error
	RecordSearchNotFound(ctx context.Context, searchTerm string) error
}

// Store is the persistence collaborator of the worker
type Store interface {
	ProductSource
	SnapshotSink
}

// SiteSource lists the sites to query
type SiteSource interface {
	ListSites(ctx context.Context) ([]crawler.SiteConfig, error)
}

// StaticSites serves a fixed site list, e.g. one loaded from a sites file
type StaticSites []crawler.SiteConfig

// ListSites implements SiteSource
func (s StaticSites) ListSites(ctx context.Context) ([]crawler.SiteConfig, error) {
	return s, nil
}

// Looker resolves one query on one site
type Looker interface {
	LookupPrice(ctx context.Context, site crawler.SiteConfig, query crawler.SearchQuery) (*crawler.ScrapeResult, error)
}

// Summary reports one batch run
type Summary struct {
	Products  int
	Attempts  int
	Successes int
	Failures  int
	Retryable int
	Duration  time.Duration
}

// outcome is the result of one refresh attempt
type outcome int

const (
	outcomeFound outcome = iota
	outcomeMissed
	outcomeRetryable
)

func (s *Summary) count(o outcome) {
	switch o {
	case outcomeFound:
		s.Successes++
	case outcomeRetryable:
		s.Failures++
		s.Retryable++
	default:
		s.Failures++
	}
}

// Worker runs lookups for due products across all active sites
type Worker struct {
	store     Store
	sites     SiteSource
	looker    Looker
	publisher publisher.Publisher
	delay     time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// NewWorker creates a new worker. delay is the pause between consecutive requests.
func NewWorker(store Store, sites SiteSource, looker Looker, pub publisher.Publisher, delay time.Duration) *Worker {
	if pub == nil {
		pub = publisher.NopPublisher{}
	}
	return &Worker{
		store:     store,
		sites:     sites,
		looker:    looker,
		publisher: pub,
		delay:     delay,
		now:       time.Now,
		log:       logger.ForWorker(),
	}
}

// RunBatch looks up every due product on every active site, sequentially
func (w *Worker) RunBatch(ctx context.Context) (summary Summary, err error) {
	start := time.Now()
	defer func() {
		summary.Duration = time.Since(start)
		metrics.BatchDuration.Observe(summary.Duration.Seconds())
	}()

	states, err := w.store.ListRefreshStates(ctx)
	if err != nil {
		return summary, err
	}
	due := scheduler.ProductsDue(states, w.now())
	metrics.ProductsDue.Set(float64(len(due)))
	summary.Products = len(due)

	if len(due) == 0 {
		w.log.Info().Msg("No products due for refresh")
		return summary, nil
	}

	sites, err := w.activeSites(ctx)
	if err != nil {
		return summary, err
	}
	w.log.Info().Int("products", len(due)).Int("sites", len(sites)).Msg("Starting refresh batch")

	for _, product := range due {
		if ctx.Err() != nil {
			break
		}
		query := crawler.SearchQuery{SearchTerm: product.Name, Category: product.Category}
		for _, site := range sites {
			if summary.Attempts > 0 && !w.pause(ctx) {
				break
			}
			summary.Attempts++
			summary.count(w.refresh(ctx, product.ProductID, site, query))
		}
	}

	if err := w.publisher.TrimStreams(ctx); err != nil {
		logger.LogError("StreamTrimming", err, "failed to trim streams")
	}

	w.log.Info().
		Int("attempts", summary.Attempts).
		Int("successes", summary.Successes).
		Int("failures", summary.Failures).
		Int("retryable", summary.Retryable).
		Dur("elapsed", time.Since(start)).
		Msg("Refresh batch finished")

	return summary, ctx.Err()
}

// LookupAll queries every active site for query and returns the matches.
// When no site matches, the search term is recorded as not found.
func (w *Worker) LookupAll(ctx context.Context, query crawler.SearchQuery) ([]*crawler.ScrapeResult, error) {
	sites, err := w.activeSites(ctx)
	if err != nil {
		return nil, err
	}

	var results []*crawler.ScrapeResult
	for i, site := range sites {
		if i > 0 && !w.pause(ctx) {
			return results, ctx.Err()
		}
		result, err := w.looker.LookupPrice(ctx, site, query)
		if err != nil {
			w.logFailure(site.Name, err)
			continue
		}
		if result != nil {
			results = append(results, result)
		}
	}

	if len(results) == 0 {
		if err := w.store.RecordSearchNotFound(ctx, textmatch.Normalize(query.SearchTerm)); err != nil {
			w.log.Warn().Err(err).Str("search_term", query.SearchTerm).Msg("Failed to record search not found")
		}
	}
	return results, nil
}

// LookupProduct refreshes the tracked product called name on every active
// site, regardless of whether it is due
func (w *Worker) LookupProduct(ctx context.Context, name string) (Summary, error) {
	start := time.Now()
	var summary Summary

	product, err := w.store.FindProduct(ctx, name)
	if err != nil {
		return summary, err
	}
	if product == nil {
		return summary, errors.NewValidation("", "unknown product "+name)
	}
	summary.Products = 1

	sites, err := w.activeSites(ctx)
	if err != nil {
		return summary, err
	}

	query := crawler.SearchQuery{SearchTerm: product.Name, Category: product.Category}
	for i, site := range sites {
		if i > 0 && !w.pause(ctx) {
			break
		}
		summary.Attempts++
		summary.count(w.refresh(ctx, product.ProductID, site, query))
	}

	summary.Duration = time.Since(start)
	return summary, ctx.Err()
}

// refresh runs one lookup and stores and publishes its result
func (w *Worker) refresh(ctx context.Context, productID int64, site crawler.SiteConfig, query crawler.SearchQuery) outcome {
	result, err := w.looker.LookupPrice(ctx, site, query)
	if err != nil {
		if w.logFailure(site.Name, err) {
			return outcomeRetryable
		}
		return outcomeMissed
	}
	if result == nil {
		logger.ForSite(site.Name).Debug().Str("search_term", query.SearchTerm).Msg("No relevant match")
		return outcomeMissed
	}

	if err := w.store.AddPriceSnapshot(ctx, productID, result); err != nil {
		logger.LogError(site.Name, err, "failed to store snapshot")
	}
	w.publish(ctx, result)
	return outcomeFound
}

func (w *Worker) publish(ctx context.Context, result *crawler.ScrapeResult) {
	data, err := json.Marshal(result)
	if err != nil {
		logger.LogError(result.SiteName, err, "failed to marshal result")
		metrics.ResultsPublished.WithLabelValues("error").Inc()
		return
	}

	if err := w.publisher.Publish(ctx, result.SiteName, data); err != nil {
		logger.LogError(result.SiteName, err, "failed to publish result")
		metrics.ResultsPublished.WithLabelValues("error").Inc()
		return
	}
	metrics.ResultsPublished.WithLabelValues("ok").Inc()

	if logger.IsDebugEnabled() {
		w.log.Debug().RawJSON("result", data).Msg("Published result")
	}
}

func (w *Worker) activeSites(ctx context.Context) ([]crawler.SiteConfig, error) {
	sites, err := w.sites.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	active := crawler.ActiveSites(sites)
	if len(active) == 0 {
		return nil, errors.NewConfiguration("", "no active sites configured", nil)
	}
	return active, nil
}

// logFailure logs a failed lookup and reports whether the next refresh
// cycle could succeed where this one failed
func (w *Worker) logFailure(site string, err error) bool {
	var se *errors.ScrapeError
	if !stderrors.As(err, &se) || !se.IsRetryable() {
		logger.LogError(site, err, "lookup failed")
		return false
	}
	if se.Type == errors.ErrorTypeRateLimit {
		logger.ForSite(site).Warn().Err(err).Msg("Site is rate limited")
	} else {
		logger.ForSite(site).Warn().Err(err).Msg("Lookup failed, next refresh retries")
	}
	return true
}

// pause waits for the request delay and reports false if ctx ended first
func (w *Worker) pause(ctx context.Context) bool {
	if w.delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(w.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
