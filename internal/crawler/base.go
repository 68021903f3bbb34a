package crawler

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"sjsage522/pricecompare/helpers"
	"sjsage522/pricecompare/logger"
	"sjsage522/pricecompare/pkg/errors"
	"sjsage522/pricecompare/services/cache"
)

// BaseFetcher provides the transport shared by all strategies: a per-site
// rate-limit block kept in the cache, and raw response dumps.
type BaseFetcher struct {
	CacheSvc  cache.CacheService
	BlockTime time.Duration
	Dumper    helpers.Dumper

	fetchDocument func(ctx context.Context, url string) (io.Reader, error)
	sendJSON      func(ctx context.Context, method, url string, body []byte, origin string) ([]byte, error)
}

// NewBaseFetcher creates a fetcher using the browser-header HTTP transport
func NewBaseFetcher(cacheSvc cache.CacheService, blockTime time.Duration, dumper helpers.Dumper) *BaseFetcher {
	return &BaseFetcher{
		CacheSvc:      cacheSvc,
		BlockTime:     blockTime,
		Dumper:        dumper,
		fetchDocument: helpers.FetchWithBrowserHeaders,
		sendJSON:      helpers.SendJSON,
	}
}

// WithTimeout sends every request of b through a client with its own timeout
func (b *BaseFetcher) WithTimeout(timeout time.Duration) *BaseFetcher {
	client := helpers.NewClient(timeout)
	b.fetchDocument = client.FetchWithBrowserHeaders
	b.sendJSON = client.SendJSON
	return b
}

func blockKey(site string) string {
	return site + "_rate_limited"
}

// checkBlocked fails fast while a site is inside its rate-limit block window
func (b *BaseFetcher) checkBlocked(site string) error {
	if b.CacheSvc == nil {
		return nil
	}
	if _, err := b.CacheSvc.Get(blockKey(site)); err == nil {
		return errors.NewRateLimit(site, b.BlockTime)
	}
	return nil
}

// classify turns a transport error into a ScrapeError, starting the block
// window when the upstream signalled rate limiting.
func (b *BaseFetcher) classify(site string, err error) error {
	if !stderrors.Is(err, helpers.ErrRateLimited) {
		return errors.NewNetwork(site, "request failed", err)
	}

	if b.CacheSvc != nil && b.BlockTime > 0 {
		value := []byte(fmt.Sprintf("%d", b.BlockTime/time.Second))
		if cacheErr := b.CacheSvc.Set(blockKey(site), value, b.BlockTime); cacheErr != nil {
			logger.ForCache().Warn().Err(cacheErr).Str("site", site).Msg("Failed to set rate limit block")
		}
	}
	return errors.New(errors.ErrorTypeRateLimit, site, "upstream rate limited", err)
}

// fetchMarkup GETs a markup page
func (b *BaseFetcher) fetchMarkup(ctx context.Context, site, url string) (io.Reader, error) {
	if err := b.checkBlocked(site); err != nil {
		return nil, err
	}

	fetch := b.fetchDocument
	if fetch == nil {
		fetch = helpers.FetchWithBrowserHeaders
	}

	body, err := fetch(ctx, url)
	if err != nil {
		return nil, b.classify(site, err)
	}
	return body, nil
}

// fetchJSON issues a JSON API request; a nil body means GET
func (b *BaseFetcher) fetchJSON(ctx context.Context, site, method, url string, body []byte, origin string) ([]byte, error) {
	if err := b.checkBlocked(site); err != nil {
		return nil, err
	}

	send := b.sendJSON
	if send == nil {
		send = helpers.SendJSON
	}

	data, err := send(ctx, method, url, body, origin)
	if err != nil {
		return nil, b.classify(site, err)
	}
	return data, nil
}

// dump stores a raw response, logging rather than failing on error
func (b *BaseFetcher) dump(site, ext string, body []byte) {
	if b.Dumper == nil {
		return
	}
	path, err := b.Dumper.Dump(site, ext, body)
	log := logger.ForSite(site)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to save raw response")
		return
	}
	if path != "" {
		log.Debug().Str("path", path).Msg("Raw response saved")
	}
}
