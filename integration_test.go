package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/pricecompare/internal/crawler"
	"sjsage522/pricecompare/internal/scheduler"
	"sjsage522/pricecompare/services/cache"
	"sjsage522/pricecompare/services/publisher"
	"sjsage522/pricecompare/services/worker"
)

// Search page of a markup site
const searchPage = `
<!DOCTYPE html>
<html>
<body>
    <div class="results">
        <div class="product">
            <h2 class="name"><a href="/p/%s">%s</a></h2>
            <span class="price">$ %s</span>
        </div>
    </div>
</body>
</html>
`

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
}

// Ensure MockCacheService implements cache.CacheService
var _ cache.CacheService = (*MockCacheService)(nil)

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, errors.New("cache miss")
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

// memoryStore implements worker.Store in memory
type memoryStore struct {
	mu        sync.Mutex
	products  []scheduler.ProductRefreshState
	snapshots []*crawler.ScrapeResult
	notFound  []string
}

func (s *memoryStore) ListRefreshStates(ctx context.Context) ([]scheduler.ProductRefreshState, error) {
	return s.products, nil
}

func (s *memoryStore) FindProduct(ctx context.Context, name string) (*scheduler.ProductRefreshState, error) {
	for _, p := range s.products {
		if strings.EqualFold(p.Name, name) {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) AddPriceSnapshot(ctx context.Context, productID int64, result *crawler.ScrapeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, result)
	return nil
}

func (s *memoryStore) RecordSearchNotFound(ctx context.Context, searchTerm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notFound = append(s.notFound, searchTerm)
	return nil
}

// recordingPublisher keeps published messages by key
type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[key] = append(p.messages[key], append([]byte(nil), message...))
	return nil
}

func (p *recordingPublisher) TrimStreams(ctx context.Context) error { return nil }

func (p *recordingPublisher) Close() error { return nil }

// upstream serves one markup site, one URL-variable API and one rate-limited API
type upstream struct {
	server        *httptest.Server
	apiVariables  []map[string]any
	apiOrigin     string
	blockedHits   atomic.Int32
	markupQueries []string
	mu            sync.Mutex
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{}

	mux := http.NewServeMux()
	mux.HandleFunc("/buscar", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		u.mu.Lock()
		u.markupQueries = append(u.markupQueries, q)
		u.mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if strings.Contains(q, "iPhone") {
			fmt.Fprintf(w, searchPage, "iphone-15-128", "Apple iPhone 15 128GB Negro", "3.799.000")
			return
		}
		fmt.Fprintf(w, searchPage, "nevera-samsung", "Nevera Samsung 400 Litros", "2.199.900")
	})

	mux.HandleFunc("/api/graphql", func(w http.ResponseWriter, r *http.Request) {
		var variables map[string]any
		if err := json.Unmarshal([]byte(r.URL.Query().Get("variables")), &variables); err != nil {
			http.Error(w, "bad variables", http.StatusBadRequest)
			return
		}
		u.mu.Lock()
		u.apiVariables = append(u.apiVariables, variables)
		u.apiOrigin = r.Header.Get("Origin")
		u.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if variables["fullText"] != "iPhone 15" {
			io.WriteString(w, `{"data":{"search":{"products":[]}}}`)
			return
		}
		io.WriteString(w, `{"data":{"search":{"products":[
			{"name":"Funda para iPhone","price":49900,"link":"/funda-iphone"},
			{"name":"iPhone 15 Pro Max 256GB","price":5199000,"link":"/iphone-15-pro-max"}
		]}}}`)
	})

	mux.HandleFunc("/bloqueado", func(w http.ResponseWriter, r *http.Request) {
		u.blockedHits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) sites() []crawler.SiteConfig {
	return []crawler.SiteConfig{
		{
			Name:            "Tienda",
			FetchMethod:     crawler.FetchDocument,
			Endpoint:        u.server.URL + "/buscar",
			RequestTemplate: map[string]any{"q": "{product_name}"},
			TitlePath:       "div.product h2.name",
			PricePath:       "//div[@class='product']/span[@class='price']",
			URLPath:         "div.product h2.name a",
		},
		{
			Name:                     "Mercado",
			FetchMethod:              crawler.FetchStructuredAPI,
			Endpoint:                 u.server.URL + "/api/graphql",
			UsesURLEmbeddedVariables: true,
			RequestTemplate: map[string]any{
				"operationName": "SearchQuery",
				"variables": map[string]any{
					"fullText":       "{product_name}",
					"selectedFacets": []any{map[string]any{"key": "category", "value": "{product_category}"}},
				},
			},
			TitlePath: "data.search.products[0].name",
			PricePath: "data.search.products[0].price",
			URLPath:   "data.search.products[0].link",
			URLSuffix: "/p",
		},
		{
			Name:            "Bloqueado",
			FetchMethod:     crawler.FetchStructuredAPI,
			Endpoint:        u.server.URL + "/bloqueado",
			RequestTemplate: map[string]any{"query": "{product_name}"},
			TitlePath:       "items[0].title",
		},
	}
}

func TestIntegration(t *testing.T) {
	up := newUpstream(t)

	store := &memoryStore{products: []scheduler.ProductRefreshState{
		{ProductID: 1, Name: "Lavadora LG 17Kg", UpdateIntervalHours: 12},
		{ProductID: 2, Name: "iPhone 15", Category: "celulares", IsFrequent: true, UpdateIntervalHours: 4},
	}}
	pub := &recordingPublisher{messages: make(map[string][][]byte)}
	mockCache := &MockCacheService{cache: make(map[string][]byte)}

	base := crawler.NewBaseFetcher(mockCache, 500*time.Second, nil)
	w := worker.NewWorker(store, worker.StaticSites(up.sites()), crawler.NewDispatcher(base), pub, 0)

	summary, err := w.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Products)
	assert.Equal(t, 6, summary.Attempts)
	assert.Equal(t, 2, summary.Successes)
	assert.Equal(t, 4, summary.Failures)

	// Frequent products are looked up first
	assert.Equal(t, []string{"iPhone 15", "Lavadora LG 17Kg"}, up.markupQueries)

	// Markup site: first result, XPath price, relative link resolved against the endpoint host
	require.Len(t, pub.messages["Tienda"], 1)
	var tienda crawler.ScrapeResult
	require.NoError(t, json.Unmarshal(pub.messages["Tienda"][0], &tienda))
	assert.Equal(t, "Apple iPhone 15 128GB Negro", tienda.Title)
	assert.Equal(t, "$3,799,000", tienda.Price)
	assert.Equal(t, up.server.URL+"/p/iphone-15-128", tienda.ResolvedURL)
	assert.Equal(t, "celulares", tienda.Category)

	// Structured site: best candidate across the list with price and link from the same index
	require.Len(t, pub.messages["Mercado"], 1)
	var mercado crawler.ScrapeResult
	require.NoError(t, json.Unmarshal(pub.messages["Mercado"][0], &mercado))
	assert.Equal(t, "iPhone 15 Pro Max 256GB", mercado.Title)
	assert.Equal(t, "$5,199,000", mercado.Price)
	assert.Equal(t, up.server.URL+"/iphone-15-pro-max/p", mercado.ResolvedURL)
	assert.GreaterOrEqual(t, mercado.Score, 60)

	// Category filters are sent only for products that have a category
	require.Len(t, up.apiVariables, 2)
	assert.Equal(t, "iPhone 15", up.apiVariables[0]["fullText"])
	assert.Len(t, up.apiVariables[0]["selectedFacets"], 1)
	assert.Empty(t, up.apiVariables[1]["selectedFacets"])
	assert.Equal(t, up.server.URL, up.apiOrigin)

	// The rate-limited site is blocked after its first 429
	assert.Equal(t, int32(1), up.blockedHits.Load())
	assert.Contains(t, mockCache.cache, "Bloqueado_rate_limited")

	assert.Len(t, store.snapshots, 2)
	assert.Empty(t, pub.messages["Bloqueado"])
}

func TestIntegrationLookupNotFound(t *testing.T) {
	up := newUpstream(t)

	store := &memoryStore{}
	base := crawler.NewBaseFetcher(&MockCacheService{cache: make(map[string][]byte)}, 500*time.Second, nil)
	w := worker.NewWorker(store, worker.StaticSites(up.sites()[:2]), crawler.NewDispatcher(base), nil, 0)

	results, err := w.LookupAll(context.Background(), crawler.SearchQuery{SearchTerm: "Consola PS5"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, []string{"consola ps5"}, store.notFound)
}

func TestIntegrationRedis(t *testing.T) {
	ctx := context.Background()

	redisAddr := "localhost:6379"
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   0,
	})
	defer redisClient.Close()

	// Check if Redis is available by attempting a ping, skip test if not
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skip("Redis is not available, skipping integration test")
	}

	up := newUpstream(t)

	prefix := fmt.Sprintf("test_prices_%d", time.Now().UnixNano())
	stream := prefix + ":0"
	defer redisClient.Del(ctx, stream)

	redisPublisher := publisher.NewRedisPublisher(redisAddr, 0, prefix, 1, 100)
	defer redisPublisher.Close()

	store := &memoryStore{products: []scheduler.ProductRefreshState{
		{ProductID: 2, Name: "iPhone 15", IsFrequent: true},
	}}
	base := crawler.NewBaseFetcher(&MockCacheService{cache: make(map[string][]byte)}, 500*time.Second, nil)
	w := worker.NewWorker(store, worker.StaticSites(up.sites()[:1]), crawler.NewDispatcher(base), redisPublisher, 0)

	summary, err := w.LookupProduct(ctx, "iphone 15")
	require.NoError(t, err)
	require.Equal(t, 1, summary.Successes)

	entries, err := redisClient.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	encoded, ok := entries[0].Values["Tienda"].(string)
	require.True(t, ok, "entry should be keyed by site name")

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	var result crawler.ScrapeResult
	require.NoError(t, json.Unmarshal(decoded, &result))
	assert.Equal(t, "Apple iPhone 15 128GB Negro", result.Title)
	assert.Equal(t, "$3,799,000", result.Price)
}
