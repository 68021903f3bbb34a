package crawler

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
	ttl   map[string]time.Duration
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
		ttl:   make(map[string]time.Duration),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, &mockError{message: "cache miss"}
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	m.ttl[key] = expiration
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	delete(m.ttl, key)
	return nil
}

type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}

// MockDumper records dumped responses instead of writing files
type MockDumper struct {
	mu    sync.Mutex
	dumps []string
}

func (d *MockDumper) Dump(site, ext string, body []byte) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dumps = append(d.dumps, site+"."+ext+":"+string(body))
	return "", nil
}

// staticDocument returns a fetch function always serving html
func staticDocument(html string, requested *string) func(ctx context.Context, url string) (io.Reader, error) {
	return func(ctx context.Context, url string) (io.Reader, error) {
		if requested != nil {
			*requested = url
		}
		return strings.NewReader(html), nil
	}
}

// MockStrategy records calls and returns a canned result
type MockStrategy struct {
	calls  int
	result *ScrapeResult
	err    error
}

func (m *MockStrategy) Resolve(ctx context.Context, site SiteConfig, query SearchQuery) (*ScrapeResult, error) {
	m.calls++
	return m.result, m.err
}
