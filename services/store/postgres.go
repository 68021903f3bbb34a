// Package store persists tracked products, site configurations and price
// snapshots in Postgres.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sjsage522/pricecompare/internal/crawler"
	"sjsage522/pricecompare/internal/price"
	"sjsage522/pricecompare/internal/scheduler"
	"sjsage522/pricecompare/logger"
	"sjsage522/pricecompare/pkg/errors"
)

// PostgresStore implements the worker's product source and snapshot sink
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

// NewPostgresStore connects to databaseURL
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := NewPostgresPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.NewStore("", "failed to connect", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ListRefreshStates returns every tracked product with its latest scrape time
func (s *PostgresStore) ListRefreshStates(ctx context.Context) ([]scheduler.ProductRefreshState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, COALESCE(p.category, ''), p.is_frequent,
		       p.update_interval_hours, MAX(ps.scraped_at)
		FROM products p
		LEFT JOIN price_snapshots ps ON ps.product_id = p.id
		GROUP BY p.id, p.name, p.category, p.is_frequent, p.update_interval_hours
		ORDER BY p.id`)
	if err != nil {
		return nil, errors.NewStore("", "failed to list products", err)
	}
	defer rows.Close()

	var states []scheduler.ProductRefreshState
	for rows.Next() {
		var (
			st   scheduler.ProductRefreshState
			last *time.Time
		)
		if err := rows.Scan(&st.ProductID, &st.Name, &st.Category, &st.IsFrequent, &st.UpdateIntervalHours, &last); err != nil {
			return nil, errors.NewStore("", "failed to scan product", err)
		}
		st.LastScrapedAt = last
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStore("", "failed to list products", err)
	}
	return states, nil
}

// FindProduct returns the tracked product named name, case-insensitively
func (s *PostgresStore) FindProduct(ctx context.Context, name string) (*scheduler.ProductRefreshState, error) {
	var st scheduler.ProductRefreshState
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.name, COALESCE(p.category, ''), p.is_frequent,
		       p.update_interval_hours, MAX(ps.scraped_at)
		FROM products p
		LEFT JOIN price_snapshots ps ON ps.product_id = p.id
		WHERE lower(p.name) = lower($1)
		GROUP BY p.id, p.name, p.category, p.is_frequent, p.update_interval_hours`,
		name,
	).Scan(&st.ProductID, &st.Name, &st.Category, &st.IsFrequent, &st.UpdateIntervalHours, &st.LastScrapedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStore("", "failed to find product", err)
	}
	return &st, nil
}

// ListSites returns the active stores' site configurations ordered by name.
// Rows whose config cannot be decoded are logged and skipped.
func (s *PostgresStore) ListSites(ctx context.Context) ([]crawler.SiteConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, url, fetch_method, COALESCE(config::text, '{}')
		FROM stores
		WHERE active
		ORDER BY name`)
	if err != nil {
		return nil, errors.NewStore("", "failed to list stores", err)
	}
	defer rows.Close()

	var sites []crawler.SiteConfig
	for rows.Next() {
		var name, endpoint, method, config string
		if err := rows.Scan(&name, &endpoint, &method, &config); err != nil {
			return nil, errors.NewStore("", "failed to scan store", err)
		}

		site, err := crawler.DecodeSite(name, []byte(config))
		if err != nil {
			logger.ForStore().Warn().Err(err).Str("store", name).Msg("Skipping store with invalid config")
			continue
		}
		site.Name = name
		if site.Endpoint == "" {
			site.Endpoint = endpoint
		}
		if site.FetchMethod == "" {
			_ = site.FetchMethod.UnmarshalText([]byte(method))
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStore("", "failed to list stores", err)
	}
	return sites, nil
}

// AddPriceSnapshot stores result as the latest price of product at the result's site
func (s *PostgresStore) AddPriceSnapshot(ctx context.Context, productID int64, result *crawler.ScrapeResult) error {
	var amount *float64
	if n, ok := price.Parse(result.Price); ok {
		v := float64(n)
		amount = &v
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO price_snapshots (product_id, store_id, price, title, url, relevance_score, scraped_at)
		SELECT $1, st.id, $3, $4, $5, $6, $7
		FROM stores st
		WHERE st.name = $2`,
		productID, result.SiteName, amount, result.Title, result.ResolvedURL, result.Score, result.ScrapedAt,
	)
	if err != nil {
		return errors.NewStore(result.SiteName, "failed to add price snapshot", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewStore(result.SiteName, "unknown store", nil)
	}
	return nil
}

// RecordSearchNotFound counts a search term that matched on no site
func (s *PostgresStore) RecordSearchNotFound(ctx context.Context, searchTerm string) error {
	term := strings.ToLower(strings.TrimSpace(searchTerm))
	if term == "" {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO search_not_found (search_term, search_count, last_searched_at)
		VALUES ($1, 1, now())
		ON CONFLICT (search_term) DO UPDATE SET
			search_count = search_not_found.search_count + 1,
			last_searched_at = now()`,
		term,
	)
	if err != nil {
		return errors.NewStore("", "failed to record search not found", err)
	}
	return nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
