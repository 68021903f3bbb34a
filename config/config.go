package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Publisher kinds
const (
	PublisherRedis = "redis"
	PublisherNATS  = "nats"
	PublisherNone  = "none"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// NATS configuration
	NATSURL     string
	NATSSubject string

	// Publisher selects where scrape results are sent: redis, nats or none
	Publisher string

	// Memcache configuration
	MemcacheAddr string

	// Postgres connection string
	DatabaseURL string

	// Sites file; when empty sites are read from the store
	SitesFile string

	// Lookup pacing
	RequestDelay   time.Duration
	RequestTimeout time.Duration
	RateLimitBlock time.Duration

	// Scheduler
	RefreshCheckInterval time.Duration

	// Ops endpoint
	MetricsAddr string

	// Raw response dumps
	DumpDir string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	streamMaxLength, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "1000"))
	requestDelay, _ := strconv.Atoi(getEnv("REQUEST_DELAY_SECONDS", "2"))
	requestTimeout, _ := strconv.Atoi(getEnv("REQUEST_TIMEOUT_SECONDS", "10"))
	blockSeconds, _ := strconv.Atoi(getEnv("RATE_LIMIT_BLOCK_SECONDS", "500"))
	refreshMinutes, _ := strconv.Atoi(getEnv("REFRESH_CHECK_INTERVAL_MINUTES", "60"))

	return Config{
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "prices"),
		RedisStreamCount:     streamCount,
		RedisStreamMaxLength: streamMaxLength,
		NATSURL:              getEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject:          getEnv("NATS_SUBJECT", "prices.snapshots"),
		Publisher:            getEnv("PUBLISHER", PublisherRedis),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		DatabaseURL:          getEnv("DATABASE_URL", "postgres://localhost:5432/prices?sslmode=disable"),
		SitesFile:            getEnv("SITES_FILE", ""),
		RequestDelay:         time.Duration(requestDelay) * time.Second,
		RequestTimeout:       time.Duration(requestTimeout) * time.Second,
		RateLimitBlock:       time.Duration(blockSeconds) * time.Second,
		RefreshCheckInterval: time.Duration(refreshMinutes) * time.Minute,
		MetricsAddr:          getEnv("METRICS_ADDR", ":9090"),
		DumpDir:              getEnv("DUMP_DIR", "debug"),
		Environment:          getEnv("PRICE_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the services cannot run with
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("REQUEST_DELAY_SECONDS must not be negative")
	}
	if c.RefreshCheckInterval <= 0 {
		return fmt.Errorf("REFRESH_CHECK_INTERVAL_MINUTES must be positive")
	}

	switch c.Publisher {
	case PublisherRedis:
		if c.RedisStreamCount <= 0 {
			return fmt.Errorf("REDIS_STREAM_COUNT must be positive")
		}
	case PublisherNATS:
		if c.NATSSubject == "" {
			return fmt.Errorf("NATS_SUBJECT is required for the nats publisher")
		}
	case PublisherNone:
	default:
		return fmt.Errorf("unknown PUBLISHER %q", c.Publisher)
	}

	return nil
}

// IsProduction reports whether PRICE_ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
