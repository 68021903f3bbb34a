package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/jawher/mow.cli"
	"github.com/joho/godotenv"

	"sjsage522/pricecompare/config"
	"sjsage522/pricecompare/helpers"
	"sjsage522/pricecompare/internal/crawler"
	"sjsage522/pricecompare/internal/scheduler"
	"sjsage522/pricecompare/logger"
	"sjsage522/pricecompare/services/cache"
	"sjsage522/pricecompare/services/publisher"
	"sjsage522/pricecompare/services/server"
	"sjsage522/pricecompare/services/store"
	"sjsage522/pricecompare/services/worker"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()

	app := cli.App("pricecompare", "Resolve product prices across retail sites")

	app.Command("run", "Refresh due products periodically and serve /health and /metrics", func(cmd *cli.Cmd) {
		cmd.Action = func() { withServices(runScheduler) }
	})

	app.Command("batch", "Refresh all due products once", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			withServices(func(ctx context.Context, cfg config.Config, svc *Services) error {
				summary, err := svc.Worker.RunBatch(ctx)
				printJSON(summary)
				return err
			})
		}
	})

	app.Command("refresh", "Refresh one tracked product on every site", func(cmd *cli.Cmd) {
		cmd.Spec = "NAME"
		name := cmd.StringArg("NAME", "", "tracked product name")

		cmd.Action = func() {
			withServices(func(ctx context.Context, cfg config.Config, svc *Services) error {
				summary, err := svc.Worker.LookupProduct(ctx, *name)
				printJSON(summary)
				return err
			})
		}
	})

	app.Command("lookup", "Look up a search term on every site", func(cmd *cli.Cmd) {
		cmd.Spec = "[--category] TERM"
		category := cmd.StringOpt("c category", "", "product category, when the site filters by it")
		term := cmd.StringArg("TERM", "", "search term")

		cmd.Action = func() {
			withServices(func(ctx context.Context, cfg config.Config, svc *Services) error {
				results, err := svc.Worker.LookupAll(ctx, crawler.SearchQuery{SearchTerm: *term, Category: *category})
				printJSON(results)
				return err
			})
		}
	})

	if err := app.Run(os.Args); err != nil {
		logger.Default.Fatal().Err(err).Msg("Command failed")
	}
}

// runScheduler runs the refresh check on a cron interval until a signal arrives
func runScheduler(ctx context.Context, cfg config.Config, svc *Services) error {
	log := logger.Default

	ops := server.New(cfg.MetricsAddr, svc.HealthChecks())
	go func() {
		if err := ops.Start(); err != nil {
			log.Error().Err(err).Msg("Ops server exited with error")
		}
	}()

	s := scheduler.New(func(ctx context.Context) {
		if _, err := svc.Worker.RunBatch(ctx); err != nil {
			logger.LogError("RefreshBatch", err, "refresh batch failed")
		}
	}, cfg.RefreshCheckInterval)
	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	s.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ops.Shutdown(shutdownCtx)
}

// withServices loads configuration, initializes services and runs fn with a
// context cancelled on SIGINT or SIGTERM
func withServices(fn func(ctx context.Context, cfg config.Config, svc *Services) error) {
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("refresh_check_interval", cfg.RefreshCheckInterval).
		Dur("request_delay", cfg.RequestDelay).
		Msg("Starting application")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	if err := fn(ctx, cfg, services); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Command failed")
		services.Cleanup()
		cli.Exit(1)
	}
}

// Services holds all the initialized services
type Services struct {
	Cache     *cache.MemcacheService
	Publisher publisher.Publisher
	Store     *store.PostgresStore
	Worker    *worker.Worker
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
		s.Publisher = nil
	}
	if s.Store != nil {
		s.Store.Close()
		s.Store = nil
	}
}

// HealthChecks returns the dependency checks of the ops endpoint
func (s *Services) HealthChecks() map[string]server.Check {
	checks := map[string]server.Check{
		"memcache": func(ctx context.Context) error { return s.Cache.Ping() },
	}
	if rp, ok := s.Publisher.(*publisher.RedisPublisher); ok {
		checks["redis"] = rp.Ping
	}
	if s.Store != nil {
		checks["postgres"] = s.Store.Ping
	}
	return checks
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service
	services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
	if err := services.Cache.Ping(); err != nil {
		logger.ForCache().Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unreachable, rate-limit blocks will not persist")
	} else {
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	}

	// Initialize publisher
	switch cfg.Publisher {
	case config.PublisherRedis:
		rp := publisher.NewRedisPublisher(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		if err := rp.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		services.Publisher = rp
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	case config.PublisherNATS:
		np, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, err
		}
		services.Publisher = np
		logger.Info("Connected to NATS at %s (Subject: %s)", cfg.NATSURL, cfg.NATSSubject)
	default:
		services.Publisher = publisher.NopPublisher{}
	}

	// Initialize store
	st, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		services.Cleanup()
		return nil, err
	}
	services.Store = st

	// Sites come from the sites file when set, otherwise from the stores table
	var sites worker.SiteSource = st
	if cfg.SitesFile != "" {
		loaded, err := crawler.LoadSites(cfg.SitesFile)
		if err != nil {
			services.Cleanup()
			return nil, err
		}
		sites = worker.StaticSites(loaded)
		logger.Info("Loaded %d sites from %s", len(loaded), cfg.SitesFile)
	}

	base := crawler.NewBaseFetcher(services.Cache, cfg.RateLimitBlock, helpers.NewResponseDumper(cfg.DumpDir)).
		WithTimeout(cfg.RequestTimeout)
	services.Worker = worker.NewWorker(st, sites, crawler.NewDispatcher(base), services.Publisher, cfg.RequestDelay)

	return services, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.LogError("Output", err, "failed to encode output")
	}
}
