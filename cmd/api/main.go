// Package main provides the entrypoint for the fieldtour API server.
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldtour/fieldtour/internal/api"
	"github.com/fieldtour/fieldtour/internal/api/handler"
	"github.com/fieldtour/fieldtour/internal/api/middleware"
	"github.com/fieldtour/fieldtour/internal/config"
	"github.com/fieldtour/fieldtour/internal/database"
	"github.com/fieldtour/fieldtour/internal/events"
	"github.com/fieldtour/fieldtour/internal/location"
	"github.com/fieldtour/fieldtour/internal/navigation"
	"github.com/fieldtour/fieldtour/internal/optimizer"
	"github.com/fieldtour/fieldtour/internal/planner"
	"github.com/fieldtour/fieldtour/internal/provider/resilience"
	"github.com/fieldtour/fieldtour/internal/routing"
	"github.com/fieldtour/fieldtour/internal/routing/openrouteservice"
	"github.com/fieldtour/fieldtour/internal/routing/osrm"
	"github.com/fieldtour/fieldtour/internal/telemetry"
	"github.com/fieldtour/fieldtour/internal/tour"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "fieldtour-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting fieldtour API")

	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if tp.Exporting() {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	meter := telemetry.Meter(serviceName)
	metrics, err := middleware.NewMetrics(meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}
	providerMetrics, err := telemetry.NewProviderMetrics(meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}
	planningMetrics, err := telemetry.NewPlanningMetrics(meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize planning metrics")
	}

	var subsystems []handler.Subsystem

	// Tour storage
	repo, closeRepo, err := openStore(ctx, cfg, log, &subsystems)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open tour store")
	}
	defer closeRepo()

	// Routing provider and route cache
	registry := resilience.NewRegistry()
	provider, trips := newProvider(cfg, registry, log)

	var cache routing.RouteCache = routing.NewMemoryCache(time.Minute)
	if cfg.RouteCache == config.CacheRedis {
		redisCache, err := routing.NewRedisCacheFromURL(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer func() { _ = redisCache.Close() }()
		cache = redisCache
		subsystems = append(subsystems, handler.Subsystem{Name: "routeCache", Pinger: redisCache})
		log.Info().Msg("redis route cache connected")
	}

	routes := routing.NewService(routing.ServiceConfig{
		Provider:  provider,
		Optimizer: trips,
		Cache:     cache,
		Logger:    log,
		Metrics:   providerMetrics,
		Timeout:   cfg.RoutingTimeout,
	})
	log.Info().Str("provider", routes.ProviderName()).Msg("routing service initialized")

	optimizerCfg := optimizer.Config{
		Timeout: cfg.OptimizerTimeout,
		TwoOpt:  cfg.OptimizerTwoOpt,
		Logger:  log,
		Metrics: planningMetrics,
	}
	if trips != nil {
		optimizerCfg.Delegate = routes
	}
	tripOptimizer := optimizer.New(optimizerCfg)

	// Stop transition events
	var publisher events.Publisher = events.LogPublisher{Logger: log}
	if cfg.PublishingEnabled() {
		pub, err := events.NewPubSubPublisher(ctx, events.PubSubConfig{
			ProjectID: cfg.PubSubProjectID,
			Topic:     cfg.PubSubTopic,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		publisher = pub
		log.Info().Str("topic", cfg.PubSubTopic).Msg("publishing tour events to Pub/Sub")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	tours := tour.NewService(tour.ServiceConfig{
		Repository: repo,
		Logger:     log,
		Listeners:  []tour.Listener{events.NewListener(publisher, log)},
		Metrics:    planningMetrics,
	})

	tracker := location.NewTracker(cfg.LocationMaxAge)

	manager := navigation.NewManager(navigation.ManagerConfig{
		Tours:        tours,
		Router:       routes,
		Location:     tracker,
		Fallback:     cfg.Fallback,
		Logger:       log,
		Metrics:      planningMetrics,
		RouteTimeout: cfg.RoutingTimeout,
	})
	tours.Subscribe(manager)

	tourPlanner := planner.New(planner.Config{
		Optimizer: tripOptimizer,
		Tours:     tours,
		Location:  tracker,
		Fallback:  cfg.Fallback,
		Logger:    log,
	})
	log.Info().Msg("tour services initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		RequireTLS:  cfg.RequireTLS,
		Tours:       tours,
		Planner:     tourPlanner,
		Navigation:  manager,
		Location:    tracker,
		Subsystems:  subsystems,
		Providers:   registry,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	manager.CloseAll()

	log.Info().Msg("server stopped")
}

// openStore opens the configured tour repository and registers its health
// check. The returned func releases it.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger, subsystems *[]handler.Subsystem) (tour.Repository, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		repo, err := tour.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		*subsystems = append(*subsystems, handler.Subsystem{Name: "database", Pinger: repo})
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite tour store opened")
		return repo, closer(repo, log), nil

	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		repo := tour.NewPostgresRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		*subsystems = append(*subsystems, handler.Subsystem{Name: "database", Pinger: handler.PingerFunc(pool.Ping)})
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Name).
			Msg("database connected")
		return repo, pool.Close, nil

	default:
		log.Warn().Msg("using in-memory tour store - tours are lost on restart")
		return tour.NewInMemoryRepository(), func() {}, nil
	}
}

func closer(c io.Closer, log zerolog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close tour store")
		}
	}
}

// newProvider builds the configured routing provider. trips is nil when the
// provider cannot order trips.
func newProvider(cfg config.Config, registry *resilience.Registry, log zerolog.Logger) (routing.Provider, routing.TripOptimizer) {
	switch cfg.RoutingProvider {
	case config.ProviderOpenRouteService:
		client := openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.ORSAPIKey,
			Timeout:  cfg.RoutingTimeout,
			Registry: registry,
			Logger:   log,
		})
		return client, client

	case config.ProviderNone:
		log.Warn().Msg("no routing provider configured - using straight-line routes")
		return routing.StraightLine{}, nil

	default:
		client := osrm.NewClient(osrm.ClientConfig{
			BaseURL:  cfg.OSRMBaseURL,
			Timeout:  cfg.RoutingTimeout,
			Registry: registry,
			Logger:   log,
		})
		return client, client
	}
}
