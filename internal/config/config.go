// Package config reads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fieldtour/fieldtour/internal/database"
	"github.com/fieldtour/fieldtour/internal/geo"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Route cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Routing providers.
const (
	ProviderOSRM             = "osrm"
	ProviderOpenRouteService = "openrouteservice"
	ProviderNone             = "none"
)

// Config is the API server configuration.
type Config struct {
	Port        string
	Environment string
	RequireTLS  bool

	StoreDriver string
	SQLitePath  string
	Database    database.Config

	RouteCache string
	RedisURL   string

	RoutingProvider string
	OSRMBaseURL     string
	ORSAPIKey       string
	RoutingTimeout  time.Duration

	OptimizerTimeout time.Duration
	OptimizerTwoOpt  bool

	// Fallback is the position used when no device location is known.
	Fallback geo.Coordinate
	// LocationMaxAge expires pushed device fixes. Zero keeps them forever.
	LocationMaxAge time.Duration

	PubSubProjectID    string
	PubSubTopic        string
	PubSubSubscription string

	OTelEnabled     bool
	OTLPEndpoint    string
	OTelSampleRatio float64
}

// LoadDotEnv loads variables from path (default ".env") without overriding
// ones already set. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv builds a Config from environment variables and validates it.
func FromEnv() (Config, error) {
	var errs []error

	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getEnvOrDefault(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	float := func(key, def string) float64 {
		f, err := strconv.ParseFloat(getEnvOrDefault(key, def), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return f
	}
	boolean := func(key, def string) bool {
		b, err := strconv.ParseBool(getEnvOrDefault(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return b
	}

	cfg := Config{
		Port:        getEnvOrDefault("APP_PORT", "8080"),
		Environment: getEnvOrDefault("APP_ENV", "development"),
		RequireTLS:  boolean("REQUIRE_TLS", "false"),

		StoreDriver: strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreMemory)),
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "data/fieldtour.db"),
		Database:    database.ConfigFromEnv(),

		RouteCache: strings.ToLower(getEnvOrDefault("ROUTE_CACHE", CacheMemory)),
		RedisURL:   getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),

		RoutingProvider: strings.ToLower(getEnvOrDefault("ROUTING_PROVIDER", ProviderOSRM)),
		OSRMBaseURL:     getEnvOrDefault("OSRM_BASE_URL", "https://router.project-osrm.org"),
		ORSAPIKey:       os.Getenv("ORS_API_KEY"),
		RoutingTimeout:  duration("ROUTING_TIMEOUT", "12s"),

		OptimizerTimeout: duration("OPTIMIZER_TIMEOUT", "15s"),
		OptimizerTwoOpt:  boolean("OPTIMIZER_TWO_OPT", "false"),

		Fallback: geo.Coordinate{
			Lat: float("FALLBACK_LAT", "0"),
			Lon: float("FALLBACK_LON", "0"),
		},
		LocationMaxAge: duration("LOCATION_MAX_AGE", "0s"),

		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubTopic:        getEnvOrDefault("PUBSUB_TOPIC", "tour-events"),
		PubSubSubscription: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "tour-events-worker"),

		OTelEnabled:     os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:    getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: float("OTEL_SAMPLE_RATIO", "1"),
	}

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

// PublishingEnabled reports whether tour events go to Pub/Sub.
func (c Config) PublishingEnabled() bool {
	return c.PubSubProjectID != ""
}

func (c Config) validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: unknown driver %q", c.StoreDriver))
	}

	switch c.RouteCache {
	case CacheMemory, CacheRedis:
	default:
		errs = append(errs, fmt.Errorf("ROUTE_CACHE: unknown cache %q", c.RouteCache))
	}

	switch c.RoutingProvider {
	case ProviderOSRM, ProviderNone:
	case ProviderOpenRouteService:
		if strings.TrimSpace(c.ORSAPIKey) == "" {
			errs = append(errs, errors.New("ORS_API_KEY is required for openrouteservice"))
		}
	default:
		errs = append(errs, fmt.Errorf("ROUTING_PROVIDER: unknown provider %q", c.RoutingProvider))
	}

	if c.Fallback.Lat < -90 || c.Fallback.Lat > 90 || c.Fallback.Lon < -180 || c.Fallback.Lon > 180 {
		errs = append(errs, fmt.Errorf("FALLBACK_LAT/FALLBACK_LON out of range: %s", c.Fallback))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
