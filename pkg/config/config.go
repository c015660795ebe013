package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MertBaran/QA-API-sub001/pkg/cache"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/observability"
	"github.com/MertBaran/QA-API-sub001/pkg/rbac"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration. Kind is fixed for the life of the process.
	Storage datasource.Config

	// Cache configuration
	Cache cache.Config

	// RBAC configuration
	RBAC RBACConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RBACConfig controls background work of the RBAC core.
type RBACConfig struct {
	SweepEnabled  bool
	SweepSchedule string
	SweepTimeout  time.Duration
	// SeedFile is applied at startup when set.
	SeedFile string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	storage, err := loadStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	obs, err := loadObservabilityConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       storage,
		Cache:         loadCacheConfig(),
		RBAC:          loadRBACConfig(),
		Observability: obs,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("QA_HOST", "0.0.0.0"),
		Port:            getEnv("QA_PORT", "8080"),
		ReadTimeout:     getEnvDuration("QA_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("QA_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("QA_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("QA_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("QA_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("QA_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() (datasource.Config, error) {
	cfg := datasource.DefaultConfig()

	kind, err := ids.ParseKind(getEnv("QA_DB_BACKEND", string(ids.KindDocument)))
	if err != nil {
		return cfg, err
	}
	cfg.Kind = kind

	switch kind {
	case ids.KindDocument:
		cfg.URI = getEnv("QA_MONGO_URI", "mongodb://localhost:27017")
		cfg.Database = getEnv("QA_MONGO_DATABASE", cfg.Database)
	case ids.KindRelational:
		cfg.URI = getEnv("QA_POSTGRES_URL", "")
	}

	if maxConns := getEnvInt("QA_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("QA_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("QA_DB_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	return cfg, nil
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig() cache.Config {
	cfg := cache.DefaultConfig()

	cfg.Backend = strings.ToLower(getEnv("QA_CACHE_BACKEND", cfg.Backend))
	cfg.RedisURL = getEnv("QA_REDIS_URL", "")
	cfg.RedisPassword = getEnv("QA_REDIS_PASSWORD", "")
	if redisDB := getEnvInt("QA_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	cfg.TTL = getEnvDuration("QA_CACHE_TTL", cfg.TTL)
	if size := getEnvInt("QA_CACHE_SIZE", 0); size > 0 {
		cfg.Size = size
	}
	cfg.Prefix = getEnv("QA_CACHE_PREFIX", cfg.Prefix)

	return cfg
}

func loadRBACConfig() RBACConfig {
	return RBACConfig{
		SweepEnabled:  getEnvBool("QA_SWEEP_ENABLED", true),
		SweepSchedule: getEnv("QA_SWEEP_SCHEDULE", rbac.DefaultSweepSchedule),
		SweepTimeout:  getEnvDuration("QA_SWEEP_TIMEOUT", time.Minute),
		SeedFile:      getEnv("QA_SEED_FILE", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() (ObservabilityConfig, error) {
	level, err := observability.ParseLogLevel(getEnv("QA_LOG_LEVEL", "info"))
	if err != nil {
		return ObservabilityConfig{}, err
	}

	return ObservabilityConfig{
		LogLevel:           level,
		MetricsEnabled:     getEnvBool("QA_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("QA_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("QA_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("QA_OTEL_SERVICE_NAME", "qa-api"),
		OTelServiceVersion: getEnv("QA_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("QA_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("QA_OTEL_SAMPLE_RATIO", 1),
	}, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on kind
	switch c.Storage.Kind {
	case ids.KindDocument:
		if c.Storage.URI == "" {
			return fmt.Errorf("mongo URI is required for the mongodb backend")
		}
		if c.Storage.Database == "" {
			return fmt.Errorf("mongo database is required for the mongodb backend")
		}
	case ids.KindRelational:
		if c.Storage.URI == "" {
			return fmt.Errorf("postgres URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be mongodb or postgres)", c.Storage.Kind)
	}
	if c.Storage.MinConns > c.Storage.MaxConns {
		return fmt.Errorf("postgres min conns (%d) exceeds max conns (%d)", c.Storage.MinConns, c.Storage.MaxConns)
	}

	// Validate cache config
	switch c.Cache.Backend {
	case cache.BackendNone, cache.BackendMemory:
	case cache.BackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be none, memory, or redis)", c.Cache.Backend)
	}
	if c.Cache.Backend != cache.BackendNone && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	// Validate sweep schedule
	if c.RBAC.SweepEnabled {
		if _, err := cron.ParseStandard(c.RBAC.SweepSchedule); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", c.RBAC.SweepSchedule, err)
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
