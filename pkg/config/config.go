package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/assessor/pkg/observability"
)

// Store backends accepted in ASSESSOR_STORE
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Bounds on the fixed impersonation lifetime
const (
	MinImpersonationTTL = time.Minute
	MaxImpersonationTTL = 24 * time.Hour
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Session store configuration
	Store StoreConfig

	// Active-role preference configuration
	Preference PreferenceConfig

	// Impersonation session settings
	Impersonation ImpersonationConfig

	// Audit trail settings
	Audit AuditConfig

	// Per-client context cache
	ClientCache ClientCacheConfig

	// Throttling of privilege-changing requests
	RateLimit RateLimitConfig

	// Authentication settings
	Auth AuthConfig

	// Path of the YAML feature catalog; empty selects the built-in catalog
	FeaturesFile string

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	MetricsAddr string
}

// StoreConfig selects and tunes the session store
type StoreConfig struct {
	Type            string
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PreferenceConfig holds the persisted active-role settings
type PreferenceConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// ImpersonationConfig holds impersonation session settings
type ImpersonationConfig struct {
	TTL             time.Duration
	JanitorSchedule string
}

// AuditConfig tunes the asynchronous audit dispatcher
type AuditConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Dir       string
}

// ClientCacheConfig bounds the per-client context cache
type ClientCacheConfig struct {
	Size int
	TTL  time.Duration
}

// RateLimitConfig bounds privilege changes per user. A zero PerMinute
// disables limiting.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	OIDCIssuer   string
	OIDCClientID string
	TrustHeaders bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Store:         loadStoreConfig(),
		Preference:    loadPreferenceConfig(),
		Impersonation: loadImpersonationConfig(),
		Audit:         loadAuditConfig(),
		ClientCache: ClientCacheConfig{
			Size: getEnvInt("ASSESSOR_CLIENT_CACHE_SIZE", 10000),
			TTL:  getEnvDuration("ASSESSOR_CLIENT_CACHE_TTL", 12*time.Hour),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("ASSESSOR_RATE_LIMIT_PER_MINUTE", 30),
			Burst:     getEnvInt("ASSESSOR_RATE_LIMIT_BURST", 10),
		},
		Auth: AuthConfig{
			OIDCIssuer:   getEnv("ASSESSOR_OIDC_ISSUER", ""),
			OIDCClientID: getEnv("ASSESSOR_OIDC_CLIENT_ID", ""),
			TrustHeaders: getEnvBool("ASSESSOR_TRUST_HEADERS", false),
		},
		FeaturesFile:  getEnv("ASSESSOR_FEATURES_FILE", ""),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        getEnv("ASSESSOR_HTTP_ADDR", ":8080"),
		ReadTimeout:     getEnvDuration("ASSESSOR_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ASSESSOR_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ASSESSOR_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ASSESSOR_SHUTDOWN_TIMEOUT", 30*time.Second),
		MetricsAddr:     getEnv("ASSESSOR_METRICS_ADDR", ":9090"),
	}
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Type:            strings.ToLower(getEnv("ASSESSOR_STORE", StorePostgres)),
		DatabaseURL:     getEnv("ASSESSOR_DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("ASSESSOR_DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("ASSESSOR_DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("ASSESSOR_DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func loadPreferenceConfig() PreferenceConfig {
	return PreferenceConfig{
		RedisURL:      getEnv("ASSESSOR_REDIS_URL", ""),
		RedisPassword: getEnv("ASSESSOR_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("ASSESSOR_REDIS_DB", 0),
		TTL:           getEnvDuration("ASSESSOR_PREFERENCE_TTL", 720*time.Hour),
	}
}

func loadImpersonationConfig() ImpersonationConfig {
	return ImpersonationConfig{
		TTL:             getEnvDuration("ASSESSOR_IMPERSONATION_TTL", 2*time.Hour),
		JanitorSchedule: getEnv("ASSESSOR_JANITOR_SCHEDULE", "@every 10m"),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Workers:   getEnvInt("ASSESSOR_AUDIT_WORKERS", 4),
		QueueSize: getEnvInt("ASSESSOR_AUDIT_QUEUE_SIZE", 1024),
		Timeout:   getEnvDuration("ASSESSOR_AUDIT_TIMEOUT", 5*time.Second),
		Dir:       getEnv("ASSESSOR_AUDIT_DIR", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("ASSESSOR_LOG_LEVEL", "info")),
		OTelEnabled:        getEnvBool("ASSESSOR_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ASSESSOR_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ASSESSOR_OTEL_SERVICE_NAME", "assessor"),
		OTelServiceVersion: getEnv("ASSESSOR_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("ASSESSOR_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("http address is required")
	}
	if c.Server.MetricsAddr == "" {
		return fmt.Errorf("metrics address is required")
	}
	if c.Server.HTTPAddr == c.Server.MetricsAddr {
		return fmt.Errorf("http address and metrics address must be different")
	}

	switch c.Store.Type {
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres store")
		}
		if c.Store.MaxOpenConns <= 0 {
			return fmt.Errorf("max open connections must be positive")
		}
		if c.Store.MaxIdleConns > c.Store.MaxOpenConns {
			return fmt.Errorf("max idle connections (%d) exceeds max open connections (%d)",
				c.Store.MaxIdleConns, c.Store.MaxOpenConns)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid store type: %s (must be postgres or memory)", c.Store.Type)
	}

	if c.Impersonation.TTL < MinImpersonationTTL || c.Impersonation.TTL > MaxImpersonationTTL {
		return fmt.Errorf("impersonation TTL %s outside [%s, %s]",
			c.Impersonation.TTL, MinImpersonationTTL, MaxImpersonationTTL)
	}
	if c.Impersonation.JanitorSchedule == "" {
		return fmt.Errorf("janitor schedule is required")
	}
	if c.Preference.TTL <= 0 {
		return fmt.Errorf("preference TTL must be positive")
	}

	if c.Audit.Workers <= 0 || c.Audit.QueueSize <= 0 {
		return fmt.Errorf("audit workers and queue size must be positive")
	}
	if c.Audit.Timeout <= 0 {
		return fmt.Errorf("audit timeout must be positive")
	}

	if c.ClientCache.Size <= 0 {
		return fmt.Errorf("client cache size must be positive")
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}

	if c.Auth.OIDCIssuer != "" && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("OIDC client ID is required when an issuer is configured")
	}
	if c.Auth.OIDCIssuer == "" && !c.Auth.TrustHeaders {
		return fmt.Errorf("no authenticator configured: set ASSESSOR_OIDC_ISSUER or ASSESSOR_TRUST_HEADERS")
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

// Enabled reports whether privilege changes are throttled
func (r RateLimitConfig) Enabled() bool {
	return r.PerMinute > 0
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
