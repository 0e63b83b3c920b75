package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	KurrentDB  KurrentDBConfig
	Events     EventsConfig
	Auth       AuthConfig
	Alerts     AlertsConfig
	RateLimit  RateLimitConfig
	Legacy     LegacyConfig
	Resilience ResilienceConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns         int
	MinConns         int
	AppName          string
	StatementTimeout time.Duration
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

// EventsConfig selects the event bus driver.
type EventsConfig struct {
	// Driver: "kurrentdb", "nats" or "none"
	Driver        string
	NATSURL       string
	SubjectPrefix string
}

// AuthConfig configures verification of access tokens issued by the
// clinic identity provider.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// AlertsConfig controls the server-side inventory alert monitor.
type AlertsConfig struct {
	Enabled         bool
	RefreshInterval time.Duration
	FeedSize        int
}

type RateLimitConfig struct {
	RPS   int
	Burst int
}

// LegacyConfig points at the SQL Server database of the previous practice
// management system. Only used for read-only inventory import.
type LegacyConfig struct {
	Enabled   bool
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
	ItemTable string
}

// ResilienceConfig tunes retries and circuit breakers on outbound calls.
type ResilienceConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BreakerEnabled bool          `yaml:"breaker_enabled"`
	FailureRatio   float64       `yaml:"failure_ratio"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8080),
			Env:            getEnv("ENV", "development"),
			AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "vetcore"),
			Password: getEnv("DB_PASSWORD", "vetcore"),
			Database: getEnv("DB_NAME", "petclinic"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxConns:         getEnvInt("DB_MAX_CONNS", 25),
			MinConns:         getEnvInt("DB_MIN_CONNS", 5),
			AppName:          getEnv("DB_APP_NAME", "vetcore-platform"),
			StatementTimeout: getEnvDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Events: EventsConfig{
			Driver:        getEnv("EVENTS_DRIVER", "none"),
			NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("EVENTS_SUBJECT_PREFIX", "vetcore"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Alerts: AlertsConfig{
			Enabled:         getEnvBool("ALERTS_ENABLED", true),
			RefreshInterval: getEnvDuration("ALERTS_REFRESH_INTERVAL", 15*time.Minute),
			FeedSize:        getEnvInt("ALERTS_FEED_SIZE", 50),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvInt("RATE_LIMIT_RPS", 20),
			Burst: getEnvInt("RATE_LIMIT_BURST", 40),
		},
		Legacy: LegacyConfig{
			Enabled:   getEnvBool("LEGACY_ENABLED", false),
			Host:      getEnv("LEGACY_DB_HOST", "localhost"),
			Port:      getEnvInt("LEGACY_DB_PORT", 1433),
			User:      getEnv("LEGACY_DB_USER", "sa"),
			Password:  getEnv("LEGACY_DB_PASSWORD", ""),
			Database:  getEnv("LEGACY_DB_NAME", "clinic"),
			ItemTable: getEnv("LEGACY_ITEM_TABLE", "dbo.StockItems"),
		},
		Resilience: ResilienceConfig{
			MaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialBackoff: getEnvDuration("RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
			MaxBackoff:     getEnvDuration("RETRY_MAX_BACKOFF", 2*time.Second),
			BreakerEnabled: getEnvBool("BREAKER_ENABLED", true),
			FailureRatio:   getEnvFloat("BREAKER_FAILURE_RATIO", 0.6),
			OpenTimeout:    getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	switch cfg.Events.Driver {
	case "kurrentdb", "nats", "none":
	default:
		return nil, fmt.Errorf("unknown EVENTS_DRIVER %q", cfg.Events.Driver)
	}
	if cfg.Alerts.RefreshInterval <= 0 {
		return nil, fmt.Errorf("ALERTS_REFRESH_INTERVAL must be positive, got %s", cfg.Alerts.RefreshInterval)
	}
	if cfg.Database.MinConns < 0 || cfg.Database.MaxConns < 1 || cfg.Database.MinConns > cfg.Database.MaxConns {
		return nil, fmt.Errorf("DB_MIN_CONNS (%d) and DB_MAX_CONNS (%d) must satisfy 0 <= min <= max, max >= 1",
			cfg.Database.MinConns, cfg.Database.MaxConns)
	}
	if cfg.Server.Env == "production" && cfg.Auth.JWTSecret == "dev-secret-change-in-prod" {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
